package hand

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/sidepot"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PlayerView struct {
	SeatNumber int      `json:"seatNumber"`
	PlayerID   int64    `json:"playerId,string"`
	Stack      int64    `json:"stack"`
	RoundBet   int64    `json:"roundBet"`
	TotalBet   int64    `json:"totalBet"`
	Status     string   `json:"status"`
	HoleCards  []string `json:"holeCards,omitempty"`
}

type ActionView struct {
	Sequence   int        `json:"sequence"`
	SeatNumber int        `json:"seatNumber"`
	PlayerID   int64      `json:"playerId,string"`
	Kind       ActionKind `json:"kind"`
	Amount     int64      `json:"amount"`
	Phase      Phase      `json:"phase"`
	Forced     bool       `json:"forced"`
	At         time.Time  `json:"at"`
}

// View is a hand as one viewer may see it. Hole cards are only filled for
// the viewer and, once the hand is complete, for players who reached
// showdown.
type View struct {
	HandID           int64          `json:"handId,string"`
	TableID          int64          `json:"tableId,string"`
	HandNumber       int            `json:"handNumber"`
	Phase            Phase          `json:"phase"`
	DealerSeat       int            `json:"dealerSeat"`
	SmallBlindSeat   int            `json:"smallBlindSeat"`
	BigBlindSeat     int            `json:"bigBlindSeat"`
	SmallBlind       int64          `json:"smallBlind"`
	BigBlind         int64          `json:"bigBlind"`
	Ante             int64          `json:"ante"`
	CommunityCards   []string       `json:"communityCards"`
	Pots             []sidepot.Pot  `json:"pots"`
	CurrentActorSeat int            `json:"currentActorSeat"`
	CurrentBet       int64          `json:"currentBet"`
	MinRaise         int64          `json:"minRaise"`
	ActionDeadline   *time.Time     `json:"actionDeadline,omitempty"`
	StateVersion     int64          `json:"stateVersion"`
	Players          []PlayerView   `json:"players"`
	Actions          []ActionView   `json:"actions"`
	Results          []PlayerResult `json:"results,omitempty"`
}

func toActionView(a model.HandAction) ActionView {
	return ActionView{
		Sequence:   a.Sequence,
		SeatNumber: a.SeatNumber,
		PlayerID:   a.PlayerID,
		Kind:       ActionKind(a.Kind),
		Amount:     a.Amount,
		Phase:      Phase(a.Phase),
		Forced:     a.Forced,
		At:         a.CreatedAt,
	}
}

func buildView(ht *handTx, viewerID int64) *View {
	h := ht.hand
	phase := Phase(h.Phase)
	proj := ht.projection()

	v := &View{
		HandID:           h.ID,
		TableID:          h.TableID,
		HandNumber:       h.HandNumber,
		Phase:            phase,
		DealerSeat:       h.DealerSeat,
		SmallBlindSeat:   h.SmallBlindSeat,
		BigBlindSeat:     h.BigBlindSeat,
		SmallBlind:       h.SmallBlind,
		BigBlind:         h.BigBlind,
		Ante:             h.Ante,
		CommunityCards:   append([]string{}, ht.board...),
		CurrentActorSeat: h.CurrentActorSeat,
		CurrentBet:       h.CurrentBet,
		MinRaise:         h.MinRaise,
		ActionDeadline:   h.ActionDeadline,
		StateVersion:     h.StateVersion,
		Players:          make([]PlayerView, 0, len(proj.Players)),
		Actions:          make([]ActionView, 0, len(ht.actions)),
	}

	shown := make(map[int64]bool)
	won := make(map[int64]int64)
	if phase == PhaseComplete {
		v.Pots = make([]sidepot.Pot, 0)
		if err := json.Unmarshal(h.Pots, &v.Pots); err != nil {
			logger.Log.Error("decode hand pots", zap.Int64("handID", h.ID), zap.Error(err))
		}
		if err := json.Unmarshal(h.Results, &v.Results); err != nil {
			logger.Log.Error("decode hand results", zap.Int64("handID", h.ID), zap.Error(err))
		}
		for _, r := range v.Results {
			won[r.PlayerID] = r.Won
			if len(r.HoleCards) > 0 {
				shown[r.PlayerID] = true
			}
		}
	} else {
		v.Pots = sidepot.CalculateSidePots(proj.Contributors())
	}

	for _, ps := range proj.Players {
		pv := PlayerView{
			SeatNumber: ps.SeatNumber,
			PlayerID:   ps.PlayerID,
			Stack:      ps.Remaining() + won[ps.PlayerID],
			RoundBet:   ps.RoundBet,
			TotalBet:   ps.TotalBet,
			Status:     string(ps.Status()),
		}
		if (viewerID != 0 && ps.PlayerID == viewerID) || shown[ps.PlayerID] {
			pv.HoleCards = ht.holeCards(ps.SeatNumber)
		}
		v.Players = append(v.Players, pv)
	}
	for _, a := range ht.actions {
		v.Actions = append(v.Actions, toActionView(a))
	}
	return v
}

// GetState loads one hand for a viewer.
func (s *Service) GetState(ctx context.Context, tableID, handID, viewerID int64) (*View, error) {
	var h model.Hand
	db := s.db.WithContext(ctx)
	if err := db.First(&h, handID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrHandNotFound
		}
		return nil, err
	}
	if h.TableID != tableID {
		return nil, appErr.ErrHandNotFound
	}
	ht, err := s.loadWorkingSet(db, &h)
	if err != nil {
		return nil, err
	}
	return buildView(ht, viewerID), nil
}

// LatestHand returns the table's most recent hand for a viewer.
func (s *Service) LatestHand(ctx context.Context, tableID, viewerID int64) (*View, error) {
	var h model.Hand
	db := s.db.WithContext(ctx)
	if err := db.Where("table_id = ?", tableID).Order("hand_number DESC").Limit(1).Find(&h).Error; err != nil {
		return nil, err
	}
	if h.ID == 0 {
		return nil, appErr.ErrHandNotFound
	}
	ht, err := s.loadWorkingSet(db, &h)
	if err != nil {
		return nil, err
	}
	return buildView(ht, viewerID), nil
}

// ListExpired returns open hands whose action deadline has passed.
func (s *Service) ListExpired(ctx context.Context, limit int) ([]model.Hand, error) {
	var hands []model.Hand
	err := s.db.WithContext(ctx).
		Where("phase <> ? AND action_deadline IS NOT NULL AND action_deadline <= ?", string(PhaseComplete), s.clock.Now()).
		Order("action_deadline").
		Limit(limit).
		Find(&hands).Error
	return hands, err
}
