package hand

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/broadcast"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultActionTimeout = 30 * time.Second

type Config struct {
	ActionTimeout time.Duration
}

// CompletionListener runs after a settled hand has been committed.
type CompletionListener func(ctx context.Context, summary Summary)

// Service runs hands. It keeps no per-hand state between calls; every
// operation loads the hand under a row lock, replays its action log and
// writes the result back in one transaction.
type Service struct {
	db       *gorm.DB
	pub      broadcast.Publisher
	clock    quartz.Clock
	cfg      Config
	newDeck  func() ([]string, error)
	listener CompletionListener
}

func NewService(db *gorm.DB, pub broadcast.Publisher, clock quartz.Clock, cfg Config) *Service {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if pub == nil {
		pub = broadcast.Nop{}
	}
	return &Service{
		db:      db,
		pub:     pub,
		clock:   clock,
		cfg:     cfg,
		newDeck: NewDeck,
	}
}

func (s *Service) OnComplete(fn CompletionListener) {
	s.listener = fn
}

// Result is returned by every mutating call.
type Result struct {
	State     *View      `json:"state"`
	Action    ActionView `json:"action"`
	Completed bool       `json:"completed"`
}

// handTx is the working set of one hand inside a transaction.
type handTx struct {
	tx      *gorm.DB
	hand    *model.Hand
	parts   []model.HandParticipant
	actions []model.HandAction
	deck    []string
	board   []string
	now     time.Time
	last    *model.HandAction
	summary *Summary
}

func (ht *handTx) participant(playerID int64) (model.HandParticipant, bool) {
	for _, p := range ht.parts {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return model.HandParticipant{}, false
}

func (ht *handTx) participantAt(seat int) (model.HandParticipant, bool) {
	for _, p := range ht.parts {
		if p.SeatNumber == seat {
			return p, true
		}
	}
	return model.HandParticipant{}, false
}

func (ht *handTx) holeCards(seat int) []string {
	p, ok := ht.participantAt(seat)
	if !ok {
		return nil
	}
	return decodeCards(p.HoleCards)
}

func (ht *handTx) deal(n int) {
	if n > len(ht.deck) {
		n = len(ht.deck)
	}
	ht.board = append(ht.board, ht.deck[:n]...)
	ht.deck = ht.deck[n:]
}

func (ht *handTx) projection() Projection {
	return Project(ht.parts, ht.actions, Phase(ht.hand.Phase), ht.hand.BigBlind)
}

func (ht *handTx) save() error {
	h := ht.hand
	h.StateVersion++
	h.CommunityCards = mustJSON(ht.board)
	h.Deck = mustJSON(ht.deck)
	h.UpdatedAt = ht.now
	return ht.tx.Save(h).Error
}

func (s *Service) loadLocked(tx *gorm.DB, tableID, handID int64) (*handTx, error) {
	var h model.Hand
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&h, handID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrHandNotFound
		}
		return nil, err
	}
	if h.TableID != tableID {
		return nil, appErr.ErrHandNotFound
	}
	return s.loadWorkingSet(tx, &h)
}

func (s *Service) loadWorkingSet(tx *gorm.DB, h *model.Hand) (*handTx, error) {
	ht := &handTx{tx: tx, hand: h, now: s.clock.Now()}
	if err := tx.Where("hand_id = ?", h.ID).Order("seat_number").Find(&ht.parts).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("hand_id = ?", h.ID).Order("sequence").Find(&ht.actions).Error; err != nil {
		return nil, err
	}
	ht.deck = decodeCards(h.Deck)
	ht.board = decodeCards(h.CommunityCards)
	return ht, nil
}

// Act applies a player's decision. Only the current actor may act.
func (s *Service) Act(ctx context.Context, req ActRequest) (*Result, error) {
	var ht *handTx
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ht, err = s.loadLocked(tx, req.TableID, req.HandID)
		if err != nil {
			return err
		}
		if Phase(ht.hand.Phase) == PhaseComplete {
			return appErr.ErrHandCompleted
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != ht.hand.StateVersion {
			return appErr.ErrStaleVersion
		}
		part, ok := ht.participant(req.PlayerID)
		if !ok {
			return appErr.ErrNotInHand
		}
		if part.SeatNumber != ht.hand.CurrentActorSeat {
			return appErr.ErrNotYourTurn
		}
		if err := s.apply(ht, part.SeatNumber, req.Intent, false); err != nil {
			return err
		}
		return ht.save()
	})
	if err != nil {
		return nil, err
	}
	return s.afterCommit(ctx, ht, req.PlayerID), nil
}

// ForceFold folds the current actor once the action deadline has passed on
// the server clock. A second call is rejected because the deadline has moved
// on or the hand is over.
func (s *Service) ForceFold(ctx context.Context, req ForceFoldRequest) (*Result, error) {
	var ht *handTx
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ht, err = s.loadLocked(tx, req.TableID, req.HandID)
		if err != nil {
			return err
		}
		h := ht.hand
		if Phase(h.Phase) == PhaseComplete {
			return appErr.ErrHandCompleted
		}
		if h.ActionDeadline == nil || ht.now.Before(*h.ActionDeadline) {
			return appErr.ErrDeadlineNotReached
		}
		if err := s.apply(ht, h.CurrentActorSeat, Intent{Kind: ActionFold}, true); err != nil {
			return err
		}
		return ht.save()
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("action timeout fold",
		zap.Int64("tableID", req.TableID),
		zap.Int64("handID", req.HandID),
		zap.Int("seat", ht.last.SeatNumber),
		zap.Int64("playerID", ht.last.PlayerID),
	)
	return s.afterCommit(ctx, ht, 0), nil
}

func (s *Service) apply(ht *handTx, seat int, intent Intent, forced bool) error {
	h := ht.hand
	proj := ht.projection()
	ps, ok := proj.Player(seat)
	if !ok || !ps.CanBet() {
		return appErr.ErrInvalidAction
	}
	kind, amount, err := validate(proj, ps, intent, h.BigBlind)
	if err != nil {
		return err
	}
	if err := s.record(ht, ps, kind, amount, forced); err != nil {
		return err
	}
	return s.resolve(ht, seat)
}

// validate turns an intent into the logged kind and the chips it moves.
func validate(proj Projection, ps PlayerState, intent Intent, bigBlind int64) (ActionKind, int64, error) {
	remaining := ps.Remaining()
	switch intent.Kind {
	case ActionFold:
		return ActionFold, 0, nil
	case ActionCheck:
		if ps.RoundBet < proj.CurrentBet {
			return "", 0, appErr.ErrCannotCheck
		}
		return ActionCheck, 0, nil
	case ActionCall:
		toCall := proj.CurrentBet - ps.RoundBet
		if toCall <= 0 {
			return "", 0, appErr.ErrNothingToCall
		}
		if toCall >= remaining {
			return ActionAllIn, remaining, nil
		}
		return ActionCall, toCall, nil
	case ActionBet, ActionRaise:
		if intent.Kind == ActionBet && proj.CurrentBet > 0 {
			return "", 0, appErr.ErrBetNotAllowed
		}
		if intent.Kind == ActionRaise && proj.CurrentBet == 0 {
			return "", 0, appErr.ErrRaiseNotAllowed
		}
		amount := intent.Amount - ps.RoundBet
		if amount > remaining {
			return "", 0, appErr.ErrInsufficientStack
		}
		if amount == remaining {
			return ActionAllIn, remaining, nil
		}
		if intent.Kind == ActionBet {
			if amount <= 0 || intent.Amount < bigBlind {
				return "", 0, appErr.ErrBetTooSmall
			}
			return ActionBet, amount, nil
		}
		if intent.Amount < proj.CurrentBet+proj.MinRaise {
			return "", 0, appErr.ErrRaiseTooSmall
		}
		return ActionRaise, amount, nil
	case ActionAllIn:
		return ActionAllIn, remaining, nil
	}
	return "", 0, appErr.ErrInvalidAction
}

func (s *Service) record(ht *handTx, ps PlayerState, kind ActionKind, amount int64, forced bool) error {
	action := model.HandAction{
		HandID:     ht.hand.ID,
		Sequence:   ht.projection().LastSequence + 1,
		SeatNumber: ps.SeatNumber,
		PlayerID:   ps.PlayerID,
		Kind:       string(kind),
		Amount:     amount,
		Phase:      ht.hand.Phase,
		Forced:     forced,
		CreatedAt:  ht.now,
	}
	if err := ht.tx.Create(&action).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return appErr.ErrStaleVersion
		}
		return err
	}
	ht.actions = append(ht.actions, action)
	ht.last = &action
	if amount == 0 {
		return nil
	}
	return adjustStack(ht.tx, ht.hand.TableID, ps.SeatNumber, -amount)
}

// resolve moves the hand forward until someone has to act or it settles.
func (s *Service) resolve(ht *handTx, after int) error {
	h := ht.hand
	for {
		proj := ht.projection()
		if len(proj.Live()) <= 1 {
			return s.settle(ht)
		}
		if !proj.RoundComplete() {
			if next := proj.NextActor(after); next >= 0 {
				deadline := ht.now.Add(s.cfg.ActionTimeout)
				h.CurrentActorSeat = next
				h.CurrentBet = proj.CurrentBet
				h.MinRaise = proj.MinRaise
				h.ActionDeadline = &deadline
				return nil
			}
		}
		if len(proj.Bettors()) <= 1 {
			ht.deal(5 - len(ht.board))
			h.Phase = string(PhaseShowdown)
			return s.settle(ht)
		}
		next, cards := Phase(h.Phase).next()
		ht.deal(cards)
		h.Phase = string(next)
		if next == PhaseShowdown {
			return s.settle(ht)
		}
		after = h.DealerSeat
	}
}

func adjustStack(tx *gorm.DB, tableID int64, seat int, delta int64) error {
	res := tx.Model(&model.Seat{}).
		Where("table_id = ? AND seat_number = ?", tableID, seat).
		UpdateColumn("stack", gorm.Expr("stack + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErr.ErrSeatNotFound
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, ht *handTx, viewer int64) *Result {
	h := ht.hand
	res := &Result{
		State:     buildView(ht, viewer),
		Completed: ht.summary != nil,
	}
	if ht.last != nil {
		res.Action = toActionView(*ht.last)
	}

	s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventHandUpdate).
		ForTable(h.TableID).
		ForHand(h.ID, h.StateVersion).
		With(buildView(ht, 0)))

	if ht.summary != nil {
		logger.Log.Info("hand complete",
			zap.Int64("tableID", h.TableID),
			zap.Int64("handID", h.ID),
			zap.Int("handNumber", h.HandNumber),
			zap.Int("busted", len(ht.summary.Busted)),
		)
		s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventHandComplete).
			ForTable(h.TableID).
			ForHand(h.ID, h.StateVersion).
			With(ht.summary.Results))
		if s.listener != nil {
			s.listener(ctx, *ht.summary)
		}
	}
	return res
}

// OpenHand returns the table's unfinished hand, or nil.
func OpenHand(tx *gorm.DB, tableID int64) (*model.Hand, error) {
	var h model.Hand
	err := tx.Where("table_id = ? AND phase <> ?", tableID, string(PhaseComplete)).
		Order("id DESC").
		Limit(1).
		Find(&h).Error
	if err != nil {
		return nil, err
	}
	if h.ID == 0 {
		return nil, nil
	}
	return &h, nil
}

// InOpenHand reports whether the player was dealt into the table's open hand.
func InOpenHand(tx *gorm.DB, tableID, playerID int64) (bool, error) {
	open, err := OpenHand(tx, tableID)
	if err != nil || open == nil {
		return false, err
	}
	var count int64
	if err := tx.Model(&model.HandParticipant{}).
		Where("hand_id = ? AND player_id = ?", open.ID, playerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return raw
}

func decodeCards(raw []byte) []string {
	cards := make([]string, 0)
	if len(raw) == 0 {
		return cards
	}
	if err := json.Unmarshal(raw, &cards); err != nil {
		return make([]string, 0)
	}
	return cards
}
