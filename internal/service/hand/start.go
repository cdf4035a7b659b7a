package hand

import (
	"context"
	"errors"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/broadcast"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// blind levels stop doubling past this point
const maxBlindLevel = 20

// StartHand deals a new hand at the table. Seats that joined during the
// previous hand are activated first; at least two active seats with chips
// are required.
func (s *Service) StartHand(ctx context.Context, tableID int64) (*Result, error) {
	var ht *handTx
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table model.Table
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&table, tableID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.ErrTableNotFound
			}
			return err
		}
		if table.Status != model.TableStatusOpen {
			return appErr.ErrTableClosed
		}
		open, err := OpenHand(tx, tableID)
		if err != nil {
			return err
		}
		if open != nil {
			return appErr.ErrHandInProgress
		}

		if err := tx.Model(&model.Seat{}).
			Where("table_id = ? AND pending_activation = ?", tableID, true).
			Updates(map[string]interface{}{
				"status":             model.SeatStatusActive,
				"pending_activation": false,
			}).Error; err != nil {
			return err
		}

		var seats []model.Seat
		if err := tx.Where("table_id = ? AND status = ? AND stack > 0", tableID, model.SeatStatusActive).
			Order("seat_number").
			Find(&seats).Error; err != nil {
			return err
		}
		if len(seats) < 2 {
			return appErr.ErrNotEnoughPlayers
		}

		now := s.clock.Now()
		ht, err = s.deal(tx, &table, seats, now)
		if err != nil {
			return err
		}
		if err := ht.save(); err != nil {
			return err
		}

		table.LastDealerSeat = ht.hand.DealerSeat
		table.SmallBlind, table.BigBlind, table.Ante = ht.hand.SmallBlind, ht.hand.BigBlind, ht.hand.Ante
		return tx.Save(&table).Error
	})
	if err != nil {
		return nil, err
	}

	h := ht.hand
	logger.Log.Info("hand started",
		zap.Int64("tableID", h.TableID),
		zap.Int64("handID", h.ID),
		zap.Int("handNumber", h.HandNumber),
		zap.Int("dealer", h.DealerSeat),
		zap.Int("players", len(ht.parts)),
	)
	s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventHandStarted).
		ForTable(h.TableID).
		ForHand(h.ID, h.StateVersion).
		With(buildView(ht, 0)))
	return s.afterCommit(ctx, ht, 0), nil
}

func (s *Service) deal(tx *gorm.DB, table *model.Table, seats []model.Seat, now time.Time) (*handTx, error) {
	sb, bb, ante := blindsFor(table, now)

	numbers := make([]int, 0, len(seats))
	bySeat := make(map[int]model.Seat, len(seats))
	for _, st := range seats {
		numbers = append(numbers, st.SeatNumber)
		bySeat[st.SeatNumber] = st
	}
	dealer := seatsFrom(numbers, table.LastDealerSeat)[0]
	order := seatsFrom(numbers, dealer) // dealer is last
	sbSeat, bbSeat := order[0], order[1%len(order)]
	if len(order) == 2 {
		sbSeat, bbSeat = dealer, order[0]
	}

	var maxNumber int
	if err := tx.Model(&model.Hand{}).
		Where("table_id = ?", table.ID).
		Select("COALESCE(MAX(hand_number), 0)").
		Scan(&maxNumber).Error; err != nil {
		return nil, err
	}

	h := &model.Hand{
		TableID:          table.ID,
		HandNumber:       maxNumber + 1,
		DealerSeat:       dealer,
		SmallBlindSeat:   sbSeat,
		BigBlindSeat:     bbSeat,
		SmallBlind:       sb,
		BigBlind:         bb,
		Ante:             ante,
		Phase:            string(PhasePreflop),
		CurrentActorSeat: -1,
		CurrentBet:       bb,
		MinRaise:         bb,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.Create(h).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, appErr.ErrHandInProgress
		}
		return nil, err
	}

	deck, err := s.newDeck()
	if err != nil {
		return nil, err
	}
	parts := make([]model.HandParticipant, 0, len(order))
	for _, seat := range order {
		st := bySeat[seat]
		parts = append(parts, model.HandParticipant{
			HandID:        h.ID,
			SeatNumber:    seat,
			PlayerID:      st.PlayerID,
			StartingStack: st.Stack,
			HoleCards:     mustJSON(deck[:2]),
		})
		deck = deck[2:]
	}
	if err := tx.Create(&parts).Error; err != nil {
		return nil, err
	}

	ht := &handTx{
		tx:    tx,
		hand:  h,
		parts: parts,
		deck:  deck,
		board: make([]string, 0, 5),
		now:   now,
	}
	if ante > 0 {
		for _, seat := range order {
			if err := s.post(ht, seat, ActionAnte, ante); err != nil {
				return nil, err
			}
		}
	}
	if err := s.post(ht, sbSeat, ActionPost, sb); err != nil {
		return nil, err
	}
	if err := s.post(ht, bbSeat, ActionPost, bb); err != nil {
		return nil, err
	}
	if err := s.resolve(ht, bbSeat); err != nil {
		return nil, err
	}
	return ht, nil
}

// post logs a forced contribution, capped at what the seat has left.
func (s *Service) post(ht *handTx, seat int, kind ActionKind, amount int64) error {
	ps, ok := ht.projection().Player(seat)
	if !ok {
		return appErr.ErrSeatNotFound
	}
	if remaining := ps.Remaining(); amount > remaining {
		amount = remaining
	}
	if amount <= 0 {
		return nil
	}
	return s.record(ht, ps, kind, amount, true)
}

// blindsFor doubles a tournament table's original blinds once per elapsed
// level. Cash tables use their configured blinds.
func blindsFor(table *model.Table, now time.Time) (sb, bb, ante int64) {
	sb, bb, ante = table.SmallBlind, table.BigBlind, table.Ante
	if table.Kind != model.TableKindTournament || table.BlindLevelMinutes <= 0 || table.StartedAt == nil {
		return
	}
	level := int(now.Sub(*table.StartedAt) / (time.Duration(table.BlindLevelMinutes) * time.Minute))
	if level < 0 {
		level = 0
	}
	if level > maxBlindLevel {
		level = maxBlindLevel
	}
	mult := int64(1) << uint(level)
	return table.OriginalSmallBlind * mult, table.OriginalBigBlind * mult, table.OriginalAnte * mult
}
