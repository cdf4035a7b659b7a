package table

import (
	"context"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/hand"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type JoinRequest struct {
	TableID    int64
	PlayerID   int64
	SeatNumber int
	BuyIn      int64
}

// Join seats a player. A player joining while a hand is running sits out
// until the next deal.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*model.Seat, error) {
	var seat *model.Seat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := loadTable(tx, req.TableID, true)
		if err != nil {
			return err
		}
		if table.Status != model.TableStatusOpen {
			return appErr.ErrTableClosed
		}
		if table.ClosingAt != nil {
			return appErr.ErrTableClosing
		}
		if err := s.authz.WithTx(tx).CanJoin(ctx, table, req.PlayerID); err != nil {
			return err
		}
		if req.BuyIn < table.MinBuyIn || req.BuyIn > table.MaxBuyIn {
			return appErr.ErrInvalidBuyIn
		}
		if req.SeatNumber < 0 || req.SeatNumber >= table.MaxSeats {
			return appErr.ErrInvalidSeat
		}

		existing, err := findSeat(tx, req.TableID, req.PlayerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return appErr.ErrAlreadySeated
		}
		var taken int64
		if err := tx.Model(&model.Seat{}).
			Where("table_id = ? AND seat_number = ?", req.TableID, req.SeatNumber).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return appErr.ErrSeatTaken
		}

		open, err := hand.OpenHand(tx, req.TableID)
		if err != nil {
			return err
		}
		seat, err = s.SeatTx(tx, req.TableID, req.SeatNumber, req.PlayerID, req.BuyIn)
		if err != nil {
			return err
		}
		if open != nil {
			seat.Status = model.SeatStatusSittingOut
			seat.PendingActivation = true
			return tx.Save(seat).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("player joined table",
		zap.Int64("tableID", req.TableID),
		zap.Int64("playerID", req.PlayerID),
		zap.Int("seat", req.SeatNumber),
		zap.Int64("buyIn", req.BuyIn),
		zap.Bool("pending", seat.PendingActivation),
	)
	s.publishSeats(ctx, req.TableID, map[string]interface{}{
		"action": "join",
		"seat":   seat,
	})
	return seat, nil
}

type LeaveResult struct {
	Deferred bool  `json:"deferred"`
	Stack    int64 `json:"stack"`
}

// Leave removes the player's seat, or marks it to be removed when the
// player is still in the running hand.
func (s *Service) Leave(ctx context.Context, tableID, playerID int64) (*LeaveResult, error) {
	res := &LeaveResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadTable(tx, tableID, true); err != nil {
			return err
		}
		seat, err := findSeat(tx, tableID, playerID)
		if err != nil {
			return err
		}
		if seat == nil {
			return appErr.ErrNotSeated
		}
		inHand, err := hand.InOpenHand(tx, tableID, playerID)
		if err != nil {
			return err
		}
		res.Stack = seat.Stack
		if inHand {
			res.Deferred = true
			return tx.Model(seat).Update("leave_after_hand", true).Error
		}
		return tx.Delete(seat).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("player left table",
		zap.Int64("tableID", tableID),
		zap.Int64("playerID", playerID),
		zap.Bool("deferred", res.Deferred),
	)
	s.publishSeats(ctx, tableID, map[string]interface{}{
		"action":   "leave",
		"playerId": playerID,
		"deferred": res.Deferred,
	})
	return res, nil
}

// Kick removes another player's seat. Only the creator may kick, and not
// while the target is in the running hand.
func (s *Service) Kick(ctx context.Context, tableID, actorID, targetID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := loadTable(tx, tableID, true)
		if err != nil {
			return err
		}
		if err := s.authz.RequireCreator(table, actorID); err != nil {
			return err
		}
		if actorID == targetID {
			return appErr.ErrCannotKickSelf
		}
		seat, err := findSeat(tx, tableID, targetID)
		if err != nil {
			return err
		}
		if seat == nil {
			return appErr.ErrSeatNotFound
		}
		inHand, err := hand.InOpenHand(tx, tableID, targetID)
		if err != nil {
			return err
		}
		if inHand {
			return appErr.ErrHandInProgress
		}
		return tx.Delete(seat).Error
	})
	if err != nil {
		return err
	}

	logger.Log.Info("player kicked",
		zap.Int64("tableID", tableID),
		zap.Int64("actorID", actorID),
		zap.Int64("targetID", targetID),
	)
	s.publishSeats(ctx, tableID, map[string]interface{}{
		"action":   "kick",
		"playerId": targetID,
	})
	return nil
}

// SetPresence flips an active seat to disconnected and back. Disconnected
// seats are not dealt in.
func (s *Service) SetPresence(ctx context.Context, tableID, playerID int64, connected bool) error {
	from, to := model.SeatStatusActive, model.SeatStatusDisconnected
	if connected {
		from, to = to, from
	}
	res := s.db.WithContext(ctx).Model(&model.Seat{}).
		Where("table_id = ? AND player_id = ? AND status = ?", tableID, playerID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.publishSeats(ctx, tableID, map[string]interface{}{
			"action":   "presence",
			"playerId": playerID,
			"status":   to,
		})
	}
	return nil
}

// SitIn reactivates a sitting-out seat that still has chips.
func (s *Service) SitIn(ctx context.Context, tableID, playerID int64) error {
	res := s.db.WithContext(ctx).Model(&model.Seat{}).
		Where("table_id = ? AND player_id = ? AND status = ? AND pending_activation = ? AND stack > 0",
			tableID, playerID, model.SeatStatusSittingOut, false).
		Updates(map[string]interface{}{"status": model.SeatStatusActive, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.SeatOf(ctx, tableID, playerID); err != nil {
			return err
		}
		return appErr.ErrNotSittingOut
	}
	s.publishSeats(ctx, tableID, map[string]interface{}{
		"action":   "sit_in",
		"playerId": playerID,
	})
	return nil
}
