package table

import (
	"context"
	"errors"
	"strings"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/hand"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ModerateAction string

const (
	ModerateKick        ModerateAction = "kick"
	ModerateClose       ModerateAction = "close"
	ModerateCancelClose ModerateAction = "cancel_close"
)

func ParseModerateAction(s string) (ModerateAction, error) {
	switch a := ModerateAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ModerateKick, ModerateClose, ModerateCancelClose:
		return a, nil
	}
	return "", appErr.ErrInvalidModeration
}

type ModerateRequest struct {
	TableID        int64
	ActorID        int64
	Action         ModerateAction
	TargetPlayerID int64
}

type ModerateResult struct {
	Action    ModerateAction `json:"action"`
	Closed    bool           `json:"closed,omitempty"`
	ClosingAt *time.Time     `json:"closingAt,omitempty"`
}

func (s *Service) Moderate(ctx context.Context, req ModerateRequest) (*ModerateResult, error) {
	res := &ModerateResult{Action: req.Action}
	switch req.Action {
	case ModerateKick:
		return res, s.Kick(ctx, req.TableID, req.ActorID, req.TargetPlayerID)
	case ModerateClose:
		closingAt, err := s.Close(ctx, req.TableID, req.ActorID)
		if err != nil {
			return nil, err
		}
		res.Closed = closingAt == nil
		res.ClosingAt = closingAt
		return res, nil
	case ModerateCancelClose:
		return res, s.CancelClose(ctx, req.TableID, req.ActorID)
	}
	return nil, appErr.ErrInvalidModeration
}

// Close shuts a table down for its creator. A community table with seated
// players is only scheduled to close; the returned time is when. Every
// other table is destroyed at once and nil is returned.
func (s *Service) Close(ctx context.Context, tableID, actorID int64) (*time.Time, error) {
	var closingAt *time.Time
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := loadTable(tx, tableID, true)
		if err != nil {
			return err
		}
		if err := s.authz.RequireCreator(table, actorID); err != nil {
			return err
		}
		if table.Kind == model.TableKindCommunity {
			if table.ClosingAt != nil {
				return appErr.ErrTableClosing
			}
			var occupied int64
			if err := tx.Model(&model.Seat{}).Where("table_id = ?", tableID).Count(&occupied).Error; err != nil {
				return err
			}
			if occupied > 0 {
				at := s.clock.Now().Add(s.cfg.CommunityCloseDelay)
				closingAt = &at
				return tx.Model(table).Update("closing_at", at).Error
			}
		}
		return s.destroyTx(tx, table)
	})
	if err != nil {
		return nil, err
	}

	if closingAt != nil {
		logger.Log.Info("table close scheduled",
			zap.Int64("tableID", tableID),
			zap.Time("closingAt", *closingAt),
		)
		s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventTableClosing).
			ForTable(tableID).
			With(map[string]interface{}{"closingAt": closingAt}))
		return closingAt, nil
	}
	s.publishClosed(ctx, tableID, "moderator")
	return nil, nil
}

func (s *Service) CancelClose(ctx context.Context, tableID, actorID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := loadTable(tx, tableID, true)
		if err != nil {
			return err
		}
		if err := s.authz.RequireCreator(table, actorID); err != nil {
			return err
		}
		if table.ClosingAt == nil {
			return appErr.ErrNotClosing
		}
		return tx.Model(table).Update("closing_at", nil).Error
	})
	if err != nil {
		return err
	}
	logger.Log.Info("table close cancelled", zap.Int64("tableID", tableID))
	s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventCloseCancelled).ForTable(tableID))
	return nil
}

// CloseNow destroys a table without an ownership check. Used by the close
// sweeper and by tournament completion.
func (s *Service) CloseNow(ctx context.Context, tableID int64, reason string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := loadTable(tx, tableID, true)
		if err != nil {
			return err
		}
		return s.destroyTx(tx, table)
	})
	if err != nil {
		return err
	}
	s.publishClosed(ctx, tableID, reason)
	return nil
}

// destroyTx settles any open hand by refund and removes the table with its
// hands, actions and seats.
func (s *Service) destroyTx(tx *gorm.DB, table *model.Table) error {
	if _, err := s.hands.ForceCompleteTx(tx, table.ID); err != nil {
		return err
	}
	var handIDs []int64
	if err := tx.Model(&model.Hand{}).Where("table_id = ?", table.ID).Pluck("id", &handIDs).Error; err != nil {
		return err
	}
	if len(handIDs) > 0 {
		if err := tx.Where("hand_id IN ?", handIDs).Delete(&model.HandAction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("hand_id IN ?", handIDs).Delete(&model.HandParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", handIDs).Delete(&model.Hand{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("table_id = ?", table.ID).Delete(&model.Seat{}).Error; err != nil {
		return err
	}
	return tx.Delete(table).Error
}

func (s *Service) publishClosed(ctx context.Context, tableID int64, reason string) {
	logger.Log.Info("table closed",
		zap.Int64("tableID", tableID),
		zap.String("reason", reason),
	)
	s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventTableClosed).
		ForTable(tableID).
		With(map[string]string{"reason": reason}))
}

// StartHandIfEligible deals when the table can. Not enough players or a
// hand already running are not errors here.
func (s *Service) StartHandIfEligible(ctx context.Context, tableID int64) (*hand.Result, error) {
	res, err := s.hands.StartHand(ctx, tableID)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, appErr.ErrNotEnoughPlayers), errors.Is(err, appErr.ErrHandInProgress):
		return nil, nil
	}
	return nil, err
}

// HandleHandComplete applies deferred leaves and sits out busted cash
// players, then deals the next hand. A hand decided by forced bets alone
// does not chain into another; the sweeper picks that table up.
func (s *Service) HandleHandComplete(ctx context.Context, summary hand.Summary) {
	var (
		table   *model.Table
		removed []int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		table, err = loadTable(tx, summary.TableID, true)
		if err != nil {
			return err
		}
		var leaving []model.Seat
		if err := tx.Where("table_id = ? AND leave_after_hand = ?", table.ID, true).Find(&leaving).Error; err != nil {
			return err
		}
		for _, st := range leaving {
			if err := tx.Delete(&st).Error; err != nil {
				return err
			}
			removed = append(removed, st.PlayerID)
		}
		if table.Kind == model.TableKindTournament {
			return nil
		}
		return tx.Model(&model.Seat{}).
			Where("table_id = ? AND stack <= 0 AND status = ?", table.ID, model.SeatStatusActive).
			Update("status", model.SeatStatusSittingOut).Error
	})
	if errors.Is(err, appErr.ErrTableNotFound) {
		return
	}
	if err != nil {
		logger.Log.Warn("hand completion follow-up failed",
			zap.Int64("tableID", summary.TableID),
			zap.Int64("handID", summary.HandID),
			zap.Error(err),
		)
		return
	}
	for _, playerID := range removed {
		s.publishSeats(ctx, table.ID, map[string]interface{}{
			"action":   "leave",
			"playerId": playerID,
		})
	}

	if !summary.Contested || table.Status != model.TableStatusOpen {
		return
	}
	if _, err := s.StartHandIfEligible(ctx, table.ID); err != nil {
		logger.Log.Warn("next hand not started",
			zap.Int64("tableID", table.ID),
			zap.Error(err),
		)
	}
}
