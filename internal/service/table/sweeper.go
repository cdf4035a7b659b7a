package table

import (
	"context"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/hand"
	"pokertable-service/pkg/logger"

	"go.uber.org/zap"
)

// Start runs the table sweeper until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.runSweeper(ctx)
	})
}

func (s *Service) runSweeper(ctx context.Context) {
	logger.Log.Info("table sweeper started", zap.Duration("interval", s.cfg.SweepInterval))

	ticker := s.clock.NewTicker(s.cfg.SweepInterval, "table", "sweep")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("table sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepClosings(ctx); err != nil {
				logger.Log.Warn("close sweep error", zap.Error(err))
			}
			if _, err := s.SweepIdle(ctx); err != nil {
				logger.Log.Warn("idle sweep error", zap.Error(err))
			}
		}
	}
}

// SweepClosings destroys tables whose scheduled close has passed and
// reports how many were closed.
func (s *Service) SweepClosings(ctx context.Context) (int, error) {
	var due []model.Table
	if err := s.db.WithContext(ctx).
		Where("status = ? AND closing_at IS NOT NULL AND closing_at <= ?", model.TableStatusOpen, s.clock.Now()).
		Order("closing_at").
		Limit(s.cfg.SweepBatch).
		Find(&due).Error; err != nil {
		return 0, err
	}

	closed := 0
	for _, t := range due {
		if err := s.CloseNow(ctx, t.ID, "scheduled"); err != nil {
			logger.Log.Warn("scheduled close failed",
				zap.Int64("tableID", t.ID),
				zap.Error(err),
			)
			continue
		}
		closed++
	}
	return closed, nil
}

// SweepIdle deals on tables that have enough players but no hand, such as
// tables whose last hand ended on forced bets. Tables are paged by id so a
// large number of waiting tables is covered in one sweep.
func (s *Service) SweepIdle(ctx context.Context) (int, error) {
	started := 0
	var after int64
	for {
		var tableIDs []int64
		if err := s.db.WithContext(ctx).Model(&model.Seat{}).
			Where("table_id > ?", after).
			Where("(status = ? AND stack > 0) OR pending_activation = ?", model.SeatStatusActive, true).
			Where("NOT EXISTS (SELECT 1 FROM hands WHERE hands.table_id = seats.table_id AND hands.phase <> ?)", string(hand.PhaseComplete)).
			Group("table_id").
			Having("COUNT(*) >= ?", 2).
			Order("table_id").
			Limit(s.cfg.SweepBatch).
			Pluck("table_id", &tableIDs).Error; err != nil {
			return started, err
		}

		for _, id := range tableIDs {
			res, err := s.StartHandIfEligible(ctx, id)
			if err != nil {
				logger.Log.Debug("idle table not started",
					zap.Int64("tableID", id),
					zap.Error(err),
				)
				continue
			}
			if res != nil {
				started++
			}
		}
		if len(tableIDs) < s.cfg.SweepBatch {
			return started, nil
		}
		after = tableIDs[len(tableIDs)-1]
	}
}
