// Package timeout folds players whose action deadline has passed. It never
// waits on a deadline itself; it is invoked by a client request or by the
// sweeper tick and rejects anything that is not yet due.
package timeout

import (
	"context"
	"errors"
	"sync"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/hand"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatch = 200

type Config struct {
	SweepInterval time.Duration
}

type Enforcer struct {
	db    *gorm.DB
	hands *hand.Service
	clock quartz.Clock
	cfg   Config

	startOnce sync.Once
}

func NewEnforcer(db *gorm.DB, hands *hand.Service, clock quartz.Clock, cfg Config) *Enforcer {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	return &Enforcer{db: db, hands: hands, clock: clock, cfg: cfg}
}

// Enforce is the request path: any player seated at the table may ask for
// the current actor to be folded once the deadline has passed.
func (e *Enforcer) Enforce(ctx context.Context, tableID, handID, requesterID int64) (*hand.Result, error) {
	var count int64
	if err := e.db.WithContext(ctx).Model(&model.Seat{}).
		Where("table_id = ? AND player_id = ?", tableID, requesterID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, appErr.ErrNotSeated
	}
	return e.hands.ForceFold(ctx, hand.ForceFoldRequest{TableID: tableID, HandID: handID})
}

// Sweep enforces every expired open hand once and reports how many folds
// were applied. Rejections are expected races and are only logged.
func (e *Enforcer) Sweep(ctx context.Context) (int, error) {
	expired, err := e.hands.ListExpired(ctx, sweepBatch)
	if err != nil {
		return 0, err
	}
	folded := 0
	for _, h := range expired {
		_, err := e.hands.ForceFold(ctx, hand.ForceFoldRequest{TableID: h.TableID, HandID: h.ID})
		switch {
		case err == nil:
			folded++
		case errors.Is(err, appErr.ErrConflict):
			logger.Log.Debug("timeout already handled",
				zap.Int64("tableID", h.TableID),
				zap.Int64("handID", h.ID),
				zap.Error(err),
			)
		default:
			logger.Log.Warn("timeout enforcement failed",
				zap.Int64("tableID", h.TableID),
				zap.Int64("handID", h.ID),
				zap.Error(err),
			)
		}
	}
	return folded, nil
}

// Start runs the sweeper until ctx is done.
func (e *Enforcer) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go e.run(ctx)
	})
}

func (e *Enforcer) run(ctx context.Context) {
	logger.Log.Info("timeout sweeper started", zap.Duration("interval", e.cfg.SweepInterval))

	ticker := e.clock.NewTicker(e.cfg.SweepInterval, "timeout", "sweep")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				logger.Log.Warn("timeout sweep error", zap.Error(err))
			}
		}
	}
}
