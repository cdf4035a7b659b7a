package service

import (
	"context"
	"time"

	"pokertable-service/internal/service/authz"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/hand"
	"pokertable-service/internal/service/profile"
	"pokertable-service/internal/service/table"
	"pokertable-service/internal/service/timeout"
	"pokertable-service/internal/service/tournament"

	"github.com/coder/quartz"
	"gorm.io/gorm"
)

type Config struct {
	ActionTimeout        time.Duration
	CommunityCloseDelay  time.Duration
	TimeoutSweepInterval time.Duration
	TableSweepInterval   time.Duration
}

type Container struct {
	Profile    *profile.Service
	Authz      *authz.Service
	Hand       *hand.Service
	Table      *table.Service
	Timeout    *timeout.Enforcer
	Tournament *tournament.Service

	Subscriber broadcast.Subscriber
}

// NewContainer wires the engine. pub and sub are usually the same redis or
// nats broadcaster; locker may be nil to run registration without a lock.
func NewContainer(db *gorm.DB, pub broadcast.Publisher, sub broadcast.Subscriber,
	locker tournament.Locker, clock quartz.Clock, cfg Config) *Container {
	profiles := profile.NewService(db)
	az := authz.NewService(db)
	hands := hand.NewService(db, pub, clock, hand.Config{ActionTimeout: cfg.ActionTimeout})
	tables := table.NewService(db, hands, az, profiles, pub, clock, table.Config{
		CommunityCloseDelay: cfg.CommunityCloseDelay,
		SweepInterval:       cfg.TableSweepInterval,
	})
	tournaments := tournament.NewService(db, tables, locker, pub, clock)

	// tournament eliminations remove busted seats before the table deals on
	hands.OnComplete(func(ctx context.Context, summary hand.Summary) {
		tournaments.HandleHandComplete(ctx, summary)
		tables.HandleHandComplete(ctx, summary)
	})

	return &Container{
		Profile:    profiles,
		Authz:      az,
		Hand:       hands,
		Table:      tables,
		Timeout:    timeout.NewEnforcer(db, hands, clock, timeout.Config{SweepInterval: cfg.TimeoutSweepInterval}),
		Tournament: tournaments,
		Subscriber: sub,
	}
}

// Start launches the background sweepers. They stop when ctx is done.
func (c *Container) Start(ctx context.Context) error {
	c.Timeout.Start(ctx)
	c.Table.Start(ctx)
	return nil
}
