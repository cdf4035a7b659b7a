// Package testutil opens throwaway databases for service tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"pokertable-service/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a migrated in-memory sqlite database private to t.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// one connection keeps the shared in-memory database alive and
	// serializes transactions the way row locks would
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("failed to migrate models: %v", err)
	}
	return db
}

// SeedTable creates an open cash table with the given blinds.
func SeedTable(t *testing.T, db *gorm.DB, kind string, maxSeats int, sb, bb int64) *model.Table {
	t.Helper()

	table := &model.Table{
		Name:               "test",
		CreatorID:          1,
		Kind:               kind,
		MaxSeats:           maxSeats,
		SmallBlind:         sb,
		BigBlind:           bb,
		OriginalSmallBlind: sb,
		OriginalBigBlind:   bb,
		MinBuyIn:           bb * 10,
		MaxBuyIn:           bb * 200,
		Status:             model.TableStatusOpen,
		LastDealerSeat:     -1,
	}
	if err := db.Create(table).Error; err != nil {
		t.Fatalf("failed to insert table: %v", err)
	}
	return table
}

// SeedSeat seats an active player.
func SeedSeat(t *testing.T, db *gorm.DB, tableID int64, seat int, playerID, stack int64) *model.Seat {
	t.Helper()

	st := &model.Seat{
		TableID:    tableID,
		SeatNumber: seat,
		PlayerID:   playerID,
		Stack:      stack,
		Status:     model.SeatStatusActive,
	}
	if err := db.Create(st).Error; err != nil {
		t.Fatalf("failed to insert seat: %v", err)
	}
	return st
}
