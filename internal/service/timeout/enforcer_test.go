package timeout_test

import (
	"context"
	"testing"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/hand"
	"pokertable-service/internal/service/timeout"
	"pokertable-service/internal/testutil"
	appErr "pokertable-service/pkg/errors"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *quartz.Mock, *hand.Service, *timeout.Enforcer) {
	t.Helper()
	db := testutil.OpenDB(t)
	clock := quartz.NewMock(t)
	hands := hand.NewService(db, broadcast.Nop{}, clock, hand.Config{ActionTimeout: 30 * time.Second})
	return db, clock, hands, timeout.NewEnforcer(db, hands, clock, timeout.Config{})
}

func seatTable(t *testing.T, db *gorm.DB, players ...int64) *model.Table {
	t.Helper()
	tbl := testutil.SeedTable(t, db, model.TableKindFriends, 6, 5, 10)
	for i, p := range players {
		testutil.SeedSeat(t, db, tbl.ID, i, p, 1000)
	}
	return tbl
}

func forcedFolds(t *testing.T, db *gorm.DB, handID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.HandAction{}).
		Where("hand_id = ? AND kind = ? AND forced = ?", handID, string(hand.ActionFold), true).
		Count(&n).Error)
	return n
}

func TestEnforceTwiceFoldsOnce(t *testing.T) {
	db, clock, hands, enforcer := setup(t)
	ctx := context.Background()
	tbl := seatTable(t, db, 101, 102, 103)
	started, err := hands.StartHand(ctx, tbl.ID)
	require.NoError(t, err)
	handID := started.State.HandID

	_, err = enforcer.Enforce(ctx, tbl.ID, handID, 101)
	assert.ErrorIs(t, err, appErr.ErrDeadlineNotReached)

	clock.Advance(30 * time.Second).MustWait(ctx)
	res, err := enforcer.Enforce(ctx, tbl.ID, handID, 102)
	require.NoError(t, err)
	assert.True(t, res.Action.Forced)

	_, err = enforcer.Enforce(ctx, tbl.ID, handID, 102)
	assert.ErrorIs(t, err, appErr.ErrDeadlineNotReached)
	assert.Equal(t, int64(1), forcedFolds(t, db, handID))
}

func TestEnforceRequiresSeatedRequester(t *testing.T) {
	db, clock, hands, enforcer := setup(t)
	ctx := context.Background()
	tbl := seatTable(t, db, 101, 102)
	started, err := hands.StartHand(ctx, tbl.ID)
	require.NoError(t, err)

	clock.Advance(time.Minute).MustWait(ctx)
	_, err = enforcer.Enforce(ctx, tbl.ID, started.State.HandID, 999)
	assert.ErrorIs(t, err, appErr.ErrNotSeated)

	res, err := enforcer.Enforce(ctx, tbl.ID, started.State.HandID, 102)
	require.NoError(t, err)
	assert.True(t, res.Completed)

	_, err = enforcer.Enforce(ctx, tbl.ID, started.State.HandID, 102)
	assert.ErrorIs(t, err, appErr.ErrHandCompleted)
	assert.Equal(t, int64(1), forcedFolds(t, db, started.State.HandID))
}

func TestSweepEnforcesExpiredHands(t *testing.T) {
	db, clock, hands, enforcer := setup(t)
	ctx := context.Background()
	first := seatTable(t, db, 101, 102, 103)
	second := seatTable(t, db, 201, 202, 203)
	for _, tbl := range []*model.Table{first, second} {
		_, err := hands.StartHand(ctx, tbl.ID)
		require.NoError(t, err)
	}

	folded, err := enforcer.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, folded)

	clock.Advance(31 * time.Second).MustWait(ctx)
	folded, err = enforcer.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, folded)

	folded, err = enforcer.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, folded)

	clock.Advance(30 * time.Second).MustWait(ctx)
	folded, err = enforcer.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, folded)

	// two forced folds end each three-way hand
	for _, tbl := range []*model.Table{first, second} {
		var open int64
		require.NoError(t, db.Model(&model.Hand{}).
			Where("table_id = ? AND phase <> ?", tbl.ID, string(hand.PhaseComplete)).
			Count(&open).Error)
		assert.Zero(t, open)
	}
}
