package hand

import (
	"context"
	"errors"
	"testing"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/testutil"
	appErr "pokertable-service/pkg/errors"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	clock *quartz.Mock
	rec   *broadcast.Recorder
	table *model.Table
	done  []Summary
}

func newFixture(t *testing.T, stacks ...int64) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	clock := quartz.NewMock(t)
	rec := broadcast.NewRecorder()
	f := &fixture{
		db:    db,
		clock: clock,
		rec:   rec,
		svc:   NewService(db, rec, clock, Config{ActionTimeout: 30 * time.Second}),
		table: testutil.SeedTable(t, db, model.TableKindFriends, 6, 5, 10),
	}
	f.svc.OnComplete(func(_ context.Context, s Summary) { f.done = append(f.done, s) })
	for i, stack := range stacks {
		testutil.SeedSeat(t, db, f.table.ID, i, int64(101+i), stack)
	}
	return f
}

// stackedDeck puts the given cards on top of an otherwise ordered deck.
func stackedDeck(top ...string) func() ([]string, error) {
	return func() ([]string, error) {
		used := make(map[string]bool, len(top))
		deck := make([]string, 0, 52)
		for _, c := range top {
			used[c] = true
			deck = append(deck, c)
		}
		for _, s := range suitChars {
			for _, r := range rankChars {
				c := string(r) + string(s)
				if !used[c] {
					deck = append(deck, c)
				}
			}
		}
		return deck, nil
	}
}

func (f *fixture) stacks(t *testing.T) map[int]int64 {
	t.Helper()
	var seats []model.Seat
	require.NoError(t, f.db.Where("table_id = ?", f.table.ID).Find(&seats).Error)
	out := make(map[int]int64, len(seats))
	for _, st := range seats {
		out[st.SeatNumber] = st.Stack
	}
	return out
}

func (f *fixture) act(t *testing.T, handID, playerID int64, kind ActionKind, amount int64) *Result {
	t.Helper()
	res, err := f.svc.Act(context.Background(), ActRequest{
		TableID:  f.table.ID,
		HandID:   handID,
		PlayerID: playerID,
		Intent:   Intent{Kind: kind, Amount: amount},
	})
	require.NoError(t, err)
	return res
}

func total(m map[int]int64) int64 {
	var sum int64
	for _, v := range m {
		sum += v
	}
	return sum
}

func TestHeadsUpFoldPreflop(t *testing.T) {
	f := newFixture(t, 1000, 1000)

	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	state := res.State
	assert.Equal(t, 0, state.DealerSeat)
	assert.Equal(t, 0, state.SmallBlindSeat)
	assert.Equal(t, 1, state.BigBlindSeat)
	assert.Equal(t, 0, state.CurrentActorSeat)
	assert.Equal(t, int64(10), state.CurrentBet)

	res = f.act(t, state.HandID, 101, ActionFold, 0)
	assert.True(t, res.Completed)
	assert.Equal(t, PhaseComplete, res.State.Phase)

	assert.Equal(t, map[int]int64{0: 995, 1: 1005}, f.stacks(t))
	require.Len(t, f.done, 1)
	assert.True(t, f.done[0].Contested)
	assert.Empty(t, f.done[0].Busted)
	assert.NotEmpty(t, f.rec.OfType(broadcast.EventHandComplete))
}

func TestThreeWayCheckDownShowdown(t *testing.T) {
	f := newFixture(t, 1000, 1000, 1000)
	// seat 1 is dealt first, then seat 2, then the dealer at seat 0
	f.svc.newDeck = stackedDeck("As", "Ah", "2c", "7d", "3c", "8d", "Ks", "Qh", "4d", "9c", "Js")

	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	handID := res.State.HandID
	assert.Equal(t, 0, res.State.CurrentActorSeat)

	f.act(t, handID, 101, ActionCall, 0)
	f.act(t, handID, 102, ActionCall, 0)
	res = f.act(t, handID, 103, ActionCheck, 0)
	assert.Equal(t, PhaseFlop, res.State.Phase)
	assert.Equal(t, []string{"Ks", "Qh", "4d"}, res.State.CommunityCards)
	assert.Equal(t, 1, res.State.CurrentActorSeat)
	assert.Equal(t, int64(0), res.State.CurrentBet)

	for _, phase := range []Phase{PhaseFlop, PhaseTurn, PhaseRiver} {
		require.Equal(t, phase, res.State.Phase)
		f.act(t, handID, 102, ActionCheck, 0)
		f.act(t, handID, 103, ActionCheck, 0)
		res = f.act(t, handID, 101, ActionCheck, 0)
	}
	require.True(t, res.Completed)
	assert.Len(t, res.State.CommunityCards, 5)

	stacks := f.stacks(t)
	assert.Equal(t, int64(1020), stacks[1])
	assert.Equal(t, int64(990), stacks[0])
	assert.Equal(t, int64(990), stacks[2])
	assert.Equal(t, int64(3000), total(stacks))

	// showdown reveals every live hand once complete
	view, err := f.svc.GetState(context.Background(), f.table.ID, handID, 0)
	require.NoError(t, err)
	for _, p := range view.Players {
		assert.Len(t, p.HoleCards, 2)
	}
}

func TestAllInSidePotsSettledByStrength(t *testing.T) {
	f := newFixture(t, 1000, 50, 200)
	f.svc.newDeck = stackedDeck("As", "Ah", "Ks", "Kh", "2c", "7d", "3c", "8d", "4h", "9s", "Jc")

	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	handID := res.State.HandID

	f.act(t, handID, 101, ActionRaise, 300)
	res = f.act(t, handID, 102, ActionCall, 0)
	assert.Equal(t, ActionAllIn, res.Action.Kind)
	assert.Equal(t, int64(45), res.Action.Amount)
	res = f.act(t, handID, 103, ActionCall, 0)
	assert.Equal(t, ActionAllIn, res.Action.Kind)

	require.True(t, res.Completed)
	require.Len(t, res.State.Pots, 3)
	assert.Equal(t, int64(150), res.State.Pots[0].Amount)
	assert.Equal(t, int64(300), res.State.Pots[1].Amount)
	assert.Equal(t, int64(100), res.State.Pots[2].Amount)

	stacks := f.stacks(t)
	assert.Equal(t, map[int]int64{0: 800, 1: 150, 2: 300}, stacks)
	assert.Equal(t, int64(1250), total(stacks))
}

func TestBustedPlayerReported(t *testing.T) {
	f := newFixture(t, 1000, 100)
	// heads-up: dealer seat 0 is dealt last
	f.svc.newDeck = stackedDeck("2c", "7d", "As", "Ah", "3c", "8d", "4h", "9s", "Jc")

	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	f.act(t, res.State.HandID, 101, ActionAllIn, 0)
	res = f.act(t, res.State.HandID, 102, ActionCall, 0)
	require.True(t, res.Completed)

	require.Len(t, f.done, 1)
	require.Len(t, f.done[0].Busted, 1)
	assert.Equal(t, int64(102), f.done[0].Busted[0].PlayerID)
	assert.Equal(t, map[int]int64{0: 1100, 1: 0}, f.stacks(t))
}

func TestActValidation(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	handID := res.State.HandID
	version := res.State.StateVersion

	cases := []struct {
		name     string
		playerID int64
		intent   Intent
		version  *int64
		want     error
	}{
		{"check facing bet", 101, Intent{Kind: ActionCheck}, nil, appErr.ErrCannotCheck},
		{"bet over bet", 101, Intent{Kind: ActionBet, Amount: 50}, nil, appErr.ErrBetNotAllowed},
		{"raise too small", 101, Intent{Kind: ActionRaise, Amount: 15}, nil, appErr.ErrRaiseTooSmall},
		{"raise beyond stack", 101, Intent{Kind: ActionRaise, Amount: 5000}, nil, appErr.ErrInsufficientStack},
		{"out of turn", 102, Intent{Kind: ActionCall}, nil, appErr.ErrNotYourTurn},
		{"not dealt in", 999, Intent{Kind: ActionFold}, nil, appErr.ErrNotInHand},
		{"stale version", 101, Intent{Kind: ActionCall}, func() *int64 { v := version - 1; return &v }(), appErr.ErrStaleVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Act(context.Background(), ActRequest{
				TableID:         f.table.ID,
				HandID:          handID,
				PlayerID:        tc.playerID,
				Intent:          tc.intent,
				ExpectedVersion: tc.version,
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// nothing was logged by the rejected intents
	state, err := f.svc.GetState(context.Background(), f.table.ID, handID, 101)
	require.NoError(t, err)
	assert.Equal(t, version, state.StateVersion)
	assert.Len(t, state.Actions, 2)
	assert.Equal(t, map[int]int64{0: 995, 1: 990}, f.stacks(t))

	res = f.act(t, handID, 101, ActionRaise, 30)
	assert.Equal(t, int64(25), res.Action.Amount)
	assert.Equal(t, int64(20), res.State.MinRaise)
	_, err = f.svc.Act(context.Background(), ActRequest{
		TableID: f.table.ID, HandID: handID, PlayerID: 102,
		Intent: Intent{Kind: ActionRaise, Amount: 40},
	})
	assert.ErrorIs(t, err, appErr.ErrRaiseTooSmall)
}

func TestForceFoldRequiresElapsedDeadline(t *testing.T) {
	f := newFixture(t, 1000, 1000, 1000)
	ctx := context.Background()
	res, err := f.svc.StartHand(ctx, f.table.ID)
	require.NoError(t, err)
	req := ForceFoldRequest{TableID: f.table.ID, HandID: res.State.HandID}

	_, err = f.svc.ForceFold(ctx, req)
	assert.ErrorIs(t, err, appErr.ErrDeadlineNotReached)

	f.clock.Advance(31 * time.Second).MustWait(ctx)
	res, err = f.svc.ForceFold(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ActionFold, res.Action.Kind)
	assert.True(t, res.Action.Forced)
	assert.Equal(t, 0, res.Action.SeatNumber)
	assert.Equal(t, 1, res.State.CurrentActorSeat)

	// the next actor got a fresh deadline, so a replay is rejected
	_, err = f.svc.ForceFold(ctx, req)
	assert.ErrorIs(t, err, appErr.ErrDeadlineNotReached)
}

func TestForceFoldOnCompletedHand(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	ctx := context.Background()
	res, err := f.svc.StartHand(ctx, f.table.ID)
	require.NoError(t, err)
	req := ForceFoldRequest{TableID: f.table.ID, HandID: res.State.HandID}

	f.clock.Advance(30 * time.Second).MustWait(ctx)
	res, err = f.svc.ForceFold(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Completed)

	f.clock.Advance(30 * time.Second).MustWait(ctx)
	_, err = f.svc.ForceFold(ctx, req)
	assert.ErrorIs(t, err, appErr.ErrHandCompleted)
	assert.Equal(t, int64(2000), total(f.stacks(t)))
}

func TestSettleRunsOnce(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	f.act(t, res.State.HandID, 101, ActionFold, 0)

	var h model.Hand
	require.NoError(t, f.db.First(&h, res.State.HandID).Error)
	ht, err := f.svc.loadWorkingSet(f.db, &h)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.settle(ht), appErr.ErrHandAlreadySettled)

	_, err = f.svc.Act(context.Background(), ActRequest{
		TableID: f.table.ID, HandID: h.ID, PlayerID: 102, Intent: Intent{Kind: ActionCheck},
	})
	assert.ErrorIs(t, err, appErr.ErrHandCompleted)
	assert.Equal(t, int64(2000), total(f.stacks(t)))
}

func TestStartHandRules(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	_, err := f.svc.StartHand(ctx, f.table.ID)
	assert.ErrorIs(t, err, appErr.ErrNotEnoughPlayers)

	testutil.SeedSeat(t, f.db, f.table.ID, 3, 104, 1000)
	first, err := f.svc.StartHand(ctx, f.table.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.State.HandNumber)
	assert.Equal(t, 0, first.State.DealerSeat)

	_, err = f.svc.StartHand(ctx, f.table.ID)
	assert.ErrorIs(t, err, appErr.ErrHandInProgress)

	f.act(t, first.State.HandID, 101, ActionFold, 0)
	second, err := f.svc.StartHand(ctx, f.table.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.State.HandNumber)
	assert.Equal(t, 3, second.State.DealerSeat)

	_, err = f.svc.StartHand(ctx, 424242)
	assert.ErrorIs(t, err, appErr.ErrTableNotFound)
}

func TestViewerOnlySeesOwnHoleCards(t *testing.T) {
	f := newFixture(t, 1000, 1000, 1000)
	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	for _, p := range res.State.Players {
		assert.Empty(t, p.HoleCards)
	}

	view, err := f.svc.LatestHand(context.Background(), f.table.ID, 102)
	require.NoError(t, err)
	for _, p := range view.Players {
		if p.PlayerID == 102 {
			assert.Len(t, p.HoleCards, 2)
		} else {
			assert.Empty(t, p.HoleCards)
		}
	}
}

func TestForceCompleteRefunds(t *testing.T) {
	f := newFixture(t, 1000, 1000, 1000)
	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	f.act(t, res.State.HandID, 101, ActionRaise, 40)

	var closed *model.Hand
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		closed, err = f.svc.ForceCompleteTx(tx, f.table.ID)
		return err
	}))
	require.NotNil(t, closed)
	assert.Equal(t, string(PhaseComplete), closed.Phase)
	assert.Equal(t, map[int]int64{0: 1000, 1: 1000, 2: 1000}, f.stacks(t))

	none, err := f.svc.ForceCompleteTx(f.db, f.table.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAntesAreDeadMoney(t *testing.T) {
	f := newFixture(t, 1000, 1000, 1000)
	require.NoError(t, f.db.Model(f.table).Update("ante", 2).Error)

	res, err := f.svc.StartHand(context.Background(), f.table.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.State.CurrentBet)
	// the big blind's ante does not count toward calling
	res = f.act(t, res.State.HandID, 101, ActionCall, 0)
	assert.Equal(t, int64(10), res.Action.Amount)
	assert.Equal(t, map[int]int64{0: 988, 1: 993, 2: 988}, f.stacks(t))
}

func TestBlindsForTournamentLevels(t *testing.T) {
	started := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	table := &model.Table{
		Kind:               model.TableKindTournament,
		SmallBlind:         5,
		BigBlind:           10,
		OriginalSmallBlind: 5,
		OriginalBigBlind:   10,
		OriginalAnte:       1,
		BlindLevelMinutes:  10,
		StartedAt:          &started,
	}

	sb, bb, ante := blindsFor(table, started.Add(9*time.Minute))
	assert.Equal(t, []int64{5, 10, 1}, []int64{sb, bb, ante})
	sb, bb, ante = blindsFor(table, started.Add(25*time.Minute))
	assert.Equal(t, []int64{20, 40, 4}, []int64{sb, bb, ante})

	table.Kind = model.TableKindFriends
	sb, bb, _ = blindsFor(table, started.Add(25*time.Minute))
	assert.Equal(t, []int64{5, 10}, []int64{sb, bb})
}

func TestStartHandAbortsWithoutDeck(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	broken := errors.New("entropy unavailable")
	f.svc.newDeck = func() ([]string, error) { return nil, broken }

	_, err := f.svc.StartHand(context.Background(), f.table.ID)
	assert.ErrorIs(t, err, broken)

	var hands int64
	require.NoError(t, f.db.Model(&model.Hand{}).Where("table_id = ?", f.table.ID).Count(&hands).Error)
	assert.Zero(t, hands)
	assert.Equal(t, map[int]int64{0: 1000, 1: 1000}, f.stacks(t))
}
