package tournament_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/authz"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/hand"
	"pokertable-service/internal/service/profile"
	"pokertable-service/internal/service/table"
	"pokertable-service/internal/service/tournament"
	"pokertable-service/internal/testutil"
	appErr "pokertable-service/pkg/errors"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const creatorID = 1

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Unlock(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

type fixture struct {
	db          *gorm.DB
	clock       *quartz.Mock
	rec         *broadcast.Recorder
	hands       *hand.Service
	tables      *table.Service
	locker      *memLocker
	tournaments *tournament.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	clock := quartz.NewMock(t)
	rec := broadcast.NewRecorder()
	hands := hand.NewService(db, rec, clock, hand.Config{ActionTimeout: 30 * time.Second})
	tables := table.NewService(db, hands, authz.NewService(db), profile.NewService(db), rec, clock, table.Config{})
	locker := &memLocker{held: map[string]bool{}}
	tournaments := tournament.NewService(db, tables, locker, rec, clock)
	hands.OnComplete(func(ctx context.Context, s hand.Summary) {
		tournaments.HandleHandComplete(ctx, s)
		tables.HandleHandComplete(ctx, s)
	})
	return &fixture{
		db:          db,
		clock:       clock,
		rec:         rec,
		hands:       hands,
		tables:      tables,
		locker:      locker,
		tournaments: tournaments,
	}
}

func (f *fixture) create(t *testing.T, perTable, maxPlayers int) *model.Tournament {
	t.Helper()
	tr, err := f.tournaments.Create(context.Background(), creatorID, tournament.CreateRequest{
		Name:            "sunday",
		StartingStack:   1000,
		PlayersPerTable: perTable,
		MaxPlayers:      maxPlayers,
		SmallBlind:      5,
		BigBlind:        10,
		Payouts: []tournament.PayoutTier{
			{Position: 1, Percentage: 60},
			{Position: 2, Percentage: 40},
		},
	})
	require.NoError(t, err)
	return tr
}

func (f *fixture) register(t *testing.T, tournamentID int64, players ...int64) {
	t.Helper()
	for _, p := range players {
		_, err := f.tournaments.Register(context.Background(), tournamentID, p)
		require.NoError(t, err)
	}
}

// endHands refunds whatever the opening deal put in, leaving every table
// between hands.
func (f *fixture) endHands(t *testing.T, tournamentID int64) {
	t.Helper()
	var ids []int64
	require.NoError(t, f.db.Model(&model.Table{}).Where("tournament_id = ?", tournamentID).Pluck("id", &ids).Error)
	for _, id := range ids {
		_, err := f.hands.ForceCompleteTx(f.db, id)
		require.NoError(t, err)
	}
}

func (f *fixture) player(t *testing.T, tournamentID, playerID int64) model.TournamentPlayer {
	t.Helper()
	var tp model.TournamentPlayer
	require.NoError(t, f.db.Where("tournament_id = ? AND player_id = ?", tournamentID, playerID).First(&tp).Error)
	return tp
}

// eliminate acts as the organizer.
func (f *fixture) eliminate(ctx context.Context, tournamentID, playerID int64) (*tournament.EliminationResult, error) {
	return f.tournaments.Eliminate(ctx, tournament.EliminateRequest{
		TournamentID: tournamentID,
		ActorID:      creatorID,
		PlayerID:     playerID,
	})
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := tournament.CreateRequest{
		StartingStack:   1000,
		PlayersPerTable: 6,
		MaxPlayers:      18,
		SmallBlind:      10,
		BigBlind:        20,
	}

	cases := []struct {
		name   string
		modify func(r *tournament.CreateRequest)
	}{
		{"zero stack", func(r *tournament.CreateRequest) { r.StartingStack = 0 }},
		{"one seat per table", func(r *tournament.CreateRequest) { r.PlayersPerTable = 1 }},
		{"eleven seats per table", func(r *tournament.CreateRequest) { r.PlayersPerTable = 11 }},
		{"single player field", func(r *tournament.CreateRequest) { r.MaxPlayers = 1 }},
		{"big blind below small", func(r *tournament.CreateRequest) { r.BigBlind = 5 }},
		{"payouts over 100", func(r *tournament.CreateRequest) {
			r.Payouts = []tournament.PayoutTier{{Position: 1, Percentage: 70}, {Position: 2, Percentage: 40}}
		}},
		{"duplicate payout position", func(r *tournament.CreateRequest) {
			r.Payouts = []tournament.PayoutTier{{Position: 1, Percentage: 50}, {Position: 1, Percentage: 20}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.modify(&req)
			_, err := f.tournaments.Create(ctx, creatorID, req)
			assert.ErrorIs(t, err, appErr.ErrInvalidTournament)
		})
	}

	tr, err := f.tournaments.Create(ctx, creatorID, valid)
	require.NoError(t, err)
	assert.Equal(t, model.TournamentStatusRegistering, tr.Status)
}

func TestRegisterCapacityAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, 2, 3)

	f.register(t, tr.ID, 101, 102)
	_, err := f.tournaments.Register(ctx, tr.ID, 101)
	assert.ErrorIs(t, err, appErr.ErrAlreadyRegistered)

	f.register(t, tr.ID, 103)
	_, err = f.tournaments.Register(ctx, tr.ID, 104)
	assert.ErrorIs(t, err, appErr.ErrTournamentFull)

	_, err = f.tournaments.Register(ctx, 9999, 101)
	assert.ErrorIs(t, err, appErr.ErrTournamentNotFound)

	got, err := f.tournaments.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RegisteredCount)
}

func TestRegisterBusyWhileLockHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, 2, 4)

	ok, err := f.locker.TryLock(ctx, "poker:tournament:1:register:101", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), tr.ID)

	_, err = f.tournaments.Register(ctx, tr.ID, 101)
	assert.ErrorIs(t, err, appErr.ErrRegistrationBusy)

	f.locker.Unlock(ctx, "poker:tournament:1:register:101")
	f.register(t, tr.ID, 101)
}

func TestStartSeatsRoundRobin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, 2, 10)

	f.register(t, tr.ID, 101)
	_, err := f.tournaments.Start(ctx, tr.ID, creatorID)
	assert.ErrorIs(t, err, appErr.ErrNotEnoughPlayers)

	f.register(t, tr.ID, 102, 103, 104, 105)
	_, err = f.tournaments.Start(ctx, tr.ID, 101)
	assert.ErrorIs(t, err, appErr.ErrNotCreator)

	res, err := f.tournaments.Start(ctx, tr.ID, creatorID)
	require.NoError(t, err)
	require.Len(t, res.TableIDs, 3)
	assert.Equal(t, 5, res.Players)

	sizes := make([]int64, 0, 3)
	for _, id := range res.TableIDs {
		var n int64
		require.NoError(t, f.db.Model(&model.Seat{}).Where("table_id = ?", id).Count(&n).Error)
		sizes = append(sizes, n)
	}
	assert.Equal(t, []int64{2, 2, 1}, sizes)

	// two-player tables are dealt straight away
	var open int64
	require.NoError(t, f.db.Model(&model.Hand{}).Where("phase <> ?", string(hand.PhaseComplete)).Count(&open).Error)
	assert.Equal(t, int64(2), open)

	_, err = f.tournaments.Register(ctx, tr.ID, 106)
	assert.ErrorIs(t, err, appErr.ErrTournamentNotOpen)
	_, err = f.tournaments.Start(ctx, tr.ID, creatorID)
	assert.ErrorIs(t, err, appErr.ErrTournamentNotOpen)

	assert.NotNil(t, f.player(t, tr.ID, 105).TableID)
}

func TestEliminateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, 2, 4)
	f.register(t, tr.ID, 101, 102)

	_, err := f.eliminate(ctx, tr.ID, 101)
	assert.ErrorIs(t, err, appErr.ErrTournamentNotRunning)

	_, err = f.tournaments.Start(ctx, tr.ID, creatorID)
	require.NoError(t, err)

	_, err = f.eliminate(ctx, tr.ID, 101)
	assert.ErrorIs(t, err, appErr.ErrHandInProgress)
	_, err = f.eliminate(ctx, tr.ID, 999)
	assert.ErrorIs(t, err, appErr.ErrTournamentPlayerNF)
	assert.Equal(t, model.TournamentPlayerPlaying, f.player(t, tr.ID, 101).Status)
}

func TestEliminateRequiresOrganizerOrPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, 2, 4)
	f.register(t, tr.ID, 101, 102, 103)
	_, err := f.tournaments.Start(ctx, tr.ID, creatorID)
	require.NoError(t, err)
	f.endHands(t, tr.ID)

	_, err = f.tournaments.Eliminate(ctx, tournament.EliminateRequest{TournamentID: tr.ID, ActorID: 102, PlayerID: 101})
	assert.ErrorIs(t, err, appErr.ErrNotOrganizer)
	assert.ErrorIs(t, err, appErr.ErrForbidden)
	assert.Equal(t, model.TournamentPlayerPlaying, f.player(t, tr.ID, 101).Status)

	res, err := f.tournaments.Eliminate(ctx, tournament.EliminateRequest{TournamentID: tr.ID, ActorID: 101, PlayerID: 101})
	require.NoError(t, err)
	assert.Equal(t, 3, res.FinishPosition)

	_, err = f.tournaments.Eliminate(ctx, tournament.EliminateRequest{TournamentID: 424242, ActorID: creatorID, PlayerID: 102})
	assert.ErrorIs(t, err, appErr.ErrTournamentNotFound)
}

func TestEliminationToChampion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, 2, 4)
	f.register(t, tr.ID, 101, 102, 103, 104)
	_, err := f.tournaments.Start(ctx, tr.ID, creatorID)
	require.NoError(t, err)
	f.endHands(t, tr.ID)

	// round-robin puts 101 and 103 at the first table, 102 and 104 at the second
	res, err := f.eliminate(ctx, tr.ID, 101)
	require.NoError(t, err)
	assert.Equal(t, 4, res.FinishPosition)
	assert.Equal(t, 3, res.Remaining)
	assert.Nil(t, res.Balance)

	_, err = f.eliminate(ctx, tr.ID, 101)
	assert.ErrorIs(t, err, appErr.ErrAlreadyEliminated)

	res, err = f.eliminate(ctx, tr.ID, 102)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FinishPosition)
	require.NotNil(t, res.Balance)
	assert.Equal(t, tournament.BalanceMerge, res.Balance.Kind)
	assert.Equal(t, 2, res.Balance.Remaining)

	res, err = f.eliminate(ctx, tr.ID, 103)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FinishPosition)
	assert.True(t, res.TournamentComplete)
	assert.Equal(t, int64(104), res.ChampionID)
	assert.Equal(t, map[int64]int64{104: 2400, 103: 1600}, res.Payouts)

	champion := f.player(t, tr.ID, 104)
	require.NotNil(t, champion.FinishPosition)
	assert.Equal(t, 1, *champion.FinishPosition)
	assert.Equal(t, int64(2400), champion.PayoutAmount)

	got, err := f.tournaments.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TournamentStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	var tables int64
	require.NoError(t, f.db.Model(&model.Table{}).Where("tournament_id = ?", tr.ID).Count(&tables).Error)
	assert.Zero(t, tables)

	_, err = f.eliminate(ctx, tr.ID, 104)
	assert.ErrorIs(t, err, appErr.ErrTournamentNotRunning)
	assert.Len(t, f.rec.OfType(broadcast.EventTournamentComplete), 1)
	assert.Len(t, f.rec.OfType(broadcast.EventBalance), 1)
	assert.Len(t, f.rec.OfType(broadcast.EventElimination), 3)
}

func TestHandCompleteEliminatesShortestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, 3, 3)
	f.register(t, tr.ID, 101, 102, 103)
	res, err := f.tournaments.Start(ctx, tr.ID, creatorID)
	require.NoError(t, err)
	f.endHands(t, tr.ID)
	tableID := res.TableIDs[0]

	require.NoError(t, f.db.Model(&model.Seat{}).
		Where("table_id = ? AND player_id IN ?", tableID, []int64{101, 102}).
		Update("stack", 0).Error)

	f.tournaments.HandleHandComplete(ctx, hand.Summary{
		TableID:   tableID,
		Contested: true,
		Busted: []hand.BustedPlayer{
			{PlayerID: 102, StartingStack: 700},
			{PlayerID: 101, StartingStack: 300},
		},
	})

	assert.Equal(t, 3, *f.player(t, tr.ID, 101).FinishPosition)
	assert.Equal(t, 2, *f.player(t, tr.ID, 102).FinishPosition)
	assert.Equal(t, 1, *f.player(t, tr.ID, 103).FinishPosition)

	standings, err := f.tournaments.Standings(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, standings, 3)
	assert.Equal(t, []int64{103, 102, 101}, []int64{
		standings[0].PlayerID, standings[1].PlayerID, standings[2].PlayerID,
	})
	assert.Equal(t, int64(1800), standings[0].Payout)
}

func TestHandCompleteIgnoresCashTables(t *testing.T) {
	f := newFixture(t)
	tbl := testutil.SeedTable(t, f.db, model.TableKindFriends, 6, 5, 10)
	testutil.SeedSeat(t, f.db, tbl.ID, 0, 101, 0)

	f.tournaments.HandleHandComplete(context.Background(), hand.Summary{
		TableID: tbl.ID,
		Busted:  []hand.BustedPlayer{{PlayerID: 101}},
	})
	assert.Empty(t, f.rec.OfType(broadcast.EventElimination))
}
