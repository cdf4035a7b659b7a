package tournament

import (
	"context"
	"sort"

	"pokertable-service/internal/model"

	"github.com/thoas/go-funk"
)

type Standing struct {
	PlayerID       int64  `json:"playerId,string"`
	Status         string `json:"status"`
	TableID        *int64 `json:"tableId,omitempty,string"`
	Stack          int64  `json:"stack"`
	FinishPosition *int   `json:"finishPosition,omitempty"`
	Payout         int64  `json:"payout"`
}

// Standings lists players still in by chip count, then the eliminated by
// finish position.
func (s *Service) Standings(ctx context.Context, tournamentID int64) ([]Standing, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadTournament(db, tournamentID, false); err != nil {
		return nil, err
	}
	var players []model.TournamentPlayer
	if err := db.Where("tournament_id = ?", tournamentID).Order("id").Find(&players).Error; err != nil {
		return nil, err
	}

	stacks := make(map[int64]int64, len(players))
	ids := funk.Map(players, func(p model.TournamentPlayer) int64 { return p.PlayerID }).([]int64)
	if len(ids) > 0 {
		var seats []model.Seat
		if err := db.Select("seats.*").
			Joins("JOIN tables ON tables.id = seats.table_id").
			Where("tables.tournament_id = ? AND seats.player_id IN ?", tournamentID, ids).
			Find(&seats).Error; err != nil {
			return nil, err
		}
		for _, st := range seats {
			stacks[st.PlayerID] = st.Stack
		}
	}

	out := make([]Standing, 0, len(players))
	for _, p := range players {
		out = append(out, Standing{
			PlayerID:       p.PlayerID,
			Status:         p.Status,
			TableID:        p.TableID,
			Stack:          stacks[p.PlayerID],
			FinishPosition: p.FinishPosition,
			Payout:         p.PayoutAmount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.FinishPosition == nil) != (b.FinishPosition == nil) {
			return a.FinishPosition == nil
		}
		if a.FinishPosition == nil {
			return a.Stack > b.Stack
		}
		return *a.FinishPosition < *b.FinishPosition
	})
	return out, nil
}
