package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/hand"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceKind string

const (
	BalanceMerge     BalanceKind = "merge"
	BalanceRebalance BalanceKind = "rebalance"
)

// BalanceSignal is advisory. Moving players between tables is left to the
// operator; the service only reports when the field calls for it.
type BalanceSignal struct {
	Kind        BalanceKind   `json:"kind"`
	Remaining   int           `json:"remaining"`
	TableSizes  map[int64]int `json:"tableSizes"`
	FromTableID int64         `json:"fromTableId,omitempty,string"`
	ToTableID   int64         `json:"toTableId,omitempty,string"`
}

type EliminationResult struct {
	TournamentID       int64           `json:"tournamentId,string"`
	PlayerID           int64           `json:"playerId,string"`
	FinishPosition     int             `json:"finishPosition"`
	Remaining          int             `json:"remaining"`
	TournamentComplete bool            `json:"tournamentComplete"`
	ChampionID         int64           `json:"championId,omitempty,string"`
	Payouts            map[int64]int64 `json:"payouts,omitempty"`
	Balance            *BalanceSignal  `json:"balance,omitempty"`

	emptyTables []int64
	allTables   []int64
}

// EliminateRequest is an explicit elimination. ActorID must be the
// tournament creator or the eliminated player.
type EliminateRequest struct {
	TournamentID int64
	ActorID      int64
	PlayerID     int64
}

// Eliminate records a player's exit. Finish positions count down from the
// field size; when one player remains they are crowned, payouts are fixed and
// every tournament table is closed.
func (s *Service) Eliminate(ctx context.Context, req EliminateRequest) (*EliminationResult, error) {
	return s.eliminate(ctx, req.TournamentID, req.PlayerID, func(t *model.Tournament) error {
		if req.ActorID != t.CreatorID && req.ActorID != req.PlayerID {
			return appErr.ErrNotOrganizer
		}
		return nil
	})
}

// eliminate runs authorize, when set, against the locked tournament row.
func (s *Service) eliminate(ctx context.Context, tournamentID, playerID int64,
	authorize func(*model.Tournament) error) (*EliminationResult, error) {
	res := &EliminationResult{TournamentID: tournamentID, PlayerID: playerID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTournament(tx, tournamentID, true)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(t); err != nil {
				return err
			}
		}
		if t.Status != model.TournamentStatusRunning {
			return appErr.ErrTournamentNotRunning
		}

		var tp model.TournamentPlayer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tournament_id = ? AND player_id = ?", tournamentID, playerID).
			First(&tp).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.ErrTournamentPlayerNF
			}
			return err
		}
		if tp.Status == model.TournamentPlayerEliminated {
			return appErr.ErrAlreadyEliminated
		}

		if tp.TableID != nil {
			inHand, err := hand.InOpenHand(tx, *tp.TableID, playerID)
			if err != nil {
				return err
			}
			if inHand {
				return appErr.ErrHandInProgress
			}
			if err := tx.Where("table_id = ? AND player_id = ?", *tp.TableID, playerID).
				Delete(&model.Seat{}).Error; err != nil {
				return err
			}
		}

		var playing []model.TournamentPlayer
		if err := tx.Where("tournament_id = ? AND status = ?", tournamentID, model.TournamentPlayerPlaying).
			Order("id").Find(&playing).Error; err != nil {
			return err
		}
		now := s.clock.Now()
		position := len(playing)
		if err := tx.Model(&tp).Updates(map[string]interface{}{
			"status":          model.TournamentPlayerEliminated,
			"eliminated_at":   now,
			"finish_position": position,
		}).Error; err != nil {
			return err
		}
		res.FinishPosition = position
		res.Remaining = position - 1

		tableIDs, err := tournamentTables(tx, tournamentID)
		if err != nil {
			return err
		}
		sizes, err := tableSizes(tx, tableIDs)
		if err != nil {
			return err
		}

		if res.Remaining <= 1 {
			survivors := funk.Filter(playing, func(p model.TournamentPlayer) bool {
				return p.PlayerID != playerID
			}).([]model.TournamentPlayer)
			if len(survivors) == 1 {
				res.ChampionID = survivors[0].PlayerID
				if err := tx.Model(&survivors[0]).Update("finish_position", 1).Error; err != nil {
					return err
				}
			}
			payouts, err := s.awardPayouts(tx, t)
			if err != nil {
				return err
			}
			res.Payouts = payouts
			res.TournamentComplete = true
			res.allTables = tableIDs
			return tx.Model(t).Updates(map[string]interface{}{
				"status":       model.TournamentStatusCompleted,
				"completed_at": now,
			}).Error
		}

		for _, id := range tableIDs {
			if sizes[id] == 0 {
				res.emptyTables = append(res.emptyTables, id)
				delete(sizes, id)
			}
		}
		res.Balance = balanceFor(res.Remaining, t.PlayersPerTable, sizes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterElimination(ctx, res)
	return res, nil
}

func (s *Service) afterElimination(ctx context.Context, res *EliminationResult) {
	logger.Log.Info("tournament elimination",
		zap.Int64("tournamentID", res.TournamentID),
		zap.Int64("playerID", res.PlayerID),
		zap.Int("finishPosition", res.FinishPosition),
		zap.Int("remaining", res.Remaining),
	)
	s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventElimination).
		ForTournament(res.TournamentID).
		With(map[string]interface{}{
			"playerId":       res.PlayerID,
			"finishPosition": res.FinishPosition,
			"remaining":      res.Remaining,
		}))

	closing := res.emptyTables
	if res.TournamentComplete {
		closing = res.allTables
	}
	for _, id := range closing {
		if err := s.tables.CloseNow(ctx, id, "tournament"); err != nil && !errors.Is(err, appErr.ErrTableNotFound) {
			logger.Log.Warn("tournament table close failed",
				zap.Int64("tournamentID", res.TournamentID),
				zap.Int64("tableID", id),
				zap.Error(err),
			)
		}
	}

	if res.TournamentComplete {
		logger.Log.Info("tournament completed",
			zap.Int64("tournamentID", res.TournamentID),
			zap.Int64("championID", res.ChampionID),
		)
		s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventTournamentComplete).
			ForTournament(res.TournamentID).
			With(map[string]interface{}{
				"championId": res.ChampionID,
				"payouts":    res.Payouts,
			}))
		return
	}
	if res.Balance != nil {
		s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventBalance).
			ForTournament(res.TournamentID).
			With(res.Balance))
	}
}

func tournamentTables(tx *gorm.DB, tournamentID int64) ([]int64, error) {
	var ids []int64
	err := tx.Model(&model.Table{}).
		Where("tournament_id = ? AND status = ?", tournamentID, model.TableStatusOpen).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func tableSizes(tx *gorm.DB, tableIDs []int64) (map[int64]int, error) {
	sizes := make(map[int64]int, len(tableIDs))
	for _, id := range tableIDs {
		sizes[id] = 0
	}
	if len(tableIDs) == 0 {
		return sizes, nil
	}
	var rows []struct {
		TableID int64
		Players int
	}
	if err := tx.Model(&model.Seat{}).
		Select("table_id, COUNT(*) AS players").
		Where("table_id IN ?", tableIDs).
		Group("table_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		sizes[r.TableID] = r.Players
	}
	return sizes, nil
}

// balanceFor reports a merge once the field fits at a single table, or a
// rebalance when table sizes drift two or more apart.
func balanceFor(remaining, perTable int, sizes map[int64]int) *BalanceSignal {
	if len(sizes) < 2 {
		return nil
	}
	ids := funk.Keys(sizes).([]int64)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if remaining <= perTable {
		return &BalanceSignal{Kind: BalanceMerge, Remaining: remaining, TableSizes: sizes}
	}
	from, to := ids[0], ids[0]
	for _, id := range ids[1:] {
		if sizes[id] > sizes[from] {
			from = id
		}
		if sizes[id] < sizes[to] {
			to = id
		}
	}
	if sizes[from]-sizes[to] < 2 {
		return nil
	}
	return &BalanceSignal{
		Kind:        BalanceRebalance,
		Remaining:   remaining,
		TableSizes:  sizes,
		FromTableID: from,
		ToTableID:   to,
	}
}

// awardPayouts splits StartingStack x field size by the payout tiers.
// Integer division remainders stay unpaid.
func (s *Service) awardPayouts(tx *gorm.DB, t *model.Tournament) (map[int64]int64, error) {
	var tiers []PayoutTier
	if len(t.PayoutStructure) > 0 {
		if err := json.Unmarshal(t.PayoutStructure, &tiers); err != nil {
			return nil, err
		}
	}
	var players []model.TournamentPlayer
	if err := tx.Where("tournament_id = ? AND finish_position IS NOT NULL", t.ID).Find(&players).Error; err != nil {
		return nil, err
	}
	byPosition := make(map[int]model.TournamentPlayer, len(players))
	for _, p := range players {
		byPosition[*p.FinishPosition] = p
	}

	pool := t.StartingStack * int64(t.RegisteredCount)
	payouts := make(map[int64]int64, len(tiers))
	for _, tier := range tiers {
		p, ok := byPosition[tier.Position]
		if !ok {
			continue
		}
		amount := pool * tier.Percentage / 100
		if err := tx.Model(&model.TournamentPlayer{}).Where("id = ?", p.ID).
			Update("payout_amount", amount).Error; err != nil {
			return nil, err
		}
		payouts[p.PlayerID] = amount
	}
	return payouts, nil
}

// HandleHandComplete eliminates tournament players who busted in the hand.
// Players who started the hand shorter finish below those who started deeper.
func (s *Service) HandleHandComplete(ctx context.Context, summary hand.Summary) {
	if len(summary.Busted) == 0 {
		return
	}
	var tbl model.Table
	if err := s.db.WithContext(ctx).First(&tbl, summary.TableID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Warn("tournament hand follow-up failed",
				zap.Int64("tableID", summary.TableID),
				zap.Error(err),
			)
		}
		return
	}
	if tbl.Kind != model.TableKindTournament || tbl.TournamentID == nil {
		return
	}

	busted := append([]hand.BustedPlayer(nil), summary.Busted...)
	sort.SliceStable(busted, func(i, j int) bool {
		return busted[i].StartingStack < busted[j].StartingStack
	})
	for _, b := range busted {
		res, err := s.eliminate(ctx, *tbl.TournamentID, b.PlayerID, nil)
		if err != nil {
			logger.Log.Warn("tournament elimination failed",
				zap.Int64("tournamentID", *tbl.TournamentID),
				zap.Int64("playerID", b.PlayerID),
				zap.Error(err),
			)
			continue
		}
		if res.TournamentComplete {
			return
		}
	}
}
