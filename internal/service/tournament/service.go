package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/table"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	registerLockTTL = 10 * time.Second
	minPlayers      = 2
	maxTableSize    = 10
)

// Locker guards a short critical section per key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string)
}

type Service struct {
	db     *gorm.DB
	tables *table.Service
	locker Locker
	pub    broadcast.Publisher
	clock  quartz.Clock
}

func NewService(db *gorm.DB, tables *table.Service, locker Locker, pub broadcast.Publisher, clock quartz.Clock) *Service {
	if pub == nil {
		pub = broadcast.Nop{}
	}
	return &Service{
		db:     db,
		tables: tables,
		locker: locker,
		pub:    pub,
		clock:  clock,
	}
}

type PayoutTier struct {
	Position   int   `json:"position"`
	Percentage int64 `json:"percentage"`
}

type CreateRequest struct {
	Name              string
	StartingStack     int64
	PlayersPerTable   int
	MaxPlayers        int
	SmallBlind        int64
	BigBlind          int64
	Ante              int64
	BlindLevelMinutes int
	Payouts           []PayoutTier
}

func (r *CreateRequest) sanitize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.StartingStack <= 0 || r.MaxPlayers < minPlayers {
		return appErr.ErrInvalidTournament
	}
	if r.PlayersPerTable < minPlayers || r.PlayersPerTable > maxTableSize {
		return appErr.ErrInvalidTournament
	}
	if r.SmallBlind <= 0 || r.BigBlind < r.SmallBlind || r.Ante < 0 || r.BlindLevelMinutes < 0 {
		return appErr.ErrInvalidTournament
	}
	seen := make(map[int]bool, len(r.Payouts))
	var total int64
	for _, tier := range r.Payouts {
		if tier.Position < 1 || tier.Position > r.MaxPlayers || tier.Percentage <= 0 || seen[tier.Position] {
			return appErr.ErrInvalidTournament
		}
		seen[tier.Position] = true
		total += tier.Percentage
	}
	if total > 100 {
		return appErr.ErrInvalidTournament
	}
	return nil
}

func (s *Service) Create(ctx context.Context, creatorID int64, req CreateRequest) (*model.Tournament, error) {
	if err := req.sanitize(); err != nil {
		return nil, err
	}
	payouts, err := json.Marshal(req.Payouts)
	if err != nil {
		return nil, err
	}
	t := &model.Tournament{
		Name:              req.Name,
		CreatorID:         creatorID,
		Status:            model.TournamentStatusRegistering,
		StartingStack:     req.StartingStack,
		PlayersPerTable:   req.PlayersPerTable,
		MaxPlayers:        req.MaxPlayers,
		PayoutStructure:   datatypes.JSON(payouts),
		SmallBlind:        req.SmallBlind,
		BigBlind:          req.BigBlind,
		Ante:              req.Ante,
		BlindLevelMinutes: req.BlindLevelMinutes,
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	logger.Log.Info("tournament created",
		zap.Int64("tournamentID", t.ID),
		zap.Int("maxPlayers", t.MaxPlayers),
		zap.Int64("creatorID", creatorID),
	)
	return t, nil
}

func (s *Service) Get(ctx context.Context, tournamentID int64) (*model.Tournament, error) {
	return loadTournament(s.db.WithContext(ctx), tournamentID, false)
}

func loadTournament(tx *gorm.DB, tournamentID int64, lock bool) (*model.Tournament, error) {
	var t model.Tournament
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&t, tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrTournamentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func buildRegisterLockKey(tournamentID, playerID int64) string {
	return fmt.Sprintf("poker:tournament:%d:register:%d", tournamentID, playerID)
}

// Register claims one of the tournament's places. The capacity counter is
// bumped with a conditional update, so two racing registrations for the
// last place cannot both succeed.
func (s *Service) Register(ctx context.Context, tournamentID, playerID int64) (*model.TournamentPlayer, error) {
	if s.locker != nil {
		key := buildRegisterLockKey(tournamentID, playerID)
		ok, err := s.locker.TryLock(ctx, key, registerLockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, appErr.ErrRegistrationBusy
		}
		defer s.locker.Unlock(ctx, key)
	}

	tp := &model.TournamentPlayer{
		TournamentID: tournamentID,
		PlayerID:     playerID,
		Status:       model.TournamentPlayerPlaying,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.TournamentPlayer{}).
			Where("tournament_id = ? AND player_id = ?", tournamentID, playerID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return appErr.ErrAlreadyRegistered
		}

		res := tx.Model(&model.Tournament{}).
			Where("id = ? AND status = ? AND registered_count < max_players", tournamentID, model.TournamentStatusRegistering).
			UpdateColumn("registered_count", gorm.Expr("registered_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			t, err := loadTournament(tx, tournamentID, false)
			if err != nil {
				return err
			}
			if t.Status != model.TournamentStatusRegistering {
				return appErr.ErrTournamentNotOpen
			}
			return appErr.ErrTournamentFull
		}

		if err := tx.Create(tp).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return appErr.ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("tournament registration",
		zap.Int64("tournamentID", tournamentID),
		zap.Int64("playerID", playerID),
	)
	return tp, nil
}

type StartResult struct {
	TournamentID int64   `json:"tournamentId,string"`
	TableIDs     []int64 `json:"tableIds"`
	Players      int     `json:"players"`
}

// Start closes registration, opens ceil(n/PlayersPerTable) tables and seats
// players round-robin so table sizes differ by at most one.
func (s *Service) Start(ctx context.Context, tournamentID, actorID int64) (*StartResult, error) {
	res := &StartResult{TournamentID: tournamentID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := loadTournament(tx, tournamentID, true)
		if err != nil {
			return err
		}
		if t.CreatorID != actorID {
			return appErr.ErrNotCreator
		}
		if t.Status != model.TournamentStatusRegistering {
			return appErr.ErrTournamentNotOpen
		}
		var players []model.TournamentPlayer
		if err := tx.Where("tournament_id = ?", tournamentID).Order("id").Find(&players).Error; err != nil {
			return err
		}
		if len(players) < minPlayers {
			return appErr.ErrNotEnoughPlayers
		}

		now := s.clock.Now()
		count := (len(players) + t.PlayersPerTable - 1) / t.PlayersPerTable
		tables := make([]*model.Table, 0, count)
		for i := 0; i < count; i++ {
			tbl := &model.Table{
				Name:               fmt.Sprintf("%s #%d", t.Name, i+1),
				CreatorID:          t.CreatorID,
				Kind:               model.TableKindTournament,
				TournamentID:       &t.ID,
				MaxSeats:           t.PlayersPerTable,
				SmallBlind:         t.SmallBlind,
				BigBlind:           t.BigBlind,
				Ante:               t.Ante,
				OriginalSmallBlind: t.SmallBlind,
				OriginalBigBlind:   t.BigBlind,
				OriginalAnte:       t.Ante,
				BlindLevelMinutes:  t.BlindLevelMinutes,
				MinBuyIn:           t.StartingStack,
				MaxBuyIn:           t.StartingStack,
				StartedAt:          &now,
			}
			if err := s.tables.CreateTx(tx, tbl); err != nil {
				return err
			}
			tables = append(tables, tbl)
			res.TableIDs = append(res.TableIDs, tbl.ID)
		}

		for i := range players {
			tbl := tables[i%count]
			if _, err := s.tables.SeatTx(tx, tbl.ID, i/count, players[i].PlayerID, t.StartingStack); err != nil {
				return err
			}
			if err := tx.Model(&players[i]).Update("table_id", tbl.ID).Error; err != nil {
				return err
			}
		}
		res.Players = len(players)

		return tx.Model(t).Updates(map[string]interface{}{
			"status":     model.TournamentStatusRunning,
			"started_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("tournament started",
		zap.Int64("tournamentID", tournamentID),
		zap.Int("players", res.Players),
		zap.Int("tables", len(res.TableIDs)),
	)
	for _, id := range res.TableIDs {
		if _, err := s.tables.StartHandIfEligible(ctx, id); err != nil {
			logger.Log.Warn("tournament table did not deal",
				zap.Int64("tournamentID", tournamentID),
				zap.Int64("tableID", id),
				zap.Error(err),
			)
		}
	}
	return res, nil
}
