package table

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service/authz"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/hand"
	"pokertable-service/internal/service/profile"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	minSeats = 2
	maxSeats = 10
)

type Config struct {
	CommunityCloseDelay time.Duration
	SweepInterval       time.Duration
	// SweepBatch caps the rows a sweeper query reads per page.
	SweepBatch int
}

func defaultConfig() Config {
	return Config{
		CommunityCloseDelay: 4 * time.Hour,
		SweepInterval:       30 * time.Second,
		SweepBatch:          100,
	}
}

type Service struct {
	db       *gorm.DB
	hands    *hand.Service
	authz    *authz.Service
	profiles *profile.Service
	pub      broadcast.Publisher
	clock    quartz.Clock
	cfg      Config

	startOnce sync.Once
}

func NewService(db *gorm.DB, hands *hand.Service, az *authz.Service, profiles *profile.Service,
	pub broadcast.Publisher, clock quartz.Clock, cfg Config) *Service {
	def := defaultConfig()
	if cfg.CommunityCloseDelay <= 0 {
		cfg.CommunityCloseDelay = def.CommunityCloseDelay
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = def.SweepBatch
	}
	if pub == nil {
		pub = broadcast.Nop{}
	}
	return &Service{
		db:       db,
		hands:    hands,
		authz:    az,
		profiles: profiles,
		pub:      pub,
		clock:    clock,
		cfg:      cfg,
	}
}

type CreateTableRequest struct {
	Name       string
	Kind       string
	ClubID     *int64
	MaxSeats   int
	SmallBlind int64
	BigBlind   int64
	Ante       int64
	MinBuyIn   int64
	MaxBuyIn   int64
}

func (r *CreateTableRequest) sanitize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	switch r.Kind {
	case model.TableKindClub:
		if r.ClubID == nil {
			return appErr.ErrInvalidTable
		}
	case model.TableKindFriends, model.TableKindCommunity:
	default:
		return appErr.ErrInvalidTable
	}
	if r.MaxSeats < minSeats || r.MaxSeats > maxSeats {
		return appErr.ErrInvalidTable
	}
	if r.SmallBlind <= 0 || r.BigBlind < r.SmallBlind || r.Ante < 0 {
		return appErr.ErrInvalidTable
	}
	if r.MinBuyIn <= 0 || r.MaxBuyIn < r.MinBuyIn {
		return appErr.ErrInvalidTable
	}
	return nil
}

// CreateTable opens a cash table owned by creatorID. Tournament tables are
// created by the tournament manager through CreateTx.
func (s *Service) CreateTable(ctx context.Context, creatorID int64, req CreateTableRequest) (*model.Table, error) {
	if err := req.sanitize(); err != nil {
		return nil, err
	}
	if req.Kind == model.TableKindClub {
		ok, err := s.authz.IsClubMember(ctx, *req.ClubID, creatorID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, appErr.ErrNotClubMember
		}
	}
	table := &model.Table{
		Name:               req.Name,
		CreatorID:          creatorID,
		Kind:               req.Kind,
		ClubID:             req.ClubID,
		MaxSeats:           req.MaxSeats,
		SmallBlind:         req.SmallBlind,
		BigBlind:           req.BigBlind,
		Ante:               req.Ante,
		OriginalSmallBlind: req.SmallBlind,
		OriginalBigBlind:   req.BigBlind,
		OriginalAnte:       req.Ante,
		MinBuyIn:           req.MinBuyIn,
		MaxBuyIn:           req.MaxBuyIn,
	}
	if err := s.CreateTx(s.db.WithContext(ctx), table); err != nil {
		return nil, err
	}
	logger.Log.Info("table created",
		zap.Int64("tableID", table.ID),
		zap.String("kind", table.Kind),
		zap.Int64("creatorID", creatorID),
	)
	return table, nil
}

// CreateTx inserts a table inside the caller's transaction.
func (s *Service) CreateTx(tx *gorm.DB, table *model.Table) error {
	now := s.clock.Now()
	table.Status = model.TableStatusOpen
	table.LastDealerSeat = -1
	table.CreatedAt = now
	table.UpdatedAt = now
	return tx.Create(table).Error
}

// SeatTx places a player directly, bypassing buy-in rules. Used for
// tournament seating.
func (s *Service) SeatTx(tx *gorm.DB, tableID int64, seatNumber int, playerID, stack int64) (*model.Seat, error) {
	now := s.clock.Now()
	seat := &model.Seat{
		TableID:    tableID,
		SeatNumber: seatNumber,
		PlayerID:   playerID,
		Stack:      stack,
		Status:     model.SeatStatusActive,
		JoinedAt:   now,
		UpdatedAt:  now,
	}
	if err := tx.Create(seat).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, appErr.ErrSeatTaken
		}
		return nil, err
	}
	return seat, nil
}

type SeatView struct {
	SeatNumber        int    `json:"seatNumber"`
	PlayerID          int64  `json:"playerId,string"`
	Nickname          string `json:"nickname"`
	Avatar            string `json:"avatar,omitempty"`
	Stack             int64  `json:"stack"`
	Status            string `json:"status"`
	PendingActivation bool   `json:"pendingActivation,omitempty"`
	LeaveAfterHand    bool   `json:"leaveAfterHand,omitempty"`
}

type View struct {
	ID           int64      `json:"id,string"`
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	CreatorID    int64      `json:"creatorId,string"`
	TournamentID *int64     `json:"tournamentId,omitempty,string"`
	MaxSeats     int        `json:"maxSeats"`
	SmallBlind   int64      `json:"smallBlind"`
	BigBlind     int64      `json:"bigBlind"`
	Ante         int64      `json:"ante"`
	MinBuyIn     int64      `json:"minBuyIn"`
	MaxBuyIn     int64      `json:"maxBuyIn"`
	Status       string     `json:"status"`
	ClosingAt    *time.Time `json:"closingAt,omitempty"`
	OpenHandID   *int64     `json:"openHandId,omitempty,string"`
	Seats        []SeatView `json:"seats"`
}

func (s *Service) GetTable(ctx context.Context, tableID int64) (*View, error) {
	db := s.db.WithContext(ctx)
	table, err := loadTable(db, tableID, false)
	if err != nil {
		return nil, err
	}
	var seats []model.Seat
	if err := db.Where("table_id = ?", tableID).Order("seat_number").Find(&seats).Error; err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(seats))
	for _, st := range seats {
		ids = append(ids, st.PlayerID)
	}
	names, err := s.profiles.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &View{
		ID:           table.ID,
		Name:         table.Name,
		Kind:         table.Kind,
		CreatorID:    table.CreatorID,
		TournamentID: table.TournamentID,
		MaxSeats:     table.MaxSeats,
		SmallBlind:   table.SmallBlind,
		BigBlind:     table.BigBlind,
		Ante:         table.Ante,
		MinBuyIn:     table.MinBuyIn,
		MaxBuyIn:     table.MaxBuyIn,
		Status:       table.Status,
		ClosingAt:    table.ClosingAt,
		Seats:        make([]SeatView, 0, len(seats)),
	}
	if open, err := hand.OpenHand(db, tableID); err != nil {
		return nil, err
	} else if open != nil {
		view.OpenHandID = &open.ID
	}
	for _, st := range seats {
		p := names[st.PlayerID]
		view.Seats = append(view.Seats, SeatView{
			SeatNumber:        st.SeatNumber,
			PlayerID:          st.PlayerID,
			Nickname:          p.Nickname,
			Avatar:            p.Avatar,
			Stack:             st.Stack,
			Status:            st.Status,
			PendingActivation: st.PendingActivation,
			LeaveAfterHand:    st.LeaveAfterHand,
		})
	}
	return view, nil
}

func loadTable(tx *gorm.DB, tableID int64, lock bool) (*model.Table, error) {
	var table model.Table
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrTableNotFound
		}
		return nil, err
	}
	return &table, nil
}

func findSeat(tx *gorm.DB, tableID, playerID int64) (*model.Seat, error) {
	var seat model.Seat
	if err := tx.Where("table_id = ? AND player_id = ?", tableID, playerID).Limit(1).Find(&seat).Error; err != nil {
		return nil, err
	}
	if seat.ID == 0 {
		return nil, nil
	}
	return &seat, nil
}

// SeatOf returns the player's seat at the table or ErrNotSeated.
func (s *Service) SeatOf(ctx context.Context, tableID, playerID int64) (*model.Seat, error) {
	seat, err := findSeat(s.db.WithContext(ctx), tableID, playerID)
	if err != nil {
		return nil, err
	}
	if seat == nil {
		return nil, appErr.ErrNotSeated
	}
	return seat, nil
}

func (s *Service) publishSeats(ctx context.Context, tableID int64, data interface{}) {
	s.pub.Publish(ctx, broadcast.NewEvent(broadcast.EventSeatChange).ForTable(tableID).With(data))
}
