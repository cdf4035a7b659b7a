package model

import (
	"time"

	"gorm.io/datatypes"
)

// Table kinds
const (
	TableKindClub       = "club"
	TableKindFriends    = "friends"
	TableKindCommunity  = "community"
	TableKindTournament = "tournament"
)

const (
	TableStatusOpen   = "open"
	TableStatusClosed = "closed"
)

// Seat statuses that are stored. all_in and folded only exist inside a hand
// and are derived from the action log.
const (
	SeatStatusActive       = "active"
	SeatStatusSittingOut   = "sitting_out"
	SeatStatusDisconnected = "disconnected"
	SeatStatusEliminated   = "eliminated"
)

// 1. Profiles & clubs

type User struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	Nickname  string
	Avatar    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ClubMember struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	ClubID    int64 `gorm:"uniqueIndex:idx_club_member;not null"`
	UserID    int64 `gorm:"uniqueIndex:idx_club_member;not null"`
	CreatedAt time.Time
}

// 2. Tables & seats

type Table struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	Name               string `gorm:"size:128"`
	CreatorID          int64  `gorm:"index"`
	Kind               string `gorm:"size:16;not null"`
	ClubID             *int64
	TournamentID       *int64 `gorm:"index"`
	MaxSeats           int    `gorm:"not null"`
	SmallBlind         int64
	BigBlind           int64
	Ante               int64
	OriginalSmallBlind int64
	OriginalBigBlind   int64
	OriginalAnte       int64
	BlindLevelMinutes  int
	MinBuyIn           int64
	MaxBuyIn           int64
	Status             string `gorm:"size:16;default:open;not null"`
	ClosingAt          *time.Time
	LastDealerSeat     int
	StartedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Seat struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	TableID           int64  `gorm:"uniqueIndex:idx_seat_number;uniqueIndex:idx_seat_player;not null"`
	SeatNumber        int    `gorm:"uniqueIndex:idx_seat_number;not null"`
	PlayerID          int64  `gorm:"uniqueIndex:idx_seat_player;not null"`
	Stack             int64  `gorm:"not null"`
	Status            string `gorm:"size:16;not null"`
	PendingActivation bool
	LeaveAfterHand    bool
	JoinedAt          time.Time
	UpdatedAt         time.Time
}

// 3. Hands & the action log

type Hand struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	TableID          int64  `gorm:"uniqueIndex:idx_hand_number;not null"`
	HandNumber       int    `gorm:"uniqueIndex:idx_hand_number;not null"`
	DealerSeat       int
	SmallBlindSeat   int
	BigBlindSeat     int
	SmallBlind       int64
	BigBlind         int64
	Ante             int64
	Phase            string         `gorm:"size:16;not null;index"`
	CommunityCards   datatypes.JSON `gorm:"type:jsonb"`
	Deck             datatypes.JSON `gorm:"type:jsonb"`
	Pots             datatypes.JSON `gorm:"type:jsonb"`
	Results          datatypes.JSON `gorm:"type:jsonb"`
	CurrentActorSeat int
	CurrentBet       int64
	MinRaise         int64
	ActionDeadline   *time.Time `gorm:"index"`
	StateVersion     int64
	SettledAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type HandParticipant struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"`
	HandID        int64 `gorm:"uniqueIndex:idx_hand_seat;not null"`
	SeatNumber    int   `gorm:"uniqueIndex:idx_hand_seat;not null"`
	PlayerID      int64 `gorm:"not null"`
	StartingStack int64
	HoleCards     datatypes.JSON `gorm:"type:jsonb"`
}

type HandAction struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	HandID     int64  `gorm:"uniqueIndex:idx_hand_sequence;not null"`
	Sequence   int    `gorm:"uniqueIndex:idx_hand_sequence;not null"`
	SeatNumber int    `gorm:"not null"`
	PlayerID   int64  `gorm:"not null"`
	Kind       string `gorm:"size:16;not null"`
	Amount     int64
	Phase      string `gorm:"size:16;not null"`
	Forced     bool
	CreatedAt  time.Time
}

// 4. Tournaments

const (
	TournamentStatusRegistering = "registering"
	TournamentStatusRunning     = "running"
	TournamentStatusCompleted   = "completed"
)

const (
	TournamentPlayerPlaying    = "playing"
	TournamentPlayerEliminated = "eliminated"
)

type Tournament struct {
	ID                int64          `gorm:"primaryKey;autoIncrement"`
	Name              string         `gorm:"size:128"`
	CreatorID         int64
	Status            string         `gorm:"size:16;default:registering;not null"`
	StartingStack     int64          `gorm:"not null"`
	PlayersPerTable   int            `gorm:"not null"`
	MaxPlayers        int            `gorm:"not null"`
	RegisteredCount   int            `gorm:"default:0;not null"`
	PayoutStructure   datatypes.JSON `gorm:"type:jsonb"` // [{"position":1,"percentage":50}, ...]
	SmallBlind        int64
	BigBlind          int64
	Ante              int64
	BlindLevelMinutes int
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type TournamentPlayer struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	TournamentID   int64  `gorm:"uniqueIndex:idx_tournament_player;not null"`
	PlayerID       int64  `gorm:"uniqueIndex:idx_tournament_player;not null"`
	TableID        *int64 `gorm:"index"`
	Status         string `gorm:"size:16;not null"`
	EliminatedAt   *time.Time
	FinishPosition *int
	PayoutAmount   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// All returns every model for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&ClubMember{},
		&Table{},
		&Seat{},
		&Hand{},
		&HandParticipant{},
		&HandAction{},
		&Tournament{},
		&TournamentPlayer{},
	}
}
