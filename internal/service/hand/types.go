package hand

import (
	"strings"

	appErr "pokertable-service/pkg/errors"
)

type Phase string

const (
	PhasePreflop  Phase = "preflop"
	PhaseFlop     Phase = "flop"
	PhaseTurn     Phase = "turn"
	PhaseRiver    Phase = "river"
	PhaseShowdown Phase = "showdown"
	PhaseComplete Phase = "complete"
)

// next returns the phase after p and how many community cards it reveals.
func (p Phase) next() (Phase, int) {
	switch p {
	case PhasePreflop:
		return PhaseFlop, 3
	case PhaseFlop:
		return PhaseTurn, 1
	case PhaseTurn:
		return PhaseRiver, 1
	default:
		return PhaseShowdown, 0
	}
}

type ActionKind string

const (
	ActionAnte  ActionKind = "ante" // dead money, never part of a round bet
	ActionPost  ActionKind = "post" // blinds, never player-selected
	ActionFold  ActionKind = "fold"
	ActionCheck ActionKind = "check"
	ActionCall  ActionKind = "call"
	ActionBet   ActionKind = "bet"
	ActionRaise ActionKind = "raise"
	ActionAllIn ActionKind = "all_in"
)

// ParseActionKind accepts the kinds a player may choose.
func ParseActionKind(s string) (ActionKind, error) {
	switch k := ActionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise, ActionAllIn:
		return k, nil
	case "allin", "all-in":
		return ActionAllIn, nil
	}
	return "", appErr.ErrInvalidAction
}

// Intent is a player's decision before validation. Amount is only read for
// bet and raise, where it is the total the player's round bet becomes.
type Intent struct {
	Kind   ActionKind
	Amount int64
}

type ActRequest struct {
	TableID         int64
	HandID          int64
	PlayerID        int64
	Intent          Intent
	ExpectedVersion *int64
}

type ForceFoldRequest struct {
	TableID int64
	HandID  int64
}

// PlayerResult is one participant's settlement line.
type PlayerResult struct {
	PlayerID   int64    `json:"playerId,string"`
	SeatNumber int      `json:"seatNumber"`
	TotalBet   int64    `json:"totalBet"`
	Won        int64    `json:"won"`
	Folded     bool     `json:"folded"`
	Score      int64    `json:"score,omitempty"`
	HandName   string   `json:"handName,omitempty"`
	HoleCards  []string `json:"holeCards,omitempty"`
	Refunded   bool     `json:"refunded,omitempty"`
}

type BustedPlayer struct {
	PlayerID      int64
	SeatNumber    int
	StartingStack int64
}

// Summary describes a hand that has just been settled.
type Summary struct {
	TableID    int64
	HandID     int64
	HandNumber int
	Results    []PlayerResult
	Busted     []BustedPlayer
	// Contested is false when the hand ended on forced bets alone.
	Contested bool
}
