package errors

import (
	"errors"
	"fmt"
)

// Category sentinels. Every specific error wraps exactly one of them so
// callers can classify with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("state conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
)

func newErr(kind error, msg string) error {
	return fmt.Errorf("%s: %w", msg, kind)
}

// Auth
var (
	ErrUnauthorized  = newErr(ErrForbidden, "unauthorized")
	ErrNotClubMember = newErr(ErrForbidden, "not a club member")
	ErrNotCreator    = newErr(ErrForbidden, "only the table creator may do this")
	ErrNotSeated     = newErr(ErrForbidden, "player is not seated at this table")
	ErrNotInHand     = newErr(ErrForbidden, "player is not dealt into this hand")
	ErrNotOrganizer  = newErr(ErrForbidden, "only the organizer or the player may eliminate")
)

// Tables & seats
var (
	ErrTableNotFound     = newErr(ErrNotFound, "table not found")
	ErrSeatNotFound      = newErr(ErrNotFound, "seat not found")
	ErrInvalidSeat       = newErr(ErrValidation, "seat number out of range")
	ErrInvalidBuyIn      = newErr(ErrValidation, "buy-in out of range")
	ErrInvalidTable      = newErr(ErrValidation, "invalid table settings")
	ErrInvalidModeration = newErr(ErrValidation, "unsupported moderation action")
	ErrCannotKickSelf    = newErr(ErrValidation, "cannot kick yourself")
	ErrSeatTaken         = newErr(ErrConflict, "seat already taken")
	ErrAlreadySeated     = newErr(ErrConflict, "player already seated")
	ErrTableClosed       = newErr(ErrConflict, "table is closed")
	ErrTableClosing      = newErr(ErrConflict, "table is scheduled to close")
	ErrNotClosing        = newErr(ErrConflict, "table has no scheduled close")
	ErrNotSittingOut     = newErr(ErrConflict, "seat is not sitting out")
	ErrDirectJoinTourney = newErr(ErrConflict, "tournament tables are seated by the tournament")
)

// Hands & actions
var (
	ErrHandNotFound       = newErr(ErrNotFound, "hand not found")
	ErrHandInProgress     = newErr(ErrConflict, "a hand is in progress")
	ErrHandCompleted      = newErr(ErrConflict, "hand already completed")
	ErrHandAlreadySettled = newErr(ErrConflict, "hand already settled")
	ErrNotEnoughPlayers   = newErr(ErrConflict, "not enough players to start a hand")
	ErrStaleVersion       = newErr(ErrConflict, "hand state changed, re-fetch")
	ErrDeadlineNotReached = newErr(ErrConflict, "action deadline has not passed")
	ErrNotYourTurn        = newErr(ErrValidation, "not your turn")
	ErrInvalidAction      = newErr(ErrValidation, "invalid action")
	ErrCannotCheck        = newErr(ErrValidation, "cannot check facing a bet")
	ErrNothingToCall      = newErr(ErrValidation, "nothing to call")
	ErrBetNotAllowed      = newErr(ErrValidation, "bet not allowed, use raise")
	ErrRaiseNotAllowed    = newErr(ErrValidation, "raise not allowed, use bet")
	ErrBetTooSmall        = newErr(ErrValidation, "bet below minimum")
	ErrRaiseTooSmall      = newErr(ErrValidation, "raise below minimum")
	ErrInsufficientStack  = newErr(ErrValidation, "amount exceeds stack")
)

// Tournaments
var (
	ErrTournamentNotFound   = newErr(ErrNotFound, "tournament not found")
	ErrTournamentPlayerNF   = newErr(ErrNotFound, "tournament player not found")
	ErrInvalidTournament    = newErr(ErrValidation, "invalid tournament settings")
	ErrTournamentFull       = newErr(ErrConflict, "tournament is full")
	ErrAlreadyRegistered    = newErr(ErrConflict, "player already registered")
	ErrRegistrationBusy     = newErr(ErrConflict, "registration in progress")
	ErrTournamentNotOpen    = newErr(ErrConflict, "tournament is not accepting registrations")
	ErrTournamentNotRunning = newErr(ErrConflict, "tournament is not running")
	ErrAlreadyEliminated    = newErr(ErrConflict, "player already eliminated")
)

// Kind reports the category sentinel err belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrConflict, ErrForbidden, ErrNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
