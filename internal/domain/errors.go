package domain

import "errors"

// validation errors
var (
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrGameNotFound        = errors.New("game not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidTournament   = errors.New("invalid tournament")
	ErrTournamentFinished  = errors.New("tournament is finished")
	ErrTournamentNotActive = errors.New("tournament is not active")
	ErrRatingOutOfRange    = errors.New("rating outside tournament range")
	ErrParticipantInGame   = errors.New("participant is in a game")
	ErrWithdrawn           = errors.New("participant has withdrawn")
	ErrInvalidStatus       = errors.New("operation not allowed in current status")
	ErrRejoinCooldown      = errors.New("rejoin cooldown has not elapsed")
	ErrNotAPlayer          = errors.New("user is not a player in this game")
	ErrGameNotActive       = errors.New("game is not active")
	ErrNotInCountdown      = errors.New("game is not in countdown")
	ErrInputLocked         = errors.New("input locked after wrong answer")
)

// ErrConflict reports a lost compare-and-swap. Callers re-fetch and retry or no-op.
var ErrConflict = errors.New("concurrent update conflict")

// ErrMalformedGame is a persisted game violating its invariants.
var ErrMalformedGame = errors.New("malformed game record")

// ErrOracleUnavailable wraps failures of external collaborators after retries.
var ErrOracleUnavailable = errors.New("external service unavailable")

// IsValidation reports whether err is a caller-facing validation error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidArgument, ErrInvalidTournament, ErrTournamentFinished, ErrTournamentNotActive,
		ErrRatingOutOfRange, ErrParticipantInGame, ErrWithdrawn, ErrInvalidStatus,
		ErrRejoinCooldown, ErrNotAPlayer, ErrGameNotActive, ErrNotInCountdown, ErrInputLocked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTournamentNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrGameNotFound)
}
