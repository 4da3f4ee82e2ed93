package services

import "errors"

// Общие ошибки сервисного слоя и их маппинг на HTTP живёт в handlers.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business rules
	ErrValidationFailed   = errors.New("validation failed")
	ErrInvalidScore       = errors.New("match scores must be non-negative finite numbers")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionCompleted   = errors.New("session is already completed")
	ErrNotEnoughPlayers   = errors.New("at least two players are required to generate matches")

	// Authentication / authorization
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")

	// Entity-specific not-found (wrap ErrNotFound context)
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrMatchNotFound   = errors.New("match not found")

	// Conflicts
	ErrUserEmailConflict = errors.New("email address is already in use")
	ErrUserNickConflict  = errors.New("nickname is already in use")

	// ErrRecalcInProgress is the lock-contention condition: retryable,
	// surfaced as 409, never as a true failure.
	ErrRecalcInProgress = errors.New("a recalculation is already in progress for this session")

	// Invariant violations inside a replay. These are defects, not user
	// errors: the whole recalculation aborts and the session is marked failed.
	ErrReplayInconsistent     = errors.New("replay produced fewer matches than the baseline recorded")
	ErrDoublesDeltaImbalance  = errors.New("player-doubles deltas for the two sides do not cancel out")
	ErrDuplicateMatchInReplay = errors.New("duplicate match id encountered during replay")
)
