package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Admission errors
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyJoined   = errors.New("user has already joined this session")
	ErrAlreadyWaiting  = errors.New("user is already on the waiting list")
	ErrSessionFull     = errors.New("session is full")
	ErrNotAParticipant = errors.New("user is not a participant of this session")

	// Ownership errors
	ErrNotSessionOwner     = errors.New("only the game master can change this session")
	ErrCapacityBelowRoster = errors.New("max players cannot be lower than the number of seated players")

	// Validation errors
	ErrInvalidSessionID         = errors.New("invalid session id")
	ErrInvalidUserID            = errors.New("invalid user id")
	ErrInvalidTitle             = errors.New("title must be between 1 and 100 characters")
	ErrInvalidDescription       = errors.New("description must be between 1 and 2000 characters")
	ErrUnknownGameSystem        = errors.New("unknown game system")
	ErrInvalidDuration          = errors.New("duration must be between 30 and 480 minutes")
	ErrInvalidTimezone          = errors.New("unsupported timezone")
	ErrInvalidMaxPlayers        = errors.New("max players must be between 1 and 20")
	ErrInvalidSessionType       = errors.New("invalid session type")
	ErrInvalidPlannedSessions   = errors.New("recurring sessions need between 2 and 52 planned sessions")
	ErrInvalidSessionState      = errors.New("invalid session state")
	ErrInvalidDate              = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidStartTime         = errors.New("start time must be formatted as HH:MM")
	ErrMissingSchedule          = errors.New("published sessions need a date and a start time")
	ErrInvalidTimeSuggestions   = errors.New("suggested sessions need between 1 and 10 time suggestions")
	ErrInvalidDecisionDate      = errors.New("suggested sessions need a valid decision date")
	ErrInvalidCharacterCreation = errors.New("invalid character creation mode")
	ErrLocationMismatch         = errors.New("location does not match the online flag")
	ErrMissingCity              = errors.New("physical locations need a city")
	ErrInvalidLocation          = errors.New("location is malformed")
	ErrInvalidFilter            = errors.New("invalid filter value")
	ErrInvalidImageURL          = errors.New("image url must be an absolute http(s) url")
)

// StoreError wraps a failure of the underlying entity store
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err unless it is nil or already a domain error
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFoundError(err) || IsValidationError(err) || IsConflictError(err) || IsForbiddenError(err) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError checks if the error came from the entity store
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsConflictError checks if the error is an admission conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyJoined) ||
		errors.Is(err, ErrAlreadyWaiting) ||
		errors.Is(err, ErrSessionFull) ||
		errors.Is(err, ErrNotAParticipant) ||
		errors.Is(err, ErrCapacityBelowRoster)
}

// IsForbiddenError checks if the caller lacks rights on the session
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotSessionOwner)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidTitle) ||
		errors.Is(err, ErrInvalidDescription) ||
		errors.Is(err, ErrUnknownGameSystem) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidTimezone) ||
		errors.Is(err, ErrInvalidMaxPlayers) ||
		errors.Is(err, ErrInvalidSessionType) ||
		errors.Is(err, ErrInvalidPlannedSessions) ||
		errors.Is(err, ErrInvalidSessionState) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidStartTime) ||
		errors.Is(err, ErrMissingSchedule) ||
		errors.Is(err, ErrInvalidTimeSuggestions) ||
		errors.Is(err, ErrInvalidDecisionDate) ||
		errors.Is(err, ErrInvalidCharacterCreation) ||
		errors.Is(err, ErrLocationMismatch) ||
		errors.Is(err, ErrMissingCity) ||
		errors.Is(err, ErrInvalidLocation) ||
		errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrInvalidImageURL)
}
