package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by repositories, services and handlers. Domain login
// outcomes are LoginResult values, not errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrConflict       = errors.New("record already exists")
	ErrUnauthorized   = errors.New("credentials rejected")
	ErrForbidden      = errors.New("operation not permitted")
	ErrBadRequest     = errors.New("invalid input")
	ErrInternalServer = errors.New("internal failure")
)

// AccountLockedError is returned by credential checks outside the login
// endpoint while the account's lockout is active.
type AccountLockedError struct {
	TimeRemaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked for %d more minute(s)", LockedOut{TimeRemaining: e.TimeRemaining}.TimeRemainingMinutes())
}
