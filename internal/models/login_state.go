package models

import "time"

// LoginStatus is the lockout status of an account
type LoginStatus string

const (
	LoginStatusActive LoginStatus = "active"
	LoginStatusLocked LoginStatus = "locked"
)

// AccountLoginState is the ledger entry for one username.
// While locked, WindowStart holds the lock start.
type AccountLoginState struct {
	Username     string      `json:"username"`
	FailureCount int         `json:"failure_count"`
	WindowStart  time.Time   `json:"window_start"`
	Status       LoginStatus `json:"status"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsLocked reports whether the entry is in the locked state
func (s *AccountLoginState) IsLocked() bool {
	return s != nil && s.Status == LoginStatusLocked
}
