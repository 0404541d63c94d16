package models

import "time"

// LoginResult is the outcome of a banking login attempt. The set of
// implementations is closed: LoginSuccess, NoSuchAccount, WrongPassword,
// LockedOut and AttemptsReset.
type LoginResult interface {
	loginResult()
}

// LoginSuccess is returned when the credentials were accepted
type LoginSuccess struct {
	Profile     *Profile
	AccessToken string
}

// NoSuchAccount is returned when the username is not registered
type NoSuchAccount struct{}

// WrongPassword is returned for a rejected secret that did not lock the account
type WrongPassword struct {
	AttemptsRemaining int
}

// LockedOut is returned while the account is locked. Triggered is set on the
// attempt that caused the lock.
type LockedOut struct {
	TimeRemaining time.Duration
	Triggered     bool
}

// AttemptsReset is returned when the attempt counter was cleared
type AttemptsReset struct{}

func (LoginSuccess) loginResult()  {}
func (NoSuchAccount) loginResult() {}
func (WrongPassword) loginResult() {}
func (LockedOut) loginResult()     {}
func (AttemptsReset) loginResult() {}

// TimeRemainingMinutes rounds the remaining lock time up to whole minutes
func (l LockedOut) TimeRemainingMinutes() int {
	if l.TimeRemaining <= 0 {
		return 0
	}
	minutes := l.TimeRemaining / time.Minute
	if l.TimeRemaining%time.Minute != 0 {
		minutes++
	}
	return int(minutes)
}
