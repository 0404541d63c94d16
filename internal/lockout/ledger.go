package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bankauth/internal/models"
)

// recordTimeout bounds a ledger write once it has been detached from the caller
const recordTimeout = 5 * time.Second

// Ledger owns per-account login attempt state and implements the lockout
// state machine. Every method takes the current time from the caller.
type Ledger struct {
	store  StateStore
	policy Policy
	logger *slog.Logger
}

// NewLedger creates a Ledger over store
func NewLedger(store StateStore, policy Policy, logger *slog.Logger) (*Ledger, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lockout policy: %w", err)
	}
	return &Ledger{
		store:  store,
		policy: policy,
		logger: logger,
	}, nil
}

// Policy returns the thresholds the ledger enforces
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Check returns LockedOut if username is locked at now, or nil if an attempt may proceed
func (l *Ledger) Check(ctx context.Context, username string, now time.Time) (models.LoginResult, error) {
	state, err := l.store.Get(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to read login state: %w", err)
	}

	if remaining, locked := l.lockRemaining(state, now); locked {
		return models.LockedOut{TimeRemaining: remaining}, nil
	}
	return nil, nil
}

// RecordOutcome applies one verified login attempt to the ledger and returns
// the outcome to report. The write is detached from ctx cancellation so an
// abandoned request still counts its failure.
func (l *Ledger) RecordOutcome(ctx context.Context, username string, succeeded bool, now time.Time) (models.LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	var result models.LoginResult
	err := l.store.Update(ctx, username, func(current *models.AccountLoginState) (*models.AccountLoginState, error) {
		next, outcome := l.transition(current, username, succeeded, now)
		result = outcome
		return next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record login outcome: %w", err)
	}

	if lo, ok := result.(models.LockedOut); ok && lo.Triggered {
		l.logger.Warn("account locked",
			slog.Int("max_attempts", l.policy.MaxAttempts),
			slog.Duration("lock_duration", l.policy.LockDuration))
	}

	return result, nil
}

// State returns the stored entry for username, or nil if it has none
func (l *Ledger) State(ctx context.Context, username string) (*models.AccountLoginState, error) {
	state, err := l.store.Get(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to read login state: %w", err)
	}
	return state, nil
}

// Reset clears any failures or lock for username
func (l *Ledger) Reset(ctx context.Context, username string) (models.LoginResult, error) {
	if err := l.store.Delete(ctx, username); err != nil {
		return nil, fmt.Errorf("failed to reset login state: %w", err)
	}
	return models.AttemptsReset{}, nil
}

// Prune deletes entries that are logically reset at now
func (l *Ledger) Prune(ctx context.Context, now time.Time) (int64, error) {
	activeBefore := now.Add(-l.policy.AttemptWindow)
	lockedBefore := now.Add(-l.policy.LockDuration)

	deleted, err := l.store.DeleteExpired(ctx, activeBefore, lockedBefore)
	if err != nil {
		return deleted, fmt.Errorf("failed to prune login states: %w", err)
	}
	return deleted, nil
}

// transition is the state machine. It returns the entry to store (nil
// deletes) and the outcome for this attempt.
func (l *Ledger) transition(current *models.AccountLoginState, username string, succeeded bool, now time.Time) (*models.AccountLoginState, models.LoginResult) {
	if current.IsLocked() {
		if remaining, locked := l.lockRemaining(current, now); locked {
			return current, models.LockedOut{TimeRemaining: remaining}
		}
		// cooldown over: evaluate as a first attempt
		current = nil
	}

	if succeeded {
		return nil, models.LoginSuccess{}
	}

	if current == nil || now.Sub(current.WindowStart) > l.policy.AttemptWindow {
		return l.countFailure(&models.AccountLoginState{
			Username:     username,
			FailureCount: 1,
			WindowStart:  now,
			Status:       models.LoginStatusActive,
		}, now)
	}

	next := *current
	next.FailureCount++
	return l.countFailure(&next, now)
}

func (l *Ledger) countFailure(next *models.AccountLoginState, now time.Time) (*models.AccountLoginState, models.LoginResult) {
	next.UpdatedAt = now

	if next.FailureCount >= l.policy.MaxAttempts {
		next.Status = models.LoginStatusLocked
		next.WindowStart = now
		return next, models.LockedOut{TimeRemaining: l.policy.LockDuration, Triggered: true}
	}

	return next, models.WrongPassword{AttemptsRemaining: l.policy.MaxAttempts - next.FailureCount}
}

// lockRemaining returns the cooldown left on a locked entry. The lock is
// over once exactly LockDuration has elapsed.
func (l *Ledger) lockRemaining(state *models.AccountLoginState, now time.Time) (time.Duration, bool) {
	if !state.IsLocked() {
		return 0, false
	}

	elapsed := now.Sub(state.WindowStart)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= l.policy.LockDuration {
		return 0, false
	}
	return l.policy.LockDuration - elapsed, true
}
