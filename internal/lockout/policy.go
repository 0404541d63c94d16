package lockout

import (
	"fmt"
	"time"
)

// Policy holds the lockout thresholds
type Policy struct {
	MaxAttempts   int           // failures before the account locks
	AttemptWindow time.Duration // failures older than this no longer count
	LockDuration  time.Duration // cooldown once locked
}

// DefaultPolicy returns 3 attempts within 5 minutes and a 10 minute lock
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		AttemptWindow: 5 * time.Minute,
		LockDuration:  10 * time.Minute,
	}
}

// Validate rejects policies that would never lock or never release
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1 (got %d)", p.MaxAttempts)
	}
	if p.AttemptWindow <= 0 {
		return fmt.Errorf("attempt window must be positive (got %s)", p.AttemptWindow)
	}
	if p.LockDuration <= 0 {
		return fmt.Errorf("lock duration must be positive (got %s)", p.LockDuration)
	}
	return nil
}
