package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay      time.Duration
	Jitter         time.Duration // upper bound of the random extra delay
	DelayOnSuccess bool
}

// TimingDelay pads failed logins to a minimum duration so an unknown
// username and a wrong password take about the same time to answer.
type TimingDelay struct {
	config TimingConfig
	clock  clockwork.Clock
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig, clock clockwork.Clock) *TimingDelay {
	return &TimingDelay{
		config: config,
		clock:  clock,
	}
}

// cryptoJitter returns a uniformly random duration in [0, max)
func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}

	return time.Duration(binary.BigEndian.Uint64(randomBytes) % uint64(max))
}

// Target returns the padded duration for one response
func (td *TimingDelay) Target() time.Duration {
	return td.config.BaseDelay + cryptoJitter(td.config.Jitter)
}

// WaitFrom blocks until at least Target has elapsed since start, or ctx is done
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	remaining := td.Target() - td.clock.Since(start)
	if remaining <= 0 {
		return
	}

	select {
	case <-td.clock.After(remaining):
	case <-ctx.Done():
	}
}
