package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/jonboulle/clockwork"
)

// LedgerPruner periodically removes expired entries from the lockout ledger
type LedgerPruner struct {
	ledger   *lockout.Ledger
	clock    clockwork.Clock
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLedgerPruner creates a new ledger pruner
func NewLedgerPruner(
	ledger *lockout.Ledger,
	clock clockwork.Clock,
	logger *slog.Logger,
	interval time.Duration,
) *LedgerPruner {
	return &LedgerPruner{
		ledger:   ledger,
		clock:    clock,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a prune immediately and then once per interval until stopped
func (p *LedgerPruner) Start(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ticker.Chan():
			p.RunOnce(ctx)
		case <-p.stopCh:
			p.logger.Info("ledger pruner stopped")
			return
		case <-ctx.Done():
			p.logger.Info("ledger pruner context cancelled")
			return
		}
	}
}

// RunOnce removes ledger entries that no longer affect any login decision
func (p *LedgerPruner) RunOnce(ctx context.Context) int64 {
	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := p.ledger.Prune(pruneCtx, p.clock.Now())
	if err != nil {
		p.logger.Error("failed to prune login ledger", slog.Any("error", err))
		return 0
	}

	if removed > 0 {
		p.logger.Info("login ledger pruned", slog.Int64("entries_removed", removed))
	}
	return removed
}

// Stop signals the pruner to stop. Safe to call more than once.
func (p *LedgerPruner) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}
