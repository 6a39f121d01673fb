package worker

import (
	"context"
	"log/slog"
	"time"
)

// Ledger is a buy store that can drop old rows.
type Ledger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes ledger rows older than the retention period.
type Pruner struct {
	ledger    Ledger
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// NewPruner creates a pruner. A non-positive retention disables it.
func NewPruner(ledger Ledger, retention time.Duration) *Pruner {
	return &Pruner{
		ledger:    ledger,
		retention: retention,
		now:       time.Now,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Interval is a tenth of the retention, clamped to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start prunes once, then on every interval until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	p.Prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one deletion pass.
func (p *Pruner) Prune(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.ledger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to prune buys", "error", err)
		return
	}
	if n > 0 {
		p.log.Info("pruned buys", "deleted", n, "before", cutoff)
	}
}
