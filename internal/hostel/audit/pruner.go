package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pruner periodically deletes audit events older than the retention period.
// A retention of 0 disables pruning.
type Pruner struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	onPruned  func(int64)
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PrunerConfig holds the parameters for NewPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of history to keep. 0 keeps everything.
	RetentionDays int
	// Interval is how often the pruner runs. Defaults to 6h.
	Interval time.Duration
	// OnPruned, if set, receives the number of events each successful run removed.
	OnPruned func(deleted int64)
}

// NewPruner creates a pruner but does not start it.
func NewPruner(s Store, cfg PrunerConfig, logger *slog.Logger) *Pruner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Pruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		now:       time.Now,
		onPruned:  cfg.OnPruned,
		logger:    logger.With(slog.String("component", "audit_pruner")),
	}
}

// Start runs one prune immediately and then repeats on the interval until ctx
// is cancelled or Stop is called.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	p.done = make(chan struct{})

	if p.retention <= 0 {
		p.logger.Info("audit pruner disabled", slog.Int("retention_days", 0))
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("audit pruner started",
		slog.Int("retention_days", int(p.retention.Hours()/24)),
		slog.Duration("interval", p.interval))
}

// Stop signals the loop to exit and waits for it. Safe to call repeatedly and
// before Start.
func (p *Pruner) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// PruneOnce deletes events older than the retention period and returns how
// many were removed.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("audit prune failed", slog.String("error", err.Error()))
		return 0, err
	}
	if p.onPruned != nil {
		p.onPruned(deleted)
	}
	if deleted > 0 {
		p.logger.Info("audit events pruned",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
	return deleted, nil
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	_, _ = p.PruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.PruneOnce(ctx)
		}
	}
}
