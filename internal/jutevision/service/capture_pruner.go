package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
)

// PrunerConfig sets capture retention. RetentionDays 0 keeps captures
// forever; IntervalHours defaults to 6.
type PrunerConfig struct {
	RetentionDays int
	IntervalHours int
}

// CapturePruner deletes saved captures and uploads past their retention
// window, once at start and then on every interval.
type CapturePruner struct {
	captures  store.CaptureStore
	retention time.Duration
	every     time.Duration
	logger    *slog.Logger
	now       func() time.Time

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewCapturePruner(cs store.CaptureStore, cfg PrunerConfig, logger *slog.Logger) *CapturePruner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	every := time.Duration(cfg.IntervalHours) * time.Hour
	if every <= 0 {
		every = 6 * time.Hour
	}
	return &CapturePruner{
		captures:  cs,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		every:     every,
		logger:    logger.With("component", "capture_pruner"),
		now:       time.Now,
		cancel:    func() {},
		done:      make(chan struct{}),
	}
}

// Enabled reports whether a retention window is configured.
func (p *CapturePruner) Enabled() bool { return p.retention > 0 }

// PruneOnce deletes every capture created before now minus the retention
// window and returns how many went.
func (p *CapturePruner) PruneOnce(ctx context.Context) (int64, error) {
	if !p.Enabled() {
		return 0, nil
	}
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.captures.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("captures pruned", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Start launches the background loop. With retention disabled it does
// nothing and Stop returns at once.
func (p *CapturePruner) Start(ctx context.Context) {
	if !p.Enabled() {
		p.logger.Info("capture retention disabled; keeping captures forever")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info("capture pruner started",
		"retention_days", int(p.retention/(24*time.Hour)),
		"interval", p.every.String())

	go func() {
		defer close(p.done)
		p.tick(ctx)

		t := time.NewTicker(p.every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (p *CapturePruner) Stop() {
	p.stopOnce.Do(p.cancel)
	<-p.done
}

func (p *CapturePruner) tick(ctx context.Context) {
	if _, err := p.PruneOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("capture prune failed", "err", err)
	}
}
