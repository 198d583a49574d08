package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codecompass/codecompass/domain/indexing"
)

// ReindexTrigger starts an indexing run.
type ReindexTrigger interface {
	Trigger(ctx context.Context) error
}

// PeriodicSync re-triggers repository indexing on a timer so the index
// tracks a working tree that changes underneath the server.
type PeriodicSync struct {
	trigger  ReindexTrigger
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPeriodicSync creates a new PeriodicSync. An interval of zero
// disables it.
func NewPeriodicSync(trigger ReindexTrigger, interval time.Duration, logger *slog.Logger) *PeriodicSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicSync{
		trigger:  trigger,
		interval: interval,
		logger:   logger,
	}
}

// Enabled reports whether periodic re-indexing is configured.
func (p *PeriodicSync) Enabled() bool {
	return p.interval > 0
}

// Start begins periodic re-indexing in a background goroutine.
// If disabled, this is a no-op.
func (p *PeriodicSync) Start(ctx context.Context) {
	if !p.Enabled() {
		p.logger.Info("periodic re-indexing disabled")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Go(func() {
		p.run(ctx)
	})

	p.logger.Info("periodic re-indexing started", slog.Duration("interval", p.interval))
}

// Stop cancels the background goroutine and waits for it to finish.
func (p *PeriodicSync) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("periodic re-indexing stopped")
}

func (p *PeriodicSync) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sync(ctx)
		}
	}
}

func (p *PeriodicSync) sync(ctx context.Context) {
	err := p.trigger.Trigger(ctx)
	switch {
	case err == nil:
		p.logger.Debug("periodic re-index triggered")
	case errors.Is(err, indexing.ErrIndexingInProgress):
		p.logger.Debug("periodic re-index skipped, run already active")
	case ctx.Err() != nil:
		// Shutting down.
	default:
		p.logger.Warn("periodic re-index failed", slog.String("error", err.Error()))
	}
}
