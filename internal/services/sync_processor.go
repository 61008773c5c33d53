package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Sweeper routes a batch of pending journal entries; *worker.RouteWorker implements it.
type Sweeper interface {
	ProcessPending(ctx context.Context) (int, error)
}

// SyncProcessor drains the outbox journal inside the web server when no
// message broker is configured.
type SyncProcessor struct {
	sweeper  Sweeper
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(sweeper Sweeper, interval time.Duration) *SyncProcessor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SyncProcessor{sweeper: sweeper, interval: interval}
}

// Start begins the polling loop. It fails if the loop is already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started", "poll_interval", p.interval)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish or ctx to end.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *SyncProcessor) sweep(ctx context.Context) {
	n, err := p.sweeper.ProcessPending(ctx)
	if err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Pending receipt sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pending receipts routed", "count", n)
	}
}
