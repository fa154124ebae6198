package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

// DocumentPoller keeps a document list fresh by fetching it immediately
// on start and then on every tick until stopped.
type DocumentPoller struct {
	api      driven.InvestiGraphAPI
	onUpdate func([]domain.Document)
	onError  func(error)
	logger   *slog.Logger

	// Internal state
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	cancel   context.CancelFunc
	interval time.Duration
}

// DocumentPollerConfig holds configuration for the poller.
type DocumentPollerConfig struct {
	API      driven.InvestiGraphAPI
	Interval time.Duration           // How often to refetch (default: 5s)
	OnUpdate func([]domain.Document) // Called with every successful fetch
	OnError  func(error)             // Optional: called with every failed fetch
	Logger   *slog.Logger
}

// NewDocumentPoller creates a new poller.
func NewDocumentPoller(cfg DocumentPollerConfig) *DocumentPoller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}

	onUpdate := cfg.OnUpdate
	if onUpdate == nil {
		onUpdate = func([]domain.Document) {}
	}

	return &DocumentPoller{
		api:      cfg.API,
		onUpdate: onUpdate,
		onError:  cfg.OnError,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the polling loop.
// It runs until Stop is called or context is cancelled.
func (p *DocumentPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	p.logger.Debug("document poller starting", "interval", p.interval)

	go p.run(ctx, stopCh, doneCh)

	return nil
}

// Stop halts the loop and waits for it to exit. An in-flight fetch is
// cancelled and its result discarded, so no update is delivered after
// Stop returns.
func (p *DocumentPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.cancel()
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh

	p.logger.Debug("document poller stopped")
}

// Running reports whether the loop is active
func (p *DocumentPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// run is the main polling loop. It clears the running flag on exit, so
// a loop ended by its parent context can be started again.
func (p *DocumentPoller) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		p.mu.Lock()
		if p.doneCh == doneCh {
			p.running = false
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Run immediately on start
	p.fetch(ctx, stopCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.fetch(ctx, stopCh)
		}
	}
}

func (p *DocumentPoller) fetch(ctx context.Context, stopCh chan struct{}) {
	docs, err := p.api.ListDocuments(ctx)

	select {
	case <-stopCh:
		return
	default:
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("document refresh failed", "error", err)
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	p.onUpdate(docs)
}
