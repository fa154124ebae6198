package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
)

// Ensure Importer implements ImportWorkflow
var _ driving.ImportWorkflow = (*Importer)(nil)

// Importer submits an SEC 10-K import and waits for the resulting
// document to appear in the document list.
//
// Completion is detected by the list growing past the baseline count.
// A document uploaded concurrently by another client satisfies the
// check just as well; the backend offers no job id to correlate with.
type Importer struct {
	api         driven.InvestiGraphAPI
	lock        driven.DistributedLock
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// ImporterConfig holds configuration for the importer.
type ImporterConfig struct {
	API         driven.InvestiGraphAPI
	Lock        driven.DistributedLock // Optional: serialises imports of a ticker across processes
	Interval    time.Duration          // Delay before each poll (default: 2s)
	MaxAttempts int                    // Number of polls before giving up (default: 30)
	Logger      *slog.Logger
}

// NewImporter creates a new importer.
func NewImporter(cfg ImporterConfig) *Importer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = 2 * time.Second
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	return &Importer{
		api:         cfg.API,
		lock:        cfg.Lock,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Import submits the ticker and polls the document list until it holds
// more than baseline documents. A failed poll aborts the import.
func (i *Importer) Import(ctx context.Context, ticker string, baseline int) (*domain.ImportResult, error) {
	ticker, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	release, err := i.acquire(ctx, ticker)
	if err != nil {
		return nil, err
	}
	defer release()

	ack, err := i.api.ImportFiling(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("submit import: %w", err)
	}

	i.logger.Info("sec import submitted", "ticker", ticker, "baseline", baseline)

	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		if err := sleep(ctx, i.interval); err != nil {
			return nil, err
		}

		docs, err := i.api.ListDocuments(ctx)
		if err != nil {
			return nil, fmt.Errorf("poll documents (attempt %d): %w", attempt, err)
		}

		if len(docs) > baseline {
			i.logger.Info("sec import completed", "ticker", ticker, "attempts", attempt, "documents", len(docs))
			result := &domain.ImportResult{
				Ticker:    ticker,
				Attempts:  attempt,
				Documents: docs,
			}
			if ack != nil {
				result.Message = ack.Message
			}
			return result, nil
		}

		i.logger.Debug("sec import pending", "ticker", ticker, "attempt", attempt, "documents", len(docs))
	}

	i.logger.Warn("sec import timed out", "ticker", ticker, "attempts", i.maxAttempts)
	return nil, fmt.Errorf("%w: %s after %d attempts", domain.ErrImportTimeout, ticker, i.maxAttempts)
}

// acquire takes the per-ticker import lock when one is configured. A lock
// backend failure is logged and the import proceeds unguarded.
func (i *Importer) acquire(ctx context.Context, ticker string) (func(), error) {
	if i.lock == nil {
		return func() {}, nil
	}

	name := "sec-import:" + ticker
	ttl := i.interval*time.Duration(i.maxAttempts) + 30*time.Second
	acquired, err := i.lock.Acquire(ctx, name, ttl)
	if err != nil {
		i.logger.Warn("import lock unavailable", "ticker", ticker, "error", err)
		return func() {}, nil
	}
	if !acquired {
		return nil, fmt.Errorf("%w: import of %s is already running", domain.ErrBusy, ticker)
	}

	return func() {
		if err := i.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			i.logger.Warn("failed to release import lock", "ticker", ticker, "error", err)
		}
	}, nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
