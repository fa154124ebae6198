package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
)

// Ensure Dashboard implements DashboardView
var _ driving.DashboardView = (*Dashboard)(nil)

// Dashboard is the state container behind the document list. It keeps the
// list fresh with a DocumentPoller while mounted and drives the upload,
// delete and SEC import flows.
type Dashboard struct {
	documents driving.DocumentService
	auth      driving.AuthService
	importer  driving.ImportWorkflow
	poller    *DocumentPoller
	minUpload time.Duration
	logger    *slog.Logger
	notifier  *Notifier[domain.DashboardState]

	mu     sync.Mutex
	state  domain.DashboardState
	loaded bool
}

// DashboardConfig holds configuration for the dashboard.
type DashboardConfig struct {
	API               driven.InvestiGraphAPI
	Documents         driving.DocumentService // Optional: defaults to a service over API
	Auth              driving.AuthService
	Importer          driving.ImportWorkflow
	PollInterval      time.Duration // Document refresh interval (default: 5s)
	MinUploadDuration time.Duration // Minimum time the upload indicator is shown (default: 1s)
	Logger            *slog.Logger
}

// NewDashboard creates a new dashboard. It does not fetch anything until
// Mount or Refresh is called.
func NewDashboard(cfg DashboardConfig) *Dashboard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	documents := cfg.Documents
	if documents == nil {
		documents = NewDocumentService(cfg.API)
	}

	importer := cfg.Importer
	if importer == nil {
		importer = NewImporter(ImporterConfig{API: cfg.API, Logger: logger})
	}

	minUpload := cfg.MinUploadDuration
	if minUpload == 0 {
		minUpload = time.Second
	}

	d := &Dashboard{
		documents: documents,
		auth:      cfg.Auth,
		importer:  importer,
		minUpload: minUpload,
		logger:    logger,
		notifier:  NewNotifier[domain.DashboardState](),
		state: domain.DashboardState{
			Documents: []domain.Document{},
			Phase:     domain.PhaseLoading,
		},
	}
	d.poller = NewDocumentPoller(DocumentPollerConfig{
		API:      cfg.API,
		Interval: cfg.PollInterval,
		OnUpdate: d.setDocuments,
		OnError:  d.setError,
		Logger:   logger,
	})
	return d
}

// Mount starts the periodic refresh. The first fetch happens immediately.
func (d *Dashboard) Mount(ctx context.Context) error {
	return d.poller.Start(ctx)
}

// Unmount stops the periodic refresh
func (d *Dashboard) Unmount() {
	d.poller.Stop()
}

// State returns a snapshot of the dashboard
func (d *Dashboard) State() domain.DashboardState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

func (d *Dashboard) snapshot() domain.DashboardState {
	s := d.state
	s.Documents = append([]domain.Document{}, d.state.Documents...)
	return s
}

// Subscribe streams dashboard snapshots
func (d *Dashboard) Subscribe() (<-chan domain.DashboardState, func()) {
	return d.notifier.Subscribe()
}

// update applies fn under the lock and publishes the result. Publishing
// happens before unlocking so subscribers see snapshots in mutation order;
// Publish never blocks.
func (d *Dashboard) update(fn func(s *domain.DashboardState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.state)
	d.notifier.Publish(d.snapshot())
}

func (d *Dashboard) setDocuments(docs []domain.Document) {
	if docs == nil {
		docs = []domain.Document{}
	}
	d.update(func(s *domain.DashboardState) {
		d.loaded = true
		s.Documents = docs
		s.Phase = domain.PhaseIdle
		s.LastError = ""
	})
}

// setError records a failed fetch. The previous list stays visible.
func (d *Dashboard) setError(err error) {
	d.update(func(s *domain.DashboardState) {
		if !d.loaded {
			s.Phase = domain.PhaseError
		}
		s.LastError = err.Error()
	})
}

// Refresh refetches the document list
func (d *Dashboard) Refresh(ctx context.Context) error {
	docs, err := d.documents.List(ctx)
	if err != nil {
		d.logger.Warn("document refresh failed", "error", err)
		d.setError(err)
		return err
	}
	d.setDocuments(docs)
	return nil
}

// Upload sends one file. The uploading indicator stays on for at least
// the minimum upload duration, and the list is refetched afterwards
// whether or not the upload succeeded.
func (d *Dashboard) Upload(ctx context.Context, file domain.UploadFile, content io.Reader) error {
	d.mu.Lock()
	if d.state.Uploading {
		d.mu.Unlock()
		return domain.ErrBusy
	}
	d.state.Uploading = true
	d.notifier.Publish(d.snapshot())
	d.mu.Unlock()

	defer d.update(func(s *domain.DashboardState) {
		s.Uploading = false
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := d.documents.Upload(gctx, file, content)
		return err
	})
	g.Go(func() error {
		return sleep(gctx, d.minUpload)
	})
	uploadErr := g.Wait()
	if uploadErr != nil {
		d.logger.Error("upload failed", "filename", file.Name, "error", uploadErr)
	} else {
		d.logger.Info("document uploaded", "filename", file.Name)
	}

	if err := d.Refresh(ctx); err != nil && uploadErr == nil {
		return err
	}
	return uploadErr
}

// Delete removes a document after the user confirms. Declining sends no
// request. The list is refetched afterwards whether or not the delete
// succeeded.
func (d *Dashboard) Delete(ctx context.Context, id int64, confirm driving.ConfirmFunc) error {
	if confirm == nil || !confirm() {
		return domain.ErrCancelled
	}

	deleteErr := d.documents.Delete(ctx, id)
	if deleteErr != nil {
		d.logger.Error("delete failed", "document_id", id, "error", deleteErr)
	} else {
		d.logger.Info("document deleted", "document_id", id)
	}

	if err := d.Refresh(ctx); err != nil && deleteErr == nil {
		return err
	}
	return deleteErr
}

// OpenImport shows the SEC import dialog
func (d *Dashboard) OpenImport() {
	d.update(func(s *domain.DashboardState) {
		s.Import.Open = true
		s.Import.Alert = ""
	})
}

// SetTicker updates the ticker field; input is upper-cased as typed
func (d *Dashboard) SetTicker(raw string) {
	d.update(func(s *domain.DashboardState) {
		if s.Import.Loading {
			return
		}
		s.Import.Ticker = strings.ToUpper(raw)
	})
}

// CloseImport hides the dialog. It cannot be closed while an import is
// in flight.
func (d *Dashboard) CloseImport() error {
	d.mu.Lock()
	if d.state.Import.Loading {
		d.mu.Unlock()
		return domain.ErrBusy
	}
	d.state.Import.Open = false
	d.state.Import.Alert = ""
	d.notifier.Publish(d.snapshot())
	d.mu.Unlock()
	return nil
}

// SubmitImport runs the SEC import for the ticker in the dialog and
// blocks until it completes or times out. On success the dialog closes
// and the ticker is cleared; on failure an alert is shown and the dialog
// stays open.
func (d *Dashboard) SubmitImport(ctx context.Context) (*domain.ImportResult, error) {
	return d.runImport(ctx, nil)
}

// ImportTicker fills the dialog with raw and submits it in one step, so
// concurrent callers cannot overwrite each other's ticker.
func (d *Dashboard) ImportTicker(ctx context.Context, raw string) (*domain.ImportResult, error) {
	return d.runImport(ctx, &raw)
}

func (d *Dashboard) runImport(ctx context.Context, raw *string) (*domain.ImportResult, error) {
	// The busy check, the ticker read and the loading flag share one
	// critical section: only one import runs at a time.
	d.mu.Lock()
	if d.state.Import.Loading {
		d.mu.Unlock()
		return nil, domain.ErrBusy
	}
	if raw != nil {
		d.state.Import.Open = true
		d.state.Import.Ticker = strings.ToUpper(*raw)
	}
	ticker := strings.TrimSpace(d.state.Import.Ticker)
	if ticker == "" {
		d.notifier.Publish(d.snapshot())
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: ticker is required", domain.ErrInvalidInput)
	}
	d.state.Import.Open = true
	d.state.Import.Loading = true
	d.state.Import.Alert = ""
	loaded := d.loaded
	d.notifier.Publish(d.snapshot())
	d.mu.Unlock()

	fail := func(err error) error {
		d.logger.Error("sec import failed", "ticker", ticker, "error", err)
		d.update(func(s *domain.DashboardState) {
			s.Import.Loading = false
			s.Import.Alert = domain.ImportFailedMessage
		})
		return err
	}

	if !loaded {
		if err := d.Refresh(ctx); err != nil {
			return nil, fail(fmt.Errorf("load baseline: %w", err))
		}
	}

	d.mu.Lock()
	baseline := len(d.state.Documents)
	d.mu.Unlock()

	result, err := d.importer.Import(ctx, ticker, baseline)
	if err != nil {
		return nil, fail(err)
	}

	d.update(func(s *domain.DashboardState) {
		d.loaded = true
		s.Documents = result.Documents
		s.Phase = domain.PhaseIdle
		s.Import = domain.ImportDialog{}
	})
	return result, nil
}

// Logout ends the session and stops the refresh loop
func (d *Dashboard) Logout(ctx context.Context) error {
	d.Unmount()

	if d.auth == nil {
		return errors.New("logout: no auth service configured")
	}
	if err := d.auth.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	d.update(func(s *domain.DashboardState) {
		d.loaded = false
		*s = domain.DashboardState{Documents: []domain.Document{}, Phase: domain.PhaseLoading}
	})
	return nil
}
