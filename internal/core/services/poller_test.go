package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven/mocks"
)

type updateRecorder struct {
	mu      sync.Mutex
	updates [][]domain.Document
}

func (r *updateRecorder) record(docs []domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, docs)
}

func (r *updateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func TestNewDocumentPoller_Defaults(t *testing.T) {
	p := NewDocumentPoller(DocumentPollerConfig{})
	if p.interval != 5*time.Second {
		t.Errorf("expected default interval 5s, got %v", p.interval)
	}
	if p.logger == nil {
		t.Error("expected default logger")
	}
}

func TestDocumentPoller_FetchesImmediately(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI(domain.Document{ID: 1, Filename: "a.pdf"})
	rec := &updateRecorder{}
	p := NewDocumentPoller(DocumentPollerConfig{
		API:      api,
		Interval: time.Hour,
		OnUpdate: rec.record,
	})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 immediate update, got %d", rec.count())
	}
	if api.Calls("ListDocuments") != 1 {
		t.Errorf("expected 1 fetch, got %d", api.Calls("ListDocuments"))
	}
}

func TestDocumentPoller_FetchesOnEveryTick(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI()
	rec := &updateRecorder{}
	p := NewDocumentPoller(DocumentPollerConfig{
		API:      api,
		Interval: 10 * time.Millisecond,
		OnUpdate: rec.record,
	})

	_ = p.Start(context.Background())
	time.Sleep(75 * time.Millisecond)
	p.Stop()

	if got := api.Calls("ListDocuments"); got < 3 {
		t.Errorf("expected at least 3 fetches, got %d", got)
	}
}

func TestDocumentPoller_NoFetchAfterStop(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI()
	rec := &updateRecorder{}
	p := NewDocumentPoller(DocumentPollerConfig{
		API:      api,
		Interval: 5 * time.Millisecond,
		OnUpdate: rec.record,
	})

	_ = p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	calls := api.Calls("ListDocuments")
	updates := rec.count()
	time.Sleep(30 * time.Millisecond)

	if api.Calls("ListDocuments") != calls {
		t.Errorf("fetched after Stop: %d -> %d", calls, api.Calls("ListDocuments"))
	}
	if rec.count() != updates {
		t.Errorf("update delivered after Stop: %d -> %d", updates, rec.count())
	}
	if p.Running() {
		t.Error("expected poller to be stopped")
	}
}

func TestDocumentPoller_StopDiscardsInFlightFetch(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI()
	started := make(chan struct{})
	api.ListDocumentsFn = func(ctx context.Context, call int) ([]domain.Document, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var errs int
	rec := &updateRecorder{}
	p := NewDocumentPoller(DocumentPollerConfig{
		API:      api,
		Interval: time.Hour,
		OnUpdate: rec.record,
		OnError:  func(error) { errs++ },
	})

	_ = p.Start(context.Background())
	<-started
	p.Stop()

	if rec.count() != 0 || errs != 0 {
		t.Errorf("expected in-flight result to be discarded, got %d updates %d errors", rec.count(), errs)
	}
}

func TestDocumentPoller_ErrorsAreSkipped(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI()
	api.ListDocumentsFn = func(ctx context.Context, call int) ([]domain.Document, error) {
		if call == 1 {
			return nil, errors.New("backend down")
		}
		return []domain.Document{{ID: 1}}, nil
	}

	var mu sync.Mutex
	var errs int
	rec := &updateRecorder{}
	p := NewDocumentPoller(DocumentPollerConfig{
		API:      api,
		Interval: 5 * time.Millisecond,
		OnUpdate: rec.record,
		OnError: func(error) {
			mu.Lock()
			errs++
			mu.Unlock()
		},
	})

	_ = p.Start(context.Background())
	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if errs != 1 {
		t.Errorf("expected 1 error, got %d", errs)
	}
	if rec.count() == 0 {
		t.Error("expected polling to continue after an error")
	}
}

func TestDocumentPoller_StartTwice(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI()
	p := NewDocumentPoller(DocumentPollerConfig{API: api, Interval: time.Hour})

	_ = p.Start(context.Background())
	_ = p.Start(context.Background())
	p.Stop()
	p.Stop()

	if p.Running() {
		t.Error("expected poller to be stopped")
	}
}

func TestDocumentPoller_Restart(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI()
	rec := &updateRecorder{}
	p := NewDocumentPoller(DocumentPollerConfig{API: api, Interval: time.Hour, OnUpdate: rec.record})

	for i := 0; i < 2; i++ {
		_ = p.Start(context.Background())
		deadline := time.Now().Add(time.Second)
		for rec.count() <= i && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		p.Stop()
	}

	if rec.count() != 2 {
		t.Errorf("expected one immediate fetch per start, got %d", rec.count())
	}
}

func TestDocumentPoller_RestartAfterContextCancel(t *testing.T) {
	api := mocks.NewMockInvestiGraphAPI()
	rec := &updateRecorder{}
	p := NewDocumentPoller(DocumentPollerConfig{API: api, Interval: time.Hour, OnUpdate: rec.record})

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	deadline = time.Now().Add(time.Second)
	for p.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Running() {
		t.Fatal("expected poller to stop when its context is cancelled")
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	deadline = time.Now().Add(time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.count() != 2 {
		t.Errorf("expected a fresh fetch after restart, got %d updates", rec.count())
	}
	if !p.Running() {
		t.Error("expected poller to be running after restart")
	}
}
