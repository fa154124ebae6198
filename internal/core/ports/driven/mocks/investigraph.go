package mocks

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

var _ driven.InvestiGraphAPI = (*MockInvestiGraphAPI)(nil)

// MockInvestiGraphAPI is an in-memory stand-in for the backend.
// Behaviour can be overridden per call with the *Fn fields; otherwise it
// keeps a document list and counts calls.
type MockInvestiGraphAPI struct {
	mu        sync.Mutex
	documents []domain.Document
	nextID    int64
	calls     map[string]int

	LoginFn          func(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error)
	RegisterFn       func(ctx context.Context, req domain.SignUpRequest) error
	ListDocumentsFn  func(ctx context.Context, call int) ([]domain.Document, error)
	UploadDocumentFn func(ctx context.Context, file domain.UploadFile) (*domain.Document, error)
	ImportFilingFn   func(ctx context.Context, ticker string) (*domain.ImportAck, error)
	DeleteDocumentFn func(ctx context.Context, id int64) error
	QueryFn          func(ctx context.Context, scope domain.Scope, question string) (*domain.QueryResponse, error)
	HealthFn         func(ctx context.Context) error

	// Questions records every question in the order received
	Questions []string
}

// NewMockInvestiGraphAPI creates a mock seeded with the given documents
func NewMockInvestiGraphAPI(docs ...domain.Document) *MockInvestiGraphAPI {
	m := &MockInvestiGraphAPI{
		calls:  make(map[string]int),
		nextID: 1,
	}
	for _, d := range docs {
		m.documents = append(m.documents, d)
		if d.ID >= m.nextID {
			m.nextID = d.ID + 1
		}
	}
	return m
}

func (m *MockInvestiGraphAPI) record(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	return m.calls[name]
}

// Calls returns how many times a method was invoked
func (m *MockInvestiGraphAPI) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// AddDocument appends a document as if the backend created it
func (m *MockInvestiGraphAPI) AddDocument(filename string) domain.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := domain.Document{ID: m.nextID, Filename: filename, CreatedAt: time.Now()}
	m.nextID++
	m.documents = append(m.documents, doc)
	return doc
}

// Documents returns a copy of the current document list
func (m *MockInvestiGraphAPI) Documents() []domain.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Document(nil), m.documents...)
}

func (m *MockInvestiGraphAPI) Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
	m.record("Login")
	if m.LoginFn != nil {
		return m.LoginFn(ctx, req)
	}
	return &domain.TokenResponse{AccessToken: "token-" + req.Username, TokenType: "bearer"}, nil
}

func (m *MockInvestiGraphAPI) Register(ctx context.Context, req domain.SignUpRequest) error {
	m.record("Register")
	if m.RegisterFn != nil {
		return m.RegisterFn(ctx, req)
	}
	return nil
}

func (m *MockInvestiGraphAPI) Me(ctx context.Context) (*domain.User, error) {
	m.record("Me")
	return &domain.User{ID: 1, Username: "analyst", Email: "analyst@example.com", IsActive: true}, nil
}

func (m *MockInvestiGraphAPI) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	call := m.record("ListDocuments")
	if m.ListDocumentsFn != nil {
		return m.ListDocumentsFn(ctx, call)
	}
	return m.Documents(), nil
}

func (m *MockInvestiGraphAPI) UploadDocument(ctx context.Context, file domain.UploadFile, content io.Reader) (*domain.Document, error) {
	m.record("UploadDocument")
	if m.UploadDocumentFn != nil {
		return m.UploadDocumentFn(ctx, file)
	}
	if _, err := io.Copy(io.Discard, content); err != nil {
		return nil, err
	}
	doc := m.AddDocument(file.Name)
	return &doc, nil
}

func (m *MockInvestiGraphAPI) ImportFiling(ctx context.Context, ticker string) (*domain.ImportAck, error) {
	m.record("ImportFiling")
	if m.ImportFilingFn != nil {
		return m.ImportFilingFn(ctx, ticker)
	}
	return &domain.ImportAck{Message: "Started fetching 10-K for " + ticker}, nil
}

func (m *MockInvestiGraphAPI) DeleteDocument(ctx context.Context, id int64) error {
	m.record("DeleteDocument")
	if m.DeleteDocumentFn != nil {
		return m.DeleteDocumentFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.documents {
		if d.ID == id {
			m.documents = append(m.documents[:i], m.documents[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockInvestiGraphAPI) DocumentChunks(ctx context.Context, id int64) ([]domain.Chunk, error) {
	m.record("DocumentChunks")
	return []domain.Chunk{{ID: 1, DocumentID: id, Text: "chunk"}}, nil
}

func (m *MockInvestiGraphAPI) DocumentGraph(ctx context.Context, id int64) (*domain.DocumentGraph, error) {
	m.record("DocumentGraph")
	return &domain.DocumentGraph{}, nil
}

func (m *MockInvestiGraphAPI) QueryDocument(ctx context.Context, id int64, question string) (*domain.QueryResponse, error) {
	m.record("QueryDocument")
	return m.query(ctx, domain.DocumentScope(id), question)
}

func (m *MockInvestiGraphAPI) QueryAll(ctx context.Context, question string) (*domain.QueryResponse, error) {
	m.record("QueryAll")
	return m.query(ctx, domain.GlobalScope, question)
}

func (m *MockInvestiGraphAPI) query(ctx context.Context, scope domain.Scope, question string) (*domain.QueryResponse, error) {
	m.mu.Lock()
	m.Questions = append(m.Questions, question)
	m.mu.Unlock()
	if m.QueryFn != nil {
		return m.QueryFn(ctx, scope, question)
	}
	return &domain.QueryResponse{
		Answer:  "answer to: " + question,
		Context: []domain.Citation{{PageNumber: 1, Text: "supporting text"}},
	}, nil
}

func (m *MockInvestiGraphAPI) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFn != nil {
		return m.HealthFn(ctx)
	}
	return nil
}
