package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

var _ driven.SessionStore = (*MockSessionStore)(nil)

// MockSessionStore is a mock implementation of SessionStore for testing
type MockSessionStore struct {
	mu      sync.RWMutex
	session *domain.Session

	SaveErr   error
	LoadErr   error
	DeleteErr error
}

// NewMockSessionStore creates a new MockSessionStore
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{}
}

func (m *MockSessionStore) Save(ctx context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	copied := *session
	m.session = &copied
	return nil
}

func (m *MockSessionStore) Load(ctx context.Context) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.session == nil {
		return nil, domain.ErrSessionNotFound
	}
	copied := *m.session
	return &copied, nil
}

func (m *MockSessionStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.session = nil
	return nil
}

// Helper methods for testing

// Stored returns the stored session without error handling
func (m *MockSessionStore) Stored() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}
