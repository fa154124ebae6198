package mocks

import (
	"time"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

var _ driven.TokenInspector = (*MockTokenInspector)(nil)

// MockTokenInspector returns fixed claims for any token.
// Tokens listed in Invalid are rejected with domain.ErrTokenInvalid.
type MockTokenInspector struct {
	Subject   string
	ExpiresAt time.Time
	Invalid   map[string]bool
}

// NewMockTokenInspector creates a MockTokenInspector for the given subject
func NewMockTokenInspector(subject string) *MockTokenInspector {
	return &MockTokenInspector{
		Subject:   subject,
		ExpiresAt: time.Now().Add(30 * time.Minute),
		Invalid:   make(map[string]bool),
	}
}

func (m *MockTokenInspector) Inspect(token string) (*domain.TokenClaims, error) {
	if token == "" || m.Invalid[token] {
		return nil, domain.ErrTokenInvalid
	}
	return &domain.TokenClaims{
		Subject:   m.Subject,
		ExpiresAt: m.ExpiresAt,
		IssuedAt:  time.Now(),
	}, nil
}
