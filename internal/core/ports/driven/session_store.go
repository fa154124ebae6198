package driven

import (
	"context"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

// SessionStore persists the single process-wide session under a fixed key
type SessionStore interface {
	// Save stores the session, replacing any previous one
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the stored session or domain.ErrSessionNotFound
	Load(ctx context.Context) (*domain.Session, error)

	// Delete removes the stored session. Deleting a missing session is not an error.
	Delete(ctx context.Context) error
}
