package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/secret"
	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SessionStore = (*SessionStore)(nil)

// DefaultSessionKey is the row key the session is stored under
const DefaultSessionKey = "default"

// SessionStore implements driven.SessionStore using PostgreSQL.
// When a sealer is configured the token is stored encrypted and the
// plaintext column stays NULL.
type SessionStore struct {
	db     *DB
	key    string
	sealer *secret.Sealer
}

// NewSessionStore creates a new SessionStore. sealer may be nil.
func NewSessionStore(db *DB, key string, sealer *secret.Sealer) *SessionStore {
	if key == "" {
		key = DefaultSessionKey
	}
	return &SessionStore{db: db, key: key, sealer: sealer}
}

// Save stores the session, replacing any previous one
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	var (
		token  sql.NullString
		sealed []byte
	)
	if s.sealer != nil {
		blob, err := s.sealer.Seal(session.Token)
		if err != nil {
			return fmt.Errorf("seal session token: %w", err)
		}
		sealed = blob
	} else {
		token = sql.NullString{String: session.Token, Valid: true}
	}

	query := `
		INSERT INTO client_sessions (session_key, token, sealed, username, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_key) DO UPDATE SET
			token = EXCLUDED.token,
			sealed = EXCLUDED.sealed,
			username = EXCLUDED.username,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		s.key,
		token,
		sealed,
		session.Username,
		NullTime(session.ExpiresAt),
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load retrieves the stored session. An expired session is deleted and
// reported as missing.
func (s *SessionStore) Load(ctx context.Context) (*domain.Session, error) {
	query := `
		SELECT token, sealed, username, expires_at, created_at
		FROM client_sessions
		WHERE session_key = $1
	`

	var (
		session   domain.Session
		token     sql.NullString
		sealed    []byte
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, s.key).Scan(
		&token,
		&sealed,
		&session.Username,
		&expiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	switch {
	case len(sealed) > 0:
		if s.sealer == nil {
			return nil, fmt.Errorf("%w: stored session is encrypted and no key is configured", domain.ErrTokenInvalid)
		}
		if err := s.sealer.Open(sealed, &session.Token); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
		}
	case token.Valid:
		session.Token = token.String
	}
	if expiresAt.Valid {
		session.ExpiresAt = expiresAt.Time
	}

	if session.IsExpired() {
		_ = s.Delete(ctx)
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

// Delete removes the stored session
func (s *SessionStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_sessions WHERE session_key = $1`, s.key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
