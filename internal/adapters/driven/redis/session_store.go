package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.SessionStore = (*SessionStore)(nil)

// DefaultSessionKey is the fixed key the session lives under
const DefaultSessionKey = "investigraph:session"

// SessionStore implements driven.SessionStore using Redis.
// The session uses Redis TTL for automatic expiration when the token
// carries an expiry.
type SessionStore struct {
	client *redis.Client
	key    string
}

// NewSessionStore creates a new Redis-backed SessionStore. An empty key
// selects DefaultSessionKey.
func NewSessionStore(client *redis.Client, key string) *SessionStore {
	if key == "" {
		key = DefaultSessionKey
	}
	return &SessionStore{client: client, key: key}
}

// Save stores the session with a TTL based on ExpiresAt
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	if session.IsExpired() {
		// Session already expired, don't save
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// A zero TTL keeps the key until it is deleted
	if err := s.client.Set(ctx, s.key, data, session.TTL()).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load retrieves the stored session
func (s *SessionStore) Load(ctx context.Context) (*domain.Session, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes the stored session
func (s *SessionStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
