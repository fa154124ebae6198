package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/secret"
	"github.com/custodia-labs/investigraph/internal/core/domain"
)

// setupTestDB connects to INVESTIGRAPH_TEST_DATABASE_URL or skips
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("INVESTIGRAPH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("INVESTIGRAPH_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(ctx))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("postgres://localhost/test")
	assert.Equal(t, "postgres://localhost/test", cfg.URL)
	assert.Equal(t, 4, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
}

func TestNullTime(t *testing.T) {
	assert.False(t, NullTime(time.Time{}).Valid)

	now := time.Now()
	nt := NullTime(now)
	assert.True(t, nt.Valid)
	assert.True(t, nt.Time.Equal(now))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "client_sessions")
	assert.Contains(t, schema, "client_locks")
}

func TestSessionStore_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		sealer func() *secret.Sealer
	}{
		{"plaintext", func() *secret.Sealer { return nil }},
		{"sealed", func() *secret.Sealer {
			s, err := secret.NewSealerFromPassphrase("test-passphrase")
			require.NoError(t, err)
			return s
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := NewSessionStore(db, "test-"+tc.name, tc.sealer())
			t.Cleanup(func() { _ = store.Delete(ctx) })

			session := &domain.Session{
				Token:     "token-" + tc.name,
				Username:  "analyst",
				ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
				CreatedAt: time.Now().UTC().Truncate(time.Second),
			}
			require.NoError(t, store.Save(ctx, session))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, session.Token, loaded.Token)
			assert.Equal(t, "analyst", loaded.Username)
			assert.True(t, loaded.ExpiresAt.Equal(session.ExpiresAt))

			require.NoError(t, store.Delete(ctx))
			_, err = store.Load(ctx)
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		})
	}
}

func TestSessionStore_SealedNeedsKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	sealer, _ := secret.NewSealerFromPassphrase("k")
	sealed := NewSessionStore(db, "test-needs-key", sealer)
	t.Cleanup(func() { _ = sealed.Delete(ctx) })
	require.NoError(t, sealed.Save(ctx, &domain.Session{Token: "t", CreatedAt: time.Now()}))

	_, err := NewSessionStore(db, "test-needs-key", nil).Load(ctx)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestSessionStore_ExpiredIsMissing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	store := NewSessionStore(db, "test-expired", nil)
	require.NoError(t, store.Save(ctx, &domain.Session{
		Token:     "old",
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLeaseLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := NewLeaseLock(db)
	b := NewLeaseLock(db)
	name := "test-lock-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = a.Release(ctx, name) })

	ok, err := a.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A foreign release leaves the lease in place
	require.NoError(t, b.Release(ctx, name))
	ok, _ = b.Acquire(ctx, name, time.Minute)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, name))
	ok, _ = b.Acquire(ctx, name, time.Minute)
	assert.True(t, ok)
	_ = b.Release(ctx, name)
}

func TestLeaseLock_Expired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	name := "test-expiring-" + time.Now().Format("150405.000000")
	a := NewLeaseLock(db)
	b := NewLeaseLock(db)
	t.Cleanup(func() { _ = b.Release(ctx, name) })

	ok, _ := a.Acquire(ctx, name, 10*time.Millisecond)
	require.True(t, ok)
	time.Sleep(50 * time.Millisecond)

	ok, err := b.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
