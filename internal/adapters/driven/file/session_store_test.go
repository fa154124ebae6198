package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/secret"
	"github.com/custodia-labs/investigraph/internal/core/domain"
)

func testSession() *domain.Session {
	return &domain.Session{
		Token:     "eyJ.token.sig",
		Username:  "analyst",
		ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSessionStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewSessionStore(path, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "eyJ.token.sig", loaded.Token)
	assert.Equal(t, "analyst", loaded.Username)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestSessionStore_Sealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	sealer, err := secret.NewSealerFromPassphrase("passphrase")
	require.NoError(t, err)
	ctx := context.Background()

	store := NewSessionStore(path, sealer)
	require.NoError(t, store.Save(ctx, testSession()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("eyJ.token.sig")), "token must not be stored in clear")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "eyJ.token.sig", loaded.Token)

	_, err = NewSessionStore(path, nil).Load(ctx)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	other, _ := secret.NewSealerFromPassphrase("other")
	_, err = NewSessionStore(path, other).Load(ctx)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestSessionStore_Missing(t *testing.T) {
	store := NewSessionStore(filepath.Join(t.TempDir(), "absent.json"), nil)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.NoError(t, store.Delete(context.Background()))
}

func TestSessionStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := NewSessionStore(path, nil).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestSessionStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := NewSessionStore(path, nil).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewSessionStore(path, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))
	require.NoError(t, store.Delete(ctx))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_Replace(t *testing.T) {
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"), nil)
	ctx := context.Background()

	first := testSession()
	second := testSession()
	second.Token = "second"

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Token)

	entries, _ := os.ReadDir(filepath.Dir(store.Path()))
	assert.Len(t, entries, 1, "temp files should be cleaned up")
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "session.json", filepath.Base(DefaultPath()))
}
