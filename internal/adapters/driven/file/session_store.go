// Package file persists the session in a single file on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/secret"
	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore implements driven.SessionStore with a 0600 file. With a
// sealer the file holds an encrypted blob, otherwise plain JSON.
type SessionStore struct {
	path   string
	sealer *secret.Sealer

	mu sync.Mutex
}

// NewSessionStore creates a store writing to path. sealer may be nil.
func NewSessionStore(path string, sealer *secret.Sealer) *SessionStore {
	return &SessionStore{path: path, sealer: sealer}
}

// DefaultPath returns the per-user session file location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "investigraph", "session.json")
}

// Path returns the file the session is stored in
func (s *SessionStore) Path() string {
	return s.path
}

// Save writes the session atomically
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if s.sealer != nil {
		data, err = s.sealer.Seal(session)
	} else {
		data, err = json.MarshalIndent(session, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Load reads the session file
func (s *SessionStore) Load(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	var session domain.Session
	if data[0] == '{' {
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
		}
	} else {
		if s.sealer == nil {
			return nil, fmt.Errorf("%w: session file is encrypted and no key is configured", domain.ErrTokenInvalid)
		}
		if err := s.sealer.Open(data, &session); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
		}
	}

	if session.Token == "" {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

// Delete removes the session file
func (s *SessionStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
