// Package store persists the session's credentials and user snapshot on disk.
//
// The layout is three logical entries (access token, refresh token,
// serialized user profile) that are always written and cleared together.
// Only the session manager writes here; everything else reads session state
// through the manager's published snapshots.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/havenstays/haven-auth/internal/api"
)

// Store is a file-backed credential store. Safe for concurrent use within
// a single process; the file is written atomically (temp file + rename)
// with 0600 permissions.
type Store struct {
	mu   sync.Mutex
	path string
}

// persisted is the on-disk layout. The user snapshot is kept as raw JSON
// so round-tripping never drops fields this build does not know about.
type persisted struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	User         json.RawMessage `json:"user,omitempty"`
}

// New creates a store at path. An empty path resolves to the default
// location under the user config dir.
func New(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return &Store{path: path}, nil
}

// DefaultPath returns the default session file location,
// <user-config-dir>/haven-auth/session.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "haven-auth", "session.json"), nil
}

// Save persists the token pair and user snapshot as a single write.
func (s *Store) Save(accessToken, refreshToken string, user *api.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rawUser json.RawMessage
	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to serialize user snapshot: %w", err)
		}
		rawUser = data
	}

	data, err := json.MarshalIndent(persisted{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         rawUser,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	// Write to a temp file in the same dir, then rename over the target so
	// a crash mid-write never leaves a truncated session file.
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Load reads the persisted session. A missing file yields zero values and
// no error, so a fresh install bootstraps as unauthenticated.
func (s *Store) Load() (accessToken, refreshToken string, user *api.User, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", "", nil, nil
	}
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return "", "", nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	if len(p.User) > 0 {
		var u api.User
		if err := json.Unmarshal(p.User, &u); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse user snapshot: %w", err)
		}
		user = &u
	}

	return p.AccessToken, p.RefreshToken, user, nil
}

// Clear removes the persisted session. Clearing an absent session is a
// no-op, so logout is idempotent and always locally effective.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Path returns the session file location, mainly for status output.
func (s *Store) Path() string {
	return s.path
}
