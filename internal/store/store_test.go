package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/havenstays/haven-auth/internal/api"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestLoadMissingFile(t *testing.T) {
	s := testStore(t)

	accessToken, refreshToken, user, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if accessToken != "" || refreshToken != "" || user != nil {
		t.Errorf("expected empty session, got %q %q %v", accessToken, refreshToken, user)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)

	want := &api.User{
		ID:    "u-1",
		Email: "user@x.com",
		Role:  "guest",
		Name:  "Test User",
	}

	if err := s.Save("at-123", "rt-456", want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	accessToken, refreshToken, got, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if accessToken != "at-123" {
		t.Errorf("accessToken = %q, want at-123", accessToken)
	}
	if refreshToken != "rt-456" {
		t.Errorf("refreshToken = %q, want rt-456", refreshToken)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := testStore(t)

	if err := s.Save("old", "old-r", &api.User{ID: "a", Email: "a@x.com"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save("new", "new-r", &api.User{ID: "b", Email: "b@x.com"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	accessToken, _, user, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if accessToken != "new" {
		t.Errorf("accessToken = %q, want new", accessToken)
	}
	if user.Email != "b@x.com" {
		t.Errorf("user email = %q, want b@x.com", user.Email)
	}
}

func TestFileMode(t *testing.T) {
	s := testStore(t)

	if err := s.Save("at", "rt", &api.User{ID: "u", Email: "u@x.com"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("file mode = %o, want 600", mode)
	}
}

func TestClearIdempotent(t *testing.T) {
	s := testStore(t)

	if err := s.Save("at", "rt", &api.User{ID: "u", Email: "u@x.com"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	// Clearing an already-empty store must not error.
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}

	accessToken, _, user, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if accessToken != "" || user != nil {
		t.Errorf("expected empty session after clear")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	s := testStore(t)

	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, _, _, err := s.Load(); err == nil {
		t.Error("expected error loading corrupt file")
	}
}
