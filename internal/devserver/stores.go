package devserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// devUser is an account in the dev service's in-memory user store.
type devUser struct {
	ID           string
	Email        string
	Role         string
	Name         string
	PasswordHash []byte
}

// userStore holds accounts in memory, keyed by email.
type userStore struct {
	mu    sync.RWMutex
	users map[string]*devUser
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]*devUser)}
}

// register creates an account with a bcrypt-hashed password.
func (s *userStore) register(email, password string) (*devUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[email]; exists {
		return nil, fmt.Errorf("account already exists")
	}

	u := &devUser{
		ID:           uuid.NewString(),
		Email:        email,
		Role:         "guest",
		PasswordHash: hash,
	}
	s.users[email] = u
	return u, nil
}

// authenticate verifies an email/password pair.
func (s *userStore) authenticate(email, password string) (*devUser, error) {
	s.mu.RLock()
	u, ok := s.users[email]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}
	return u, nil
}

// getOrCreate returns the account for email, creating a password-less one
// if needed. Used by the authorize endpoint, where identity comes from the
// (simulated) identity provider rather than a password.
func (s *userStore) getOrCreate(email string) *devUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[email]; ok {
		return u
	}
	u := &devUser{
		ID:    uuid.NewString(),
		Email: email,
		Role:  "guest",
	}
	s.users[email] = u
	return u
}

// authCode is a single-use authorization code bound to the redirect URI it
// was issued for.
type authCode struct {
	userID      string
	redirectURI string
	expiresAt   time.Time
	used        bool
}

// codeStore issues and redeems authorization codes.
type codeStore struct {
	mu    sync.Mutex
	codes map[string]*authCode
	ttl   time.Duration
}

func newCodeStore(ttl time.Duration) *codeStore {
	return &codeStore{
		codes: make(map[string]*authCode),
		ttl:   ttl,
	}
}

// issue creates a fresh code bound to redirectURI.
func (s *codeStore) issue(userID, redirectURI string) string {
	code := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[code] = &authCode{
		userID:      userID,
		redirectURI: redirectURI,
		expiresAt:   time.Now().Add(s.ttl),
	}

	// Opportunistic sweep of expired codes; the store is tiny.
	for c, ac := range s.codes {
		if time.Now().After(ac.expiresAt) {
			delete(s.codes, c)
		}
	}

	return code
}

// redeem consumes a code. Codes are strictly single-use: a second redeem
// of the same code fails even when the first one matched.
func (s *codeStore) redeem(code, redirectURI string) (userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.codes[code]
	if !ok {
		return "", fmt.Errorf("unknown authorization code")
	}
	if ac.used {
		return "", fmt.Errorf("authorization code already used")
	}
	if time.Now().After(ac.expiresAt) {
		return "", fmt.Errorf("authorization code expired")
	}
	if ac.redirectURI != redirectURI {
		return "", fmt.Errorf("redirect URI mismatch")
	}

	ac.used = true
	return ac.userID, nil
}
