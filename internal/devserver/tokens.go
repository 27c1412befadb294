package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenSigner mints HS256 access/refresh token pairs for the dev service.
type tokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// newTokenSigner builds a signer. An empty secret gets a random one,
// which means tokens do not survive a server restart; fine for dev.
func newTokenSigner(secret string, ttl time.Duration) (*tokenSigner, error) {
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		secret = hex.EncodeToString(b)
	}
	return &tokenSigner{secret: []byte(secret), ttl: ttl}, nil
}

// mint issues an access/refresh token pair for a user. The refresh token
// lives ten times as long as the access token.
func (s *tokenSigner) mint(userID, email, role string) (accessToken, refreshToken string, err error) {
	now := time.Now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  role,
		"typ":   "access",
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
		"jti":   uuid.NewString(),
	})
	accessToken, err = access.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"typ": "refresh",
		"iat": now.Unix(),
		"exp": now.Add(10 * s.ttl).Unix(),
		"jti": uuid.NewString(),
	})
	refreshToken, err = refresh.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}
