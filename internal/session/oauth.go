package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/havenstays/haven-auth/internal/api"
)

// idTokenVerifier checks an ID token's signature, issuer, audience and
// expiry. Satisfied by *oidc.IDTokenVerifier; an interface so tests can
// stub verification.
type idTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// BeginOAuthRedirect builds the authorization URL for the delegated flow:
// response_type=code, client_id, redirect_uri, scope and a freshly
// generated anti-replay state. redirectURI must be the login surface's own
// absolute URL; the same value must later be passed to
// CompleteOAuthExchange.
//
// It fails with ConfigurationError when called before the configuration is
// fetched or while the active strategy is credential. On success the
// session moves to awaiting-redirect and the caller navigates the browser
// to the returned URL.
func (m *Manager) BeginOAuthRedirect(redirectURI string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.authConfig == nil {
		return "", &api.ConfigurationError{Reason: "auth configuration not fetched"}
	}
	if m.strategy != StrategyDelegatedOAuth || m.authConfig.OAuth == nil {
		return "", &api.ConfigurationError{Reason: "active strategy does not support OAuth redirect"}
	}

	authorizeURL := m.authConfig.OAuth.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = m.discoveredAuthURL
	}
	if authorizeURL == "" {
		return "", &api.ConfigurationError{Reason: "no authorization endpoint available"}
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:    m.authConfig.OAuth.ClientID,
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(m.authConfig.OAuth.Scope),
		Endpoint:    oauth2.Endpoint{AuthURL: authorizeURL},
	}

	m.oauthState = state
	m.state = StateAwaitingOAuthRedirect

	return conf.AuthCodeURL(state), nil
}

// VerifyOAuthState checks the state echoed back by the authorization
// server against the one generated for the redirect. A mismatch (or a
// return with no redirect pending) aborts the flow before any exchange is
// attempted and clears the pending redirect.
func (m *Manager) VerifyOAuthState(returned string) error {
	m.mu.Lock()
	expected := m.oauthState
	m.mu.Unlock()

	if expected == "" {
		m.clearSession()
		return &api.AuthError{Reason: "no authorization redirect pending"}
	}
	if returned != expected {
		m.clearSession()
		return &api.AuthError{Reason: "state mismatch on authorization return"}
	}
	return nil
}

// discoverIssuer resolves an issuer's authorize endpoint and builds an ID
// token verifier via OIDC discovery.
func discoverIssuer(ctx context.Context, issuer, clientID string) (string, idTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", nil, fmt.Errorf("failed to discover issuer: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return provider.Endpoint().AuthURL, verifier, nil
}

// verifyIDToken verifies signature, issuer, audience and expiry.
func verifyIDToken(ctx context.Context, v idTokenVerifier, rawIDToken string) error {
	if _, err := v.Verify(ctx, rawIDToken); err != nil {
		return fmt.Errorf("failed to verify ID token: %w", err)
	}
	return nil
}

// generateState creates a random state parameter for CSRF protection.
// 16 random bytes encoded as hex (32 characters).
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
