// Package session owns the authentication session lifecycle: credential
// login and registration, the delegated OAuth redirect/exchange flow,
// persisted session state, and logout.
//
// The Manager is the single source of truth for "is the current user signed
// in, and as whom", and the only code path allowed to mutate persisted
// credentials. Consumers read published snapshots and subscribe to
// lifecycle events; they never touch the store directly.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/havenstays/haven-auth/internal/api"
	"github.com/havenstays/haven-auth/internal/store"
)

// ErrExchangeInFlight is returned when a code exchange is already running.
// Authorization codes are single-use; a duplicate invocation must be a
// local no-op, never a second submission or a queued retry.
var ErrExchangeInFlight = errors.New("authorization code exchange already in flight")

// Manager coordinates the session lifecycle. Safe for concurrent use; all
// state transitions happen under one mutex so the token pair, user snapshot
// and authenticated flag are always observed together.
type Manager struct {
	client *api.Client
	store  *store.Store

	mu           sync.Mutex
	state        State
	accessToken  string
	refreshToken string
	user         *api.User
	strategy     Strategy
	authConfig   *api.AuthConfig

	// oauthState is the anti-replay token for the in-flight redirect;
	// pendingCode is the code currently being exchanged. Both are cleared
	// when their flow completes, successfully or not.
	oauthState  string
	pendingCode string

	// Populated by OIDC discovery when the oauth config names an issuer.
	discoveredAuthURL string
	idVerifier        idTokenVerifier

	subs    map[int]chan Event
	nextSub int
}

// NewManager creates a session manager backed by the given auth service
// client and credential store.
func NewManager(client *api.Client, st *store.Store) *Manager {
	return &Manager{
		client: client,
		store:  st,
		state:  StateUninitialized,
		subs:   make(map[int]chan Event),
	}
}

// Bootstrap reads the persisted store and publishes the provisional auth
// state. It performs no network call, so consumers can make route-guard
// decisions immediately; they never observe an undefined state. A corrupt
// or unreadable store logs a warning and bootstraps as unauthenticated.
func (m *Manager) Bootstrap() {
	accessToken, refreshToken, user, err := m.store.Load()
	if err != nil {
		slog.Warn("failed to load persisted session, starting unauthenticated", "error", err)
		accessToken, refreshToken, user = "", "", nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateConfiguringAuth
	if accessToken != "" && user != nil {
		m.accessToken = accessToken
		m.refreshToken = refreshToken
		m.user = user
	}
}

// FetchAuthConfiguration asks the auth service which strategy is active.
// Failures are non-fatal: the strategy defaults to credential so the login
// surface stays usable, and no error reaches the caller. Called once per
// run; the resolved configuration is immutable afterwards.
func (m *Manager) FetchAuthConfiguration(ctx context.Context) Strategy {
	cfg, err := m.client.FetchConfig(ctx)
	if err != nil {
		slog.Warn("auth configuration fetch failed, defaulting to credential strategy", "error", err)
		cfg = &api.AuthConfig{Strategy: api.WireStrategyEmail}
	}

	strategy := strategyFromWire(cfg.Strategy)

	// Optional enrichment: an oauth config naming an issuer gets OIDC
	// discovery (authorize endpoint fallback) and ID token verification.
	var authURL string
	var verifier idTokenVerifier
	if strategy == StrategyDelegatedOAuth && cfg.OAuth != nil && cfg.OAuth.Issuer != "" {
		authURL, verifier, err = discoverIssuer(ctx, cfg.OAuth.Issuer, cfg.OAuth.ClientID)
		if err != nil {
			slog.Warn("OIDC discovery failed, continuing without ID token verification",
				"issuer", cfg.OAuth.Issuer,
				"error", err,
			)
		}
	}

	m.mu.Lock()
	m.authConfig = cfg
	m.strategy = strategy
	m.discoveredAuthURL = authURL
	m.idVerifier = verifier

	// Resolve the configuring state: a session restored at bootstrap goes
	// straight to authenticated, everything else lands on the login
	// surface.
	if m.state == StateConfiguringAuth {
		if m.accessToken != "" && m.user != nil {
			m.state = StateAuthenticated
		} else {
			m.state = StateUnauthenticated
		}
	}
	m.mu.Unlock()

	m.publish(Event{Type: EventConfigured})
	return strategy
}

// LoginWithCredentials authenticates with an email/password pair. On
// success the token pair and user snapshot are persisted and published as
// one atomic transition. On any failure the session is fully cleared before
// the error is returned, so no half-authenticated state ever persists.
// Input format validation is the caller's responsibility.
func (m *Manager) LoginWithCredentials(ctx context.Context, email, password string) error {
	resp, err := m.client.Login(ctx, email, password)
	if err != nil {
		m.clearSession()
		return err
	}
	return m.SetAuthData(resp.AccessToken, resp.RefreshToken, &resp.User)
}

// RegisterWithCredentials creates an account and signs in. Same atomicity
// and failure-clearing contract as LoginWithCredentials.
func (m *Manager) RegisterWithCredentials(ctx context.Context, email, password string) error {
	resp, err := m.client.Register(ctx, email, password)
	if err != nil {
		m.clearSession()
		return err
	}
	return m.SetAuthData(resp.AccessToken, resp.RefreshToken, &resp.User)
}

// CompleteOAuthExchange trades a one-time authorization code for a session.
// redirectURI must be the exact value used in the original redirect.
//
// At most one exchange may be in flight: a concurrent duplicate returns
// ErrExchangeInFlight without issuing a second request. The pending
// exchange is destroyed after a single attempt, success or failure, so a
// repeat of the same code is never submitted automatically. The caller is
// responsible for returning to a clean login surface afterwards.
func (m *Manager) CompleteOAuthExchange(ctx context.Context, code, redirectURI string) error {
	m.mu.Lock()
	if m.state == StateExchangingCode {
		m.mu.Unlock()
		return ErrExchangeInFlight
	}
	m.state = StateExchangingCode
	m.pendingCode = code
	verifier := m.idVerifier
	m.mu.Unlock()

	resp, err := m.client.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		m.clearSession()
		return err
	}

	if resp.IDToken != "" && verifier != nil {
		if err := verifyIDToken(ctx, verifier, resp.IDToken); err != nil {
			m.clearSession()
			return &api.AuthError{Reason: "identity token verification failed"}
		}
	}

	return m.SetAuthData(resp.AccessToken, resp.RefreshToken, &resp.User)
}

// SetAuthData is the low-level setter shared by the credential and OAuth
// paths: it persists the token pair and user snapshot and flips the
// session to authenticated as one transition. A persistence failure clears
// everything instead of leaving memory and disk divergent.
func (m *Manager) SetAuthData(accessToken, refreshToken string, user *api.User) error {
	if accessToken == "" || user == nil {
		m.clearSession()
		return &api.AuthError{Reason: "incomplete auth data"}
	}

	m.mu.Lock()
	if err := m.store.Save(accessToken, refreshToken, user); err != nil {
		m.resetLocked()
		m.mu.Unlock()
		m.publish(Event{Type: EventInvalidated})
		return &api.AuthError{Reason: "failed to persist session"}
	}

	u := *user
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.user = &u
	m.state = StateAuthenticated
	m.oauthState = ""
	m.pendingCode = ""
	m.mu.Unlock()

	m.publish(Event{Type: EventAuthenticated})
	return nil
}

// Logout clears the persisted and in-memory session and notifies
// subscribers so they drop state derived from the old session. It is
// always locally effective, even with the auth service unreachable, and
// is a no-op when already unauthenticated.
func (m *Manager) Logout() {
	m.mu.Lock()
	wasAuthenticated := m.accessToken != "" || m.user != nil
	m.mu.Unlock()

	if !wasAuthenticated {
		// Still clear storage in case a previous run left a file behind.
		if err := m.store.Clear(); err != nil {
			slog.Warn("failed to clear persisted session", "error", err)
		}
		return
	}

	m.clearSession()
}

// Snapshot returns a point-in-time copy of the published session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:         m.state,
		Authenticated: m.accessToken != "" && m.user != nil,
		Strategy:      m.strategy,
		AuthConfig:    m.authConfig,
	}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// AccessToken exposes the bearer credential to outbound request builders.
// No other consumer should need the raw token.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// Subscribe registers for lifecycle events. The returned cancel func must
// be called when the subscriber goes away. Delivery is best-effort: a
// subscriber that stops draining its channel misses events rather than
// blocking the manager.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
	return ch, cancel
}

// clearSession wipes persisted and in-memory state and notifies
// subscribers. Every failure path funnels through here, which is what
// guarantees no partially-authenticated state survives an error.
func (m *Manager) clearSession() {
	if err := m.store.Clear(); err != nil {
		slog.Warn("failed to clear persisted session", "error", err)
	}

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()

	m.publish(Event{Type: EventInvalidated})
}

// resetLocked zeroes the in-memory session. Caller holds mu.
func (m *Manager) resetLocked() {
	m.accessToken = ""
	m.refreshToken = ""
	m.user = nil
	m.oauthState = ""
	m.pendingCode = ""
	if m.state != StateUninitialized && m.state != StateConfiguringAuth {
		m.state = StateUnauthenticated
	}
}

// publish delivers an event to all subscribers without blocking.
func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
