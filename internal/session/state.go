package session

import "github.com/havenstays/haven-auth/internal/api"

// State is the session lifecycle state for one process run. The machine
// never re-enters StateConfiguringAuth without a fresh run; the terminal
// state is whichever of StateAuthenticated/StateUnauthenticated is reached.
type State int

const (
	// StateUninitialized is the zero state before Bootstrap.
	StateUninitialized State = iota

	// StateConfiguringAuth covers the window between Bootstrap and the
	// resolution (or defaulting) of the auth configuration.
	StateConfiguringAuth

	// StateUnauthenticated means no session; the login surface is active.
	StateUnauthenticated

	// StateAwaitingOAuthRedirect means an authorization redirect has been
	// issued and the browser has not returned yet.
	StateAwaitingOAuthRedirect

	// StateExchangingCode means a code exchange is in flight. At most one
	// exchange per code may be in this state; a concurrent duplicate is a
	// local no-op, never a queued retry.
	StateExchangingCode

	// StateAuthenticated means tokens and a user snapshot are held, both
	// in memory and in the persisted store.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfiguringAuth:
		return "configuring-auth"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingOAuthRedirect:
		return "awaiting-oauth-redirect"
	case StateExchangingCode:
		return "exchanging-code"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Strategy is the client-side authentication strategy, mapped from the wire
// names the configuration endpoint uses.
type Strategy string

const (
	// StrategyCredential is email+password login ("email" on the wire).
	StrategyCredential Strategy = "credential"

	// StrategyDelegatedOAuth is the authorization-code redirect flow
	// ("pythagora_oauth" on the wire).
	StrategyDelegatedOAuth Strategy = "delegated-oauth"
)

// strategyFromWire maps a wire strategy name to the client enum. Unknown
// values map to credential so the login surface stays usable.
func strategyFromWire(s string) Strategy {
	if s == api.WireStrategyOAuth {
		return StrategyDelegatedOAuth
	}
	return StrategyCredential
}

// EventType identifies a session lifecycle notification.
type EventType int

const (
	// EventAuthenticated fires after a successful login, registration or
	// code exchange has been persisted.
	EventAuthenticated EventType = iota

	// EventInvalidated fires on logout and on any failure path that
	// cleared the session. Subscribers must drop any state derived from
	// the previous session.
	EventInvalidated

	// EventConfigured fires once the auth configuration is resolved or
	// defaulted.
	EventConfigured
)

// Event is delivered to subscribers on lifecycle transitions.
type Event struct {
	Type EventType
}

// Snapshot is a point-in-time read of manager-published state. Consumers
// hold snapshots, never references into the manager, so in-memory and
// persisted truth cannot diverge through external mutation.
type Snapshot struct {
	State         State
	Authenticated bool
	User          *api.User
	Strategy      Strategy // empty until configuration resolves
	AuthConfig    *api.AuthConfig
}
