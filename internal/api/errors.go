package api

import (
	"errors"
	"fmt"
)

// AuthError is a rejection by the auth service (bad credentials, expired or
// already-used authorization code) or a malformed 2xx payload (missing
// tokens). The Reason is the normalized, user-presentable message. Every
// AuthError from the session manager is accompanied by a full local
// session-state clear.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// TransportError is a network-level failure reaching the auth service.
// Login, registration and exchange treat it like AuthError (clear and
// surface); the configuration fetch treats it as non-fatal and falls back
// to the credential strategy.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("auth service unreachable during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConfigurationError means the auth configuration could not be determined
// or is being used inconsistently, such as starting an OAuth redirect while
// the active strategy is credential. Recovered locally where possible;
// never surfaced to the end user as a hard failure by the config fetch.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("auth configuration error: %s", e.Reason)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
