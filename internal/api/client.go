// Package api is a typed HTTP client for the Haven auth service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Endpoint paths on the auth service.
const (
	pathConfig   = "/api/auth/config"
	pathLogin    = "/api/auth/login"
	pathRegister = "/api/auth/register"
	pathExchange = "/api/auth/oauth/exchange"
)

// Client talks to the auth service. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the auth service at baseURL.
// Every request runs under the given per-request timeout; there is no
// automatic retry.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchConfig retrieves the advertised authentication configuration.
func (c *Client) FetchConfig(ctx context.Context) (*AuthConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build config request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "config fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Op:  "config fetch",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var cfg AuthConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, &TransportError{Op: "config fetch", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &cfg, nil
}

// Login authenticates with an email/password pair.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.postAuth(ctx, "login", pathLogin, credentialRequest{Email: email, Password: password})
}

// Register creates an account with an email/password pair. Same response
// contract as Login.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.postAuth(ctx, "register", pathRegister, credentialRequest{Email: email, Password: password})
}

// ExchangeCode trades a one-time authorization code for a token pair.
// redirectURI must be the exact value used when constructing the
// authorization redirect.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*AuthResponse, error) {
	return c.postAuth(ctx, "code exchange", pathExchange, exchangeRequest{Code: code, RedirectURI: redirectURI})
}

// postAuth posts a JSON body to an auth endpoint and decodes the common
// token-pair response. Service rejections become AuthError with the
// service-reported message; network failures become TransportError.
func (c *Client) postAuth(ctx context.Context, op, path string, body any) (*AuthResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthError{Reason: readErrorMessage(resp, op)}
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &AuthError{Reason: fmt.Sprintf("malformed %s response", op)}
	}

	// A 2xx body without both tokens is a contract violation and must not
	// produce a half-authenticated session.
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, &AuthError{Reason: fmt.Sprintf("malformed %s response: missing tokens", op)}
	}

	return &out, nil
}

// readErrorMessage extracts the service-reported {message} from a non-2xx
// response, falling back to the HTTP status when the body is unusable.
func readErrorMessage(resp *http.Response, op string) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var eb errorBody
		if jsonErr := json.Unmarshal(data, &eb); jsonErr == nil && eb.Message != "" {
			return eb.Message
		}
	}
	return fmt.Sprintf("%s rejected with status %d", op, resp.StatusCode)
}
