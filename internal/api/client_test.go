package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, 5*time.Second), srv
}

func TestFetchConfig(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/config" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"strategy":"pythagora_oauth","oauth":{"authorizeUrl":"https://idp.example/authorize","clientId":"haven","scope":"openid profile"}}`))
	})
	defer srv.Close()

	cfg, err := client.FetchConfig(context.Background())
	if err != nil {
		t.Fatalf("FetchConfig failed: %v", err)
	}
	if cfg.Strategy != WireStrategyOAuth {
		t.Errorf("strategy = %q, want %q", cfg.Strategy, WireStrategyOAuth)
	}
	if cfg.OAuth == nil || cfg.OAuth.ClientID != "haven" {
		t.Errorf("oauth params not decoded: %+v", cfg.OAuth)
	}
}

func TestFetchConfigUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // closed before use

	client := NewClient(srv.URL, time.Second)
	_, err := client.FetchConfig(context.Background())

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestLoginSuccess(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accessToken":"at","refreshToken":"rt","_id":"u1","email":"user@x.com","role":"guest"}`))
	})
	defer srv.Close()

	resp, err := client.Login(context.Background(), "user@x.com", "goodpass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.AccessToken != "at" || resp.RefreshToken != "rt" {
		t.Errorf("tokens not decoded: %+v", resp)
	}
	if resp.User.ID != "u1" || resp.User.Email != "user@x.com" || resp.User.Role != "guest" {
		t.Errorf("flattened user fields not decoded: %+v", resp.User)
	}
}

func TestLoginRejected(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid email or password"}`))
	})
	defer srv.Close()

	_, err := client.Login(context.Background(), "user@x.com", "badpass")

	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if ae.Reason != "invalid email or password" {
		t.Errorf("reason = %q, want service-reported message", ae.Reason)
	}
}

func TestLoginMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing tokens", body: `{"_id":"u1","email":"user@x.com"}`},
		{name: "missing refresh token", body: `{"accessToken":"at","_id":"u1"}`},
		{name: "not json", body: `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			defer srv.Close()

			_, err := client.Login(context.Background(), "user@x.com", "pass")

			var ae *AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("expected AuthError, got %T: %v", err, err)
			}
			if !strings.Contains(ae.Reason, "malformed") {
				t.Errorf("reason = %q, want malformed-response reason", ae.Reason)
			}
		})
	}
}

func TestLoginNonJSONError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("Bad Gateway"))
	})
	defer srv.Close()

	_, err := client.Login(context.Background(), "user@x.com", "pass")

	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if !strings.Contains(ae.Reason, "502") {
		t.Errorf("reason = %q, want status fallback", ae.Reason)
	}
}

func TestExchangeCodeBody(t *testing.T) {
	var gotBody string
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/oauth/exchange" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Write([]byte(`{"accessToken":"at","refreshToken":"rt","_id":"u1","email":"user@x.com"}`))
	})
	defer srv.Close()

	_, err := client.ExchangeCode(context.Background(), "abc123", "http://127.0.0.1:9999/login")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if !strings.Contains(gotBody, `"code":"abc123"`) {
		t.Errorf("body missing code: %s", gotBody)
	}
	if !strings.Contains(gotBody, `"redirectUri":"http://127.0.0.1:9999/login"`) {
		t.Errorf("body missing redirectUri: %s", gotBody)
	}
}

func TestRequestTimeout(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	client.http.Timeout = 20 * time.Millisecond

	_, err := client.Login(context.Background(), "user@x.com", "pass")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError on timeout, got %T: %v", err, err)
	}
}
