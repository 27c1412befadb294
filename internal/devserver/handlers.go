package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/havenstays/haven-auth/internal/api"
	"github.com/havenstays/haven-auth/internal/logsanitize"
)

// oauthUserEmail is the synthetic identity the authorize endpoint signs in
// as. The dev server simulates an identity provider that always approves.
const oauthUserEmail = "demo@havenstays.dev"

// handleConfig serves GET /api/auth/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := api.AuthConfig{Strategy: s.cfg.Strategy}
	if s.cfg.Strategy == api.WireStrategyOAuth {
		cfg.OAuth = &api.OAuthParams{
			AuthorizeURL: "http://" + r.Host + "/oauth/authorize",
			ClientID:     "haven-dev",
			Scope:        "openid profile email",
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleLogin serves POST /api/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := s.users.authenticate(req.Email, req.Password)
	if err != nil {
		slog.Info("login rejected", "email", logsanitize.RedactEmail(req.Email))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	s.writeTokenResponse(w, u)
}

// handleRegister serves POST /api/auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := s.users.register(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	slog.Info("account registered", "email", logsanitize.RedactEmail(req.Email))
	s.writeTokenResponse(w, u)
}

// handleAuthorize serves GET /oauth/authorize. It stands in for the
// upstream identity provider: it approves unconditionally, issues a
// single-use code bound to the redirect URI, and sends the browser back
// with the caller's state echoed unchanged.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")

	if q.Get("response_type") != "code" {
		writeError(w, http.StatusBadRequest, "response_type must be code")
		return
	}
	target, err := url.Parse(redirectURI)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "invalid redirect_uri")
		return
	}

	u := s.users.getOrCreate(oauthUserEmail)
	code := s.codes.issue(u.ID, redirectURI)

	params := target.Query()
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()

	slog.Info("authorization code issued", "user", u.ID)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// handleExchange serves POST /api/auth/oauth/exchange. Codes are single
// use; a duplicate submission is rejected, matching how a real
// authorization server treats replayed codes.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirectUri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	userID, err := s.codes.redeem(req.Code, req.RedirectURI)
	if err != nil {
		slog.Info("code exchange rejected", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The exchange user is always the synthetic OAuth identity.
	u := s.users.getOrCreate(oauthUserEmail)
	if u.ID != userID {
		writeError(w, http.StatusBadRequest, "authorization code does not match user")
		return
	}

	s.writeTokenResponse(w, u)
}

// writeTokenResponse mints a token pair and writes the common auth
// response shape: tokens plus flattened user fields.
func (s *Server) writeTokenResponse(w http.ResponseWriter, u *devUser) {
	accessToken, refreshToken, err := s.signer.mint(u.ID, u.Email, u.Role)
	if err != nil {
		slog.Error("failed to mint tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	writeJSON(w, http.StatusOK, api.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: api.User{
			ID:    u.ID,
			Email: u.Email,
			Role:  u.Role,
			Name:  u.Name,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
