// Package devserver implements a local development auth service exposing
// the same HTTP surface the hosted Haven auth service does: configuration
// discovery, credential login/registration, and the delegated OAuth
// authorize/exchange pair. It exists so the session client and its tests
// can run end to end with no external dependencies.
package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/havenstays/haven-auth/internal/config"
)

// Server is the dev auth service.
type Server struct {
	cfg        *config.DevServerConfig
	httpServer *http.Server
	users      *userStore
	codes      *codeStore
	signer     *tokenSigner
	limiter    *ipRateLimiter
}

// New creates a dev auth server from config.
func New(cfg *config.DevServerConfig) (*Server, error) {
	signer, err := newTokenSigner(cfg.TokenSecret, time.Duration(cfg.TokenTTL)*time.Second)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		users:   newUserStore(),
		codes:   newCodeStore(2 * time.Minute),
		signer:  signer,
		limiter: newIPRateLimiter(10, 50), // 10 req/s per IP, burst 50
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/auth/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/oauth/exchange", s.handleExchange).Methods(http.MethodPost)
	r.HandleFunc("/oauth/authorize", s.handleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)
	handler = s.rateLimitMiddleware(handler)
	handler = securityHeadersMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler exposes the full middleware-wrapped handler, mainly so tests can
// mount the server on an httptest listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks on ListenAndServe.
func (s *Server) Start() error {
	slog.Info("starting dev auth server",
		"addr", s.cfg.Listen,
		"strategy", s.cfg.Strategy,
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth serves GET /health for liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
