// Package oauthcb runs the loopback HTTP listener that receives the
// authorization-code redirect during the delegated OAuth flow.
//
// The listener's own URL is the redirect_uri sent to the authorization
// server. When the browser returns carrying code/state (or error) query
// parameters, the listener captures them once, then 302-redirects the
// browser to its own clean URL so the code never lingers in the address
// bar and a refresh cannot replay it.
package oauthcb

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/havenstays/haven-auth/internal/api"
	"github.com/havenstays/haven-auth/internal/logsanitize"
)

// callbackPath mirrors the login surface path the redirect returns to.
const callbackPath = "/login"

// Result is the outcome of one authorization redirect round trip.
type Result struct {
	Code  string
	State string

	// Err is set when the authorization server returned error /
	// error_description instead of a code. No exchange may be attempted.
	Err error
}

// Listener is a single-use loopback callback server.
type Listener struct {
	ln  net.Listener
	srv *http.Server

	once sync.Once
	ch   chan Result
}

// Listen binds the callback server on addr (loopback; port 0 picks an
// ephemeral port) and starts serving.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind callback listener: %w", err)
	}

	l := &Listener{
		ln: ln,
		ch: make(chan Result, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, l.handleCallback)

	l.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("callback server failed", "error", err)
		}
	}()

	return l, nil
}

// RedirectURI returns the listener's own absolute URL. This exact value
// must be used both in the authorization redirect and in the code
// exchange.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://%s%s", l.ln.Addr().String(), callbackPath)
}

// Wait blocks until the browser returns or ctx expires.
func (l *Listener) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-l.ch:
		return res, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("timed out waiting for authorization redirect: %w", ctx.Err())
	}
}

// Close shuts the callback server down.
func (l *Listener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}

// handleCallback processes the redirect back from the authorization
// server. Parameters are delivered at most once; repeat visits (refresh,
// duplicate navigation) only see the clean completion page.
func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	errParam := q.Get("error")
	errDesc := q.Get("error_description")

	// Clean URL: nothing captured, just render the completion page.
	if code == "" && errParam == "" {
		renderDonePage(w)
		return
	}

	slog.Info("authorization redirect received",
		"code_present", code != "",
		"state_present", state != "",
		"error_present", errParam != "",
	)

	l.once.Do(func() {
		if errParam != "" {
			reason := errParam
			if errDesc != "" {
				reason = errDesc
			}
			l.ch <- Result{Err: &api.AuthError{Reason: logsanitize.Sanitize(reason)}}
			return
		}
		l.ch <- Result{Code: code, State: state}
	})

	// Strip code/state from the address bar before rendering anything, so
	// a refresh cannot re-trigger the exchange.
	http.Redirect(w, r, callbackPath, http.StatusFound)
}

func renderDonePage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Haven Stays</title></head>
<body>
<p>Sign-in is being completed. You can close this window and return to the terminal.</p>
</body>
</html>
`)
}
