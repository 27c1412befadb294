package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/havenstays/haven-auth/internal/api"
	"github.com/havenstays/haven-auth/internal/config"
	"github.com/havenstays/haven-auth/internal/devserver"
	"github.com/havenstays/haven-auth/internal/oauthcb"
	"github.com/havenstays/haven-auth/internal/session"
	"github.com/havenstays/haven-auth/internal/store"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// login/register flags
var (
	flagEmail    string
	flagPassword string
	flagOAuth    bool
)

// Exit codes
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitAuthFailure = 2 // Auth service rejected the attempt
	ExitConfig      = 3
)

var rootCmd = &cobra.Command{
	Use:   "haven-auth",
	Short: "Haven Stays session client",
	Long: `Session client for the Haven Stays corporate-housing platform.

haven-auth signs in against the Haven auth service (email+password or
delegated OAuth, depending on what the service advertises), persists the
resulting session locally, and makes the bearer token available to other
tooling. It is the single owner of the persisted credentials.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// overrideExitCode is set by subcommands so main() can call os.Exit()
// after cobra finishes. This avoids calling os.Exit() inside RunE which
// would bypass deferred functions. -1 means "use default".
var overrideExitCode = -1

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the Haven platform",
	Long: `Authenticate against the Haven auth service and persist the session.

The service's advertised strategy decides the flow:
  - email:           prompts for (or takes via flags) email and password
  - pythagora_oauth: opens the browser for the authorization redirect and
                     completes the code exchange on return

Exit codes:
  0 = signed in
  2 = the auth service rejected the attempt
  1 = any other error`,
	RunE: runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Long: `Register a new account with the Haven auth service.

On success the session is persisted exactly as with login.`,
	RunE: runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the persisted session",
	Long: `Remove the persisted tokens and user snapshot.

Logout is purely local and always succeeds, even when the auth service is
unreachable. Logging out while already signed out is a no-op.`,
	RunE: runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without contacting anything.

Exit codes:
  0 = configuration is valid
  3 = configuration error`,
	RunE: runCheckConfig,
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run the local development auth service",
	Long: `Start a local auth service implementing the same API the hosted Haven
auth service exposes: /api/auth/config, /api/auth/login,
/api/auth/register, /api/auth/oauth/exchange and /oauth/authorize.

Useful for developing against the client without network access. The
strategy it advertises is configurable (devserver.strategy), so both the
credential and delegated OAuth flows can be exercised locally.`,
	RunE: runDevServer,
}

func init() {
	defaultConfig := "haven-auth.yaml"
	if dir, err := os.UserConfigDir(); err == nil {
		defaultConfig = filepath.Join(dir, "haven-auth", "config.yaml")
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfig,
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&flagEmail, "email", "", "Account email")
		c.Flags().StringVar(&flagPassword, "password", "", "Account password (prompted when omitted)")
	}
	loginCmd.Flags().BoolVar(&flagOAuth, "oauth", false,
		"Force the delegated OAuth flow regardless of the advertised strategy")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(devserverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if api.IsAuthError(err) {
			os.Exit(ExitAuthFailure)
		}
		os.Exit(ExitError)
	}

	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// setup loads config, configures logging and wires the session manager.
func setup() (*config.Config, *session.Manager, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	config.SetupLogging(&cfg.Log)

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	client := api.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.Timeout)*time.Second)
	mgr := session.NewManager(client, st)
	mgr.Bootstrap()

	return cfg, mgr, nil
}

// runLogin signs in with whichever flow the auth service advertises.
func runLogin(cmd *cobra.Command, args []string) error {
	cfg, mgr, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	strategy := mgr.FetchAuthConfiguration(ctx)

	if flagOAuth || strategy == session.StrategyDelegatedOAuth {
		if err := runOAuthLogin(ctx, cfg, mgr); err != nil {
			return err
		}
	} else {
		email, password, err := readCredentials()
		if err != nil {
			return err
		}
		if err := mgr.LoginWithCredentials(ctx, email, password); err != nil {
			return err
		}
	}

	snap := mgr.Snapshot()
	fmt.Printf("Signed in as %s (%s)\n", snap.User.Email, snap.User.Role)
	return nil
}

// runRegister creates an account with the credential endpoints.
func runRegister(cmd *cobra.Command, args []string) error {
	_, mgr, err := setup()
	if err != nil {
		return err
	}

	email, password, err := readCredentials()
	if err != nil {
		return err
	}

	if err := mgr.RegisterWithCredentials(cmd.Context(), email, password); err != nil {
		return err
	}

	snap := mgr.Snapshot()
	fmt.Printf("Account created. Signed in as %s\n", snap.User.Email)
	return nil
}

// runOAuthLogin drives the delegated flow: loopback listener, browser
// redirect, state check, code exchange.
func runOAuthLogin(ctx context.Context, cfg *config.Config, mgr *session.Manager) error {
	listener, err := oauthcb.Listen(cfg.OAuth.CallbackListen)
	if err != nil {
		return err
	}
	defer listener.Close()

	redirectURI := listener.RedirectURI()
	authURL, err := mgr.BeginOAuthRedirect(redirectURI)
	if err != nil {
		return err
	}

	fmt.Printf("Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	openBrowser(authURL)

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.OAuth.RedirectWait)*time.Second)
	defer cancel()

	res, err := listener.Wait(waitCtx)
	if err != nil {
		return err
	}
	if res.Err != nil {
		// The authorization server returned error= on the redirect; no
		// exchange is attempted.
		return res.Err
	}

	if err := mgr.VerifyOAuthState(res.State); err != nil {
		return err
	}

	return mgr.CompleteOAuthExchange(ctx, res.Code, redirectURI)
}

// runLogout clears the persisted session.
func runLogout(cmd *cobra.Command, args []string) error {
	_, mgr, err := setup()
	if err != nil {
		return err
	}

	mgr.Logout()
	fmt.Println("Signed out.")
	return nil
}

// runStatus prints the current session state.
func runStatus(cmd *cobra.Command, args []string) error {
	cfg, mgr, err := setup()
	if err != nil {
		return err
	}

	snap := mgr.Snapshot()
	if snap.Authenticated {
		fmt.Printf("Signed in as %s (%s)\n", snap.User.Email, snap.User.Role)
	} else {
		fmt.Println("Not signed in.")
	}
	fmt.Printf("  Auth service: %s\n", cfg.API.BaseURL)
	return nil
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("haven-auth version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n  %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	fmt.Println("Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  API base URL:       %s\n", cfg.API.BaseURL)
	fmt.Printf("  API timeout:        %d seconds\n", cfg.API.Timeout)
	fmt.Printf("  Callback listen:    %s\n", cfg.OAuth.CallbackListen)
	fmt.Printf("  Redirect wait:      %d seconds\n", cfg.OAuth.RedirectWait)
	fmt.Printf("  Store path:         %s\n", storePathForDisplay(cfg))
	fmt.Printf("  Log level:          %s\n", cfg.Log.Level)
	fmt.Printf("  Log format:         %s\n", cfg.Log.Format)
	fmt.Printf("  Devserver listen:   %s\n", cfg.DevServer.Listen)
	fmt.Printf("  Devserver strategy: %s\n", cfg.DevServer.Strategy)

	return nil
}

// storePathForDisplay resolves the session file path for status output.
func storePathForDisplay(cfg *config.Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	if p, err := store.DefaultPath(); err == nil {
		return p
	}
	return "(unresolved)"
}

// runDevServer starts the local development auth service.
func runDevServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	config.SetupLogging(&cfg.Log)

	srv, err := devserver.New(&cfg.DevServer)
	if err != nil {
		return fmt.Errorf("failed to create dev server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dev server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// readCredentials resolves email and password from flags, prompting on
// stdin for whichever is missing. Format validation is left to the auth
// service.
func readCredentials() (email, password string, err error) {
	reader := bufio.NewReader(os.Stdin)

	email = flagEmail
	if email == "" {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	password = flagPassword
	if password == "" {
		fmt.Print("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password are required")
	}
	return email, password, nil
}

// openBrowser makes a best-effort attempt to open url in the default
// browser. Failure is fine; the URL is already printed.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		slog.Debug("could not open browser", "error", err)
	}
}
