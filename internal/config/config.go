package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	API       APIConfig       `yaml:"api"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// APIConfig defines how to reach the Haven auth service
type APIConfig struct {
	BaseURL string `yaml:"base_url"` // Auth service base URL (e.g., "https://api.havenstays.example")
	Timeout int    `yaml:"timeout"`  // Per-request timeout in seconds for outbound auth calls
}

// OAuthConfig defines client-side settings for the delegated OAuth flow.
// The authorize URL, client ID and scope come from the auth service's
// configuration endpoint at runtime, not from this file.
type OAuthConfig struct {
	CallbackListen string `yaml:"callback_listen"` // Loopback address for the redirect listener (port 0 = ephemeral)
	RedirectWait   int    `yaml:"redirect_wait"`   // Seconds to wait for the browser to return before giving up
}

// StoreConfig defines where the persisted session lives
type StoreConfig struct {
	Path string `yaml:"path"` // Session file path (empty = default under the user config dir)
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DevServerConfig defines settings for the local development auth service
type DevServerConfig struct {
	Listen      string `yaml:"listen"`       // HTTP listen address
	Strategy    string `yaml:"strategy"`     // "email" or "pythagora_oauth"
	TokenSecret string `yaml:"token_secret"` // HMAC secret for minted JWTs (empty = random per start)
	TokenTTL    int    `yaml:"token_ttl"`    // Access token lifetime in seconds
}

// Load reads and parses the configuration file.
// A missing file is not an error: defaults plus environment overrides apply,
// so the CLI stays usable without any local setup.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Pick up a local .env before reading overrides; the base API URL is
	// commonly supplied this way. Missing .env is fine.
	_ = godotenv.Load()

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:9480",
			Timeout: 15,
		},
		OAuth: OAuthConfig{
			CallbackListen: "127.0.0.1:0",
			RedirectWait:   300, // 5 minutes for the user to finish in the browser
		},
		Store: StoreConfig{
			Path: "", // resolved by the store against the user config dir
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DevServer: DevServerConfig{
			Listen:   ":9480",
			Strategy: "email",
			TokenTTL: 3600,
		},
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HAVEN_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("HAVEN_API_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.Timeout = n
		}
	}
	if v := os.Getenv("HAVEN_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("HAVEN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HAVEN_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("HAVEN_DEVSERVER_LISTEN"); v != "" {
		c.DevServer.Listen = v
	}
	if v := os.Getenv("HAVEN_DEVSERVER_STRATEGY"); v != "" {
		c.DevServer.Strategy = v
	}
	if v := os.Getenv("HAVEN_DEVSERVER_TOKEN_SECRET"); v != "" {
		c.DevServer.TokenSecret = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be a valid HTTP(S) URL")
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.Timeout > 120 {
		return fmt.Errorf("api.timeout should not exceed 120 seconds")
	}

	if c.OAuth.CallbackListen == "" {
		return fmt.Errorf("oauth.callback_listen is required")
	}
	host, _, ok := strings.Cut(c.OAuth.CallbackListen, ":")
	if !ok {
		return fmt.Errorf("oauth.callback_listen must be host:port")
	}
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return fmt.Errorf("oauth.callback_listen must be a loopback address")
	}

	if c.OAuth.RedirectWait <= 0 {
		return fmt.Errorf("oauth.redirect_wait must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	if c.DevServer.Listen == "" {
		return fmt.Errorf("devserver.listen is required")
	}
	switch c.DevServer.Strategy {
	case "email", "pythagora_oauth":
	default:
		return fmt.Errorf("devserver.strategy must be one of: email, pythagora_oauth")
	}
	if c.DevServer.TokenTTL <= 0 {
		return fmt.Errorf("devserver.token_ttl must be positive")
	}

	return nil
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	if redacted.DevServer.TokenSecret != "" {
		redacted.DevServer.TokenSecret = "[REDACTED]"
	}
	return &redacted
}
