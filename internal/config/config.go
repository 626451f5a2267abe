// Package config loads the client configuration from viper and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/spf13/viper"
)

// DefaultDatabasePath is where the session context and review journal live.
const DefaultDatabasePath = "$HOME/.local/share/receipts/receipts.db"

// APIConfig configures the extraction backend client.
type APIConfig struct {
	BaseURL string
	// RequestTimeout bounds ordinary requests. The progress stream is never bounded by it.
	RequestTimeout time.Duration
	RetryAttempts  int
}

// ReviewConfig tunes the interactive reviewer.
type ReviewConfig struct {
	// ResolveDelay is how long a resolved clarification stays visible before closing.
	ResolveDelay time.Duration
}

// DefaultAPIConfig returns the defaults used when nothing is configured.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		BaseURL:        "http://localhost:3000/api",
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
	}
}

// Validate checks the configuration is usable.
func (c APIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url", common.ErrMissingConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: api.base_url %q is not an absolute URL", common.ErrInvalidConfig, c.BaseURL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: api.request_timeout must be non-negative", common.ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: api.retry_attempts must be non-negative", common.ErrInvalidConfig)
	}
	return nil
}

// LoadAPIConfig loads the backend configuration. It follows this precedence:
// 1. Viper configuration (from config file or RECEIPTS_ env vars)
// 2. Direct environment variables (RECEIPTS_API_URL)
// 3. Default values
func LoadAPIConfig() (*APIConfig, error) {
	cfg := DefaultAPIConfig()

	if v := viper.GetString("api.base_url"); v != "" {
		cfg.BaseURL = v
	} else if v := os.Getenv("RECEIPTS_API_URL"); v != "" {
		cfg.BaseURL = v
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if viper.IsSet("api.request_timeout") {
		cfg.RequestTimeout = viper.GetDuration("api.request_timeout")
	}
	if viper.IsSet("api.retry_attempts") {
		cfg.RetryAttempts = viper.GetInt("api.retry_attempts")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadReviewConfig loads reviewer tuning with defaults.
func LoadReviewConfig() ReviewConfig {
	cfg := ReviewConfig{ResolveDelay: 600 * time.Millisecond}
	if viper.IsSet("review.resolve_delay") {
		cfg.ResolveDelay = viper.GetDuration("review.resolve_delay")
	}
	return cfg
}

// DatabasePath returns the configured database path with ~ and env vars expanded.
func DatabasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = DefaultDatabasePath
	}
	return ExpandPath(path)
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return os.ExpandEnv(path)
}
