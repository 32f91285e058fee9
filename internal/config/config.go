// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultAPIURL         = "https://api.github.com/"
	DefaultOwner          = "USEPA"
	DefaultRepo           = "AIRules"
	DefaultProjectTitle   = "AIRules Baseline Alignment"
	DefaultRequestTimeout = 20 * time.Second
	DefaultMaxRetries     = 5
	DefaultListenAddr     = "127.0.0.1:8080"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken    string
	APIURL         string
	Owner          string
	Repo           string
	ProjectTitle   string
	RequestTimeout time.Duration
	MaxRetries     int
	LogLevel       slog.Level
	ListenAddr     string
}

// HasGitHubToken returns true when an access token was configured. Without one
// only unauthenticated reads against public repositories succeed.
func (c *Config) HasGitHubToken() bool {
	return c.GitHubToken != ""
}

// RunSettings returns the per-run tracker settings carried by c.
func (c *Config) RunSettings() model.RunSettings {
	return model.RunSettings{
		Token:          c.GitHubToken,
		BaseURL:        c.APIURL,
		RequestTimeout: c.RequestTimeout,
		MaxRetries:     c.MaxRetries,
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is read on every call without being
// copied into the process environment, so a later Load sees edits to it;
// variables set in the real environment take precedence over the file.
// The token comes from ISSUESYNC_GITHUB_TOKEN, falling back to GH_TOKEN.
// Optional variables with defaults: ISSUESYNC_GITHUB_API_URL
// (https://api.github.com/), ISSUESYNC_OWNER, ISSUESYNC_REPO,
// ISSUESYNC_PROJECT_TITLE, ISSUESYNC_REQUEST_TIMEOUT (20s),
// ISSUESYNC_MAX_RETRIES (5), ISSUESYNC_LOG_LEVEL (info) and
// ISSUESYNC_LISTEN_ADDR (127.0.0.1:8080).
func Load() (*Config, error) {
	return loadFrom(".env")
}

func loadFrom(dotenvPath string) (*Config, error) {
	dotenv, err := godotenv.Read(dotenvPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", dotenvPath, err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	envOr := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	token := envOr("ISSUESYNC_GITHUB_TOKEN", "")
	if token == "" {
		token = envOr("GH_TOKEN", "")
	}

	requestTimeout := DefaultRequestTimeout
	if v, ok := lookup("ISSUESYNC_REQUEST_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ISSUESYNC_REQUEST_TIMEOUT has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("ISSUESYNC_REQUEST_TIMEOUT must be positive, got %s", parsed)
		}
		requestTimeout = parsed
	}

	maxRetries := DefaultMaxRetries
	if v, ok := lookup("ISSUESYNC_MAX_RETRIES"); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("ISSUESYNC_MAX_RETRIES has invalid integer %q: %w", v, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("ISSUESYNC_MAX_RETRIES must not be negative, got %d", parsed)
		}
		maxRetries = parsed
	}

	logLevel := slog.LevelInfo
	if v, ok := lookup("ISSUESYNC_LOG_LEVEL"); ok && v != "" {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("ISSUESYNC_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return &Config{
		GitHubToken:    token,
		APIURL:         envOr("ISSUESYNC_GITHUB_API_URL", DefaultAPIURL),
		Owner:          envOr("ISSUESYNC_OWNER", DefaultOwner),
		Repo:           envOr("ISSUESYNC_REPO", DefaultRepo),
		ProjectTitle:   envOr("ISSUESYNC_PROJECT_TITLE", DefaultProjectTitle),
		RequestTimeout: requestTimeout,
		MaxRetries:     maxRetries,
		LogLevel:       logLevel,
		ListenAddr:     envOr("ISSUESYNC_LISTEN_ADDR", DefaultListenAddr),
	}, nil
}
