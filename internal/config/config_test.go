package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// allConfigKeys lists every env var that Load() reads.
var allConfigKeys = []string{
	"ISSUESYNC_GITHUB_TOKEN",
	"GH_TOKEN",
	"ISSUESYNC_GITHUB_API_URL",
	"ISSUESYNC_OWNER",
	"ISSUESYNC_REPO",
	"ISSUESYNC_PROJECT_TITLE",
	"ISSUESYNC_REQUEST_TIMEOUT",
	"ISSUESYNC_MAX_RETRIES",
	"ISSUESYNC_LOG_LEVEL",
	"ISSUESYNC_LISTEN_ADDR",
}

// isolateConfigEnv saves and unsets all config env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ISSUESYNC_GITHUB_TOKEN", "ghp_test123")
	t.Setenv("ISSUESYNC_GITHUB_API_URL", "https://ghe.example.com/api/v3/")
	t.Setenv("ISSUESYNC_OWNER", "acme")
	t.Setenv("ISSUESYNC_REPO", "widgets")
	t.Setenv("ISSUESYNC_PROJECT_TITLE", "Roadmap")
	t.Setenv("ISSUESYNC_REQUEST_TIMEOUT", "5s")
	t.Setenv("ISSUESYNC_MAX_RETRIES", "2")
	t.Setenv("ISSUESYNC_LOG_LEVEL", "debug")
	t.Setenv("ISSUESYNC_LISTEN_ADDR", "0.0.0.0:9090")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "ghp_test123", cfg.GitHubToken)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.APIURL)
	assert.Equal(t, "acme", cfg.Owner)
	assert.Equal(t, "widgets", cfg.Repo)
	assert.Equal(t, "Roadmap", cfg.ProjectTitle)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, "USEPA", cfg.Owner)
	assert.Equal(t, "AIRules", cfg.Repo)
	assert.Equal(t, "AIRules Baseline Alignment", cfg.ProjectTitle)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
}

// TestLoad_MissingToken verifies that a missing token does not cause an
// error; only unauthenticated reads will work.
func TestLoad_MissingToken(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "", cfg.GitHubToken)
	assert.False(t, cfg.HasGitHubToken())
}

func TestLoad_GHTokenFallback(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GH_TOKEN", "gho_fallback")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "gho_fallback", cfg.GitHubToken)
	assert.True(t, cfg.HasGitHubToken())
}

func TestLoad_PrimaryTokenWins(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ISSUESYNC_GITHUB_TOKEN", "ghp_primary")
	t.Setenv("GH_TOKEN", "gho_fallback")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "ghp_primary", cfg.GitHubToken)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"ISSUESYNC_REQUEST_TIMEOUT", "not-a-duration"},
		{"ISSUESYNC_REQUEST_TIMEOUT", "0s"},
		{"ISSUESYNC_MAX_RETRIES", "many"},
		{"ISSUESYNC_MAX_RETRIES", "-1"},
		{"ISSUESYNC_LOG_LEVEL", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_ZeroRetriesAllowed(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ISSUESYNC_MAX_RETRIES", "0")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestConfig_RunSettings(t *testing.T) {
	cfg := &Config{
		GitHubToken:    "ghp_test123",
		APIURL:         DefaultAPIURL,
		RequestTimeout: 3 * time.Second,
		MaxRetries:     1,
	}

	assert.Equal(t, model.RunSettings{
		Token:          "ghp_test123",
		BaseURL:        DefaultAPIURL,
		RequestTimeout: 3 * time.Second,
		MaxRetries:     1,
	}, cfg.RunSettings())
}

func writeDotenv(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadFrom_DotenvIsReadOnEveryLoad(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), ".env")

	writeDotenv(t, path, "ISSUESYNC_OWNER=acme\nISSUESYNC_LOG_LEVEL=warn\n")
	cfg, err := loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Owner)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)

	writeDotenv(t, path, "ISSUESYNC_OWNER=globex\nISSUESYNC_LOG_LEVEL=debug\n")
	cfg, err = loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "globex", cfg.Owner)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)

	_, leaked := os.LookupEnv("ISSUESYNC_OWNER")
	assert.False(t, leaked, "dotenv values stay out of the process environment")
}

func TestLoadFrom_EnvironmentWinsOverDotenv(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	writeDotenv(t, path, "ISSUESYNC_REPO=from-file\nGH_TOKEN=file-token\n")
	t.Setenv("ISSUESYNC_REPO", "from-env")

	cfg, err := loadFrom(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Repo)
	assert.Equal(t, "file-token", cfg.GitHubToken)
}

func TestLoadFrom_MissingDotenv(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := loadFrom(filepath.Join(t.TempDir(), "absent.env"))

	require.NoError(t, err)
	assert.Equal(t, DefaultOwner, cfg.Owner)
}
