package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string, opts ...Option) (*Config, error) {
	t.Helper()
	base := []Option{WithEnvFile(""), WithSystemEnv(false), WithEnvMap(env)}
	return Load(append(base, opts...)...)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, "/", cfg.Paths.Login)
	require.Equal(t, "/dashboard", cfg.Paths.Dashboard)
	require.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	require.Equal(t, 15*time.Second, cfg.API.Timeout)
	require.Equal(t, "memory", cfg.Drafts.Backend)
	require.Equal(t, int64(32<<20), cfg.Uploads.MaxBytes)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
	require.True(t, cfg.Session.EphemeralKeys)
	require.Len(t, cfg.Session.HashKey, 32)
	require.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"HTTP_ADDR":         ":9090",
		"ENVIRONMENT":       "production",
		"API_BASE_URL":      "https://api.example.com/",
		"API_TIMEOUT":       "3s",
		"API_AUTH_SCHEME":   "Bearer",
		"DASHBOARD_PATH":    "panel/",
		"SESSION_HASH_KEY":  strings.Repeat("h", 32),
		"SESSION_BLOCK_KEY": strings.Repeat("b", 16),
		"DRAFT_STORE":       "Redis",
		"REDIS_ADDR":        "cache:6379",
		"REDIS_DB":          "2",
		"UPLOAD_MAX_BYTES":  "1024",
	})
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Address)
	require.True(t, cfg.IsProduction())
	require.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	require.Equal(t, 3*time.Second, cfg.API.Timeout)
	require.Equal(t, "Bearer", cfg.API.AuthScheme)
	require.Equal(t, "/panel", cfg.Paths.Dashboard)
	require.False(t, cfg.Session.EphemeralKeys)
	require.Equal(t, "redis", cfg.Drafts.Backend)
	require.Equal(t, "cache:6379", cfg.Drafts.Redis.Addr)
	require.Equal(t, 2, cfg.Drafts.Redis.DB)
	require.Equal(t, int64(1024), cfg.Uploads.MaxBytes)
}

func TestLoadValidation(t *testing.T) {
	_, err := load(t, map[string]string{
		"API_BASE_URL":     "ftp://nowhere",
		"DRAFT_STORE":      "disk",
		"SESSION_HASH_KEY": "short",
		"LOGIN_PATH":       "/dashboard",
	})
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	fields := vErr.Fields()
	require.Contains(t, fields, "API_BASE_URL")
	require.Contains(t, fields, "DRAFT_STORE")
	require.Contains(t, fields, "SESSION_HASH_KEY")
	require.Contains(t, fields, "LOGIN_PATH")
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CARPORTAL_TEST_API=https://dotenv.example.com\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CARPORTAL_TEST_API") })

	_, err := Load(WithEnvFile(path), WithSystemEnv(false))
	require.NoError(t, err)
	require.Equal(t, "https://dotenv.example.com", os.Getenv("CARPORTAL_TEST_API"))
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(WithEnvFile(filepath.Join(t.TempDir(), "missing.env")), WithSystemEnv(false))
	require.NoError(t, err)
}
