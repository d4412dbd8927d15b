package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LIBRARY_SESSION_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("LIBRARY_HTTP_PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "admin.library", cfg.AdminEmailDomain)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.True(t, cfg.ReleaseOnDelete)
	assert.False(t, cfg.UsesMemoryStore())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LIBRARY_SESSION_SECRET", "s3cret")
	t.Setenv("LIBRARY_HTTP_PORT", "9090")
	t.Setenv("DATABASE_URL", MemoryDatabaseURL)
	t.Setenv("DATABASE_DRIVER", "pgx")
	t.Setenv("LIBRARY_SESSION_TTL", "2h")
	t.Setenv("LIBRARY_ADMIN_EMAIL_DOMAIN", "@staff.example.edu")
	t.Setenv("LIBRARY_TIMEZONE", "Europe/Berlin")
	t.Setenv("LIBRARY_RELEASE_ON_RECORD_DELETE", "false")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.True(t, cfg.UsesMemoryStore())
	assert.Equal(t, "pgx", cfg.DatabaseDriver)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "staff.example.edu", cfg.AdminEmailDomain)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.False(t, cfg.ReleaseOnDelete)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_ReportsMissingSecret(t *testing.T) {
	t.Setenv("LIBRARY_SESSION_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIBRARY_SESSION_SECRET")
}

func TestLoad_ReportsInvalidValues(t *testing.T) {
	t.Setenv("LIBRARY_SESSION_SECRET", "s3cret")
	t.Setenv("LIBRARY_HTTP_PORT", "not-a-port")
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("LIBRARY_SESSION_TTL", "-1h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIBRARY_HTTP_PORT")
	assert.Contains(t, err.Error(), "DATABASE_DRIVER")
	assert.Contains(t, err.Error(), "LIBRARY_SESSION_TTL")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIBRARY_TEST_DOTENV_VALUE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LIBRARY_TEST_DOTENV_VALUE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("LIBRARY_TEST_DOTENV_VALUE"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestLoadChaos(t *testing.T) {
	t.Setenv("LIBRARY_ENDPOINT", "")
	t.Setenv("CHAOS_ADMIN_EMAIL", "")
	t.Setenv("CHAOS_ADMIN_PASSWORD", "")

	_, err := LoadChaos()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAOS_ADMIN_EMAIL")
	assert.Contains(t, err.Error(), "CHAOS_ADMIN_PASSWORD")

	t.Setenv("CHAOS_ADMIN_EMAIL", "ops@admin.library")
	t.Setenv("CHAOS_ADMIN_PASSWORD", "hunter22")
	t.Setenv("CHAOS_CONCURRENCY", "8")
	cfg, err := LoadChaos()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Endpoint)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Observe)

	t.Setenv("CHAOS_CONCURRENCY", "1")
	_, err = LoadChaos()
	assert.ErrorContains(t, err, "CHAOS_CONCURRENCY")
}
