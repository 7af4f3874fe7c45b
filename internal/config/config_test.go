package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DB_DSN", "user:pass@tcp(localhost:3306)/clockify?parseTime=true")
	t.Setenv("CLOCKIFY_API_KEY", " key ")
	t.Setenv("CLOCKIFY_BASE_URL", "http://localhost:9000/api/v1/")
	t.Setenv("CLOCKIFY_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.Clockify.APIKey)
	assert.Equal(t, "http://localhost:9000/api/v1", cfg.Clockify.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Clockify.Timeout)
	assert.Equal(t, 200, cfg.Clockify.PageSize)
	assert.Equal(t, 1000, cfg.Clockify.ReportPageSize)
	assert.Equal(t, 28*24*time.Hour, cfg.Clockify.ReportWindow)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "UTC", cfg.Sync.Timezone)
	assert.Equal(t, 24*time.Hour, cfg.Sync.Lookback)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowOrigins)
}

func TestLoad_MissingAPIKeyIsNotFatal(t *testing.T) {
	t.Setenv("DB_DSN", "x")
	t.Setenv("CLOCKIFY_API_KEY", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Clockify.APIKey)
}

func TestLoad_LegacyMySQLDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("MYSQL_DSN", "legacy")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.DB.DSN)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clockify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_driver: sqlite\ndb_dsn: /tmp/c.db\nsync_schedule: \"0 2 * * *\"\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SYNC_TZ", "Europe/Berlin")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/c.db", cfg.DB.DSN)
	assert.Equal(t, "0 2 * * *", cfg.Sync.Schedule)
	assert.Equal(t, "Europe/Berlin", cfg.Sync.Timezone)
}

func TestValidate(t *testing.T) {
	t.Setenv("DB_DSN", "x")
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("SYNC_TZ", "Mars/Olympus")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "SYNC_TZ")
}
