package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://www.strava.com", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.Retry.MaxAttempts)
	assert.Equal(t, float64(5), cfg.API.RequestsPerSecond)
	assert.Equal(t, 5*time.Minute, cfg.Run.Timeout)
	assert.Equal(t, "127.0.0.1:8420", cfg.Bridge.Addr)
	assert.False(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "autokudo", cfg.RabbitMQ.Exchange)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("AUTOKUDO_TEST_COOKIE", "_strava4_session=abc")
	t.Setenv("AUTOKUDO_TEST_DB_PASSWORD", "secret")

	cfg, err := Load(writeConfig(t, `
database:
  host: db
  user: kudo
  password: ${AUTOKUDO_TEST_DB_PASSWORD}
  dbname: autokudo
api:
  base_url: http://feed.local
  timeout: 5s
  headers:
    Cookie: ${AUTOKUDO_TEST_COOKIE}
  retry:
    max_attempts: 5
bridge:
  settings_file: /tmp/settings.yaml
run:
  timeout: 1m
`))
	require.NoError(t, err)

	assert.Equal(t, "_strava4_session=abc", cfg.API.Headers["Cookie"])
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.API.Retry.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Run.Timeout)
	assert.Equal(t, "/tmp/settings.yaml", cfg.Bridge.SettingsFile)
	assert.Equal(t,
		"host=db port=5432 user=kudo password=secret dbname=autokudo sslmode=disable",
		cfg.Database.DSN(),
	)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "api: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
