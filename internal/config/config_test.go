package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "investigraph.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8000", cfg.API.URL)
	assert.Equal(t, BackendFile, cfg.Session.Backend)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.PollInterval.Duration)
	assert.Equal(t, 2*time.Second, cfg.Dashboard.ImportInterval.Duration)
	assert.Equal(t, 30, cfg.Dashboard.ImportMaxAttempts)
	assert.Equal(t, time.Second, cfg.Dashboard.MinUploadDuration.Duration)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TOMLFile(t *testing.T) {
	path := writeTOML(t, `
[api]
url = "https://investigraph.example"
timeout = "10s"

[dashboard]
poll_interval = "1s"
import_max_attempts = 5

[server]
port = 9090
cors_origins = ["http://localhost:5173"]

[log]
level = "debug"
format = "json"
`)
	t.Setenv("INVESTIGRAPH_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://investigraph.example", cfg.API.URL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout.Duration)
	assert.Equal(t, time.Second, cfg.Dashboard.PollInterval.Duration)
	assert.Equal(t, 5, cfg.Dashboard.ImportMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Dashboard.ImportInterval.Duration, "unset keys keep defaults")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTOML(t, `
[api]
url = "https://from-file.example"
`)
	t.Setenv("INVESTIGRAPH_CONFIG", path)
	t.Setenv("INVESTIGRAPH_API_URL", "https://from-env.example")
	t.Setenv("INVESTIGRAPH_IMPORT_INTERVAL", "3")
	t.Setenv("INVESTIGRAPH_POLL_INTERVAL", "250ms")
	t.Setenv("INVESTIGRAPH_RATE_LIMIT", "4")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("PORT", "8181")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.example", cfg.API.URL)
	assert.Equal(t, 3*time.Second, cfg.Dashboard.ImportInterval.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Dashboard.PollInterval.Duration)
	assert.Equal(t, 4, cfg.API.RateLimit)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "127.0.0.1:8181", cfg.HTTPAddr())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("INVESTIGRAPH_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Setenv("INVESTIGRAPH_CONFIG", writeTOML(t, "[api\nurl = "))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Session.Backend = "memcached" }, true},
		{"redis without url", func(c *Config) { c.Session.Backend = BackendRedis }, true},
		{"redis with url", func(c *Config) {
			c.Session.Backend = BackendRedis
			c.Session.RedisURL = "redis://localhost:6379/0"
		}, false},
		{"postgres without url", func(c *Config) { c.Session.Backend = BackendPostgres }, true},
		{"zero poll interval", func(c *Config) { c.Dashboard.PollInterval.Duration = 0 }, true},
		{"negative import interval", func(c *Config) { c.Dashboard.ImportInterval.Duration = -time.Second }, true},
		{"zero attempts", func(c *Config) { c.Dashboard.ImportMaxAttempts = 0 }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "ticker", "AAPL")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"ticker":"AAPL"`)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "garbage")
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "1.5")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("TEST_DURATION", time.Minute))
}
