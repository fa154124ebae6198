// Package config loads the client configuration from defaults, an
// optional .env file, an optional TOML file and the environment, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Session backends
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultConfigFile is read when INVESTIGRAPH_CONFIG is not set
const DefaultConfigFile = "investigraph.toml"

// Duration is a time.Duration that decodes from strings like "5s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	API       APIConfig       `toml:"api"`
	Session   SessionConfig   `toml:"session"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
}

type APIConfig struct {
	URL       string   `toml:"url"`
	Timeout   Duration `toml:"timeout"`
	RateLimit int      `toml:"rate_limit"` // requests per second, 0 disables
}

type SessionConfig struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	Key         string `toml:"key"` // passphrase for at-rest encryption, optional
	RedisURL    string `toml:"redis_url"`
	DatabaseURL string `toml:"database_url"`
}

type DashboardConfig struct {
	PollInterval      Duration `toml:"poll_interval"`
	ImportInterval    Duration `toml:"import_interval"`
	ImportMaxAttempts int      `toml:"import_max_attempts"`
	MinUploadDuration Duration `toml:"min_upload_duration"`
}

type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load builds the configuration. A missing .env or TOML file is not an
// error; a malformed one is.
func Load() (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env failed: %w", err)
	}

	configPath := getEnv("INVESTIGRAPH_CONFIG", DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	} else if os.Getenv("INVESTIGRAPH_CONFIG") != "" {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	overrideByEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:       "http://localhost:8000",
			Timeout:   Duration{30 * time.Second},
			RateLimit: 10,
		},
		Session: SessionConfig{
			Backend: BackendFile,
		},
		Dashboard: DashboardConfig{
			PollInterval:      Duration{5 * time.Second},
			ImportInterval:    Duration{2 * time.Second},
			ImportMaxAttempts: 30,
			MinUploadDuration: Duration{time.Second},
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.API.URL = getEnv("INVESTIGRAPH_API_URL", cfg.API.URL)
	cfg.API.Timeout.Duration = getEnvDuration("INVESTIGRAPH_API_TIMEOUT", cfg.API.Timeout.Duration)
	cfg.API.RateLimit = getEnvInt("INVESTIGRAPH_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Session.Backend = strings.ToLower(getEnv("INVESTIGRAPH_SESSION_BACKEND", cfg.Session.Backend))
	cfg.Session.Path = getEnv("INVESTIGRAPH_SESSION_PATH", cfg.Session.Path)
	cfg.Session.Key = getEnv("INVESTIGRAPH_SESSION_KEY", cfg.Session.Key)
	cfg.Session.RedisURL = getEnv("REDIS_URL", cfg.Session.RedisURL)
	cfg.Session.DatabaseURL = getEnv("DATABASE_URL", cfg.Session.DatabaseURL)

	cfg.Dashboard.PollInterval.Duration = getEnvDuration("INVESTIGRAPH_POLL_INTERVAL", cfg.Dashboard.PollInterval.Duration)
	cfg.Dashboard.ImportInterval.Duration = getEnvDuration("INVESTIGRAPH_IMPORT_INTERVAL", cfg.Dashboard.ImportInterval.Duration)
	cfg.Dashboard.ImportMaxAttempts = getEnvInt("INVESTIGRAPH_IMPORT_MAX_ATTEMPTS", cfg.Dashboard.ImportMaxAttempts)
	cfg.Dashboard.MinUploadDuration.Duration = getEnvDuration("INVESTIGRAPH_MIN_UPLOAD_DURATION", cfg.Dashboard.MinUploadDuration.Duration)

	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.API.URL == "" {
		errs = append(errs, errors.New("api url is required"))
	}
	if c.API.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("api timeout must be positive"))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}

	switch c.Session.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Session.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis session backend"))
		}
	case BackendPostgres:
		if c.Session.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q (use: file, redis, or postgres)", c.Session.Backend))
	}

	if c.Dashboard.PollInterval.Duration <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Dashboard.ImportInterval.Duration <= 0 {
		errs = append(errs, errors.New("import interval must be positive"))
	}
	if c.Dashboard.ImportMaxAttempts <= 0 {
		errs = append(errs, errors.New("import max attempts must be positive"))
	}
	if c.Dashboard.MinUploadDuration.Duration < 0 {
		errs = append(errs, errors.New("min upload duration must not be negative"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q (use: text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// HTTPAddr returns the local server listen address
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// NewLogger builds the process logger from the log settings
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("2s") or plain seconds ("2")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
