// Package config loads the audioscribe service configuration: defaults,
// then an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/audioscribe/shield"
)

// Config holds the full service configuration.
type Config struct {
	Listen        string        `yaml:"listen"`
	DBPath        string        `yaml:"db_path"`
	ObsDBPath     string        `yaml:"obs_db_path"`
	MaxUploadMB   int           `yaml:"max_upload_mb"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	JWTSecret     string        `yaml:"jwt_secret"`
	LogLevel      string        `yaml:"log_level"`
	MCPEnabled    bool          `yaml:"mcp_enabled"`
	MCPRoot       string        `yaml:"mcp_root"` // directory the MCP tools may read
	Credits       CreditsConfig `yaml:"credits"`

	// TrustedProxies lists the reverse proxies (CIDR or address) whose
	// X-Forwarded-For header names the client. Empty ignores the header.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// CreditsConfig prices each operation in credits.
type CreditsConfig struct {
	ExtractCost  int64 `yaml:"extract_cost"`
	ValidateCost int64 `yaml:"validate_cost"`
	EstimateCost int64 `yaml:"estimate_cost"`
	SignupGrant  int64 `yaml:"signup_grant"`
}

// DefaultConfig returns sane defaults. JWTSecret has no default.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8090",
		DBPath:        "data/audioscribe.db",
		ObsDBPath:     "data/observability.db",
		MaxUploadMB:   50,
		MaxConcurrent: 4,
		LogLevel:      "info",
		MCPEnabled:    true,
		MCPRoot:       "data/documents",
		Credits: CreditsConfig{
			ExtractCost:  1,
			ValidateCost: 0,
			EstimateCost: 0,
			SignupGrant:  20,
		},
	}
}

// Env variable names read by ApplyEnv.
const (
	EnvListen    = "AUDIOSCRIBE_LISTEN"
	EnvDB        = "AUDIOSCRIBE_DB"
	EnvJWTSecret = "AUDIOSCRIBE_JWT_SECRET"
	EnvLogLevel  = "LOG_LEVEL"
)

// Load builds the configuration. An empty path skips the file. The result
// is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from non-empty environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := getenv(EnvDB); v != "" {
		c.DBPath = v
	}
	if v := getenv(EnvJWTSecret); v != "" {
		c.JWTSecret = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.ObsDBPath == "" {
		errs = append(errs, errors.New("obs_db_path is required"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max_upload_mb must be > 0"))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("max_concurrent must be > 0"))
	}
	if _, ok := levels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", c.LogLevel))
	}
	if _, err := shield.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, err)
	}
	cr := c.Credits
	if cr.ExtractCost < 0 || cr.ValidateCost < 0 || cr.EstimateCost < 0 || cr.SignupGrant < 0 {
		errs = append(errs, errors.New("credits values must be >= 0"))
	}
	return errors.Join(errs...)
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	if l, ok := levels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}

// NewLogger returns a JSON logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}
