package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvListen, EnvDB, EnvJWTSecret, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.MaxUploadBytes() != 50<<20 {
		t.Fatalf("upload bytes: %d", cfg.MaxUploadBytes())
	}
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audioscribe.yaml")
	yaml := `
listen: ":9000"
max_upload_mb: 10
log_level: debug
credits:
  extract_cost: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	clearEnv(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" || cfg.MaxUploadMB != 10 || cfg.Credits.ExtractCost != 3 {
		t.Fatalf("file values: %+v", cfg)
	}
	// Untouched fields keep their defaults.
	if cfg.Credits.SignupGrant != 20 || cfg.MaxConcurrent != 4 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("level: %v", cfg.Level())
	}
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDB, "/tmp/other.db")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Fatalf("env override: %q", cfg.DBPath)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("listen: [unterminated"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvListen:    ":7000",
		EnvJWTSecret: "s3cret",
		EnvLogLevel:  "warn",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Listen != ":7000" || cfg.JWTSecret != "s3cret" || cfg.LogLevel != "warn" {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.DBPath != DefaultConfig().DBPath {
		t.Fatalf("unset env must not override: %q", cfg.DBPath)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"no listen":      func(c *Config) { c.Listen = "" },
		"no db":          func(c *Config) { c.DBPath = "" },
		"no obs db":      func(c *Config) { c.ObsDBPath = "" },
		"zero upload":    func(c *Config) { c.MaxUploadMB = 0 },
		"zero workers":   func(c *Config) { c.MaxConcurrent = 0 },
		"bad level":      func(c *Config) { c.LogLevel = "verbose" },
		"negative price": func(c *Config) { c.Credits.ExtractCost = -1 },
	}
	for name, mutate := range tests {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("log output: %s", out)
	}
}

func TestValidate_TrustedProxies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.7", "::1"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid proxies rejected: %v", err)
	}
	cfg.TrustedProxies = []string{"lb.internal"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for a hostname")
	}
}
