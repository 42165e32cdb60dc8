package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestDefaultPath_UsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got, want := DefaultPath(), filepath.Join("/tmp/xdg", "hivescan", "config.toml"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	t.Setenv(DSNEnv, "")
	path := writeFile(t, "config.toml", `
workers = 6
workers_per_hive = 3
beehive = true
scheduler = "spawnscan"
max_empty = 0
location = "40.7484,-73.9857"
hash_keys = ["K1", "K2"]

[webhooks]
urls = ["http://127.0.0.1:4000/hook"]
blacklist = [13, 16]

[storage]
driver = "memory"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected load, got %v", err)
	}
	if cfg.Workers != 6 || cfg.WorkersPerHive != 3 || !cfg.Beehive || cfg.Scheduler != "spawnscan" {
		t.Fatalf("unexpected hive options %+v", cfg)
	}
	if cfg.LoginRetries != 3 || cfg.ScanDelaySeconds != 10 || cfg.AccountMaxSpins != 20 {
		t.Fatalf("expected defaults for missing keys, got retries=%d delay=%d spins=%d", cfg.LoginRetries, cfg.ScanDelaySeconds, cfg.AccountMaxSpins)
	}
	if len(cfg.HashKeys) != 2 || len(cfg.Webhooks.Blacklist) != 2 || cfg.Webhooks.TimeoutSeconds != 2 {
		t.Fatalf("unexpected list options %+v %+v", cfg.HashKeys, cfg.Webhooks)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected memory storage, got %s", cfg.Storage.Driver)
	}
}

func TestLoad_BackfillsBlankedOptions(t *testing.T) {
	path := writeFile(t, "config.toml", `
scheduler = ""
api_version = ""
[captcha]
refresh_seconds = 0
[storage]
driver = ""
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected load, got %v", err)
	}
	if cfg.Scheduler != "hexsearch" || cfg.APIVersion != "0.57.2" || cfg.Captcha.RefreshSeconds != 5 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("expected backfilled defaults, got %+v", cfg)
	}
}

func TestLoad_EnvOverridesDSN(t *testing.T) {
	t.Setenv(DSNEnv, "postgres://scanner@db/hivescan")
	path := writeFile(t, "config.toml", `
[storage]
driver = "postgres"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected load, got %v", err)
	}
	if cfg.Storage.DSN != "postgres://scanner@db/hivescan" {
		t.Fatalf("expected dsn from env, got %q", cfg.Storage.DSN)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.toml", "wokers = 3\n")
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "wokers") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

func TestValidate_RejectsImpossibleValues(t *testing.T) {
	cases := map[string]func(*Config){
		"workers":          func(c *Config) { c.Workers = 0 },
		"workers_per_hive": func(c *Config) { c.WorkersPerHive = 0 },
		"scheduler":        func(c *Config) { c.Scheduler = "speedscan" },
		"max_failures":     func(c *Config) { c.MaxFailures = -1 },
		"captcha.solving":  func(c *Config) { c.Captcha.Solving = true },
		"storage.dsn":      func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" },
		"storage.driver":   func(c *Config) { c.Storage.Driver = "mongo" },
		"location":         func(c *Config) { c.Location = "91,0" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: expected the option named in %q", name, err)
		}
	}
}

func TestParseLocation(t *testing.T) {
	lat, lng, err := ParseLocation(" 35.6586 , 139.7454 ")
	if err != nil || lat != 35.6586 || lng != 139.7454 {
		t.Fatalf("expected 35.6586,139.7454, got %v,%v %v", lat, lng, err)
	}
	for _, bad := range []string{"", "1", "a,b", "0,181"} {
		if _, _, err := ParseLocation(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRuntime(t *testing.T) {
	cfg := Default()
	cfg.Webhooks.SchedulerUpdates = true
	cfg.StatsLogTimer = 4
	rt := cfg.Runtime()
	if rt.MaxThrows != 100 || rt.MaxCatches != 50 || rt.MaxSpins != 20 || rt.StatsLogTimer != 4 || !rt.SchedulerUpdates {
		t.Fatalf("unexpected runtime options %+v", rt)
	}
	if Seconds(cfg.ScanDelaySeconds) != 10*time.Second {
		t.Fatalf("expected 10s scan delay, got %s", Seconds(cfg.ScanDelaySeconds))
	}
}
