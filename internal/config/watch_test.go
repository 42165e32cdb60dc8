package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_AppliesValidReloadsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("stats_log_timer = 1\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Watch(ctx, path, func(c *Config) { got <- c }) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("workers = 0\n"), 0o644); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	select {
	case c := <-got:
		t.Fatalf("expected invalid config to be skipped, got %+v", c)
	case <-time.After(time.Second):
	}

	if err := os.WriteFile(path, []byte("stats_log_timer = 9\naccount_max_spins = 2\n"), 0o644); err != nil {
		t.Fatalf("write valid: %v", err)
	}
	select {
	case c := <-got:
		if c.StatsLogTimer != 9 || c.AccountMaxSpins != 2 {
			t.Fatalf("expected reloaded values, got timer=%d spins=%d", c.StatsLogTimer, c.AccountMaxSpins)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected a reload")
	}
}
