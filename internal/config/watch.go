package config

import (
	"context"
	"log/slog"

	"hivescan/internal/fswatch"
)

// Watch reloads path whenever it changes and hands every valid result to
// onChange. A file that fails to load is logged and skipped; the previous
// configuration stays in force. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if path == "" {
		path = DefaultPath()
	}
	return fswatch.Watch(ctx, path, fswatch.DefaultDebounce, func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Warn("config reload failed", "path", path, "err", err)
			return
		}
		slog.Info("config reloaded", "path", path)
		if onChange != nil {
			onChange(cfg)
		}
	})
}
