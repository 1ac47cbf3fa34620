package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the truncate+write (or write+rename) bursts
// editors produce into one reload.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with the new
// Config. It runs until ctx is cancelled.
//
// The parent directory is watched so that editors which save by renaming a
// temporary file over path are seen. A reload that fails to load or
// validate is logged and the previous config stays active. Saves that leave
// every section unchanged do not call onChange.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	current, err := Load(path)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	slog.Info("config: watching for changes", "path", path)

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			next, err := Load(path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
				}
				continue
			}
			changed := Changes(current, next)
			if len(changed) == 0 {
				slog.Debug("config: file saved without changes", "path", path)
				continue
			}
			if restart := RestartRequired(changed); len(restart) > 0 {
				slog.Warn("config: some changes apply only after a restart", "sections", restart)
			}
			slog.Info("config: reloaded", "path", path, "changed", changed)
			current = next
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
