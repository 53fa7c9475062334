package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with every valid config that
// differs from the last one delivered. Reloads that fail to parse or validate are logged and
// skipped. The directory is watched rather than the file, editors often save by renaming a
// temporary file over the original.
//
// Watching stops when ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(Config)) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	path = filepath.Clean(path)

	current, err := Load(path)
	if err != nil {
		return fmt.Errorf("config.Watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config.Watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config.Watch: %w", err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	reload := func() {
		mu.Lock()
		defer mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		next, err := Load(path)
		if err != nil {
			logger.Warn("config reload failed", "path", path, "err", err)
			return
		}
		if err := next.Validate(); err != nil {
			logger.Warn("config reload rejected", "path", path, "err", err)
			return
		}
		if reflect.DeepEqual(current, next) {
			return
		}

		current = next
		logger.Info("config reloaded", "path", path)
		onChange(next)
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "err", err)
			}
		}
	}()

	return nil
}
