package preset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of file events into one reload.
const DefaultDebounce = 300 * time.Millisecond

// Watch calls fn with the fresh preset set whenever the file changes,
// until ctx is done. The parent directory is watched so that atomic
// replacements and editors that rename over the file are seen. Load
// errors are logged and skipped.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, logger *log.Logger, fn func(map[string]Preset)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.Default()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger.Debug("Watching presets", "path", s.path)
	go s.watch(ctx, watcher, debounce, logger, fn)
	return nil
}

func (s *Store) watch(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration, logger *log.Logger, fn func(map[string]Preset)) {
	defer watcher.Close()

	name := filepath.Clean(s.path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			presets, err := s.All()
			if err != nil {
				logger.Warn("Failed to reload presets", "err", err)
				continue
			}
			logger.Info("Presets reloaded", "count", len(presets))
			fn(presets)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Preset watcher error", "err", err)
		}
	}
}
