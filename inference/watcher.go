package inference

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader is what the watcher triggers after the artifact file changes.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher reloads the service when the artifact file is written. The parent
// directory is watched so that atomic rename-into-place is seen.
type Watcher struct {
	path     string
	debounce time.Duration
	target   Reloader
	logger   *zap.Logger
}

func NewWatcher(path string, debounce time.Duration, target Reloader, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{path: filepath.Clean(path), debounce: debounce, target: target, logger: logger}
}

// Run blocks until ctx is cancelled or the watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching artifact", zap.String("path", w.path))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))

		case <-timer.C:
			if err := w.target.Reload(ctx); err != nil {
				w.logger.Error("artifact reload failed, keeping previous model", zap.Error(err))
				continue
			}
			w.logger.Info("artifact reloaded", zap.String("path", w.path))
		}
	}
}
