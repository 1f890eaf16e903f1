package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc is invoked when a watched file changes.
type ReloadFunc func(path string) error

// Watcher hot-reloads configuration files, primarily the tool catalog, so
// tools can be enabled or retiered without a restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	handlers map[string]ReloadFunc
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	started bool
	stopped chan struct{}
}

func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fsw,
		handlers: make(map[string]ReloadFunc),
		logger:   logger,
		debounce: 500 * time.Millisecond,
		stopped:  make(chan struct{}),
	}, nil
}

// Watch registers a reload handler for one file. Editors often replace files
// with rename+create, so the parent directory is watched and events are
// matched back to the registered path.
func (w *Watcher) Watch(path string, fn ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.handlers[abs] = fn
	w.mu.Unlock()
	return w.watcher.Add(filepath.Dir(abs))
}

// Start runs the watch loop until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.stopped)
		pending := make(map[string]time.Time)
		ticker := time.NewTicker(w.debounce)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = w.watcher.Close()
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				abs, err := filepath.Abs(ev.Name)
				if err != nil {
					continue
				}
				w.mu.Lock()
				_, watched := w.handlers[abs]
				w.mu.Unlock()
				if watched {
					pending[abs] = time.Now()
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", zap.Error(err))
			case <-ticker.C:
				now := time.Now()
				for path, at := range pending {
					if now.Sub(at) < w.debounce {
						continue
					}
					delete(pending, path)
					w.mu.Lock()
					fn := w.handlers[path]
					w.mu.Unlock()
					if fn == nil {
						continue
					}
					if err := fn(path); err != nil {
						w.logger.Error("config reload failed",
							zap.String("path", path),
							zap.Error(err),
						)
						continue
					}
					w.logger.Info("config reloaded", zap.String("path", path))
				}
			}
		}
	}()
}
