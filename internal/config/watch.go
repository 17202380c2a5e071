package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is invoked with a freshly loaded and validated Config after
// the watched file changes. A parse/validation error from Load is
// logged and the previous Config is kept in effect — a bad edit never
// tears down a running router.
type ReloadFunc func(*Config)

// Watcher watches a config file for changes and triggers reloads.
type Watcher struct {
	path   string
	fsw    *fsnotify.Watcher
	logger *slog.Logger
	done   chan struct{}
}

// Watch starts watching path's directory (editors commonly replace the
// file via rename-into-place, which fsnotify only sees as an event on
// the containing directory) and calls onReload on every write/create
// event that resolves back to path.
func Watch(path string, logger *slog.Logger, onReload ReloadFunc) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, logger: logger, done: make(chan struct{})}
	abs, _ := filepath.Abs(path)

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(ev.Name)
				if evAbs != abs {
					continue
				}
				if !(ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(100*time.Millisecond, func() {
					cfg, err := Load(path)
					if err != nil {
						logger.Error("config reload failed, keeping previous configuration", "error", err)
						return
					}
					logger.Info("configuration reloaded", "path", path)
					onReload(cfg)
				})
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", "error", err)
			case <-w.done:
				return
			}
		}
	}()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
