package settings

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

// DefaultsWatcher serves a defaults table loaded from a file and reloads it
// when the file changes. A reload that fails keeps the last good table.
type DefaultsWatcher struct {
	path    string
	current atomic.Pointer[Defaults]
	logger  *observability.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDefaultsWatcher loads path and returns a watcher serving it. Call
// Start to begin watching.
func NewDefaultsWatcher(path string, logger *observability.Logger) (*DefaultsWatcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve defaults path: %w", err)
	}
	w := &DefaultsWatcher{
		path:   abs,
		logger: logger.WithField("defaults_file", abs),
		done:   make(chan struct{}),
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Defaults implements DefaultsProvider.
func (w *DefaultsWatcher) Defaults() *Defaults {
	return w.current.Load()
}

// Reload re-reads the file. On error the current table is kept.
func (w *DefaultsWatcher) Reload() error {
	d, err := LoadDefaultsFile(w.path)
	if err != nil {
		return err
	}
	w.current.Store(d)
	return nil
}

// Start watches the file's directory, so editors that replace the file by
// rename are picked up too.
func (w *DefaultsWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create defaults watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch defaults directory: %w", err)
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.loop()
	w.logger.Info("watching settings defaults file")
	return nil
}

func (w *DefaultsWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.WithError(err).Warn("settings defaults reload failed, keeping previous table")
				continue
			}
			w.logger.Info("settings defaults reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("settings defaults watcher error")
		}
	}
}

// Close stops watching. It is safe to call without Start.
func (w *DefaultsWatcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
