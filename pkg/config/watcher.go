// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls the service artefact directory for changes and notifies
// listeners, so a running surface can reload artefacts without a restart.
// Polling keeps the behaviour identical across platforms and survives
// directory renames that inotify-style watchers miss.
type Watcher struct {
	mu          sync.RWMutex
	dir         string
	interval    time.Duration
	lastModTime map[string]time.Time
	listeners   []func()
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher over the given artefact directory.
func NewWatcher(dir string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:         dir,
		interval:    2 * time.Second,
		lastModTime: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.snapshot()
	return w
}

// OnChange registers a callback invoked after the directory changes.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins watching. It returns immediately; polling runs until the
// context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for the polling loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.changed() {
				w.notify()
			}
		}
	}
}

// snapshot records the current mod time of every file under the directory.
func (w *Watcher) snapshot() map[string]time.Time {
	seen := make(map[string]time.Time)
	_ = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		seen[path] = info.ModTime()
		return nil
	})
	w.mu.Lock()
	w.lastModTime = seen
	w.mu.Unlock()
	return seen
}

func (w *Watcher) changed() bool {
	if _, err := os.Stat(w.dir); err != nil {
		return false
	}
	w.mu.RLock()
	previous := w.lastModTime
	w.mu.RUnlock()

	current := w.snapshot()
	if len(current) != len(previous) {
		return true
	}
	for path, mod := range current {
		last, ok := previous[path]
		if !ok || mod.After(last) {
			return true
		}
	}
	return false
}

func (w *Watcher) notify() {
	w.logger.Info("service artefacts changed", "dir", w.dir)

	w.mu.RLock()
	listeners := make([]func(), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
