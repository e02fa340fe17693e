package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Invalidator drops every cached entry compiled from a path
type Invalidator interface {
	Invalidate(path string)
}

// Watcher invalidates cached templates when files under the template root
// change. Changes are collected for the debounce delay and flushed together.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	cache    Invalidator
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New creates a watcher over root and every directory below it
func New(root string, cache Invalidator, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		root:     absRoot,
		watcher:  fsw,
		cache:    cache,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]struct{}),
	}

	if err := w.addRecursive(absRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// addRecursive watches dir and all of its subdirectories
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes file events until ctx is cancelled, then flushes pending
// invalidations and closes the underlying watcher
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("watching templates", zap.String("root", w.root))

	defer func() {
		w.stopTimer()
		w.flush()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("failed to close file watcher", zap.Error(err))
		}
		w.logger.Info("template watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	path := filepath.Clean(event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				w.logger.Warn("failed to watch new directory",
					zap.String("path", path),
					zap.Error(err),
				)
			}
			return
		}
	}

	w.logger.Debug("template changed",
		zap.String("path", path),
		zap.String("op", event.Op.String()),
	)
	w.enqueue(path)
}

// enqueue records path and arms the debounce timer
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	w.pending[path] = struct{}{}
	armed := w.timer != nil
	if !armed && w.debounce > 0 {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	}
	w.mu.Unlock()

	if w.debounce <= 0 {
		w.flush()
	}
}

// flush invalidates every pending path once
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	clear(w.pending)
	w.timer = nil
	w.mu.Unlock()

	for _, path := range paths {
		w.cache.Invalidate(path)
	}
	if len(paths) > 0 {
		w.logger.Info("invalidated templates", zap.Strings("paths", paths))
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
