package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Benny93/depsphere-go/internal/graph"
)

// MapEvent converts a filesystem event into a change event. Attribute-only
// changes are dropped.
func MapEvent(event fsnotify.Event, now time.Time) (graph.GraphChangeEvent, bool) {
	var changeType graph.ChangeType
	switch {
	case event.Has(fsnotify.Create):
		changeType = graph.DocumentAdded
	case event.Has(fsnotify.Remove):
		changeType = graph.DocumentRemoved
	case event.Has(fsnotify.Rename):
		changeType = graph.DocumentRenamed
	case event.Has(fsnotify.Write):
		changeType = graph.DocumentChanged
	default:
		return graph.GraphChangeEvent{}, false
	}
	return graph.GraphChangeEvent{Type: changeType, Path: event.Name, OccurredAt: now}, true
}

// Watcher monitors a workspace and reports changes to tracked files.
type Watcher struct {
	root   string
	filter *Filter
	logger *slog.Logger
	now    func() time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher for root. A nil filter applies only the
// default ignore patterns.
func NewWatcher(root string, filter *Filter, opts ...WatcherOption) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	if filter == nil {
		if filter, err = NewFilter(root, nil); err != nil {
			return nil, err
		}
	}

	w := &Watcher{
		root:   root,
		filter: filter,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the workspace recursively and calls emit for every tracked
// change. emit runs on the watcher goroutine. Run blocks until ctx is
// cancelled and then returns ctx.Err().
func (w *Watcher) Run(ctx context.Context, emit func(graph.GraphChangeEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	w.logger.Info("watching workspace", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(watcher, event, emit)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event, emit func(graph.GraphChangeEvent)) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.filter.Ignored(event.Name, true) {
				return
			}
			if err := w.addTree(watcher, event.Name); err != nil {
				w.logger.Warn("watching new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !ShouldTrack(event.Name) || w.filter.Ignored(event.Name, false) {
		return
	}

	change, ok := MapEvent(event, w.now())
	if !ok {
		return
	}
	w.logger.Debug("workspace change", "type", change.Type, "path", change.Path)
	emit(change)
}

// addTree adds dir and every non-ignored subdirectory to the watch.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.filter.Ignored(path, true) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
