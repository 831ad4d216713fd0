// Package watcher reports debounced batches of changed project files.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/bundlr/internal/logging"
)

// FileWatcher watches a project tree and hands debounced change batches to
// its handlers.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	root      string
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger
	mutex     sync.RWMutex
}

// ChangeEvent is one file system change.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
}

// EventType is the kind of change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path should be watched.
type FileFilter func(path string) bool

// ChangeHandler receives one debounced batch.
type ChangeHandler func(events []ChangeEvent) error

// NewFileWatcher creates a watcher for the tree under root.
func NewFileWatcher(root string, delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileWatcher{
		watcher:   w,
		debouncer: NewDebouncer(delay),
		root:      abs,
		logger:    logger.WithComponent("watcher"),
	}, nil
}

// Root returns the absolute watch root.
func (fw *FileWatcher) Root() string {
	return fw.root
}

// AddFilter adds a filter. A path is watched only when every filter accepts it.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a batch handler.
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, f := range fw.filters {
		if !f(path) {
			return false
		}
	}
	return true
}

// AddPath watches a single directory inside the root.
func (fw *FileWatcher) AddPath(path string) error {
	abs, err := fw.validatePath(path)
	if err != nil {
		return err
	}
	return fw.watcher.Add(abs)
}

// AddRecursive watches dir and every accepted directory below it.
func (fw *FileWatcher) AddRecursive(dir string) error {
	abs, err := fw.validatePath(dir)
	if err != nil {
		return err
	}
	return filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != abs && !fw.accepts(path) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

func (fw *FileWatcher) validatePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(fw.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(fw.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the watch root %s", path, fw.root)
	}
	return path, nil
}

// Start begins watching. It returns immediately; events flow until ctx is
// done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.run(ctx)
	go fw.watchLoop(ctx)
	go fw.processEvents(ctx)
	return nil
}

// Stop releases the underlying watcher.
func (fw *FileWatcher) Stop() error {
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if !fw.accepts(event.Name) {
		return
	}

	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		return
	}

	changeEvent := ChangeEvent{Type: eventType, Path: event.Name}
	if info, err := os.Stat(event.Name); err == nil {
		changeEvent.ModTime = info.ModTime()
		if info.IsDir() {
			// New directories are watched so files created in them are seen.
			if eventType == EventTypeCreated {
				if err := fw.AddRecursive(event.Name); err != nil {
					fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
				}
			}
			return
		}
	}

	fw.debouncer.Add(ctx, changeEvent)
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-fw.debouncer.output:
			if !ok {
				return
			}
			fw.logger.Debug(ctx, "Files changed", "count", len(events))
			fw.mutex.RLock()
			handlers := append([]ChangeHandler(nil), fw.handlers...)
			fw.mutex.RUnlock()
			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Error(ctx, err, "Change handler failed")
				}
			}
		}
	}
}

// Batches returns a channel of changed paths, one sorted slice per debounced
// batch. The channel closes when ctx is done.
func (fw *FileWatcher) Batches(ctx context.Context) <-chan []string {
	out := make(chan []string, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		select {
		case out <- Paths(events):
		case <-ctx.Done():
		}
		return nil
	})
	go func() {
		<-ctx.Done()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out
}

// Paths returns the distinct paths of events in sorted order.
func Paths(events []ChangeEvent) []string {
	seen := make(map[string]bool, len(events))
	paths := make([]string, 0, len(events))
	for _, e := range events {
		if !seen[e.Path] {
			seen[e.Path] = true
			paths = append(paths, e.Path)
		}
	}
	sort.Strings(paths)
	return paths
}
