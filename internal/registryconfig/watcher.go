package registryconfig

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Snapshot holds an atomically-swappable, immutable registry document.
// Readers call Load and never block on a concurrent reload; a reload
// replaces the pointer wholesale rather than mutating shared state, so a
// reader mid-lookup always sees one consistent generation.
type Snapshot[T any] struct {
	ptr atomic.Pointer[T]
}

// Load returns the current registry generation.
func (s *Snapshot[T]) Load() *T {
	return s.ptr.Load()
}

// Store installs a new registry generation.
func (s *Snapshot[T]) Store(doc *T) {
	s.ptr.Store(doc)
}

// Watcher reloads a Snapshot[T] whenever the underlying file (or any file it
// transitively $includes) changes on disk, using fsnotify for notification.
// A failed reload logs and keeps serving the last good snapshot.
type Watcher[T any] struct {
	path     string
	snapshot *Snapshot[T]
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}

	// onReload, if set, runs after every successful reload (including the
	// initial load performed by NewWatcher), so callers that derive a
	// secondary structure from T (e.g. a validated, indexed generation) can
	// rebuild it whenever the raw document changes.
	onReload func(*T)
}

// NewWatcher performs the initial load into snapshot, starts the fsnotify
// watch on path's directory in its own goroutine (fsnotify watches
// directories more reliably than single files across editors that
// replace-on-save), and returns the running Watcher. Callers should call
// Close when done. onReload may be nil; when set, it runs once for the
// initial load and again after every successful subsequent reload.
func NewWatcher[T any](path string, snapshot *Snapshot[T], logger *slog.Logger, onReload func(*T)) (*Watcher[T], error) {
	doc, err := Load[T](path)
	if err != nil {
		return nil, err
	}
	snapshot.Store(doc)
	if onReload != nil {
		onReload(doc)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher[T]{
		path:     path,
		snapshot: snapshot,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
		onReload: onReload,
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// loop watches path's directory for changes and reloads on each write/create
// event, until Close is called.
func (w *Watcher[T]) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("registry watcher error", "error", err, "path", w.path)
			}
		}
	}
}

func (w *Watcher[T]) reload() {
	doc, err := Load[T](w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("registry reload failed, keeping prior snapshot", "error", err, "path", w.path)
		}
		return
	}
	w.snapshot.Store(doc)
	if w.onReload != nil {
		w.onReload(doc)
	}
	if w.logger != nil {
		w.logger.Info("registry reloaded", "path", w.path)
	}
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher[T]) Close() error {
	close(w.done)
	return w.watcher.Close()
}
