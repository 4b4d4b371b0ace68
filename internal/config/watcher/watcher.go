// Package watcher reports changes to project files so a resolved
// configuration can be rebuilt.
//
// Files are watched through their parent directory, so editors that save by
// writing a temporary file and renaming it over the original are seen as a
// single change.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/envforge/internal/logging"
)

// ErrClosed is returned by operations on a closed Watcher.
var ErrClosed = errors.New("watcher closed")

// Event represents a file change event.
type Event struct {
	// Path is the absolute path to the changed file.
	Path string

	// Op is the operation that triggered the event.
	Op Operation

	// Time is when the last raw event for the path arrived.
	Time time.Time
}

// Operation represents the type of file operation.
type Operation int

const (
	// OpWrite indicates the file was modified.
	OpWrite Operation = iota

	// OpCreate indicates a new file was created.
	OpCreate

	// OpRemove indicates the file was deleted.
	OpRemove

	// OpRename indicates the file was renamed.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Handler is called when a file change is detected.
type Handler func(event Event)

// Watcher monitors files for changes.
type Watcher struct {
	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	files  map[string]struct{}
	dirs   map[string]struct{}
	closed bool

	debounce time.Duration
	log      *logging.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must be quiet before its coalesced
// event is delivered. Zero delivers every raw event.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New creates a new file watcher.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		debounce: 100 * time.Millisecond,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds a file to the watch list. The file need not exist yet, but its
// directory must.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	dir := filepath.Dir(absPath)
	if _, ok := w.dirs[dir]; !ok {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = struct{}{}
	}
	w.files[absPath] = struct{}{}
	return nil
}

// WatchedFiles returns the sorted list of watched files.
func (w *Watcher) WatchedFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.files))
	for path := range w.files {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[filepath.Clean(path)]
	return ok
}

// Run delivers events for watched files to handler until ctx is done or
// the watcher is closed. Handlers run on the calling goroutine.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	pending := make(map[string]Event)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case raw, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			op, relevant := translate(raw.Op)
			if !relevant || !w.watched(raw.Name) {
				continue
			}
			event := Event{Path: filepath.Clean(raw.Name), Op: op, Time: time.Now()}
			if w.debounce == 0 {
				w.emit(handler, event)
				continue
			}
			if prev, ok := pending[event.Path]; ok {
				event.Op = coalesce(prev.Op, event.Op)
			}
			pending[event.Path] = event
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")

		case <-timerC:
			timer, timerC = nil, nil
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				w.emit(handler, pending[path])
				delete(pending, path)
			}
		}
	}
}

// emit calls handler with panic recovery so a failing handler does not
// stop the watch loop.
func (w *Watcher) emit(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watch handler panicked on %s: %v", event.Path, r)
		}
	}()
	handler(event)
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}

func translate(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	default:
		return 0, false
	}
}

// coalesce merges the pending operation for a path with a newer one:
// a remove always wins, a create is kept over later writes, and anything
// else takes the newer operation.
func coalesce(existing, next Operation) Operation {
	switch next {
	case OpRemove:
		return OpRemove
	case OpWrite:
		if existing == OpCreate || existing == OpRemove {
			// A remove followed by a write is a replace.
			return OpCreate
		}
		return OpWrite
	default:
		return next
	}
}
