package envcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
	"github.com/dshills/envforge/internal/logging"
)

// FileName is the snapshot file inside an environment directory.
const FileName = ".envforge-info.json"

// ErrSettled is returned by Commit when the pending decision was already
// committed or abandoned.
var ErrSettled = errors.New("decision already settled")

// Action is the outcome of comparing a fresh snapshot to the persisted one.
type Action int

const (
	// Create builds an environment that has no snapshot.
	Create Action = iota
	// Keep reuses the environment as it is.
	Keep
	// Recreate tears the environment down and builds it again.
	Recreate
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Keep:
		return "keep"
	case Recreate:
		return "recreate"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Cache manages the snapshot file of one environment.
type Cache struct {
	dir string
	log *logging.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

// New creates a Cache for the environment directory dir.
func New(dir string, opts ...Option) *Cache {
	c := &Cache{dir: dir, log: logging.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the environment directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the snapshot file path.
func (c *Cache) Path() string { return filepath.Join(c.dir, FileName) }

// Load reads the persisted snapshot. It returns (nil, nil) when there is
// none and an error matching ErrCacheCorrupt when it cannot be decoded.
func (c *Cache) Load() (Snapshot, error) {
	data, err := os.ReadFile(c.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &cfgerrors.CacheError{Path: c.Path(), Err: err}
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &cfgerrors.CacheError{Path: c.Path(), Err: err}
	}
	if s == nil {
		return nil, &cfgerrors.CacheError{Path: c.Path(), Err: errors.New("snapshot is not an object")}
	}
	return s, nil
}

// Pending is a decision that still has to be committed or abandoned.
type Pending struct {
	// Action is what the caller must do before committing.
	Action Action

	// Diff lists what changed; empty for Create and for a forced Recreate.
	Diff Diff

	// Previous is the persisted snapshot, nil for Create.
	Previous Snapshot

	cache    *Cache
	snapshot Snapshot
	settled  bool
}

// Check compares snapshot with the persisted one. force requests Recreate
// even when they are equal. Unreadable snapshots count as absent, so Check
// fails only when snapshot itself cannot be encoded.
func (c *Cache) Check(snapshot Snapshot, force bool) (*Pending, error) {
	fresh, err := snapshot.normalize()
	if err != nil {
		return nil, err
	}

	p := &Pending{cache: c, snapshot: fresh}
	previous, err := c.Load()
	if err != nil {
		c.log.WithError(err).Warn("ignoring unreadable snapshot %s", c.Path())
		previous = nil
	}

	switch {
	case previous == nil:
		p.Action = Create
	case reflect.DeepEqual(previous, fresh):
		p.Action = Keep
		if force {
			p.Action = Recreate
		}
	default:
		p.Action = Recreate
		p.Diff = Compare(previous, fresh)
	}
	p.Previous = previous

	c.log.WithFields(map[string]any{
		"action":  p.Action.String(),
		"added":   p.Diff.Added,
		"removed": p.Diff.Removed,
		"changed": p.Diff.Changed,
		"forced":  force,
	}).Info("%s: environment %s", c.dir, p.Action)
	return p, nil
}

// Commit persists the snapshot after a successful Create or Recreate. It is
// a no-op for Keep.
func (p *Pending) Commit() error {
	if p.settled {
		return ErrSettled
	}
	p.settled = true
	if p.Action == Keep {
		return nil
	}
	return p.cache.write(p.snapshot)
}

// Abandon settles the decision without touching the disk. It is safe to
// call more than once.
func (p *Pending) Abandon() {
	p.settled = true
}

// Snapshot returns the snapshot Commit persists.
func (p *Pending) Snapshot() Snapshot {
	return p.snapshot
}

// write replaces the snapshot file atomically: write a temporary file,
// sync, close, rename, then sync the directory.
func (c *Cache) write(s Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating environment directory: %w", err)
	}

	file, err := os.CreateTemp(c.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary snapshot file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("writing temporary snapshot file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("syncing temporary snapshot file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temporary snapshot file: %w", err)
	}

	if err := os.Rename(tempPath, c.Path()); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	syncDir(c.dir)
	c.log.Debug("wrote snapshot %s", c.Path())
	return nil
}

// syncDir flushes the rename to disk. Not every platform supports syncing
// a directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
