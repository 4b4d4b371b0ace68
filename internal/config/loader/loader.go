// Package loader provides the raw value sources of a project configuration.
//
// A Loader wraps one section of a backing store (an INI section, a TOML or
// JSONC table, an in-memory map, or a set of command-line overrides) and
// exposes key discovery and raw value retrieval. Loaders never convert or
// substitute values; they only hand out RawValues and optionally prepare
// them for substitution.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// RawValue is an unsubstituted, untyped configuration value. It is either
// text (INI values, TOML strings) or a structured value decoded from a
// nested-table format (lists, tables, numbers, booleans).
type RawValue struct {
	text       string
	value      any
	structured bool
}

// Text creates a textual RawValue.
func Text(s string) RawValue {
	return RawValue{text: s}
}

// Structured creates a structured RawValue. Strings are stored as text.
func Structured(v any) RawValue {
	if s, ok := v.(string); ok {
		return Text(s)
	}
	return RawValue{value: v, structured: true}
}

// IsText reports whether the value is the text variant.
func (r RawValue) IsText() bool {
	return !r.structured
}

// Text returns the textual content; structured values are formatted.
func (r RawValue) Text() string {
	if r.structured {
		return fmt.Sprint(r.value)
	}
	return r.text
}

// Value returns the underlying value (a string for text values).
func (r RawValue) Value() any {
	if r.structured {
		return r.value
	}
	return r.text
}

// Loader is a raw value source for one section of configuration.
type Loader interface {
	// Name identifies the section, e.g. "testenv:py312" or "env_run_base".
	Name() string

	// FoundKeys lists the keys present in this source.
	FoundKeys() []string

	// LoadRaw returns the raw value for key, or an error matching
	// errors.ErrKeyNotFound when the key is absent from this source.
	LoadRaw(key string) (RawValue, error)

	// Prepare pre-processes a raw value before substitution for the named
	// environment ("" when resolving the core namespace).
	Prepare(key string, raw RawValue, envName string) (RawValue, error)
}

// MemoryLoader serves values from an in-memory map.
type MemoryLoader struct {
	name   string
	values map[string]any
}

// NewMemoryLoader creates a loader over values. String values become text.
func NewMemoryLoader(name string, values map[string]any) *MemoryLoader {
	if values == nil {
		values = make(map[string]any)
	}
	return &MemoryLoader{name: name, values: values}
}

// Name implements Loader.
func (l *MemoryLoader) Name() string { return l.name }

// FoundKeys implements Loader.
func (l *MemoryLoader) FoundKeys() []string {
	return sortedKeys(l.values)
}

// LoadRaw implements Loader.
func (l *MemoryLoader) LoadRaw(key string) (RawValue, error) {
	v, ok := l.values[key]
	if !ok {
		return RawValue{}, cfgerrors.NewKeyNotFound(l.name, key)
	}
	return Structured(v), nil
}

// Prepare implements Loader. In-memory values need no preparation.
func (l *MemoryLoader) Prepare(_ string, raw RawValue, _ string) (RawValue, error) {
	return raw, nil
}

// Set stores a value.
func (l *MemoryLoader) Set(key string, value any) {
	l.values[key] = value
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FileSystem is an abstraction for file system operations.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	fs.FS
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// Open implements fs.FS.
func (OSFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}
