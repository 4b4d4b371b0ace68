package convert

import (
	"bufio"
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// fileLinePrefix marks a set_env line naming a dotenv file to load.
const fileLinePrefix = "file|"

// ChainPrefix marks variable table entries on a resolution chain.
const ChainPrefix = "env:"

// SetEnv is a variable table whose entries are substituted on first use.
// Entries may reference each other through the env: directive, so the
// table cannot be resolved eagerly when it is converted.
type SetEnv struct {
	raw          map[string]string
	order        []string
	files        []string
	materialized map[string]string

	substitute Substituter
	readFile   func(string) ([]byte, error)
	filesRead  bool
	loadErr    error
}

// NewSetEnv creates a table from raw entries.
func NewSetEnv(entries map[string]string) *SetEnv {
	s := &SetEnv{
		raw:          make(map[string]string, len(entries)),
		materialized: make(map[string]string),
	}
	for _, k := range sortedKeys(entries) {
		s.add(k, entries[k])
	}
	return s
}

// ParseSetEnv parses "KEY=VALUE" lines. A "file|PATH" line names a dotenv
// file whose entries are loaded on first access; explicit lines win over
// file entries. Lines without "=" are ignored.
func ParseSetEnv(text string) *SetEnv {
	s := NewSetEnv(nil)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if path, ok := strings.CutPrefix(line, fileLinePrefix); ok {
			s.files = append(s.files, strings.TrimSpace(path))
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		s.add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return s
}

func (s *SetEnv) add(k, v string) {
	if !slices.Contains(s.order, k) {
		s.order = append(s.order, k)
	}
	s.raw[k] = v
}

// Bind attaches the entry substituter and the dotenv file reader.
func (s *SetEnv) Bind(sub Substituter, readFile func(string) ([]byte, error)) {
	s.substitute = sub
	s.readFile = readFile
}

// Has reports whether name is an entry of the table. It reports true when
// a dotenv file failed to load so that Load returns the failure.
func (s *SetEnv) Has(name string) bool {
	if err := s.loadFiles(); err != nil {
		return true
	}
	if _, ok := s.materialized[name]; ok {
		return true
	}
	_, ok := s.raw[name]
	return ok
}

// Keys lists the entry names in definition order.
func (s *SetEnv) Keys() ([]string, error) {
	if err := s.loadFiles(); err != nil {
		return nil, err
	}
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys, nil
}

// Load returns the substituted value of name. chain is the resolution
// chain of the caller; the entry is resolved with ChainPrefix+name appended.
func (s *SetEnv) Load(name string, chain []string) (string, error) {
	if err := s.loadFiles(); err != nil {
		return "", err
	}
	if v, ok := s.materialized[name]; ok {
		return v, nil
	}
	raw, ok := s.raw[name]
	if !ok {
		return "", fmt.Errorf("variable %q is not set", name)
	}
	value := raw
	if s.substitute != nil {
		next := append(slices.Clip(chain), ChainPrefix+name)
		resolved, err := s.substitute(raw, s, next)
		if err != nil {
			return "", err
		}
		value = resolved
	}
	s.materialized[name] = value
	return value, nil
}

// All resolves every entry.
func (s *SetEnv) All() (map[string]string, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := s.Load(k, nil)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// UpdateIfMissing sets k to the literal v unless the table defines k.
func (s *SetEnv) UpdateIfMissing(k, v string) {
	if s.Has(k) {
		return
	}
	s.order = append(s.order, k)
	s.materialized[k] = v
}

// Merge adds the entries and dotenv files of other. Entries of other
// replace same-named entries of s.
func (s *SetEnv) Merge(other *SetEnv) {
	for _, k := range other.order {
		v, ok := other.raw[k]
		if !ok {
			continue
		}
		s.add(k, v)
		delete(s.materialized, k)
	}
	if len(other.files) > 0 {
		s.files = append(s.files, other.files...)
		s.filesRead = false
		s.loadErr = nil
	}
}

// Raw returns the unsubstituted value of name.
func (s *SetEnv) Raw(name string) (string, bool) {
	v, ok := s.raw[name]
	return v, ok
}

// loadFiles reads the dotenv files once. A failure is kept and returned on
// every later call.
func (s *SetEnv) loadFiles() error {
	if s.filesRead || len(s.files) == 0 {
		return s.loadErr
	}
	s.filesRead = true
	s.loadErr = s.readFiles()
	return s.loadErr
}

func (s *SetEnv) readFiles() error {
	if s.readFile == nil {
		return fmt.Errorf("set_env file lines need a file reader")
	}
	for _, path := range s.files {
		if s.substitute != nil {
			resolved, err := s.substitute(path, s, nil)
			if err != nil {
				return err
			}
			path = resolved
		}
		data, err := s.readFile(path)
		if err != nil {
			return fmt.Errorf("reading set_env file %s: %w", path, err)
		}
		entries := parseDotenv(data)
		for _, k := range sortedKeys(entries) {
			if _, ok := s.raw[k]; !ok {
				s.add(k, entries[k])
			}
		}
	}
	return nil
}

// parseDotenv reads KEY=VALUE lines, skipping comments and an optional
// "export " prefix. Matching surrounding quotes are removed.
func parseDotenv(data []byte) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		out[strings.TrimSpace(k)] = v
	}
	return out
}
