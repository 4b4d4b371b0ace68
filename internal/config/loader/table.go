package loader

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// Table names of the nested-table layout.
const (
	// EnvTable holds one sub-table per environment.
	EnvTable = "env"
	// RunBaseTable is inherited by every environment table.
	RunBaseTable = "env_run_base"
	// PkgBaseTable configures packaging environments.
	PkgBaseTable = "env_pkg_base"
	// LegacyINIKey embeds an INI document inside pyproject.toml.
	LegacyINIKey = "legacy_ini"
)

// TableSource is a project file in a nested-table format (TOML or JSONC).
// Core keys live at the root, environments under env.NAME.
type TableSource struct {
	path     string
	format   Format
	core     *TableLoader
	sections map[string]*TableLoader
	order    []string
	envs     []string
}

// ParseTOML parses a TOML project file.
func ParseTOML(path string, data []byte) (*TableSource, error) {
	var root map[string]any
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, &cfgerrors.ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return NewTableSource(path, FormatTOML, root), nil
}

// ParseJSONC strips comments and trailing commas, then parses the result as
// a JSON project file.
func ParseJSONC(path string, data []byte) (*TableSource, error) {
	var root map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &root); err != nil {
		return nil, &cfgerrors.ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return NewTableSource(path, FormatJSONC, root), nil
}

// ParsePyProject extracts the [tool.envforge] table of a pyproject.toml.
// A legacy_ini string inside the table is parsed as an embedded INI file.
// found is false when the file has no such table.
func ParsePyProject(path string, data []byte) (src Source, found bool, err error) {
	var root map[string]any
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, false, &cfgerrors.ParseError{Path: path, Message: err.Error(), Err: err}
	}
	tool, _ := root["tool"].(map[string]any)
	table, ok := tool["envforge"].(map[string]any)
	if !ok {
		return nil, false, nil
	}
	if legacy, ok := table[LegacyINIKey].(string); ok {
		iniSrc, err := ParseINI(path, []byte(legacy))
		if err != nil {
			return nil, false, err
		}
		return iniSrc, true, nil
	}
	return NewTableSource(path, FormatTOML, table), true, nil
}

// NewTableSource builds a source from a decoded root table.
func NewTableSource(path string, format Format, root map[string]any) *TableSource {
	if root == nil {
		root = make(map[string]any)
	}
	src := &TableSource{
		path:     path,
		format:   format,
		core:     &TableLoader{name: CoreSection, values: root, hideTables: true},
		sections: make(map[string]*TableLoader),
	}

	for _, key := range sortedKeys(root) {
		table, ok := root[key].(map[string]any)
		if !ok || key == EnvTable {
			continue
		}
		src.add(key, table)
	}

	if envs, ok := root[EnvTable].(map[string]any); ok {
		for _, env := range sortedKeys(envs) {
			table, ok := envs[env].(map[string]any)
			if !ok {
				continue
			}
			src.add(EnvTable+"."+env, table)
			src.envs = append(src.envs, env)
		}
	}
	return src
}

func (s *TableSource) add(name string, values map[string]any) {
	s.sections[name] = &TableLoader{name: name, values: values}
	s.order = append(s.order, name)
}

// Path implements Source.
func (s *TableSource) Path() string { return s.path }

// Format implements Source.
func (s *TableSource) Format() Format { return s.format }

// Core implements Source.
func (s *TableSource) Core() Loader { return s.core }

// Section implements Source.
func (s *TableSource) Section(name string) (Loader, bool) {
	l, ok := s.sections[name]
	if !ok {
		return nil, false
	}
	return l, true
}

// Sections implements Source.
func (s *TableSource) Sections() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// EnvSection implements Source.
func (s *TableSource) EnvSection(env string) (Loader, bool) {
	return s.Section(EnvTable + "." + env)
}

// EnvSections implements Source.
func (s *TableSource) EnvSections() []string {
	out := make([]string, len(s.envs))
	copy(out, s.envs)
	return out
}

// EnvFromSection implements Source.
func (s *TableSource) EnvFromSection(section string) (string, bool) {
	env, ok := strings.CutPrefix(section, EnvTable+".")
	return env, ok && env != ""
}

// DefaultBases implements Source.
func (s *TableSource) DefaultBases() []string {
	if _, ok := s.sections[RunBaseTable]; ok {
		return []string{RunBaseTable}
	}
	return nil
}

// TableLoader serves the keys of one table.
type TableLoader struct {
	name   string
	values map[string]any
	// hideTables omits table-valued keys from FoundKeys; the root table
	// holds section tables next to core keys.
	hideTables bool
}

// Name implements Loader.
func (l *TableLoader) Name() string { return l.name }

// FoundKeys implements Loader.
func (l *TableLoader) FoundKeys() []string {
	keys := make([]string, 0, len(l.values))
	for k, v := range l.values {
		if _, isTable := v.(map[string]any); isTable && l.hideTables {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadRaw implements Loader.
func (l *TableLoader) LoadRaw(key string) (RawValue, error) {
	v, ok := l.values[key]
	if !ok {
		return RawValue{}, cfgerrors.NewKeyNotFound(l.name, key)
	}
	return Structured(v), nil
}

// Prepare implements Loader. Table values carry no comments or factor
// conditions, so they pass through unchanged.
func (l *TableLoader) Prepare(_ string, raw RawValue, _ string) (RawValue, error) {
	return raw, nil
}
