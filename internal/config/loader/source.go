package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// Format identifies the syntax of a project file.
type Format uint8

const (
	// FormatINI is an INI file with [envforge] and [testenv:NAME] sections.
	FormatINI Format = iota
	// FormatTOML is a TOML file with env_run_base and env.NAME tables.
	FormatTOML
	// FormatJSONC is JSON with comments, laid out like the TOML format.
	FormatJSONC
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatINI:
		return "ini"
	case FormatTOML:
		return "toml"
	case FormatJSONC:
		return "jsonc"
	default:
		return "unknown"
	}
}

// Source is a parsed project file split into sections.
type Source interface {
	// Path is the file the source was read from.
	Path() string

	// Format is the file syntax.
	Format() Format

	// Core returns the loader for the core section. It is never nil.
	Core() Loader

	// Section returns the loader for any section by its name as written in
	// cross-references ("testenv:py", "extras", "env.py", "env_run_base").
	Section(name string) (Loader, bool)

	// Sections lists every section name.
	Sections() []string

	// EnvSection returns the environment-specific section for env.
	EnvSection(env string) (Loader, bool)

	// EnvSections lists the environment names that have their own section.
	EnvSections() []string

	// EnvFromSection maps a section name to the environment it configures.
	EnvFromSection(section string) (string, bool)

	// DefaultBases lists the section names every environment inherits from
	// when it declares no bases of its own.
	DefaultBases() []string
}

// ProjectFiles lists the file names Discover looks for, in priority order.
var ProjectFiles = []string{
	"envforge.toml",
	"envforge.ini",
	"envforge.jsonc",
	"pyproject.toml",
}

// Discover finds and parses the project file in dir.
func Discover(fsys FileSystem, dir string) (Source, error) {
	for _, name := range ProjectFiles {
		path := filepath.Join(dir, name)
		data, err := fsys.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		if name == "pyproject.toml" {
			src, found, err := ParsePyProject(path, data)
			if err != nil {
				return nil, err
			}
			if found {
				return src, nil
			}
			continue
		}
		return Parse(path, data)
	}
	return nil, fmt.Errorf("%w in %s", cfgerrors.ErrNoConfigFile, dir)
}

// Load reads and parses the project file at path.
func Load(fsys FileSystem, path string) (Source, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if filepath.Base(path) == "pyproject.toml" {
		src, found, err := ParsePyProject(path, data)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: %s has no [tool.envforge] table", cfgerrors.ErrNoConfigFile, path)
		}
		return src, nil
	}
	return Parse(path, data)
}

// Parse parses data according to the extension of path.
func Parse(path string, data []byte) (Source, error) {
	switch filepath.Ext(path) {
	case ".toml":
		src, err := ParseTOML(path, data)
		if err != nil {
			return nil, err
		}
		return src, nil
	case ".jsonc", ".json":
		src, err := ParseJSONC(path, data)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		src, err := ParseINI(path, data)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
