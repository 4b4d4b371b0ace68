package loader

import (
	"regexp"
	"strings"

	"github.com/go-ini/ini"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
	"github.com/dshills/envforge/internal/config/factor"
)

// INI section names.
const (
	// CoreSection holds the core (global) options.
	CoreSection = "envforge"
	// BaseSection is inherited by every environment section.
	BaseSection = "testenv"
	// EnvSectionPrefix prefixes environment-specific sections.
	EnvSectionPrefix = "testenv:"
)

// continuation matches a backslash line continuation and the indentation of
// the line it joins. Whitespace written before the backslash is kept.
var continuation = regexp.MustCompile(`\\[ \t]*\r?\n[ \t]*`)

// IniSource is a project file in INI syntax.
type IniSource struct {
	path     string
	sections map[string]*IniLoader
	order    []string
}

// ParseINI parses an INI project file. Values spanning several indented
// lines are kept as one multi-line value; key/value pairs are delimited by
// "=" only, so factor conditions ("py38: dep") survive intact.
func ParseINI(path string, data []byte) (*IniSource, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		IgnoreInlineComment:        true,
		IgnoreContinuation:         true,
		PreserveSurroundedQuote:    true,
		KeyValueDelimiters:         "=",
	}, data)
	if err != nil {
		return nil, &cfgerrors.ParseError{Path: path, Message: err.Error(), Err: err}
	}

	src := &IniSource{
		path:     path,
		sections: make(map[string]*IniLoader),
	}
	for _, sec := range file.Sections() {
		keys := sec.Keys()
		if sec.Name() == ini.DefaultSection && len(keys) == 0 {
			continue
		}
		l := &IniLoader{
			name:   sec.Name(),
			values: make(map[string]string, len(keys)),
		}
		for _, k := range keys {
			l.keys = append(l.keys, k.Name())
			l.values[k.Name()] = k.Value()
		}
		src.sections[sec.Name()] = l
		src.order = append(src.order, sec.Name())
	}
	return src, nil
}

// Path implements Source.
func (s *IniSource) Path() string { return s.path }

// Format implements Source.
func (s *IniSource) Format() Format { return FormatINI }

// Core implements Source.
func (s *IniSource) Core() Loader {
	if l, ok := s.sections[CoreSection]; ok {
		return l
	}
	return &IniLoader{name: CoreSection, values: map[string]string{}}
}

// Section implements Source.
func (s *IniSource) Section(name string) (Loader, bool) {
	l, ok := s.sections[name]
	if !ok {
		return nil, false
	}
	return l, true
}

// Sections implements Source.
func (s *IniSource) Sections() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// EnvSection implements Source.
func (s *IniSource) EnvSection(env string) (Loader, bool) {
	return s.Section(EnvSectionPrefix + env)
}

// EnvSections implements Source.
func (s *IniSource) EnvSections() []string {
	var envs []string
	for _, name := range s.order {
		if env, ok := s.EnvFromSection(name); ok {
			envs = append(envs, env)
		}
	}
	return envs
}

// EnvFromSection implements Source.
func (s *IniSource) EnvFromSection(section string) (string, bool) {
	if !strings.HasPrefix(section, EnvSectionPrefix) {
		return "", false
	}
	env := strings.TrimPrefix(section, EnvSectionPrefix)
	return env, env != ""
}

// DefaultBases implements Source.
func (s *IniSource) DefaultBases() []string {
	if _, ok := s.sections[BaseSection]; ok {
		return []string{BaseSection}
	}
	return nil
}

// IniLoader serves the keys of one INI section.
type IniLoader struct {
	name   string
	keys   []string
	values map[string]string
}

// Name implements Loader.
func (l *IniLoader) Name() string { return l.name }

// FoundKeys implements Loader.
func (l *IniLoader) FoundKeys() []string {
	out := make([]string, len(l.keys))
	copy(out, l.keys)
	return out
}

// LoadRaw implements Loader.
func (l *IniLoader) LoadRaw(key string) (RawValue, error) {
	v, ok := l.values[key]
	if !ok {
		return RawValue{}, cfgerrors.NewKeyNotFound(l.name, key)
	}
	return Text(v), nil
}

// Prepare strips comments, applies the factor filter for envName, collapses
// backslash line continuations and trims every line. Empty lines are dropped.
func (l *IniLoader) Prepare(_ string, raw RawValue, envName string) (RawValue, error) {
	if !raw.IsText() {
		return raw, nil
	}
	text := StripComments(raw.Text())
	if envName != "" {
		filtered, err := factor.Filter(text, envName)
		if err != nil {
			return RawValue{}, err
		}
		text = filtered
	}
	text = continuation.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return Text(strings.Join(kept, "\n")), nil
}

// StripComments removes comment lines and trailing comments. A "#" starts a
// comment at the beginning of a line or after whitespace; "\#" is a literal.
func StripComments(value string) string {
	lines := strings.Split(value, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			continue
		}
		for i := 1; i < len(line); i++ {
			if line[i] == '#' && line[i-1] != '\\' && (line[i-1] == ' ' || line[i-1] == '\t') {
				line = strings.TrimRight(line[:i], " \t")
				break
			}
		}
		kept = append(kept, strings.ReplaceAll(line, `\#`, "#"))
	}
	return strings.Join(kept, "\n")
}
