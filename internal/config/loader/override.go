package loader

import (
	"fmt"
	"slices"
	"strings"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// OverrideEnvVar holds ";"-separated overrides read from the process
// environment.
const OverrideEnvVar = "ENVFORGE_OVERRIDE"

// Override replaces (or, with Append, extends) the value of one key in one
// namespace. It always wins over file-sourced values.
type Override struct {
	// Namespace is CoreSection, BaseSection (every environment) or
	// EnvSectionPrefix+NAME.
	Namespace string
	Key       string
	Value     string
	Append    bool
}

// String renders the override in its command-line form.
func (o Override) String() string {
	op := "="
	if o.Append {
		op = "+="
	}
	return o.Namespace + "." + o.Key + op + o.Value
}

// ParseOverride parses "NAMESPACE.KEY=VALUE" or "NAMESPACE.KEY+=VALUE".
// The namespace ends at the last dot before the operator, so environment
// names may contain dots ("testenv:py3.12.deps=x").
func ParseOverride(s string) (Override, error) {
	lhs, value, ok := strings.Cut(s, "=")
	if !ok {
		return Override{}, fmt.Errorf("override %q: missing '='", s)
	}
	o := Override{Value: value}
	if strings.HasSuffix(lhs, "+") {
		o.Append = true
		lhs = strings.TrimSuffix(lhs, "+")
	}
	dot := strings.LastIndexByte(lhs, '.')
	if dot <= 0 || dot == len(lhs)-1 {
		return Override{}, fmt.Errorf("override %q: expected NAMESPACE.KEY", s)
	}
	o.Namespace = strings.TrimSpace(lhs[:dot])
	o.Key = strings.TrimSpace(lhs[dot+1:])
	return o, nil
}

// ParseOverrides parses every entry of list.
func ParseOverrides(list []string) ([]Override, error) {
	out := make([]Override, 0, len(list))
	for _, s := range list {
		o, err := ParseOverride(s)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// OverridesFromEnv reads OverrideEnvVar through lookup.
func OverridesFromEnv(lookup func(string) (string, bool)) ([]Override, error) {
	raw, ok := lookup(OverrideEnvVar)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var entries []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			entries = append(entries, part)
		}
	}
	overrides, err := ParseOverrides(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OverrideEnvVar, err)
	}
	return overrides, nil
}

// OverrideLoader serves the overrides that apply to one namespace.
type OverrideLoader struct {
	name      string
	overrides []Override
}

// NewOverrideLoader keeps the overrides whose namespace is one of
// namespaces, in order; later overrides win.
func NewOverrideLoader(name string, overrides []Override, namespaces ...string) *OverrideLoader {
	l := &OverrideLoader{name: name}
	for _, o := range overrides {
		if slices.Contains(namespaces, o.Namespace) {
			l.overrides = append(l.overrides, o)
		}
	}
	return l
}

// Name implements Loader.
func (l *OverrideLoader) Name() string { return l.name }

// FoundKeys implements Loader.
func (l *OverrideLoader) FoundKeys() []string {
	seen := make(map[string]struct{}, len(l.overrides))
	for _, o := range l.overrides {
		seen[o.Key] = struct{}{}
	}
	return sortedKeys(seen)
}

// LoadRaw returns the last replacing override for key. Appending overrides
// are served by Appends.
func (l *OverrideLoader) LoadRaw(key string) (RawValue, error) {
	for i := len(l.overrides) - 1; i >= 0; i-- {
		o := l.overrides[i]
		if o.Key == key && !o.Append {
			return Text(o.Value), nil
		}
	}
	return RawValue{}, cfgerrors.NewKeyNotFound(l.name, key)
}

// Appends returns the values of the appending overrides for key that come
// after its last replacing override.
func (l *OverrideLoader) Appends(key string) []string {
	var out []string
	for _, o := range l.overrides {
		if o.Key != key {
			continue
		}
		if !o.Append {
			out = nil
			continue
		}
		out = append(out, o.Value)
	}
	return out
}

// Prepare implements Loader. Override values are taken verbatim.
func (l *OverrideLoader) Prepare(_ string, raw RawValue, _ string) (RawValue, error) {
	return raw, nil
}

// Len returns the number of overrides held.
func (l *OverrideLoader) Len() int { return len(l.overrides) }
