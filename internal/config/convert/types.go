// Package convert turns substituted raw values into typed option values.
//
// Conversion dispatches on the RawValue tag: text is parsed (booleans from a
// fixed vocabulary, containers split on newlines or commas), structured
// values decoded from table formats are checked and coerced. The package
// also defines the domain composites Command, EnvList and SetEnv.
package convert

import (
	"strings"
)

// Kind is the category of a target type.
type Kind uint8

const (
	// KindString is plain text.
	KindString Kind = iota
	// KindBool is a boolean.
	KindBool
	// KindInt is an integer.
	KindInt
	// KindFloat is a floating-point number.
	KindFloat
	// KindPath is a filesystem path.
	KindPath
	// KindList is an ordered sequence of Elem.
	KindList
	// KindSet is a sorted, de-duplicated sequence of Elem.
	KindSet
	// KindMap is an ordered mapping from Key to Elem.
	KindMap
	// KindOptional wraps Elem; empty input yields nil.
	KindOptional
	// KindChoice is one of Choices, matched literally.
	KindChoice
	// KindCommand is a shell command.
	KindCommand
	// KindEnvList is an ordered list of environment names.
	KindEnvList
	// KindSetEnv is a lazily substituted variable table.
	KindSetEnv
)

var kindNames = map[Kind]string{
	KindString:   "string",
	KindBool:     "bool",
	KindInt:      "int",
	KindFloat:    "float",
	KindPath:     "path",
	KindList:     "list",
	KindSet:      "set",
	KindMap:      "map",
	KindOptional: "optional",
	KindChoice:   "choice",
	KindCommand:  "command",
	KindEnvList:  "env_list",
	KindSetEnv:   "set_env",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Type describes the semantic type an option converts to.
type Type struct {
	Kind    Kind
	Elem    *Type
	Key     *Type
	Choices []string
}

// String renders the type, e.g. "list[command]" or "map[string]path".
func (t Type) String() string {
	switch t.Kind {
	case KindList, KindSet, KindOptional:
		return t.Kind.String() + "[" + t.Elem.String() + "]"
	case KindMap:
		return "map[" + t.Key.String() + "]" + t.Elem.String()
	case KindChoice:
		return "choice(" + strings.Join(t.Choices, "|") + ")"
	default:
		return t.Kind.String()
	}
}

// String is the text type.
func String() Type { return Type{Kind: KindString} }

// Bool is the boolean type.
func Bool() Type { return Type{Kind: KindBool} }

// Int is the integer type.
func Int() Type { return Type{Kind: KindInt} }

// Float is the floating-point type.
func Float() Type { return Type{Kind: KindFloat} }

// Path is the filesystem path type.
func Path() Type { return Type{Kind: KindPath} }

// ListOf is an ordered sequence of elem.
func ListOf(elem Type) Type { return Type{Kind: KindList, Elem: &elem} }

// SetOf is a sorted set of elem.
func SetOf(elem Type) Type { return Type{Kind: KindSet, Elem: &elem} }

// MapOf is an ordered mapping.
func MapOf(key, elem Type) Type { return Type{Kind: KindMap, Key: &key, Elem: &elem} }

// Optional allows elem to be absent.
func Optional(elem Type) Type { return Type{Kind: KindOptional, Elem: &elem} }

// Choice accepts exactly one of choices.
func Choice(choices ...string) Type { return Type{Kind: KindChoice, Choices: choices} }

// CommandT is the shell command type.
func CommandT() Type { return Type{Kind: KindCommand} }

// EnvListT is the environment list type.
func EnvListT() Type { return Type{Kind: KindEnvList} }

// SetEnvT is the variable table type.
func SetEnvT() Type { return Type{Kind: KindSetEnv} }

// Map is an insertion-ordered mapping with string keys.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// Set stores v under k, keeping the first insertion position.
func (m *Map) Set(k string, v any) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Get returns the value stored under k.
func (m *Map) Get(k string) (any, bool) {
	v, ok := m.values[k]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }
