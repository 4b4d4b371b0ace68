// Package registry holds the option definitions of a configuration
// namespace.
//
// A Definition names an option (its canonical key plus deprecated aliases),
// its target type, its default and optional post-processing. A Registry is
// built once at startup for each namespace kind and handed to every
// namespace created from it; there is no package-level registry.
package registry

import (
	"strings"

	"github.com/dshills/envforge/internal/config/convert"
	"github.com/dshills/envforge/internal/config/loader"
)

// Scope is the namespace a computed default or factory runs against.
type Scope interface {
	// Name is the environment name, or "" for the core namespace.
	Name() string

	// Get resolves another option of the same namespace.
	Get(key string) (any, error)
}

// Default is either a literal value or a function evaluated on first use.
type Default struct {
	literal  any
	computed func(Scope) (any, error)
	set      bool
}

// Literal returns a default holding v. A string is treated like a value
// read from a source, so it is substituted and converted.
func Literal(v any) Default {
	return Default{literal: v, set: true}
}

// Computed returns a default evaluated lazily against the namespace.
func Computed(fn func(Scope) (any, error)) Default {
	return Default{computed: fn, set: fn != nil}
}

// IsSet reports whether a default was given.
func (d Default) IsSet() bool {
	return d.set
}

// IsComputed reports whether the default is a function.
func (d Default) IsComputed() bool {
	return d.computed != nil
}

// Value evaluates the default for scope.
func (d Default) Value(scope Scope) (any, error) {
	if d.computed != nil {
		return d.computed(scope)
	}
	return d.literal, nil
}

// Factory builds an option value from its substituted raw value, replacing
// the type converter.
type Factory func(raw loader.RawValue, conv *convert.Converter, scope Scope) (any, error)

// PostProcess adjusts a converted value.
type PostProcess func(value any, scope Scope) (any, error)

// Definition describes one option.
type Definition struct {
	// Keys holds the canonical key first, followed by deprecated aliases.
	Keys []string `validate:"required,min=1,dive,optkey"`

	// Type is the converter target.
	Type convert.Type

	// Default applies when no source has a value.
	Default Default

	// PostProcess runs after conversion when set.
	PostProcess PostProcess

	// Factory replaces the converter when set.
	Factory Factory

	// Description is human-readable documentation.
	Description string `validate:"max=512"`
}

// Key returns the canonical key.
func (d *Definition) Key() string {
	return d.Keys[0]
}

// Aliases returns the deprecated alternative keys.
func (d *Definition) Aliases() []string {
	return d.Keys[1:]
}

// String describes the definition, e.g. "set_env (setenv): set_env".
func (d *Definition) String() string {
	if len(d.Keys) > 1 {
		return d.Key() + " (" + strings.Join(d.Aliases(), ", ") + "): " + d.Type.String()
	}
	return d.Key() + ": " + d.Type.String()
}
