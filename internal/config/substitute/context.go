// Package substitute resolves placeholder spans in raw configuration values.
//
// A placeholder is a "{...}" span whose inner text is "directive[:arg]*".
// The directives are "/" (path separator), ":" (path list separator),
// "env:NAME[:default]", "tty:on:off", "posargs[:default]" and, for anything
// else, a cross-reference "[section]key[:default]". The legacy "[]" form
// stands for the positional arguments.
//
// Nested spans are resolved innermost first. Whole-value passes repeat until
// a pass leaves the value unchanged, because a replacement may itself
// contain placeholders. A value that still changes after MaxPasses passes is
// reported as a circular reference.
package substitute

import (
	"os"
)

// Refs answers cross-references on behalf of the engine.
type Refs interface {
	// EnvOf maps a section qualifier to the environment it configures.
	EnvOf(section string) (string, bool)

	// Env resolves key in the named environment namespace.
	Env(env, key string, chain []string) (any, error)

	// Section returns the raw value of key in a non-environment section,
	// prepared for the environment being resolved.
	Section(section, key, env string) (any, error)

	// Core resolves key in the core namespace.
	Core(key string, chain []string) (any, error)
}

// Vars is a variable table consulted by the env: directive before the
// process environment.
type Vars interface {
	Has(name string) bool
	Load(name string, chain []string) (string, error)
}

// Context carries the state of one top-level resolution.
type Context struct {
	// EnvName is the environment being resolved; empty for the core namespace.
	EnvName string

	// Chain lists the keys in progress, outermost first.
	Chain []string

	// Refs answers cross-references. Nil leaves cross-references untouched.
	Refs Refs

	// Vars is the environment's variable table. Nil reads the process
	// environment only.
	Vars Vars

	// PosArgs are the positional arguments given after "--". Nil means none
	// were given, so posargs defaults apply; an empty non-nil slice means an
	// explicit empty list.
	PosArgs []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLookupEnv replaces the process environment lookup.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(e *Engine) {
		e.lookupEnv = fn
	}
}

// WithTerminal replaces the check used by the tty: directive.
func WithTerminal(fn func() bool) Option {
	return func(e *Engine) {
		e.isTerminal = fn
	}
}

// WithMaxPasses overrides the pass limit.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// WithPathSeparators overrides the "/" and ":" directive results.
func WithPathSeparators(sep, listSep string) Option {
	return func(e *Engine) {
		e.pathSep = sep
		e.pathListSep = listSep
	}
}

func defaultLookupEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}
