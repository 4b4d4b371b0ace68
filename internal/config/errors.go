package config

import (
	"fmt"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// TypeError is returned by the typed accessors when a resolved value has a
// different Go type than the one requested.
type TypeError struct {
	// Namespace is the namespace name ("" for core).
	Namespace string
	// Key is the option key.
	Key string
	// Expected is the requested type name.
	Expected string
	// Actual is the type of the resolved value.
	Actual string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	ns := e.Namespace
	if ns == "" {
		ns = "core"
	}
	return fmt.Sprintf("type error for %s.%s: expected %s, got %s", ns, e.Key, e.Expected, e.Actual)
}

// Is implements error matching for TypeError.
func (e *TypeError) Is(target error) bool {
	return target == cfgerrors.ErrTypeMismatch
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
