// Package errors defines the error taxonomy shared by the configuration
// resolution packages.
//
// Sentinel errors identify a failure category and are matched with the
// standard library's errors.Is. Typed errors carry the details a caller needs
// to report the failure and unwrap to their sentinel.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for configuration resolution.
var (
	// ErrKeyNotFound indicates a key is absent from a source or namespace.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCircularReference indicates a value depends on itself.
	ErrCircularReference = errors.New("circular reference")

	// ErrTypeMismatch indicates a value cannot be converted to the requested type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidFactorExpression indicates a malformed conditional prefix.
	ErrInvalidFactorExpression = errors.New("invalid factor expression")

	// ErrCacheCorrupt indicates a persisted snapshot could not be read.
	ErrCacheCorrupt = errors.New("cache snapshot corrupt")

	// ErrOptionAlreadyRegistered indicates a duplicate option registration.
	ErrOptionAlreadyRegistered = errors.New("option already registered")

	// ErrInheritanceCycle indicates namespaces that inherit from each other.
	ErrInheritanceCycle = errors.New("inheritance cycle")

	// ErrUnknownEnvironment indicates a reference to an environment that is not defined.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrNoConfigFile indicates project file discovery found nothing.
	ErrNoConfigFile = errors.New("no configuration file found")
)

// KeyNotFoundError reports a key missing from a namespace or source.
type KeyNotFoundError struct {
	// Namespace is the namespace or section that was searched.
	Namespace string
	// Key is the requested key.
	Key string
}

// Error implements the error interface.
func (e *KeyNotFoundError) Error() string {
	if e.Namespace == "" {
		return fmt.Sprintf("key %q not found", e.Key)
	}
	return fmt.Sprintf("key %q not found in %s", e.Key, e.Namespace)
}

// Is implements error matching for KeyNotFoundError.
func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

// NewKeyNotFound creates a KeyNotFoundError.
func NewKeyNotFound(namespace, key string) *KeyNotFoundError {
	return &KeyNotFoundError{Namespace: namespace, Key: key}
}

// CircularReferenceError reports a self-dependent resolution chain.
type CircularReferenceError struct {
	// Chain lists the keys taking part in the cycle, in resolution order.
	Chain []string
}

// Error implements the error interface.
func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference detected: %s", strings.Join(e.Chain, " -> "))
}

// Is implements error matching for CircularReferenceError.
func (e *CircularReferenceError) Is(target error) bool {
	return target == ErrCircularReference
}

// TypeMismatchError is returned when a type conversion fails.
type TypeMismatchError struct {
	// Raw is the value that failed to convert.
	Raw any
	// Target is the requested type name.
	Target string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %q to %s: %v", fmt.Sprint(e.Raw), e.Target, e.Err)
	}
	return fmt.Sprintf("cannot convert %q to %s", fmt.Sprint(e.Raw), e.Target)
}

// Unwrap returns the underlying error.
func (e *TypeMismatchError) Unwrap() error {
	return e.Err
}

// Is implements error matching for TypeMismatchError.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// FactorError reports a malformed factor condition.
type FactorError struct {
	// Expression is the offending condition text.
	Expression string
	// Reason describes what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *FactorError) Error() string {
	return fmt.Sprintf("invalid factor expression %q: %s", e.Expression, e.Reason)
}

// Is implements error matching for FactorError.
func (e *FactorError) Is(target error) bool {
	return target == ErrInvalidFactorExpression
}

// CacheError reports an unreadable snapshot file.
type CacheError struct {
	// Path is the snapshot file.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error {
	return e.Err
}

// Is implements error matching for CacheError.
func (e *CacheError) Is(target error) bool {
	return target == ErrCacheCorrupt
}

// ResolutionError is the user-visible failure for an explicitly requested key.
type ResolutionError struct {
	// Namespace is the namespace name ("" for the core namespace).
	Namespace string
	// Key is the requested key.
	Key string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	ns := e.Namespace
	if ns == "" {
		ns = "core"
	}
	return fmt.Sprintf("failed to load %s.%s: %v", ns, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Line is the line number where the error occurred (if available).
	Line int
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a key-not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsCircular reports whether err is a circular reference.
func IsCircular(err error) bool {
	return errors.Is(err, ErrCircularReference)
}
