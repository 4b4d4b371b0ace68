package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNotFoundError(t *testing.T) {
	err := NewKeyNotFound("testenv:py", "deps")
	assert.Equal(t, `key "deps" not found in testenv:py`, err.Error())
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", err)))

	bare := NewKeyNotFound("", "x")
	assert.Equal(t, `key "x" not found`, bare.Error())
}

func TestCircularReferenceError(t *testing.T) {
	err := &CircularReferenceError{Chain: []string{"env:a", "env:b", "env:a"}}
	assert.Equal(t, "circular reference detected: env:a -> env:b -> env:a", err.Error())
	assert.True(t, IsCircular(err))
	assert.False(t, IsNotFound(err))
}

func TestTypeMismatchError(t *testing.T) {
	cause := errors.New("bad token")
	err := &TypeMismatchError{Raw: "maybe", Target: "bool", Err: cause}
	assert.Equal(t, `cannot convert "maybe" to bool: bad token`, err.Error())
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.True(t, errors.Is(err, cause))

	var tm *TypeMismatchError
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &tm))
	assert.Equal(t, "bool", tm.Target)
}

func TestResolutionError(t *testing.T) {
	inner := &TypeMismatchError{Raw: "x", Target: "int"}
	err := &ResolutionError{Namespace: "py", Key: "suicide_timeout", Err: inner}
	assert.Contains(t, err.Error(), "py.suicide_timeout")
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	core := &ResolutionError{Key: "env_list", Err: inner}
	assert.Contains(t, core.Error(), "core.env_list")
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrKeyNotFound,
		ErrCircularReference,
		ErrTypeMismatch,
		ErrInvalidFactorExpression,
		ErrCacheCorrupt,
		ErrOptionAlreadyRegistered,
		ErrInheritanceCycle,
		ErrUnknownEnvironment,
		ErrNoConfigFile,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}

func TestCacheAndFactorErrors(t *testing.T) {
	cache := &CacheError{Path: "/x/.envforge-info.json", Err: errors.New("unexpected EOF")}
	assert.True(t, errors.Is(cache, ErrCacheCorrupt))
	assert.Contains(t, cache.Error(), "unexpected EOF")

	factor := &FactorError{Expression: "a-!", Reason: "empty factor"}
	assert.True(t, errors.Is(factor, ErrInvalidFactorExpression))

	parse := &ParseError{Path: "envforge.ini", Line: 3, Message: "bad section"}
	assert.Equal(t, "parse error in envforge.ini at line 3: bad section", parse.Error())
}
