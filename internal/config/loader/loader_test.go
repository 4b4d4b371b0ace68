package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

func TestRawValue(t *testing.T) {
	text := Text("a b")
	assert.True(t, text.IsText())
	assert.Equal(t, "a b", text.Text())
	assert.Equal(t, "a b", text.Value())

	assert.True(t, Structured("str").IsText())

	list := Structured([]any{"x", int64(1)})
	assert.False(t, list.IsText())
	assert.Equal(t, "[x 1]", list.Text())
}

func TestMemoryLoader(t *testing.T) {
	l := NewMemoryLoader("mem", map[string]any{"b": true, "a": "x"})
	l.Set("c", int64(2))

	assert.Equal(t, "mem", l.Name())
	assert.Equal(t, []string{"a", "b", "c"}, l.FoundKeys())

	raw, err := l.LoadRaw("a")
	require.NoError(t, err)
	assert.True(t, raw.IsText())
	assert.Equal(t, "x", raw.Text())

	raw, err = l.LoadRaw("b")
	require.NoError(t, err)
	assert.Equal(t, true, raw.Value())

	prepared, err := l.Prepare("b", raw, "env")
	require.NoError(t, err)
	assert.Equal(t, true, prepared.Value())

	_, err = l.LoadRaw("missing")
	assert.True(t, cfgerrors.IsNotFound(err))
}

func TestNewMemoryLoader_NilMap(t *testing.T) {
	l := NewMemoryLoader("mem", nil)
	l.Set("k", "v")
	assert.Len(t, l.FoundKeys(), 1)
}
