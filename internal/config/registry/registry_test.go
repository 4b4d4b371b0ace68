package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/envforge/internal/config/convert"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

type fakeScope struct {
	name   string
	values map[string]any
}

func (s fakeScope) Name() string { return s.name }

func (s fakeScope) Get(key string) (any, error) {
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return nil, cfgerrors.NewKeyNotFound(s.name, key)
}

func TestRegistry_Register(t *testing.T) {
	r := New()

	d, err := r.Register(Definition{
		Keys:        []string{"set_env", "setenv"},
		Type:        convert.SetEnvT(),
		Description: "Environment variables",
	})
	require.NoError(t, err)
	assert.Equal(t, "set_env", d.Key())
	assert.Equal(t, []string{"setenv"}, d.Aliases())

	_, err = r.Register(Definition{Keys: []string{"set_env"}, Type: convert.String()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cfgerrors.ErrOptionAlreadyRegistered))

	_, err = r.Register(Definition{Keys: []string{"other", "setenv"}, Type: convert.String()})
	assert.True(t, errors.Is(err, cfgerrors.ErrOptionAlreadyRegistered))
	assert.False(t, r.Has("other"))
}

func TestRegistry_Register_Invalid(t *testing.T) {
	r := New()

	tests := []struct {
		name string
		def  Definition
	}{
		{"no keys", Definition{Type: convert.String()}},
		{"empty key", Definition{Keys: []string{""}}},
		{"key with space", Definition{Keys: []string{"bad key"}}},
		{"key with colon", Definition{Keys: []string{"a:b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(tt.def)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_MustRegister_Panics(t *testing.T) {
	r := New()
	r.MustRegister(Definition{Keys: []string{"deps"}, Type: convert.ListOf(convert.String())})

	assert.Panics(t, func() {
		r.MustRegister(Definition{Keys: []string{"deps"}, Type: convert.String()})
	})
}

func TestRegistry_Lookup(t *testing.T) {
	r := New()
	r.MustRegister(Definition{Keys: []string{"env_dir", "envdir"}, Type: convert.Path()})

	d, ok := r.Lookup("envdir")
	require.True(t, ok)
	assert.Equal(t, "env_dir", d.Key())

	d2, ok := r.Lookup("env_dir")
	require.True(t, ok)
	assert.Same(t, d, d2)

	_, ok = r.Lookup("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_OrderAndKeys(t *testing.T) {
	r := New()
	r.MustRegister(Definition{Keys: []string{"b"}, Type: convert.String()})
	r.MustRegister(Definition{Keys: []string{"a", "alpha"}, Type: convert.String()})

	assert.Equal(t, []string{"b", "a"}, r.Keys())
	assert.Equal(t, []string{"b", "a", "alpha"}, r.AllKeys())

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a (alpha): string", all[1].String())
}

func TestRegistry_Clone(t *testing.T) {
	r := New()
	r.MustRegister(Definition{Keys: []string{"deps"}, Type: convert.String()})

	c := r.Clone()
	c.MustRegister(Definition{Keys: []string{"extra"}, Type: convert.String()})

	assert.True(t, c.Has("deps"))
	assert.True(t, c.Has("extra"))
	assert.False(t, r.Has("extra"))
}

func TestDefault(t *testing.T) {
	var none Default
	assert.False(t, none.IsSet())

	lit := Literal(false)
	assert.True(t, lit.IsSet())
	assert.False(t, lit.IsComputed())
	v, err := lit.Value(nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	calls := 0
	comp := Computed(func(s Scope) (any, error) {
		calls++
		root, err := s.Get("root")
		if err != nil {
			return nil, err
		}
		return root.(string) + "/.envforge", nil
	})
	assert.True(t, comp.IsComputed())
	assert.Equal(t, 0, calls)

	v, err = comp.Value(fakeScope{values: map[string]any{"root": "/p"}})
	require.NoError(t, err)
	assert.Equal(t, "/p/.envforge", v)
	assert.Equal(t, 1, calls)

	_, err = comp.Value(fakeScope{})
	assert.True(t, cfgerrors.IsNotFound(err))
}
