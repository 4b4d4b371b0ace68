package envcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/envforge/internal/config"
	"github.com/dshills/envforge/internal/config/loader"
)

func TestInterpreter_Identity(t *testing.T) {
	id := testInterpreter.Identity()
	assert.Len(t, id, 64)
	assert.Equal(t, id, testInterpreter.Identity())

	other := testInterpreter
	other.Version = "3.12.2"
	assert.NotEqual(t, id, other.Identity())
}

func TestCompare(t *testing.T) {
	old := Snapshot{"kind": "virtualenv", "deps": []any{"a"}, "gone": true}
	current := Snapshot{"kind": "virtualenv", "deps": []any{"a", "b"}, "new": 1.0}

	d := Compare(old, current)
	assert.Equal(t, []string{"new"}, d.Added)
	assert.Equal(t, []string{"gone"}, d.Removed)
	assert.Equal(t, []string{"deps"}, d.Changed)
	assert.False(t, d.Empty())

	assert.True(t, Compare(current, current).Empty())
}

func TestFromConfig(t *testing.T) {
	src, err := loader.ParseINI(filepath.Join("/project", "envforge.ini"), []byte(`
[testenv]
deps =
    pytest
    cov: coverage
`))
	require.NoError(t, err)
	cfg := config.New(src)
	env, err := cfg.Env("py312-cov")
	require.NoError(t, err)

	s, err := FromConfig(env, testInterpreter)
	require.NoError(t, err)
	assert.Equal(t, "virtualenv", s[KeyKind])
	assert.Equal(t, []any{"pytest", "coverage"}, s[KeyDeps])
	assert.Equal(t, testInterpreter.Identity(), s[KeyInterpreter])
	assert.Equal(t, "sdist", s[KeyPackage])
}
