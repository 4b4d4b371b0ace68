package substitute

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/envforge/internal/config/convert"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// fakeRefs serves cross-references from fixed tables. Environment sections
// are named "testenv:NAME".
type fakeRefs struct {
	core     map[string]any
	envs     map[string]map[string]any
	sections map[string]map[string]any
	envErr   error
}

func (f *fakeRefs) EnvOf(section string) (string, bool) {
	return strings.CutPrefix(section, "testenv:")
}

func (f *fakeRefs) Env(env, key string, _ []string) (any, error) {
	if f.envErr != nil {
		return nil, f.envErr
	}
	if v, ok := f.envs[env][key]; ok {
		return v, nil
	}
	return nil, cfgerrors.NewKeyNotFound(env, key)
}

func (f *fakeRefs) Section(section, key, _ string) (any, error) {
	if v, ok := f.sections[section][key]; ok {
		return v, nil
	}
	return nil, cfgerrors.NewKeyNotFound(section, key)
}

func (f *fakeRefs) Core(key string, _ []string) (any, error) {
	if v, ok := f.core[key]; ok {
		return v, nil
	}
	return nil, cfgerrors.NewKeyNotFound("", key)
}

func newTestEngine(env map[string]string, tty bool) *Engine {
	return New(
		WithLookupEnv(func(name string) (string, bool) {
			v, ok := env[name]
			return v, ok
		}),
		WithTerminal(func() bool { return tty }),
		WithPathSeparators("/", ":"),
	)
}

func TestResolve_Directives(t *testing.T) {
	e := newTestEngine(map[string]string{"HOME": "/home/u", "EMPTY": ""}, false)

	tests := []struct {
		name string
		raw  string
		ctx  *Context
		want string
	}{
		{"plain text", "no placeholders", nil, "no placeholders"},
		{"path separator", "a{/}b", nil, "a/b"},
		{"path list separator", "a{:}b", nil, "a:b"},
		{"env set", "{env:HOME}/x", nil, "/home/u/x"},
		{"env empty but set", "<{env:EMPTY:d}>", nil, "<>"},
		{"produced brackets are not posargs", "[{env:EMPTY}]", &Context{PosArgs: []string{"x"}}, "[]"},
		{"env default", "{env:MISSING:fallback}", nil, "fallback"},
		{"env default with colons", `{env:MISSING:/usr/bin:/bin}`, nil, "/usr/bin:/bin"},
		{"env missing no default", "a{env:MISSING}b", nil, "ab"},
		{"tty off", "{tty:--color:--no-color}", nil, "--no-color"},
		{"posargs default", "pytest {posargs:tests}", nil, "pytest tests"},
		{"posargs given", "pytest {posargs:tests}", &Context{PosArgs: []string{"-k", "a b"}}, "pytest -k 'a b'"},
		{"posargs explicit empty", "pytest {posargs:tests}", &Context{PosArgs: []string{}}, "pytest "},
		{"legacy posargs", "pytest []", &Context{PosArgs: []string{"-x"}}, "pytest -x"},
		{"escaped braces", `echo \{literal\}`, nil, "echo {literal}"},
		{"escaped separator in default", `{env:MISSING:a\:b}`, nil, "a:b"},
		{"nested default", "{env:MISSING:{env:HOME}}", nil, "/home/u"},
		{"factor syntax untouched", "py{38,39}", nil, "py{38,39}"},
		{"unbalanced brace", "a{b", nil, "a{b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Resolve(tt.raw, tt.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_TTYOn(t *testing.T) {
	e := newTestEngine(nil, true)
	got, err := e.Resolve("{tty:on:off} {tty::off}", nil)
	require.NoError(t, err)
	assert.Equal(t, "on ", got)
}

func TestResolve_CrossReference(t *testing.T) {
	refs := &fakeRefs{
		core: map[string]any{"root": "/proj"},
		envs: map[string]map[string]any{
			"other": {"deps": []string{"a", "b"}},
			"py":    {"env_dir": "/proj/.envs/py"},
		},
		sections: map[string]map[string]any{
			"extras": {"flags": "-v {env:HOME}"},
		},
	}
	e := newTestEngine(map[string]string{"HOME": "/h"}, false)
	ctx := &Context{EnvName: "py", Refs: refs}

	tests := []struct {
		raw  string
		want string
	}{
		{"{root}/src", "/proj/src"},
		{"{env_dir}/bin", "/proj/.envs/py/bin"},
		{"{[testenv:other]deps}", "a\nb"},
		{"{[testenv:other]missing:fallback}", "fallback"},
		{"{[extras]flags}", "-v /h"},
		{"{[extras]missing:x}", "x"},
		{"{unknown}", "{unknown}"},
		{"{unknown:default}", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := e.Resolve(tt.raw, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_NamedEnvErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	refs := &fakeRefs{envErr: boom}
	e := newTestEngine(nil, false)

	_, err := e.Resolve("{[testenv:other]key:fallback}", &Context{EnvName: "py", Refs: refs})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestResolve_Terminates(t *testing.T) {
	refs := &fakeRefs{
		sections: map[string]map[string]any{
			"s": {
				"a": "{[s]b}-{[s]b}",
				"b": "{[s]c}",
				"c": "leaf",
			},
		},
	}
	e := newTestEngine(nil, false)
	got, err := e.Resolve("{[s]a}", &Context{Refs: refs})
	require.NoError(t, err)
	assert.Equal(t, "leaf-leaf", got)
}

func TestResolve_ResolvedValuesAreNotRescanned(t *testing.T) {
	refs := &fakeRefs{core: map[string]any{"a": "{b}", "b": "x"}}
	e := newTestEngine(nil, false)
	got, err := e.Resolve("{a}", &Context{Refs: refs})
	require.NoError(t, err)
	assert.Equal(t, "{b}", got)
}

func TestResolve_RunawayGrowth(t *testing.T) {
	refs := &fakeRefs{sections: map[string]map[string]any{"s": {"grow": "x{[s]grow}"}}}
	e := New(WithMaxPasses(10))
	_, err := e.Resolve("{[s]grow}", &Context{Refs: refs})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cfgerrors.ErrCircularReference))
}

func TestResolve_InsertedBracesAreLiteral(t *testing.T) {
	e := newTestEngine(map[string]string{"X": "{root}"}, false)
	refs := &fakeRefs{core: map[string]any{"root": "/proj"}}
	got, err := e.Resolve("{env:X}", &Context{Refs: refs})
	require.NoError(t, err)
	assert.Equal(t, "{root}", got)
}

// tableVars mimics a set_env table bound to the engine.
type tableVars struct {
	e       *Engine
	entries map[string]string
}

func (v *tableVars) Has(name string) bool {
	_, ok := v.entries[name]
	return ok
}

func (v *tableVars) Load(name string, chain []string) (string, error) {
	raw, ok := v.entries[name]
	if !ok {
		return "", fmt.Errorf("unset %s", name)
	}
	return v.e.Resolve(raw, &Context{Vars: v, Chain: append(chain, convert.ChainPrefix+name)})
}

func TestResolve_VarTable(t *testing.T) {
	e := newTestEngine(map[string]string{"PATH": "/bin"}, false)
	vars := &tableVars{e: e, entries: map[string]string{
		"PATH": "/venv/bin:{env:PATH}",
		"A":    "{env:PATH}",
		"X":    "{env:Y}",
		"Y":    "{env:X}",
	}}

	got, err := vars.Load("A", nil)
	require.NoError(t, err)
	assert.Equal(t, "/venv/bin:/bin", got)

	_, err = vars.Load("X", nil)
	require.Error(t, err)
	var circ *cfgerrors.CircularReferenceError
	require.True(t, errors.As(err, &circ))
	assert.Equal(t, []string{"X", "Y", "X"}, circ.Chain)
}

func TestResolveStructured(t *testing.T) {
	refs := &fakeRefs{
		envs: map[string]map[string]any{
			"lint": {"deps": []string{"ruff"}},
		},
		sections: map[string]map[string]any{
			"env_run_base": {"deps": []any{"pytest", "{env:EXTRA:cov}"}},
		},
	}
	e := newTestEngine(map[string]string{"HOME": "/h"}, false)
	ctx := &Context{EnvName: "py", Refs: refs}

	value := []any{
		"base",
		map[string]any{"replace": "ref", "of": []any{"env_run_base", "deps"}, "extend": true},
		map[string]any{"replace": "ref", "env": "lint", "key": "deps", "extend": true},
		map[string]any{"replace": "env", "name": "HOME"},
		map[string]any{"replace": "env", "name": "NOPE", "default": "d"},
		map[string]any{"replace": "posargs", "default": []any{"tests"}, "extend": true},
	}
	got, err := e.ResolveStructured(value, ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"base", "pytest", "cov", "ruff", "/h", "d", "tests"}, got)

	ctx.PosArgs = []string{"-x"}
	got, err = e.ResolveStructured(map[string]any{"replace": "posargs"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"-x"}, got)

	_, err = e.ResolveStructured(map[string]any{"replace": "ref", "env": "lint", "key": "missing"}, ctx)
	assert.True(t, errors.Is(err, cfgerrors.ErrKeyNotFound))

	_, err = e.ResolveStructured(map[string]any{"replace": "bogus"}, ctx)
	assert.Error(t, err)

	got, err = e.ResolveStructured(map[string]any{"a": "{env:HOME}", "n": int64(1)}, ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "/h", "n": int64(1)}, got)
}
