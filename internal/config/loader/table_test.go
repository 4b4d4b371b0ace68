package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
env_list = ["py312", "lint"]
requires = ["build"]

[env_run_base]
deps = ["pytest"]
commands = [["pytest", "{posargs}"]]

[env.lint]
skip_install = true

[extras]
retries = 3
`

func TestParseTOML(t *testing.T) {
	src, err := ParseTOML("envforge.toml", []byte(sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, FormatTOML, src.Format())
	assert.Equal(t, []string{"env_run_base", "extras", "env.lint"}, src.Sections())
	assert.Equal(t, []string{"lint"}, src.EnvSections())
	assert.Equal(t, []string{RunBaseTable}, src.DefaultBases())
	assert.Equal(t, []string{"env_list", "requires"}, src.Core().FoundKeys())

	raw, err := src.Core().LoadRaw("env_list")
	require.NoError(t, err)
	assert.False(t, raw.IsText())
	assert.Equal(t, []any{"py312", "lint"}, raw.Value())

	extras, ok := src.Section("extras")
	require.True(t, ok)
	raw, err = extras.LoadRaw("retries")
	require.NoError(t, err)
	assert.Equal(t, int64(3), raw.Value())

	lint, ok := src.EnvSection("lint")
	require.True(t, ok)
	assert.Equal(t, "env.lint", lint.Name())
	raw, err = lint.LoadRaw("skip_install")
	require.NoError(t, err)
	assert.Equal(t, true, raw.Value())
}

func TestTableSource_EnvFromSection(t *testing.T) {
	src := NewTableSource("x.toml", FormatTOML, nil)

	env, ok := src.EnvFromSection("env.py3.12")
	assert.True(t, ok)
	assert.Equal(t, "py3.12", env)

	_, ok = src.EnvFromSection("env_run_base")
	assert.False(t, ok)
	_, ok = src.EnvFromSection("env.")
	assert.False(t, ok)
	assert.Nil(t, src.DefaultBases())
}

func TestTableLoader_StringsAreText(t *testing.T) {
	src, err := ParseTOML("envforge.toml", []byte(`description = "run {env_name}"`))
	require.NoError(t, err)

	raw, err := src.Core().LoadRaw("description")
	require.NoError(t, err)
	assert.True(t, raw.IsText())
	assert.Equal(t, "run {env_name}", raw.Text())
}

func TestParseTOML_Error(t *testing.T) {
	_, err := ParseTOML("bad.toml", []byte("env_list = ["))
	assert.Error(t, err)
}

func TestParseJSONC(t *testing.T) {
	data := []byte(`{
	// environments to run
	"env_list": ["a", "b",],
	"env": {
		"a": {"deps": ["x"], "timeout": 30,},
	},
}`)
	src, err := ParseJSONC("envforge.jsonc", data)
	require.NoError(t, err)
	assert.Equal(t, FormatJSONC, src.Format())
	assert.Equal(t, []string{"a"}, src.EnvSections())

	a, ok := src.EnvSection("a")
	require.True(t, ok)
	raw, err := a.LoadRaw("timeout")
	require.NoError(t, err)
	assert.Equal(t, float64(30), raw.Value())
}

func TestParsePyProject(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		src, found, err := ParsePyProject("pyproject.toml", []byte(`
[project]
name = "demo"

[tool.envforge]
env_list = ["py312"]

[tool.envforge.env.py312]
deps = ["pytest"]
`))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, FormatTOML, src.Format())
		assert.Equal(t, []string{"py312"}, src.EnvSections())
	})

	t.Run("legacy ini", func(t *testing.T) {
		src, found, err := ParsePyProject("pyproject.toml", []byte(`
[tool.envforge]
legacy_ini = """
[envforge]
env_list = a

[testenv:a]
deps = x
"""
`))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, FormatINI, src.Format())
		assert.Equal(t, []string{"a"}, src.EnvSections())
	})

	t.Run("absent", func(t *testing.T) {
		src, found, err := ParsePyProject("pyproject.toml", []byte("[project]\nname = \"demo\"\n"))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, src)
	})
}
