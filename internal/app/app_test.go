package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/envforge/internal/config"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
	"github.com/dshills/envforge/internal/config/loader"
	"github.com/dshills/envforge/internal/envcache"
	"github.com/dshills/envforge/internal/logging"
)

const projectINI = `[envforge]
env_list = py38, lint
labels =
    ci = py38, lint

[testenv]
deps = pytest
commands = pytest {posargs}

[testenv:lint]
description = run linters
deps = ruff
labels = static
`

// fakeFinder returns a fixed interpreter for any candidate list.
type fakeFinder struct {
	interp envcache.Interpreter
	err    error
	seen   [][]string
}

func (f *fakeFinder) Find(_ context.Context, candidates []string) (envcache.Interpreter, error) {
	f.seen = append(f.seen, candidates)
	return f.interp, f.err
}

func newFinder() *fakeFinder {
	return &fakeFinder{interp: envcache.Interpreter{
		Executable:     "/usr/bin/python3.8",
		Version:        "3.8.18",
		Implementation: "Python",
	}}
}

func writeProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "envforge.ini"), []byte(content), 0o644))
	return dir
}

func noEnv(string) (string, bool) { return "", false }

func newApp(t *testing.T, dir string, opts Options) *Application {
	t.Helper()
	opts.Dir = dir
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = noEnv
	}
	if opts.Finder == nil {
		opts.Finder = newFinder()
	}
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

func TestNew_DiscoversProjectFile(t *testing.T) {
	dir := writeProject(t, projectINI)
	a := newApp(t, dir, Options{})

	assert.Equal(t, loader.FormatINI, a.Config().Source().Format())
	assert.NotEmpty(t, a.RunID())
	assert.NotNil(t, a.Logger())

	root, err := a.Config().Core().GetString("root")
	require.NoError(t, err)
	want, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, want, root)
}

func TestNew_NoProjectFile(t *testing.T) {
	_, err := New(Options{Dir: t.TempDir(), Logger: logging.Nop(), LookupEnv: noEnv})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, cfgerrors.ErrNoConfigFile)
}

func TestNew_ExplicitConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("env_list = [\"a\"]\n"), 0o644))

	a, err := New(Options{ConfigPath: path, Logger: logging.Nop(), LookupEnv: noEnv, Finder: newFinder()})
	require.NoError(t, err)
	assert.Equal(t, loader.FormatTOML, a.Config().Source().Format())

	names, err := a.Selected()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestNew_BadOverride(t *testing.T) {
	dir := writeProject(t, projectINI)
	_, err := New(Options{Dir: dir, Overrides: []string{"nodot"}, Logger: logging.Nop(), LookupEnv: noEnv})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
}

func TestNew_OverridePrecedence(t *testing.T) {
	dir := writeProject(t, projectINI)
	env := map[string]string{
		loader.OverrideEnvVar: "testenv.description=from env;testenv.deps=envdep",
	}
	a := newApp(t, dir, Options{
		Overrides: []string{"testenv.description=from cli"},
		LookupEnv: func(k string) (string, bool) { v, ok := env[k]; return v, ok },
	})

	cs, err := a.Config().Env("py38")
	require.NoError(t, err)
	desc, err := cs.GetString("description")
	require.NoError(t, err)
	assert.Equal(t, "from cli", desc)

	deps, err := cs.GetStrings("deps")
	require.NoError(t, err)
	assert.Equal(t, []string{"envdep"}, deps)
}

func TestNew_WorkDirFlag(t *testing.T) {
	dir := writeProject(t, projectINI)
	a := newApp(t, dir, Options{WorkDir: "out"})

	workDir, err := a.Config().Core().GetString("work_dir")
	require.NoError(t, err)
	root, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "out"), workDir)
}

func TestNew_MinVersion(t *testing.T) {
	dir := writeProject(t, "[envforge]\nmin_version = 2.1\n")

	_, err := New(Options{Dir: dir, Version: "v1.9.0", Logger: logging.Nop(), LookupEnv: noEnv})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrVersionTooOld)

	for _, version := range []string{"2.1.0", "dev", ""} {
		_, err := New(Options{Dir: dir, Version: version, Logger: logging.Nop(), LookupEnv: noEnv})
		assert.NoError(t, err, "version %q", version)
	}
}

func TestSelected(t *testing.T) {
	dir := writeProject(t, projectINI)

	tests := []struct {
		name   string
		envs   []string
		labels []string
		want   []string
	}{
		{"default env_list", nil, nil, []string{"py38", "lint"}},
		{"explicit", []string{"lint"}, nil, []string{"lint"}},
		{"core label", nil, []string{"ci"}, []string{"py38", "lint"}},
		{"env label", nil, []string{"static"}, []string{"lint"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newApp(t, dir, Options{Envs: tt.envs, Labels: tt.labels})
			got, err := a.Selected()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelected_Empty(t *testing.T) {
	dir := writeProject(t, "[envforge]\n")
	a := newApp(t, dir, Options{})
	_, err := a.Selected()
	assert.ErrorIs(t, err, ErrNoEnvironments)
}

func TestList(t *testing.T) {
	dir := writeProject(t, projectINI)
	a := newApp(t, dir, Options{})

	infos, err := a.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byName := map[string]EnvInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName["py38"].Default)
	assert.Equal(t, "run linters", byName["lint"].Description)
	assert.Equal(t, []string{"static"}, byName["lint"].Labels)
}

func TestStatusCommitLifecycle(t *testing.T) {
	dir := writeProject(t, projectINI)
	finder := newFinder()
	a := newApp(t, dir, Options{Envs: []string{"py38"}, Finder: finder})

	status, err := a.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, envcache.Create, status[0].Action)
	assert.Equal(t, []string{"python3.8"}, finder.seen[0])

	// Status leaves nothing behind.
	info := filepath.Join(status[0].EnvDir, envcache.FileName)
	assert.NoFileExists(t, info)

	committed, err := a.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, envcache.Create, committed[0].Action)
	assert.FileExists(t, info)

	status, err = a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, envcache.Keep, status[0].Action)
	assert.True(t, status[0].Diff.Empty())

	// A dependency change is reported against the committed snapshot.
	changed := newApp(t, dir, Options{
		Envs:      []string{"py38"},
		Overrides: []string{"testenv.deps=pytest\nhypothesis"},
	})
	status, err = changed.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, envcache.Recreate, status[0].Action)
	assert.Equal(t, []string{envcache.KeyDeps}, status[0].Diff.Changed)

	forced := newApp(t, dir, Options{Envs: []string{"py38"}, Recreate: true})
	status, err = forced.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, envcache.Recreate, status[0].Action)
}

func TestStatus_CollectsFailures(t *testing.T) {
	dir := writeProject(t, projectINI)
	finder := newFinder()
	finder.err = ErrInterpreterNotFound
	a := newApp(t, dir, Options{Finder: finder})

	status, err := a.Status(context.Background())
	require.Error(t, err)
	require.Len(t, status, 2)

	var list *ErrorList
	require.True(t, errors.As(err, &list))
	assert.Equal(t, 2, list.Len())
	assert.ErrorIs(t, err, ErrInterpreterNotFound)

	var opErr *OperationError
	require.True(t, errors.As(status[1].Err, &opErr))
	assert.Equal(t, "status", opErr.Op)
	assert.Equal(t, "lint", opErr.Target)
}

func TestRenderConfig_INI(t *testing.T) {
	dir := writeProject(t, projectINI+"\n[testenv:py38]\nrecreate = sometimes\n")
	a := newApp(t, dir, Options{Envs: []string{"py38"}})

	var buf bytes.Buffer
	require.NoError(t, a.RenderConfig(&buf, FormatINI, nil))
	out := buf.String()

	assert.Contains(t, out, "[envforge]\n")
	assert.Contains(t, out, "[testenv:py38]\n")
	assert.Contains(t, out, "env_name = py38\n")
	assert.Contains(t, out, "recreate = # Exception:")
	assert.Less(t, strings.Index(out, "[envforge]"), strings.Index(out, "[testenv:py38]"))
}

func TestRenderConfig_SetEnvFailure(t *testing.T) {
	dir := writeProject(t, projectINI+"\n[testenv:dotenv]\nset_env =\n    file|missing.env\n    A = 1\n")
	a := newApp(t, dir, Options{Envs: []string{"dotenv"}})

	var buf bytes.Buffer
	require.NoError(t, a.RenderConfig(&buf, FormatINI, []string{"set_env"}))
	assert.Contains(t, buf.String(), "set_env = # Exception: reading set_env file")

	buf.Reset()
	require.NoError(t, a.RenderConfig(&buf, FormatJSON, []string{"set_env"}))
	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	entry, ok := got["testenv:dotenv"]["set_env"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, entry["error"], "reading set_env file")
}

func TestRenderConfig_KeySubset(t *testing.T) {
	dir := writeProject(t, projectINI)
	a := newApp(t, dir, Options{Envs: []string{"lint"}})

	var buf bytes.Buffer
	require.NoError(t, a.RenderConfig(&buf, FormatJSON, []string{"deps", "envlist", "nope"}))

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]any{"env_list": []any{"py38", "lint"}}, got["envforge"])
	assert.Equal(t, map[string]any{"deps": []any{"ruff"}}, got["testenv:lint"])
}

func TestRenderConfig_YAMLKeepsOrder(t *testing.T) {
	dir := writeProject(t, projectINI)
	a := newApp(t, dir, Options{Envs: []string{"lint"}})

	var buf bytes.Buffer
	require.NoError(t, a.RenderConfig(&buf, FormatYAML, []string{"env_name", "deps", "commands"}))
	out := buf.String()

	assert.Contains(t, out, "testenv:lint:")
	assert.Contains(t, out, "env_name: lint")
	assert.Less(t, strings.Index(out, "env_name:"), strings.Index(out, "deps:"))
	assert.Less(t, strings.Index(out, "deps:"), strings.Index(out, "commands:"))
	assert.Contains(t, out, "- pytest")
}

func TestRenderConfig_UnknownFormat(t *testing.T) {
	dir := writeProject(t, projectINI)
	a := newApp(t, dir, Options{})
	err := a.RenderConfig(&bytes.Buffer{}, "xml", nil)
	assert.ErrorContains(t, err, "unknown format")
}
