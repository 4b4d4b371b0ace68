package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/envforge/internal/envcache"
)

func TestSplitEnvs(t *testing.T) {
	got := splitEnvs([]string{"py38,py39", " lint ", ","})
	assert.Equal(t, []string{"py38", "py39", "lint"}, got)
	assert.Nil(t, splitEnvs(nil))
}

func TestDiffSummary(t *testing.T) {
	assert.Empty(t, diffSummary(envcache.Diff{}))
	assert.Equal(t, "changed: deps; added: package",
		diffSummary(envcache.Diff{Changed: []string{"deps"}, Added: []string{"package"}}))
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envforge.ini")
	require.NoError(t, os.WriteFile(path, []byte("[envforge]\nenv_list = py312\n[testenv]\ndeps = pytest\n"), 0o644))

	var out bytes.Buffer
	root := newRootCommand("dev", "none", "today")
	root.SetOut(&out)
	root.SetArgs([]string{"-c", path, "--log-level", "off", "config", "-k", "deps,commands", "--", "-x"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "[testenv:py312]")
	assert.Contains(t, out.String(), "deps = pytest")
}

func TestRejectsArgumentsBeforeDash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envforge.ini")
	require.NoError(t, os.WriteFile(path, []byte("[envforge]\nenv_list = a\n"), 0o644))

	root := newRootCommand("dev", "none", "today")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"-c", path, "list", "stray"})
	err := root.Execute()
	assert.ErrorContains(t, err, "unexpected argument: stray")
}
