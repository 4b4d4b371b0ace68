package loader

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (m *MemFS) Stat(path string) (fs.FileInfo, error) {
	if _, ok := m.files[path]; ok {
		return &memFileInfo{name: path}, nil
	}
	return nil, fs.ErrNotExist
}

type memFileInfo struct {
	name string
}

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return 0 }
func (f *memFileInfo) Mode() fs.FileMode  { return 0644 }
func (f *memFileInfo) ModTime() time.Time { return time.Now() }
func (f *memFileInfo) IsDir() bool        { return false }
func (f *memFileInfo) Sys() any           { return nil }

// failFS fails every read with a permission error.
type failFS struct{ *MemFS }

func (failFS) ReadFile(string) ([]byte, error) { return nil, fs.ErrPermission }

func TestDiscover_Priority(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/p/envforge.ini", "[envforge]\nenv_list = a\n")
	memfs.AddFile("/p/envforge.toml", "env_list = [\"b\"]\n")

	src, err := Discover(memfs, "/p")
	require.NoError(t, err)
	assert.Equal(t, "/p/envforge.toml", src.Path())
	assert.Equal(t, FormatTOML, src.Format())
}

func TestDiscover_SkipsPyProjectWithoutTable(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/p/pyproject.toml", "[project]\nname = \"demo\"\n")

	_, err := Discover(memfs, "/p")
	assert.ErrorIs(t, err, cfgerrors.ErrNoConfigFile)

	memfs.AddFile("/p/pyproject.toml", "[tool.envforge]\nenv_list = [\"a\"]\n")
	src, err := Discover(memfs, "/p")
	require.NoError(t, err)
	assert.Equal(t, "/p/pyproject.toml", src.Path())
}

func TestDiscover_ReadError(t *testing.T) {
	_, err := Discover(failFS{NewMemFS()}, "/p")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cfgerrors.ErrNoConfigFile)
	assert.ErrorIs(t, err, fs.ErrPermission)
}

func TestLoad(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/p/custom.json", `{"env_list": ["a"]}`)
	memfs.AddFile("/p/pyproject.toml", "[project]\nname = \"demo\"\n")
	memfs.AddFile("/p/custom.cfg", "[testenv:x]\ndeps = y\n")

	src, err := Load(memfs, "/p/custom.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONC, src.Format())

	src, err = Load(memfs, "/p/custom.cfg")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, src.EnvSections())

	_, err = Load(memfs, "/p/pyproject.toml")
	assert.ErrorIs(t, err, cfgerrors.ErrNoConfigFile)
	_, err = Load(memfs, "/p/missing.toml")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFormat_String(t *testing.T) {
	tests := map[Format]string{
		FormatINI:   "ini",
		FormatTOML:  "toml",
		FormatJSONC: "jsonc",
		Format(99):  "unknown",
	}
	for f, want := range tests {
		assert.Equal(t, want, f.String())
	}
}
