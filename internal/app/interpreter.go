package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/envforge/internal/envcache"
)

// InterpreterFinder locates the interpreter for an environment.
type InterpreterFinder interface {
	// Find returns the first available candidate.
	Find(ctx context.Context, candidates []string) (envcache.Interpreter, error)
}

// PathFinder finds interpreters on PATH and asks them for their version.
type PathFinder struct {
	// LookPath resolves a command name. Defaults to exec.LookPath.
	LookPath func(string) (string, error)

	// Timeout bounds the version query.
	Timeout time.Duration
}

// NewPathFinder returns a PathFinder with default settings.
func NewPathFinder() *PathFinder {
	return &PathFinder{LookPath: exec.LookPath, Timeout: 5 * time.Second}
}

// Find implements InterpreterFinder.
func (f *PathFinder) Find(ctx context.Context, candidates []string) (envcache.Interpreter, error) {
	for _, candidate := range candidates {
		path, err := f.resolve(candidate)
		if err != nil {
			continue
		}
		interp := envcache.Interpreter{Executable: path}
		interp.Implementation, interp.Version = f.version(ctx, path)
		return interp, nil
	}
	return envcache.Interpreter{}, fmt.Errorf("%w: tried %s", ErrInterpreterNotFound, strings.Join(candidates, ", "))
}

func (f *PathFinder) resolve(candidate string) (string, error) {
	path := candidate
	if !filepath.IsAbs(candidate) {
		var err error
		if path, err = f.LookPath(candidate); err != nil {
			return "", err
		}
	} else if _, err := os.Stat(candidate); err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	return path, nil
}

// version runs "EXE --version" and splits "Python 3.12.1" into its
// implementation and version. A failing query leaves both empty.
func (f *PathFinder) version(ctx context.Context, path string) (impl, version string) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return "", ""
	}
	return parseVersionOutput(string(out))
}

func parseVersionOutput(out string) (impl, version string) {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Fields(line)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return "", fields[0]
	default:
		return fields[0], fields[1]
	}
}
