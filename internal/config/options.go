package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"github.com/dshills/envforge/internal/config/convert"
	"github.com/dshills/envforge/internal/config/registry"
)

// Option keys the configuration package itself depends on.
const (
	envListKey = "env_list"
	labelsKey  = "labels"
	setEnvKey  = "set_env"
	baseKey    = "base"
)

// DefaultWorkDir is the work directory name under the project root.
const DefaultWorkDir = ".envforge"

// DefaultPassEnv lists the variables every environment passes through.
var DefaultPassEnv = []string{"HOME", "LANG", "PATH", "TMPDIR"}

// pythonFactor matches factors naming an interpreter, e.g. py312 or pypy3.
var pythonFactor = regexp.MustCompile(`^(py|pypy|cpython)(\d)(\d*)$`)

// CoreOptions returns a registry with the built-in core options. root is
// the default project root.
func CoreOptions(root string) *registry.Registry {
	r := registry.New()
	underRoot := func(v any, s registry.Scope) (any, error) {
		p, _ := v.(string)
		if p == "" || filepath.IsAbs(p) {
			return p, nil
		}
		base, err := s.Get("root")
		if err != nil {
			return nil, err
		}
		return filepath.Join(convert.Stringify(base), p), nil
	}

	r.MustRegister(registry.Definition{
		Keys:    []string{"root", "toxinidir"},
		Type:    convert.Path(),
		Default: registry.Literal(root),
		PostProcess: func(v any, _ registry.Scope) (any, error) {
			p, _ := v.(string)
			if filepath.IsAbs(p) {
				return p, nil
			}
			return filepath.Join(root, p), nil
		},
		Description: "Project root directory",
	})
	r.MustRegister(registry.Definition{
		Keys: []string{"work_dir", "toxworkdir"},
		Type: convert.Path(),
		Default: registry.Computed(func(s registry.Scope) (any, error) {
			base, err := s.Get("root")
			if err != nil {
				return nil, err
			}
			return filepath.Join(convert.Stringify(base), DefaultWorkDir), nil
		}),
		PostProcess: underRoot,
		Description: "Directory holding the environments",
	})
	r.MustRegister(registry.Definition{
		Keys: []string{"temp_dir"},
		Type: convert.Path(),
		Default: registry.Computed(func(s registry.Scope) (any, error) {
			work, err := s.Get("work_dir")
			if err != nil {
				return nil, err
			}
			return filepath.Join(convert.Stringify(work), ".tmp"), nil
		}),
		PostProcess: underRoot,
		Description: "Directory for temporary files",
	})
	r.MustRegister(registry.Definition{
		Keys:        []string{envListKey, "envlist"},
		Type:        convert.EnvListT(),
		Default:     registry.Literal(convert.EnvList{}),
		Description: "Environments to run by default",
	})
	r.MustRegister(registry.Definition{
		Keys:        []string{labelsKey},
		Type:        convert.MapOf(convert.String(), convert.ListOf(convert.String())),
		Default:     registry.Computed(func(registry.Scope) (any, error) { return convert.NewMap(), nil }),
		Description: "Named groups of environments",
	})
	r.MustRegister(registry.Definition{
		Keys:        []string{"min_version", "minversion"},
		Type:        convert.String(),
		Default:     registry.Literal(""),
		Description: "Minimal required envforge version",
	})
	r.MustRegister(registry.Definition{
		Keys:        []string{"requires"},
		Type:        convert.ListOf(convert.String()),
		Default:     registry.Literal([]string{}),
		Description: "Packages the orchestrator itself needs",
	})
	r.MustRegister(registry.Definition{
		Keys:        []string{"skip_missing_interpreters"},
		Type:        convert.Bool(),
		Default:     registry.Literal(false),
		Description: "Skip environments whose interpreter is not found",
	})
	return r
}

// EnvOptions returns a registry with the built-in environment options.
func EnvOptions() *registry.Registry {
	r := registry.New()
	str := func(keys []string, def, desc string) {
		r.MustRegister(registry.Definition{Keys: keys, Type: convert.String(), Default: registry.Literal(def), Description: desc})
	}
	flag := func(key, desc string) {
		r.MustRegister(registry.Definition{Keys: []string{key}, Type: convert.Bool(), Default: registry.Literal(false), Description: desc})
	}
	list := func(keys []string, desc string) {
		r.MustRegister(registry.Definition{Keys: keys, Type: convert.ListOf(convert.String()), Default: registry.Literal([]string{}), Description: desc})
	}
	commands := func(key, desc string) {
		r.MustRegister(registry.Definition{Keys: []string{key}, Type: convert.ListOf(convert.CommandT()), Default: registry.Literal([]convert.Command{}), Description: desc})
	}
	dir := func(keys []string, def, desc string) {
		r.MustRegister(registry.Definition{Keys: keys, Type: convert.Path(), Default: registry.Literal(def), Description: desc})
	}

	r.MustRegister(registry.Definition{
		Keys:        []string{"env_name", "envname"},
		Type:        convert.String(),
		Default:     registry.Computed(func(s registry.Scope) (any, error) { return s.Name(), nil }),
		Description: "Name of the environment",
	})
	list([]string{baseKey}, "Sections to inherit from")
	str([]string{"description"}, "", "Description of the environment")
	r.MustRegister(registry.Definition{
		Keys:        []string{"base_python", "basepython"},
		Type:        convert.ListOf(convert.String()),
		Default:     registry.Computed(func(s registry.Scope) (any, error) { return pythonFromFactors(s.Name()), nil }),
		Description: "Interpreters to create the environment with, first found wins",
	})
	list([]string{"deps"}, "Dependencies to install")
	commands("commands_pre", "Commands to run before the main commands")
	commands("commands", "Commands to run")
	commands("commands_post", "Commands to run after the main commands")
	dir([]string{"change_dir", "changedir"}, "{root}", "Working directory of the commands")
	r.MustRegister(registry.Definition{
		Keys:        []string{setEnvKey, "setenv"},
		Type:        convert.SetEnvT(),
		Default:     registry.Literal(""),
		PostProcess: setEnvDefaults,
		Description: "Environment variables to set",
	})
	r.MustRegister(registry.Definition{
		Keys:        []string{"pass_env", "passenv"},
		Type:        convert.ListOf(convert.String()),
		Default:     registry.Literal([]string{}),
		PostProcess: passEnvDefaults,
		Description: "Environment variables to pass through",
	})
	list([]string{"allowlist_externals", "whitelist_externals"}, "Commands allowed from outside the environment")
	flag("ignore_errors", "Run every command even when one fails")
	flag("ignore_outcome", "Report failures as warnings")
	flag("skip_install", "Do not install the package")
	flag("recreate", "Always recreate the environment")
	r.MustRegister(registry.Definition{
		Keys: []string{"package"},
		Type: convert.Choice("wheel", "sdist", "editable", "skip", "external"),
		Default: registry.Computed(func(s registry.Scope) (any, error) {
			skip, err := s.Get("skip_install")
			if err != nil {
				return nil, err
			}
			if skip == true {
				return "skip", nil
			}
			return "sdist", nil
		}),
		Description: "How the package is installed",
	})
	dir([]string{"env_dir", "envdir"}, "{work_dir}{/}{env_name}", "Directory of the environment")
	dir([]string{"env_tmp_dir", "envtmpdir"}, "{env_dir}{/}tmp", "Temporary directory of the environment")
	dir([]string{"env_log_dir", "envlogdir"}, "{env_dir}{/}log", "Log directory of the environment")
	r.MustRegister(registry.Definition{
		Keys: []string{"env_bin_dir", "envbindir"},
		Type: convert.Path(),
		Default: registry.Computed(func(s registry.Scope) (any, error) {
			envDir, err := s.Get("env_dir")
			if err != nil {
				return nil, err
			}
			return filepath.Join(convert.Stringify(envDir), binDir()), nil
		}),
		Description: "Executable directory of the environment",
	})
	r.MustRegister(registry.Definition{
		Keys: []string{"env_python", "envpython"},
		Type: convert.Path(),
		Default: registry.Computed(func(s registry.Scope) (any, error) {
			bin, err := s.Get("env_bin_dir")
			if err != nil {
				return nil, err
			}
			return filepath.Join(convert.Stringify(bin), "python"+exeSuffix()), nil
		}),
		Description: "Interpreter of the environment",
	})
	str([]string{"platform"}, "", "Platform the environment is restricted to")
	r.MustRegister(registry.Definition{
		Keys:        []string{"depends"},
		Type:        convert.EnvListT(),
		Default:     registry.Literal(convert.EnvList{}),
		Description: "Environments that must run first",
	})
	list([]string{labelsKey}, "Labels of the environment")
	str([]string{"runner"}, "virtualenv", "Runner materializing the environment")
	return r
}

// pythonFromFactors derives the interpreter from the first factor of name
// that names one, e.g. py312 gives python3.12.
func pythonFromFactors(name string) []string {
	for _, f := range strings.Split(name, "-") {
		m := pythonFactor.FindStringSubmatch(f)
		if m == nil {
			continue
		}
		impl := "python"
		if m[1] == "pypy" {
			impl = "pypy"
		}
		if m[3] == "" {
			return []string{impl + m[2]}
		}
		return []string{fmt.Sprintf("%s%s.%s", impl, m[2], m[3])}
	}
	return []string{"python3"}
}

func setEnvDefaults(v any, _ registry.Scope) (any, error) {
	table, ok := v.(*convert.SetEnv)
	if !ok {
		return v, nil
	}
	table.UpdateIfMissing("PYTHONIOENCODING", "utf-8")
	table.UpdateIfMissing("PIP_DISABLE_PIP_VERSION_CHECK", "1")
	return table, nil
}

func passEnvDefaults(v any, _ registry.Scope) (any, error) {
	names, ok := v.([]string)
	if !ok {
		return v, nil
	}
	out := slices.Clone(names)
	for _, name := range DefaultPassEnv {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out, nil
}

func binDir() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
