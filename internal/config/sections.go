package config

import (
	"maps"
	"slices"

	"github.com/dshills/envforge/internal/config/convert"
)

// Section accessor methods return snapshot structs. Mutating the returned
// struct does not modify the underlying configuration. Options that fail to
// resolve are reported with their zero value and recorded; see
// ConfigErrors.

// CoreSettings provides type-safe access to the core options.
type CoreSettings struct {
	// Root is the project root directory.
	Root string

	// WorkDir holds the environments.
	WorkDir string

	// TempDir holds temporary files shared by all environments.
	TempDir string

	// EnvList names the environments run by default.
	EnvList []string

	// MinVersion is the minimal envforge version the project requires.
	MinVersion string

	// Requires lists packages the orchestrator itself needs.
	Requires []string

	// SkipMissingInterpreters skips environments without an interpreter.
	SkipMissingInterpreters bool
}

// EnvSettings provides type-safe access to the options of one environment.
// The variable table is not part of the snapshot because its entries are
// resolved lazily; use GetAs[*convert.SetEnv] for it.
type EnvSettings struct {
	Name        string
	Description string

	// BasePython lists interpreter candidates, first found wins.
	BasePython []string

	Deps         []string
	CommandsPre  []convert.Command
	Commands     []convert.Command
	CommandsPost []convert.Command

	// ChangeDir is the working directory of the commands.
	ChangeDir string

	PassEnv            []string
	AllowlistExternals []string

	IgnoreErrors  bool
	IgnoreOutcome bool
	SkipInstall   bool
	Recreate      bool

	// Package is one of wheel, sdist, editable, skip or external.
	Package string

	EnvDir    string
	EnvTmpDir string
	EnvLogDir string
	EnvBinDir string
	EnvPython string

	// Platform restricts the environment to matching platforms.
	Platform string

	// Depends lists environments that must run first.
	Depends []string

	Labels []string
	Runner string
}

// CoreSettings returns the core options.
func (c *Config) CoreSettings() CoreSettings {
	cs := c.core
	return CoreSettings{
		Root:                    getOr(cs, "root", ""),
		WorkDir:                 getOr(cs, "work_dir", ""),
		TempDir:                 getOr(cs, "temp_dir", ""),
		EnvList:                 getOr(cs, envListKey, convert.EnvList{}).Envs,
		MinVersion:              getOr(cs, "min_version", ""),
		Requires:                getStringsOr(cs, "requires"),
		SkipMissingInterpreters: getOr(cs, "skip_missing_interpreters", false),
	}
}

// Settings returns the environment options.
func (c *ConfigSet) Settings() EnvSettings {
	return EnvSettings{
		Name:               getOr(c, "env_name", c.name),
		Description:        getOr(c, "description", ""),
		BasePython:         getStringsOr(c, "base_python"),
		Deps:               getStringsOr(c, "deps"),
		CommandsPre:        getCommandsOr(c, "commands_pre"),
		Commands:           getCommandsOr(c, "commands"),
		CommandsPost:       getCommandsOr(c, "commands_post"),
		ChangeDir:          getOr(c, "change_dir", ""),
		PassEnv:            getStringsOr(c, "pass_env"),
		AllowlistExternals: getStringsOr(c, "allowlist_externals"),
		IgnoreErrors:       getOr(c, "ignore_errors", false),
		IgnoreOutcome:      getOr(c, "ignore_outcome", false),
		SkipInstall:        getOr(c, "skip_install", false),
		Recreate:           getOr(c, "recreate", false),
		Package:            getOr(c, "package", ""),
		EnvDir:             getOr(c, "env_dir", ""),
		EnvTmpDir:          getOr(c, "env_tmp_dir", ""),
		EnvLogDir:          getOr(c, "env_log_dir", ""),
		EnvBinDir:          getOr(c, "env_bin_dir", ""),
		EnvPython:          getOr(c, "env_python", ""),
		Platform:           getOr(c, "platform", ""),
		Depends:            getOr(c, "depends", convert.EnvList{}).Envs,
		Labels:             getStringsOr(c, labelsKey),
		Runner:             getOr(c, "runner", ""),
	}
}

// getOr resolves key, returning defaultValue when it fails. Failures are
// recorded because they indicate a configuration problem.
func getOr[T any](cs *ConfigSet, key string, defaultValue T) T {
	v, err := GetAs[T](cs, key)
	if err != nil {
		cs.recordConfigError(key, err)
		return defaultValue
	}
	return v
}

func getStringsOr(cs *ConfigSet, key string) []string {
	// Return a copy to enforce the snapshot guarantee
	return slices.Clone(getOr(cs, key, []string{}))
}

func getCommandsOr(cs *ConfigSet, key string) []convert.Command {
	return slices.Clone(getOr(cs, key, []convert.Command{}))
}

// recordConfigError stores the first error for each key to preserve the
// original cause.
func (c *ConfigSet) recordConfigError(key string, err error) {
	if _, exists := c.errs[key]; !exists {
		c.errs[key] = err
	}
}

// ConfigErrors returns the errors encountered by the section accessors.
func (c *ConfigSet) ConfigErrors() map[string]error {
	if len(c.errs) == 0 {
		return nil
	}
	return maps.Clone(c.errs)
}

// ClearConfigErrors clears the recorded errors.
func (c *ConfigSet) ClearConfigErrors() {
	clear(c.errs)
}
