package app

import (
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"

	"github.com/dshills/envforge/internal/config"
	"github.com/dshills/envforge/internal/config/loader"
	"github.com/dshills/envforge/internal/logging"
)

// Options configures an Application.
type Options struct {
	// ConfigPath is the project file. When empty, Dir is searched.
	ConfigPath string

	// Dir is the directory searched for a project file. Defaults to ".".
	Dir string

	// Root overrides the project root directory.
	Root string

	// WorkDir overrides the work_dir core option.
	WorkDir string

	// Envs and Labels select the environments to act on.
	Envs   []string
	Labels []string

	// Overrides are "NAMESPACE.KEY=VALUE" strings from the command line.
	// They win over the ENVFORGE_OVERRIDE environment variable.
	Overrides []string

	// PosArgs are the arguments after "--"; nil when there was no "--".
	PosArgs []string

	// Recreate forces Recreate decisions.
	Recreate bool

	// LogLevel and LogFormat configure the default logger.
	LogLevel  string
	LogFormat string

	// Version is the running envforge version, checked against
	// min_version. "dev" and "" skip the check.
	Version string

	// Logger replaces the logger built from LogLevel and LogFormat.
	Logger *logging.Logger

	// FS reads the project file. Defaults to the OS file system.
	FS loader.FileSystem

	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Finder locates interpreters. Defaults to a PATH lookup.
	Finder InterpreterFinder
}

// Application is one envforge invocation.
type Application struct {
	opts   Options
	log    *logging.Logger
	runID  string
	cfg    *config.Config
	finder InterpreterFinder
}

// New creates an Application, reading the project file.
func New(opts Options) (*Application, error) {
	a := &Application{opts: opts}
	if err := a.bootstrap(); err != nil {
		return nil, err
	}
	return a, nil
}

// bootstrap initializes the components in dependency order.
func (a *Application) bootstrap() error {
	a.initLogger()

	src, err := a.loadSource()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	overrides, err := a.overrides()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	cfgOpts := []config.Option{
		config.WithOverrides(overrides),
		config.WithPosArgs(a.opts.PosArgs),
		config.WithLogger(a.log.WithComponent("config")),
	}
	if a.opts.Root != "" {
		cfgOpts = append(cfgOpts, config.WithRoot(a.opts.Root))
	}
	a.cfg = config.New(src, cfgOpts...)
	a.log.Debug("loaded %s (%s)", src.Path(), src.Format())

	if err := a.checkVersion(); err != nil {
		return err
	}

	a.finder = a.opts.Finder
	if a.finder == nil {
		a.finder = NewPathFinder()
	}
	return nil
}

func (a *Application) initLogger() {
	a.runID = uuid.NewString()
	log := a.opts.Logger
	if log == nil {
		cfg := logging.DefaultConfig()
		if a.opts.LogLevel != "" {
			cfg.Level = a.opts.LogLevel
		}
		if a.opts.LogFormat != "" {
			cfg.Format = logging.Format(a.opts.LogFormat)
		}
		log = logging.New(cfg)
	}
	a.log = log.WithRunID(a.runID)
}

func (a *Application) loadSource() (loader.Source, error) {
	fsys := a.opts.FS
	if fsys == nil {
		fsys = loader.DefaultFS()
	}
	if a.opts.ConfigPath != "" {
		return loader.Load(fsys, a.opts.ConfigPath)
	}
	dir := a.opts.Dir
	if dir == "" {
		dir = "."
	}
	return loader.Discover(fsys, dir)
}

// overrides merges the environment variable overrides, the command line
// overrides and the work directory flag, in increasing priority.
func (a *Application) overrides() ([]loader.Override, error) {
	lookup := a.opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	fromEnv, err := loader.OverridesFromEnv(lookup)
	if err != nil {
		return nil, err
	}
	fromCLI, err := loader.ParseOverrides(a.opts.Overrides)
	if err != nil {
		return nil, err
	}
	all := slices.Concat(fromEnv, fromCLI)
	if a.opts.WorkDir != "" {
		all = append(all, loader.Override{Namespace: loader.CoreSection, Key: "work_dir", Value: a.opts.WorkDir})
	}
	return all, nil
}

func (a *Application) checkVersion() error {
	if a.opts.Version == "" || a.opts.Version == "dev" {
		return nil
	}
	current, err := config.ParseVersion(a.opts.Version)
	if err != nil {
		a.log.Warn("cannot check min_version: %v", err)
		return nil
	}
	return a.cfg.CheckMinVersion(current)
}

// Config returns the resolved configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the invocation logger.
func (a *Application) Logger() *logging.Logger { return a.log }

// RunID returns the invocation id stamped on every log line.
func (a *Application) RunID() string { return a.runID }

// Selected resolves the environments selected by the options.
func (a *Application) Selected() ([]string, error) {
	names, err := a.cfg.Select(a.opts.Envs, a.opts.Labels)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoEnvironments
	}
	return names, nil
}
