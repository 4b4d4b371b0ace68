package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/envforge/internal/config/convert"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
	"github.com/dshills/envforge/internal/config/factor"
	"github.com/dshills/envforge/internal/config/loader"
	"github.com/dshills/envforge/internal/config/registry"
	"github.com/dshills/envforge/internal/config/substitute"
	"github.com/dshills/envforge/internal/logging"
)

// Config is the resolved view of one project file: the core namespace plus
// one namespace per environment, created on first reference.
type Config struct {
	src       loader.Source
	engine    *substitute.Engine
	coreReg   *registry.Registry
	envReg    *registry.Registry
	overrides []loader.Override
	posargs   []string
	root      string
	readFile  func(string) ([]byte, error)
	log       *logging.Logger

	core     *ConfigSet
	envs     map[string]*ConfigSet
	envNames []string
}

// Option configures a Config instance.
type Option func(*Config)

// WithOverrides sets the overrides. Later entries win over earlier ones.
func WithOverrides(overrides []loader.Override) Option {
	return func(c *Config) {
		c.overrides = overrides
	}
}

// WithPosArgs sets the positional arguments given after "--". A nil slice
// means none were given.
func WithPosArgs(args []string) Option {
	return func(c *Config) {
		c.posargs = args
	}
}

// WithEngine replaces the substitution engine.
func WithEngine(e *substitute.Engine) Option {
	return func(c *Config) {
		c.engine = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Config) {
		c.log = l
	}
}

// WithRoot sets the project root. It defaults to the directory of the
// project file.
func WithRoot(dir string) Option {
	return func(c *Config) {
		c.root = dir
	}
}

// WithReadFile replaces the reader used for set_env dotenv files.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(c *Config) {
		c.readFile = fn
	}
}

// WithCoreRegistry replaces the built-in core option registry.
func WithCoreRegistry(r *registry.Registry) Option {
	return func(c *Config) {
		c.coreReg = r
	}
}

// WithEnvRegistry replaces the built-in environment option registry. Every
// environment namespace gets its own clone.
func WithEnvRegistry(r *registry.Registry) Option {
	return func(c *Config) {
		c.envReg = r
	}
}

// New creates a Config over src.
func New(src loader.Source, opts ...Option) *Config {
	c := &Config{
		src:  src,
		envs: make(map[string]*ConfigSet),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.root == "" {
		c.root = filepath.Dir(src.Path())
	}
	if abs, err := filepath.Abs(c.root); err == nil {
		c.root = abs
	}
	if c.engine == nil {
		c.engine = substitute.New()
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	if c.readFile == nil {
		root := c.root
		c.readFile = func(path string) ([]byte, error) {
			if !filepath.IsAbs(path) {
				path = filepath.Join(root, path)
			}
			return os.ReadFile(path)
		}
	}
	if c.coreReg == nil {
		c.coreReg = CoreOptions(c.root)
	}
	if c.envReg == nil {
		c.envReg = EnvOptions()
	}

	override := loader.NewOverrideLoader("override", c.overrides, loader.CoreSection)
	c.core = newConfigSet(c, "", loader.CoreSection, c.coreReg.Clone(), override, []loader.Loader{src.Core()}, nil)
	return c
}

// Source returns the project file the configuration was read from.
func (c *Config) Source() loader.Source { return c.src }

// Root returns the project root directory.
func (c *Config) Root() string { return c.root }

// Core returns the core namespace.
func (c *Config) Core() *ConfigSet { return c.core }

// Env returns the namespace of the named environment, creating it on first
// use. Any name is accepted; environments without a section of their own
// inherit from the default bases.
func (c *Config) Env(name string) (*ConfigSet, error) {
	if cs, ok := c.envs[name]; ok {
		return cs, nil
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", cfgerrors.ErrUnknownEnvironment)
	}

	own, hasOwn := c.envSection(name)
	var loaders []loader.Loader
	if hasOwn {
		loaders = append(loaders, own)
	}
	parents, err := c.inheritance(own, hasOwn, name)
	if err != nil {
		return nil, err
	}

	override := loader.NewOverrideLoader("override", c.overrides, loader.BaseSection, loader.EnvSectionPrefix+name)
	cs := newConfigSet(c, name, loader.EnvSectionPrefix+name, c.envReg.Clone(), override, loaders, parents)
	cs.used[baseKey] = struct{}{}
	c.envs[name] = cs
	return cs, nil
}

// envSection finds the section configuring name. A section whose name is
// generative ("testenv:py3{11,12}") configures every name it expands to.
func (c *Config) envSection(name string) (loader.Loader, bool) {
	if l, ok := c.src.EnvSection(name); ok {
		return l, true
	}
	for _, env := range c.src.EnvSections() {
		if !strings.ContainsRune(env, '{') {
			continue
		}
		names, err := factor.Expand(env)
		if err != nil {
			continue
		}
		if slices.Contains(names, name) {
			return c.src.EnvSection(env)
		}
	}
	return nil, false
}

// inheritance lists the sections an environment inherits from, depth
// first in declaration order. An environment section names its bases with
// the "base" key; without one it inherits the default bases of the source.
func (c *Config) inheritance(own loader.Loader, hasOwn bool, env string) ([]loader.Loader, error) {
	start := c.src.DefaultBases()
	var path []string
	if hasOwn {
		path = []string{own.Name()}
		names, declared, err := baseNames(own, env)
		if err != nil {
			return nil, err
		}
		if declared {
			start = names
		}
	}

	var parents []loader.Loader
	seen := make(map[string]bool)
	var walk func(names, path []string) error
	walk = func(names, path []string) error {
		for _, name := range names {
			if slices.Contains(path, name) {
				cycle := append(slices.Clip(path), name)
				return fmt.Errorf("%w: %s", cfgerrors.ErrInheritanceCycle, strings.Join(cycle, " -> "))
			}
			l, ok := c.src.Section(name)
			if !ok {
				c.log.Warn("%s: base section %q does not exist", env, name)
				continue
			}
			if !seen[name] {
				seen[name] = true
				parents = append(parents, l)
			}
			next, _, err := baseNames(l, env)
			if err != nil {
				return err
			}
			if err := walk(next, append(slices.Clip(path), name)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(start, path); err != nil {
		return nil, err
	}
	return parents, nil
}

// baseNames reads the "base" key of a section.
func baseNames(l loader.Loader, env string) (names []string, declared bool, err error) {
	raw, err := l.LoadRaw(baseKey)
	if cfgerrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	raw, err = l.Prepare(baseKey, raw, env)
	if err != nil {
		return nil, false, err
	}
	if raw.IsText() {
		return convert.SplitList(raw.Text(), false), true, nil
	}
	items, ok := raw.Value().([]any)
	if !ok {
		return nil, false, &cfgerrors.TypeMismatchError{Raw: raw.Value(), Target: "list[string]"}
	}
	for _, item := range items {
		names = append(names, convert.Stringify(item))
	}
	return names, true, nil
}

// EnvNames lists every environment the project file implies: the env_list
// entries, then environment sections, then environments named by factor
// conditions.
func (c *Config) EnvNames() ([]string, error) {
	if c.envNames != nil {
		return slices.Clone(c.envNames), nil
	}
	explicit, err := GetAs[convert.EnvList](c.core, envListKey)
	if err != nil {
		return nil, err
	}
	names, err := factor.Discover(explicit.Envs, c.src.EnvSections(), c.conditionValues())
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	c.envNames = names
	return slices.Clone(names), nil
}

// conditionValues collects the text values of the base and environment
// sections, where factor conditions may name further environments.
func (c *Config) conditionValues() []string {
	bases := c.src.DefaultBases()
	var values []string
	for _, section := range c.src.Sections() {
		_, isEnv := c.src.EnvFromSection(section)
		if !isEnv && !slices.Contains(bases, section) {
			continue
		}
		l, _ := c.src.Section(section)
		for _, key := range l.FoundKeys() {
			raw, err := l.LoadRaw(key)
			if err != nil || !raw.IsText() {
				continue
			}
			values = append(values, loader.StripComments(raw.Text()))
		}
	}
	return values
}

// Labels maps every label to its environments. Labels come from the core
// labels table and from the labels option of each environment.
func (c *Config) Labels() (map[string][]string, error) {
	out := make(map[string][]string)
	add := func(label, env string) {
		if !slices.Contains(out[label], env) {
			out[label] = append(out[label], env)
		}
	}

	table, err := GetAs[*convert.Map](c.core, labelsKey)
	if err != nil {
		return nil, err
	}
	for _, label := range table.Keys() {
		v, _ := table.Get(label)
		envs, ok := v.([]string)
		if !ok {
			return nil, &TypeError{Key: labelsKey, Expected: "[]string", Actual: typeName(v)}
		}
		for _, env := range envs {
			add(label, env)
		}
	}

	names, err := c.EnvNames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		cs, err := c.Env(name)
		if err != nil {
			return nil, err
		}
		labels, err := cs.GetStrings(labelsKey)
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			add(label, name)
		}
	}
	return out, nil
}

// Select resolves the environments to act on. names may be generative;
// every resulting name must be known. Labels add their environments. With
// neither, env_list is used, or every known environment when it is empty.
func (c *Config) Select(names, labels []string) ([]string, error) {
	known, err := c.EnvNames()
	if err != nil {
		return nil, err
	}

	var out []string
	add := func(name string) {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}

	for _, n := range names {
		expanded, err := factor.Expand(n)
		if err != nil {
			return nil, err
		}
		for _, name := range expanded {
			if !slices.Contains(known, name) {
				return nil, fmt.Errorf("%w: %s", cfgerrors.ErrUnknownEnvironment, name)
			}
			add(name)
		}
	}

	if len(labels) > 0 {
		all, err := c.Labels()
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			envs, ok := all[label]
			if !ok {
				return nil, fmt.Errorf("%w: no environment has label %q", cfgerrors.ErrUnknownEnvironment, label)
			}
			for _, name := range envs {
				add(name)
			}
		}
	}

	if len(names) == 0 && len(labels) == 0 {
		explicit, err := GetAs[convert.EnvList](c.core, envListKey)
		if err != nil {
			return nil, err
		}
		if len(explicit.Envs) > 0 {
			return slices.Clone(explicit.Envs), nil
		}
		return known, nil
	}
	return out, nil
}

// UnusedKeys reports, per namespace label, the keys that are present in the
// project file but were never consumed. Only namespaces created so far are
// inspected.
func (c *Config) UnusedKeys() map[string][]string {
	out := make(map[string][]string)
	sets := []*ConfigSet{c.core}
	for _, name := range sortedEnvNames(c.envs) {
		sets = append(sets, c.envs[name])
	}
	for _, cs := range sets {
		if unused := cs.FoundKeysNotConsumed(); len(unused) > 0 {
			out[cs.label] = unused
			c.log.Warn("%s: unused keys %s", cs.label, strings.Join(unused, ", "))
		}
	}
	return out
}

func sortedEnvNames(m map[string]*ConfigSet) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
