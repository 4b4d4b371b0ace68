package config

import (
	"fmt"
	"slices"
	"sort"

	"github.com/dshills/envforge/internal/config/convert"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
	"github.com/dshills/envforge/internal/config/loader"
	"github.com/dshills/envforge/internal/config/registry"
	"github.com/dshills/envforge/internal/config/substitute"
)

// ConfigSet is the option namespace of the core configuration or of one
// environment. Values are resolved on first access and memoized for the
// lifetime of the set.
//
// A ConfigSet is not safe for concurrent use. Each environment is expected
// to be resolved by a single worker.
type ConfigSet struct {
	name  string // environment name; "" for core
	label string // section-style name used in chains and errors

	cfg      *Config
	reg      *registry.Registry
	override *loader.OverrideLoader
	loaders  []loader.Loader // own sections
	parents  []loader.Loader // inherited sections in lookup order
	conv     *convert.Converter

	memo map[string]any
	used map[string]struct{}
	errs map[string]error // first accessor failure per key
}

func newConfigSet(cfg *Config, name, label string, reg *registry.Registry, override *loader.OverrideLoader, loaders, parents []loader.Loader) *ConfigSet {
	cs := &ConfigSet{
		name:     name,
		label:    label,
		cfg:      cfg,
		reg:      reg,
		override: override,
		loaders:  loaders,
		parents:  parents,
		memo:     make(map[string]any),
		used:     make(map[string]struct{}),
		errs:     make(map[string]error),
	}
	cs.conv = &convert.Converter{ReadFile: cfg.readFile}
	if !cs.isCore() {
		cs.conv.Substitute = func(raw string, table *convert.SetEnv, chain []string) (string, error) {
			return cfg.engine.Resolve(raw, cs.context(chain, table))
		}
	}
	return cs
}

// Name returns the environment name, or "" for the core namespace.
func (c *ConfigSet) Name() string { return c.name }

// Label returns the section-style name of the namespace, e.g.
// "testenv:py312" or "envforge".
func (c *ConfigSet) Label() string { return c.label }

func (c *ConfigSet) isCore() bool { return c.name == "" }

// AddOption registers an additional option for this namespace only.
func (c *ConfigSet) AddOption(def registry.Definition) (*registry.Definition, error) {
	return c.reg.Register(def)
}

// Keys returns the canonical keys of every registered option.
func (c *ConfigSet) Keys() []string {
	return c.reg.Keys()
}

// Definition returns the definition registered under key or one of its
// aliases.
func (c *ConfigSet) Definition(key string) (*registry.Definition, bool) {
	return c.reg.Lookup(key)
}

// Primary returns the canonical key for key. Unknown keys are returned as is.
func (c *ConfigSet) Primary(key string) string {
	if def, ok := c.reg.Lookup(key); ok {
		return def.Key()
	}
	return key
}

// Get resolves key. Failures are wrapped in a *ResolutionError naming the
// namespace and key.
func (c *ConfigSet) Get(key string) (any, error) {
	v, err := c.get(key, nil)
	if err != nil {
		return nil, &cfgerrors.ResolutionError{Namespace: c.name, Key: key, Err: err}
	}
	return v, nil
}

// FoundKeysNotConsumed lists the keys present in this namespace's own
// sections and overrides that no resolved option has looked up.
func (c *ConfigSet) FoundKeysNotConsumed() []string {
	found := make(map[string]struct{})
	for _, l := range c.loaders {
		for _, k := range l.FoundKeys() {
			found[k] = struct{}{}
		}
	}
	for _, k := range c.override.FoundKeys() {
		found[k] = struct{}{}
	}

	var unused []string
	for k := range found {
		if _, ok := c.used[k]; !ok {
			unused = append(unused, k)
		}
	}
	sort.Strings(unused)
	return unused
}

// get resolves key with chain as the resolution chain of the caller.
func (c *ConfigSet) get(key string, chain []string) (any, error) {
	def, ok := c.reg.Lookup(key)
	if !ok {
		return nil, cfgerrors.NewKeyNotFound(c.label, key)
	}
	canonical := def.Key()
	if v, ok := c.memo[canonical]; ok {
		return v, nil
	}

	id := c.label + "." + canonical
	if slices.Contains(chain, id) {
		return nil, &cfgerrors.CircularReferenceError{Chain: append(slices.Clip(chain), id)}
	}
	chain = append(slices.Clip(chain), id)
	for _, k := range def.Keys {
		c.used[k] = struct{}{}
	}

	v, err := c.resolve(def, chain)
	if err != nil {
		return nil, err
	}
	c.memo[canonical] = v
	return v, nil
}

func (c *ConfigSet) resolve(def *registry.Definition, chain []string) (any, error) {
	scope := chainScope{cs: c, chain: chain}

	raw, from, found, err := c.lookupRaw(def)
	if err != nil {
		return nil, err
	}

	var value any
	switch {
	case found:
		c.cfg.log.Debug("%s: %s from %s", c.label, def.Key(), from)
		value, err = c.build(def, raw, chain)
	case def.Default.IsSet():
		value, err = c.fromDefault(def, scope, chain)
	case len(c.appends(def)) == 0:
		return nil, cfgerrors.NewKeyNotFound(c.label, def.Key())
	}
	if err != nil {
		return nil, err
	}

	for _, extra := range c.appends(def) {
		add, err := c.build(def, loader.Text(extra), chain)
		if err != nil {
			return nil, err
		}
		if value, err = combine(value, add, def.Type); err != nil {
			return nil, err
		}
	}

	if def.PostProcess != nil {
		return def.PostProcess(value, scope)
	}
	return value, nil
}

// lookupRaw returns the first raw value found for any key of def, searching
// the overrides, then the own sections, then the inherited sections. from
// names the section the value came from.
func (c *ConfigSet) lookupRaw(def *registry.Definition) (raw loader.RawValue, from string, found bool, err error) {
	sources := make([]loader.Loader, 0, 1+len(c.loaders)+len(c.parents))
	sources = append(sources, c.override)
	sources = append(sources, c.loaders...)
	sources = append(sources, c.parents...)

	for _, l := range sources {
		for _, key := range def.Keys {
			raw, err := l.LoadRaw(key)
			if cfgerrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return loader.RawValue{}, "", false, err
			}
			prepared, err := l.Prepare(key, raw, c.name)
			if err != nil {
				return loader.RawValue{}, "", false, fmt.Errorf("%s.%s: %w", l.Name(), key, err)
			}
			return prepared, l.Name(), true, nil
		}
	}
	return loader.RawValue{}, "", false, nil
}

func (c *ConfigSet) appends(def *registry.Definition) []string {
	var out []string
	for _, key := range def.Keys {
		out = append(out, c.override.Appends(key)...)
	}
	return out
}

// fromDefault evaluates the default of def. A literal string is handled
// like a value read from a source; a computed string is converted but not
// substituted. Other values are used as they are.
func (c *ConfigSet) fromDefault(def *registry.Definition, scope chainScope, chain []string) (any, error) {
	v, err := def.Default.Value(scope)
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if !def.Default.IsComputed() {
		return c.build(def, loader.Text(s), chain)
	}
	if def.Factory != nil {
		return def.Factory(loader.Text(s), c.conv, scope)
	}
	return c.conv.Convert(loader.Text(s), def.Type)
}

// build substitutes raw and converts it to the option type.
func (c *ConfigSet) build(def *registry.Definition, raw loader.RawValue, chain []string) (any, error) {
	raw, err := c.substitute(def, raw, chain)
	if err != nil {
		return nil, err
	}
	if def.Factory != nil {
		return def.Factory(raw, c.conv, chainScope{cs: c, chain: chain})
	}
	return c.conv.Convert(raw, def.Type)
}

// substitute resolves the placeholders of raw. The core namespace holds
// literal values only. Variable tables are substituted entry by entry when
// they are read.
func (c *ConfigSet) substitute(def *registry.Definition, raw loader.RawValue, chain []string) (loader.RawValue, error) {
	if c.isCore() || def.Type.Kind == convert.KindSetEnv {
		return raw, nil
	}

	// Cross-references pull in raw text from other sections, so whether
	// env: is needed is only known while resolving.
	ctx := c.context(chain, &envVars{cs: c, chain: chain})

	if raw.IsText() {
		s, err := c.cfg.engine.Resolve(raw.Text(), ctx)
		if err != nil {
			return loader.RawValue{}, err
		}
		return loader.Text(s), nil
	}
	v, err := c.cfg.engine.ResolveStructured(raw.Value(), ctx)
	if err != nil {
		return loader.RawValue{}, err
	}
	return loader.Structured(v), nil
}

func (c *ConfigSet) context(chain []string, vars substitute.Vars) *substitute.Context {
	return &substitute.Context{
		EnvName: c.name,
		Chain:   chain,
		Refs:    refs{cfg: c.cfg},
		Vars:    vars,
		PosArgs: c.cfg.posargs,
	}
}

// setEnv returns the variable table of the namespace, or nil when it has
// none.
func (c *ConfigSet) setEnv(chain []string) (*convert.SetEnv, error) {
	if _, ok := c.reg.Lookup(setEnvKey); !ok {
		return nil, nil
	}
	v, err := c.get(setEnvKey, chain)
	if cfgerrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	table, _ := v.(*convert.SetEnv)
	return table, nil
}

// envVars binds the variable table of a namespace on the first env: lookup.
type envVars struct {
	cs    *ConfigSet
	chain []string
	table *convert.SetEnv
	err   error
	bound bool
}

func (v *envVars) bind() {
	if v.bound {
		return
	}
	v.bound = true
	v.table, v.err = v.cs.setEnv(v.chain)
}

// Has reports true when the table failed to build so Load surfaces the
// error instead of falling back to the process environment.
func (v *envVars) Has(name string) bool {
	v.bind()
	if v.err != nil {
		return true
	}
	return v.table != nil && v.table.Has(name)
}

func (v *envVars) Load(name string, chain []string) (string, error) {
	v.bind()
	if v.err != nil {
		return "", v.err
	}
	return v.table.Load(name, chain)
}

// combine applies an appending override to a resolved value.
func combine(base, extra any, t convert.Type) (any, error) {
	switch b := base.(type) {
	case nil:
		return extra, nil
	case []string:
		if e, ok := extra.([]string); ok {
			out := append(slices.Clip(b), e...)
			if t.Kind == convert.KindSet {
				slices.Sort(out)
				out = slices.Compact(out)
			}
			return out, nil
		}
	case []convert.Command:
		if e, ok := extra.([]convert.Command); ok {
			return append(slices.Clip(b), e...), nil
		}
	case []any:
		if e, ok := extra.([]any); ok {
			return append(slices.Clip(b), e...), nil
		}
	case convert.EnvList:
		if e, ok := extra.(convert.EnvList); ok {
			out := slices.Clone(b.Envs)
			for _, name := range e.Envs {
				if !slices.Contains(out, name) {
					out = append(out, name)
				}
			}
			return convert.EnvList{Envs: out}, nil
		}
	case *convert.SetEnv:
		if e, ok := extra.(*convert.SetEnv); ok {
			b.Merge(e)
			return b, nil
		}
	case *convert.Map:
		if e, ok := extra.(*convert.Map); ok {
			out := convert.NewMap()
			for _, m := range []*convert.Map{b, e} {
				for _, k := range m.Keys() {
					v, _ := m.Get(k)
					out.Set(k, v)
				}
			}
			return out, nil
		}
	}
	return nil, &cfgerrors.TypeMismatchError{Raw: extra, Target: t.String(), Err: fmt.Errorf("cannot append to %s", t)}
}

// chainScope is the registry.Scope handed to defaults, factories and
// post-processors. Lookups through it continue the current chain.
type chainScope struct {
	cs    *ConfigSet
	chain []string
}

func (s chainScope) Name() string { return s.cs.name }

func (s chainScope) Get(key string) (any, error) { return s.cs.get(key, s.chain) }

// GetAs resolves key and asserts its Go type.
func GetAs[T any](cs *ConfigSet, key string) (T, error) {
	var zero T
	v, err := cs.Get(key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeError{Namespace: cs.name, Key: key, Expected: fmt.Sprintf("%T", zero), Actual: typeName(v)}
	}
	return t, nil
}

// GetString returns a string option.
func (c *ConfigSet) GetString(key string) (string, error) {
	return GetAs[string](c, key)
}

// GetBool returns a boolean option.
func (c *ConfigSet) GetBool(key string) (bool, error) {
	return GetAs[bool](c, key)
}

// GetStrings returns a list-of-strings option.
func (c *ConfigSet) GetStrings(key string) ([]string, error) {
	return GetAs[[]string](c, key)
}
