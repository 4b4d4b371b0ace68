// Package config resolves the options of a project file.
//
// A Config wraps one parsed loader.Source. It exposes the core namespace
// and one namespace per environment, each a ConfigSet. A ConfigSet looks a
// key up in a fixed order and stops at the first hit:
//
//	┌──────────────────────────────┐
//	│  1. Overrides (-x, env var)  │  ← Highest priority
//	├──────────────────────────────┤
//	│  2. Own section              │  ← [testenv:NAME] / env.NAME
//	├──────────────────────────────┤
//	│  3. Inherited sections       │  ← base = ..., then [testenv]
//	├──────────────────────────────┤
//	│  4. Option default           │  ← Literal or Computed
//	└──────────────────────────────┘
//
// The raw value found is prepared by its loader (comments, factor
// conditions, line continuations), substituted and converted to the type
// of the option definition. The result is memoized per ConfigSet.
//
// # Sub-packages
//
//   - loader: project file discovery and the raw value sources
//   - factor: factor conditions and generative environment names
//   - substitute: placeholder resolution
//   - convert: raw value to typed value conversion
//   - registry: option definitions
//   - watcher: project file change notification
//   - errors: the error taxonomy shared by all of the above
//
// # Usage
//
//	src, err := loader.Discover(loader.DefaultFS(), ".")
//	if err != nil {
//	    return err
//	}
//	cfg := config.New(src, config.WithPosArgs(args))
//	env, err := cfg.Env("py312")
//	if err != nil {
//	    return err
//	}
//	deps, err := env.GetStrings("deps")
//
// # Thread Safety
//
// Config and ConfigSet are not safe for concurrent use. Resolve each
// environment from a single goroutine.
package config
