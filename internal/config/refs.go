package config

import (
	"github.com/dshills/envforge/internal/config/convert"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// refs answers the cross-references of the substitution engine.
type refs struct {
	cfg *Config
}

func (r refs) EnvOf(section string) (string, bool) {
	return r.cfg.src.EnvFromSection(section)
}

func (r refs) Env(env, key string, chain []string) (any, error) {
	cs, err := r.cfg.Env(env)
	if err != nil {
		return nil, err
	}
	return materialize(cs.get(key, chain))
}

// Section returns the raw value prepared for env but not substituted; the
// engine substitutes it on its next pass.
func (r refs) Section(section, key, env string) (any, error) {
	l, ok := r.cfg.src.Section(section)
	if !ok {
		return nil, cfgerrors.NewKeyNotFound(section, key)
	}
	raw, err := l.LoadRaw(key)
	if err != nil {
		return nil, err
	}
	raw, err = l.Prepare(key, raw, env)
	if err != nil {
		return nil, err
	}
	return raw.Value(), nil
}

func (r refs) Core(key string, chain []string) (any, error) {
	return materialize(r.cfg.core.get(key, chain))
}

// materialize resolves a variable table so a failing entry or dotenv file
// fails the reference.
func materialize(v any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if table, ok := v.(*convert.SetEnv); ok {
		return table.All()
	}
	return v, nil
}
