package app

import (
	"context"
	"slices"

	"github.com/dshills/envforge/internal/envcache"
)

// EnvInfo describes one environment for listings.
type EnvInfo struct {
	Name        string
	Description string
	Labels      []string

	// Default reports whether env_list names the environment.
	Default bool
}

// List describes every environment the project file implies.
func (a *Application) List() ([]EnvInfo, error) {
	names, err := a.cfg.EnvNames()
	if err != nil {
		return nil, err
	}
	defaults := a.cfg.CoreSettings().EnvList

	infos := make([]EnvInfo, 0, len(names))
	for _, name := range names {
		cs, err := a.cfg.Env(name)
		if err != nil {
			return nil, err
		}
		s := cs.Settings()
		for key, err := range cs.ConfigErrors() {
			a.log.WithError(err).Warn("%s: cannot resolve %s", cs.Label(), key)
		}
		infos = append(infos, EnvInfo{
			Name:        name,
			Description: s.Description,
			Labels:      s.Labels,
			Default:     slices.Contains(defaults, name),
		})
	}
	return infos, nil
}

// EnvStatus is the cache decision for one environment.
type EnvStatus struct {
	Name        string
	EnvDir      string
	Interpreter envcache.Interpreter
	Action      envcache.Action
	Diff        envcache.Diff

	// Err is set when no decision could be made.
	Err error
}

// Status reports the cache decision of every selected environment without
// changing anything on disk.
func (a *Application) Status(ctx context.Context) ([]EnvStatus, error) {
	return a.each(ctx, "status", func(p *envcache.Pending) error {
		p.Abandon()
		return nil
	})
}

// Commit records the current snapshot of every selected environment, as
// a materializer does after a successful build.
func (a *Application) Commit(ctx context.Context) ([]EnvStatus, error) {
	return a.each(ctx, "commit", func(p *envcache.Pending) error {
		return p.Commit()
	})
}

// each decides every selected environment and settles the decision with
// settle. Failures of one environment do not stop the others; they are
// returned together.
func (a *Application) each(ctx context.Context, op string, settle func(*envcache.Pending) error) ([]EnvStatus, error) {
	names, err := a.Selected()
	if err != nil {
		return nil, err
	}

	var errs ErrorList
	out := make([]EnvStatus, 0, len(names))
	for _, name := range names {
		st, pending, err := a.decide(ctx, name)
		if err == nil {
			err = settle(pending)
		}
		if err != nil {
			st.Err = NewOperationError(op, name, err)
			errs.Add(st.Err)
		}
		out = append(out, st)
	}
	return out, errs.AsError()
}

func (a *Application) decide(ctx context.Context, name string) (EnvStatus, *envcache.Pending, error) {
	st := EnvStatus{Name: name}
	cs, err := a.cfg.Env(name)
	if err != nil {
		return st, nil, err
	}
	envDir, err := cs.GetString("env_dir")
	if err != nil {
		return st, nil, err
	}
	st.EnvDir = envDir

	candidates, err := cs.GetStrings("base_python")
	if err != nil {
		return st, nil, err
	}
	interp, err := a.finder.Find(ctx, candidates)
	if err != nil {
		return st, nil, err
	}
	st.Interpreter = interp

	snapshot, err := envcache.FromConfig(cs, interp)
	if err != nil {
		return st, nil, err
	}
	recreate, err := cs.GetBool("recreate")
	if err != nil {
		return st, nil, err
	}

	log := a.log.WithComponent("envcache").WithField("env", name)
	cache := envcache.New(envDir, envcache.WithLogger(log))
	pending, err := cache.Check(snapshot, a.opts.Recreate || recreate)
	if err != nil {
		return st, nil, err
	}
	st.Action = pending.Action
	st.Diff = pending.Diff
	return st, pending, nil
}
