package registry

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// newValidator returns a validator that knows the "optkey" tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("optkey", func(fl validator.FieldLevel) bool {
		return keyPattern.MatchString(fl.Field().String())
	})
	return v
}

// Registry maintains the option definitions of one namespace kind.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]*Definition // by canonical key
	aliases  map[string]string      // every key to its canonical key
	order    []string
	validate *validator.Validate
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		defs:     make(map[string]*Definition),
		aliases:  make(map[string]string),
		validate: newValidator(),
	}
}

// Register adds a definition. It fails with ErrOptionAlreadyRegistered when
// any of its keys is already taken, and with a validation error when the
// definition is malformed.
func (r *Registry) Register(def Definition) (*Definition, error) {
	if err := r.validate.Struct(def); err != nil {
		return nil, fmt.Errorf("invalid option definition %v: %w", def.Keys, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range def.Keys {
		if owner, exists := r.aliases[k]; exists {
			return nil, fmt.Errorf("%w: %s (owned by %s)", cfgerrors.ErrOptionAlreadyRegistered, k, owner)
		}
	}

	d := &def
	d.Keys = append([]string(nil), def.Keys...)
	r.defs[d.Key()] = d
	for _, k := range d.Keys {
		r.aliases[k] = d.Key()
	}
	r.order = append(r.order, d.Key())
	return d, nil
}

// MustRegister registers a definition and panics on error.
// Useful for registering built-in options at startup.
func (r *Registry) MustRegister(def Definition) *Definition {
	d, err := r.Register(def)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup finds a definition by canonical key or alias.
func (r *Registry) Lookup(key string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	canonical, ok := r.aliases[key]
	if !ok {
		return nil, false
	}
	return r.defs[canonical], true
}

// Has reports whether key names a registered option.
func (r *Registry) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// All returns the definitions in registration order.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Definition, 0, len(r.order))
	for _, k := range r.order {
		result = append(result, r.defs[k])
	}
	return result
}

// Keys returns the canonical keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AllKeys returns every registered key including aliases.
func (r *Registry) AllKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.aliases))
	for _, canonical := range r.order {
		out = append(out, r.defs[canonical].Keys...)
	}
	return out
}

// Clone returns an independent registry holding the same definitions.
// Definitions are shared; they are immutable once registered.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &Registry{
		defs:     make(map[string]*Definition, len(r.defs)),
		aliases:  make(map[string]string, len(r.aliases)),
		validate: r.validate,
	}
	for k, v := range r.defs {
		c.defs[k] = v
	}
	for k, v := range r.aliases {
		c.aliases[k] = v
	}
	c.order = append(c.order, r.order...)
	return c
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
