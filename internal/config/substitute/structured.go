package substitute

import (
	"fmt"
	"strings"

	"github.com/dshills/envforge/internal/config/convert"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// Replacement kinds of a structured replace table.
const (
	replaceEnv     = "env"
	replacePosArgs = "posargs"
	replaceRef     = "ref"
)

// ResolveStructured substitutes a value decoded from a table format. String
// leaves are resolved as text. A table with a "replace" key is evaluated:
//
//	{replace = "env", name = "HOME", default = "/root"}
//	{replace = "posargs", default = ["tests"]}
//	{replace = "ref", of = ["env_run_base", "deps"]}
//	{replace = "ref", env = "lint", key = "deps"}
//
// Inside a list, a replace table with extend = true splices a list result
// into the enclosing list.
func (e *Engine) ResolveStructured(value any, ctx *Context) (any, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	switch v := value.(type) {
	case string:
		return e.Resolve(v, ctx)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			table, isTable := item.(map[string]any)
			if !isTable || !isReplace(table) {
				r, err := e.ResolveStructured(item, ctx)
				if err != nil {
					return nil, err
				}
				out = append(out, r)
				continue
			}
			r, err := e.replace(table, ctx)
			if err != nil {
				return nil, err
			}
			if list, ok := r.([]any); ok && truthy(table["extend"]) {
				out = append(out, list...)
				continue
			}
			out = append(out, r)
		}
		return out, nil
	case map[string]any:
		if isReplace(v) {
			return e.replace(v, ctx)
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := e.ResolveStructured(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}
	return value, nil
}

func isReplace(table map[string]any) bool {
	_, ok := table["replace"].(string)
	return ok
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		ok, valid := convert.ParseBool(b)
		return ok && valid
	}
	return false
}

func (e *Engine) replace(table map[string]any, ctx *Context) (any, error) {
	kind := table["replace"].(string)
	switch kind {
	case replaceEnv:
		name, ok := table["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("replace = %q needs a name", kind)
		}
		value, found, err := e.lookupVar(name, ctx)
		if err != nil {
			return nil, err
		}
		if found {
			return value, nil
		}
		return e.structuredDefault(table, "", ctx)
	case replacePosArgs:
		if ctx.PosArgs != nil {
			out := make([]any, len(ctx.PosArgs))
			for i, a := range ctx.PosArgs {
				out[i] = a
			}
			return out, nil
		}
		return e.structuredDefault(table, []any{}, ctx)
	case replaceRef:
		return e.replaceRef(table, ctx)
	}
	return nil, fmt.Errorf("unknown replace type %q", kind)
}

func (e *Engine) structuredDefault(table map[string]any, fallback any, ctx *Context) (any, error) {
	def, ok := table["default"]
	if !ok {
		return fallback, nil
	}
	return e.ResolveStructured(def, ctx)
}

func (e *Engine) replaceRef(table map[string]any, ctx *Context) (any, error) {
	if ctx.Refs == nil {
		return nil, fmt.Errorf("reference %v cannot be resolved here", table)
	}

	var (
		value any
		err   error
		raw   bool
		where string
	)
	switch {
	case table["of"] != nil:
		path, ok := table["of"].([]any)
		if !ok || len(path) == 0 {
			return nil, fmt.Errorf("ref: of must be a non-empty list")
		}
		parts := make([]string, len(path))
		for i, p := range path {
			parts[i] = convert.Stringify(p)
		}
		section := strings.Join(parts[:len(parts)-1], ".")
		key := parts[len(parts)-1]
		where = strings.Join(parts, ".")
		switch env, isEnv := ctx.Refs.EnvOf(section); {
		case section == "":
			value, err = ctx.Refs.Core(key, ctx.Chain)
		case isEnv:
			value, err = ctx.Refs.Env(env, key, ctx.Chain)
			if cfgerrors.IsNotFound(err) {
				value, err = ctx.Refs.Section(section, key, ctx.EnvName)
				raw = true
			}
		default:
			value, err = ctx.Refs.Section(section, key, ctx.EnvName)
			raw = true
		}
	case table["env"] != nil:
		env := convert.Stringify(table["env"])
		key, _ := table["key"].(string)
		where = env + "." + key
		value, err = ctx.Refs.Env(env, key, ctx.Chain)
	default:
		return nil, fmt.Errorf("ref needs either of or env and key")
	}

	if err != nil {
		if cfgerrors.IsNotFound(err) {
			if _, hasDefault := table["default"]; hasDefault {
				return e.structuredDefault(table, nil, ctx)
			}
			return nil, fmt.Errorf("ref %s: %w", where, err)
		}
		return nil, err
	}
	if raw {
		return e.ResolveStructured(value, ctx)
	}
	return structured(value), nil
}

// structured converts a typed option value back into the decoded form used
// by table sources.
func structured(v any) any {
	switch val := v.(type) {
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []convert.Command:
		out := make([]any, len(val))
		for i, c := range val {
			args := make([]any, 0, len(c.Args)+2)
			if c.IgnoreExitCode {
				args = append(args, "-")
			}
			if c.InvertExitCode {
				args = append(args, "!")
			}
			for _, a := range c.Args {
				args = append(args, a)
			}
			out[i] = args
		}
		return out
	case convert.EnvList:
		return structured(val.Envs)
	case string, bool, int, int64, float64, []any, map[string]any, nil:
		return val
	}
	return convert.Stringify(v)
}
