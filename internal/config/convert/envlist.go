package convert

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dshills/envforge/internal/config/factor"
)

// EnvList is an ordered, duplicate-free list of environment names.
type EnvList struct {
	Envs []string
}

// ParseEnvList expands a comma or newline separated list of names with
// generative brace groups.
func ParseEnvList(text string) (EnvList, error) {
	names, err := factor.Expand(text)
	if err != nil {
		return EnvList{}, err
	}
	return EnvList{Envs: dedupe(names)}, nil
}

// EnvListFromValue builds an EnvList from a structured value: a list whose
// items are names or product tables, or a single product table.
//
// A product table has the form {product = [group, ...], exclude = [...]}.
// Each group is a list of literal factors or a range table
// {prefix = "py3", start = 9, stop = 12} with an inclusive stop. Explicit
// names come first; generated names that repeat an earlier entry are dropped.
func EnvListFromValue(v any) (EnvList, error) {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case map[string]any:
		items = []any{val}
	default:
		return EnvList{}, fmt.Errorf("expected a list of environment names, got %T", v)
	}

	var explicit, generated []string
	for _, item := range items {
		switch it := item.(type) {
		case string:
			names, err := factor.Expand(it)
			if err != nil {
				return EnvList{}, err
			}
			explicit = append(explicit, names...)
		case map[string]any:
			names, err := expandProduct(it)
			if err != nil {
				return EnvList{}, err
			}
			generated = append(generated, names...)
		default:
			return EnvList{}, fmt.Errorf("invalid env_list entry %v", item)
		}
	}
	return EnvList{Envs: dedupe(append(explicit, generated...))}, nil
}

func expandProduct(table map[string]any) ([]string, error) {
	groupsRaw, ok := table["product"].([]any)
	if !ok {
		return nil, fmt.Errorf("product table without a product list")
	}
	if len(groupsRaw) == 0 {
		return nil, nil
	}

	names := []string{""}
	for _, g := range groupsRaw {
		group, err := factorGroup(g)
		if err != nil {
			return nil, err
		}
		if len(group) > 0 && len(names) > maxProductEnvs/len(group) {
			return nil, fmt.Errorf("product %v generates more than %d environments", groupsRaw, maxProductEnvs)
		}
		next := make([]string, 0, len(names)*len(group))
		for _, prefix := range names {
			for _, f := range group {
				if prefix == "" {
					next = append(next, f)
				} else {
					next = append(next, prefix+"-"+f)
				}
			}
		}
		names = next
	}
	excluded := make(map[string]struct{})
	if raw, ok := table["exclude"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("exclude must be a list")
		}
		for _, e := range list {
			excluded[Stringify(e)] = struct{}{}
		}
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, skip := excluded[name]; !skip {
			out = append(out, name)
		}
	}
	return out, nil
}

const (
	// maxRangeSpan bounds the factors a single range group may generate.
	maxRangeSpan = 1000
	// maxProductEnvs bounds the environments a single product may generate.
	maxProductEnvs = 100000
)

func factorGroup(g any) ([]string, error) {
	switch val := g.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, f := range val {
			out = append(out, Stringify(f))
		}
		return out, nil
	case map[string]any:
		prefix, _ := val["prefix"].(string)
		start, okStart := toInt(val["start"])
		stop, okStop := toInt(val["stop"])
		if !okStart || !okStop {
			return nil, fmt.Errorf("range %v needs integer start and stop", val)
		}
		if stop < start {
			return nil, fmt.Errorf("range %v stops before it starts", val)
		}
		if span := stop - start; span < 0 || span >= maxRangeSpan {
			return nil, fmt.Errorf("range %v spans more than %d factors", val, maxRangeSpan)
		}
		out := make([]string, 0, stop-start+1)
		for i := start; i <= stop; i++ {
			out = append(out, prefix+strconv.Itoa(i))
		}
		return out, nil
	}
	return nil, fmt.Errorf("invalid factor group %v", g)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
