package factor

import (
	"strings"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// Expand performs generative expansion of a comma or newline separated list
// of environment names: "py{38,39}-django{42,50}" yields the four combined
// names in order. Surrounding whitespace and empty entries are dropped.
func Expand(value string) ([]string, error) {
	var result []string
	for _, line := range strings.Split(value, "\n") {
		items, err := expandAlternatives(line)
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}
	return result, nil
}

// expandAlternatives splits s on commas that are not inside braces and
// expands every brace group of each item.
func expandAlternatives(s string) ([]string, error) {
	var result []string
	for _, item := range splitTopLevel(s) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		variants, err := expandBraces(item)
		if err != nil {
			return nil, err
		}
		result = append(result, variants...)
	}
	return result, nil
}

// splitTopLevel splits on commas outside of brace groups.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// expandBraces returns the cartesian product of the brace groups in item.
func expandBraces(item string) ([]string, error) {
	results := []string{""}
	rest := item
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			results = appendAll(results, []string{rest})
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, &cfgerrors.FactorError{Expression: item, Reason: "unbalanced brace"}
		}
		closing += open
		inner := rest[open+1 : closing]
		if strings.ContainsRune(inner, '{') {
			return nil, &cfgerrors.FactorError{Expression: item, Reason: "nested brace group"}
		}
		results = appendAll(results, []string{rest[:open]})
		options := strings.Split(inner, ",")
		for i := range options {
			options[i] = strings.TrimSpace(options[i])
		}
		results = appendAll(results, options)
		rest = rest[closing+1:]
	}
	return results, nil
}

func appendAll(prefixes, suffixes []string) []string {
	out := make([]string, 0, len(prefixes)*len(suffixes))
	for _, p := range prefixes {
		for _, s := range suffixes {
			out = append(out, p+s)
		}
	}
	return out
}

// Discover computes the set of environments a project file implies.
//
// Explicitly listed names come first. Environment section names follow,
// skipping a single-factor name that is already a factor of an explicit
// environment. Finally every condition prefix in values yields the
// environment it names when at least one of its factors is not already known.
func Discover(explicit, sections, values []string) ([]string, error) {
	known := make(map[string]struct{})
	seen := make(map[string]struct{})
	var result []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}

	for _, name := range explicit {
		add(name)
		for f := range Factors(name) {
			known[f] = struct{}{}
		}
	}

	for _, section := range sections {
		names, err := Expand(section)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if _, isFactor := known[name]; isFactor && !strings.Contains(name, "-") {
				continue
			}
			add(name)
		}
	}

	for _, value := range values {
		envs, err := FindEnvs(value)
		if err != nil {
			return nil, err
		}
		for _, name := range envs {
			for f := range Factors(name) {
				if _, ok := known[f]; !ok {
					add(name)
					break
				}
			}
		}
	}
	return result, nil
}
