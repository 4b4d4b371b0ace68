// Package factor implements conditional configuration lines keyed on the
// dash-separated factors of an environment name.
//
// A line of the form "py38,lint-!ci: value" is kept for an environment when
// any comma-separated alternative matches. Within an alternative every
// dash-separated factor must be present in the environment name, or absent
// when prefixed with "!". Brace groups expand generatively, so "py3{8,9}: x"
// is shorthand for "py38,py39: x". Lines without a condition always match.
package factor

import (
	"regexp"
	"strings"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// conditionPattern matches a "condition: content" line. The condition may not
// start with "[" so legacy "[]" posargs lines are never mistaken for one, and
// at least one whitespace character must follow the colon so URLs survive.
var conditionPattern = regexp.MustCompile(`^([\w{}.!,-]+):\s+(.+)$`)

// variantPattern validates a single expanded alternative.
var variantPattern = regexp.MustCompile(`^!?[\w.][\w.!-]*$`)

// Term is one factor of an alternative.
type Term struct {
	Name   string
	Negate bool
}

// Group is a conjunction of terms (one comma-separated alternative).
type Group []Term

// Matches reports whether every term agrees with the factor set.
func (g Group) Matches(factors map[string]struct{}) bool {
	for _, term := range g {
		_, present := factors[term.Name]
		if present == term.Negate {
			return false
		}
	}
	return true
}

// EnvName joins the group's factor names into the environment name it implies.
func (g Group) EnvName() string {
	names := make([]string, len(g))
	for i, term := range g {
		names[i] = term.Name
	}
	return strings.Join(names, "-")
}

func (g Group) hasNegation() bool {
	for _, term := range g {
		if term.Negate {
			return true
		}
	}
	return false
}

// Line is one line of a multi-line value split into condition and content.
type Line struct {
	// Groups is nil for an unconditioned line.
	Groups  []Group
	Content string
}

// Conditional reports whether the line carries a condition prefix.
func (l Line) Conditional() bool {
	return l.Groups != nil
}

// Factors returns the factor set of an environment name.
func Factors(envName string) map[string]struct{} {
	result := make(map[string]struct{})
	if envName == "" {
		return result
	}
	for _, f := range strings.Split(envName, "-") {
		if f != "" {
			result[f] = struct{}{}
		}
	}
	return result
}

// ParseLines splits a raw value into lines and parses their conditions.
func ParseLines(value string) ([]Line, error) {
	raw := strings.Split(value, "\n")
	lines := make([]Line, 0, len(raw))
	for _, text := range raw {
		trimmed := strings.TrimLeft(text, " \t")
		m := conditionPattern.FindStringSubmatch(trimmed)
		if m == nil {
			lines = append(lines, Line{Content: text})
			continue
		}
		groups, err := ParseCondition(m[1])
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{Groups: groups, Content: m[2]})
	}
	return lines, nil
}

// ParseCondition parses a condition such as "py{38,39}-!ci,lint" into its
// alternatives.
func ParseCondition(expr string) ([]Group, error) {
	alternatives, err := expandAlternatives(expr)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(alternatives))
	for _, alt := range alternatives {
		if !variantPattern.MatchString(alt) {
			return nil, &cfgerrors.FactorError{Expression: expr, Reason: "invalid alternative " + alt}
		}
		var group Group
		for _, part := range strings.Split(alt, "-") {
			negate := strings.HasPrefix(part, "!")
			name := strings.TrimPrefix(part, "!")
			if name == "" || strings.Contains(name, "!") {
				return nil, &cfgerrors.FactorError{Expression: expr, Reason: "empty or misplaced factor in " + alt}
			}
			group = append(group, Term{Name: name, Negate: negate})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Filter keeps the lines of value that apply to envName. Empty lines are
// dropped; the relative order of the remaining lines is preserved.
func Filter(value, envName string) (string, error) {
	lines, err := ParseLines(value)
	if err != nil {
		return "", err
	}
	current := Factors(envName)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if !line.Conditional() {
			if strings.TrimSpace(line.Content) != "" {
				kept = append(kept, line.Content)
			}
			continue
		}
		for _, group := range line.Groups {
			if group.Matches(current) {
				kept = append(kept, line.Content)
				break
			}
		}
	}
	return strings.Join(kept, "\n"), nil
}

// FindEnvs lists the environment names implied by the condition prefixes of
// value. Alternatives containing a negated factor imply no environment.
func FindEnvs(value string) ([]string, error) {
	lines, err := ParseLines(value)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var result []string
	for _, line := range lines {
		for _, group := range line.Groups {
			if group.hasNegation() {
				continue
			}
			name := group.EnvName()
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, name)
		}
	}
	return result, nil
}
