package convert

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	cfgerrors "github.com/dshills/envforge/internal/config/errors"
	"github.com/dshills/envforge/internal/config/loader"
)

// Substituter resolves the placeholders of one variable table entry. table
// is the table the entry belongs to; chain is the resolution chain so far.
type Substituter func(raw string, table *SetEnv, chain []string) (string, error)

// Converter converts raw values to typed values.
type Converter struct {
	// Substitute is bound to every SetEnv the converter produces. Nil keeps
	// table entries verbatim.
	Substitute Substituter

	// ReadFile reads the dotenv files named by "file|PATH" table lines.
	ReadFile func(path string) ([]byte, error)
}

// Convert converts raw to t. Failures are reported as *TypeMismatchError.
func (c *Converter) Convert(raw loader.RawValue, t Type) (any, error) {
	if raw.IsText() {
		return c.fromText(raw.Text(), t)
	}
	return c.fromValue(raw.Value(), t)
}

func mismatch(raw any, t Type, err error) error {
	return &cfgerrors.TypeMismatchError{Raw: raw, Target: t.String(), Err: err}
}

var (
	truthy = []string{"true", "yes", "on", "1"}
	falsy  = []string{"false", "no", "off", "0"}
)

// ParseBool parses the boolean vocabulary, ignoring case and surrounding space.
func ParseBool(s string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case slices.Contains(truthy, v):
		return true, true
	case slices.Contains(falsy, v):
		return false, true
	}
	return false, false
}

func (c *Converter) fromText(text string, t Type) (any, error) {
	switch t.Kind {
	case KindString:
		return strings.TrimSpace(text), nil
	case KindBool:
		b, ok := ParseBool(text)
		if !ok {
			return nil, mismatch(text, t, nil)
		}
		return b, nil
	case KindInt:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return nil, mismatch(text, t, err)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, mismatch(text, t, err)
		}
		return f, nil
	case KindPath:
		return cleanPath(strings.TrimSpace(text)), nil
	case KindChoice:
		v := strings.TrimSpace(text)
		if !slices.Contains(t.Choices, v) {
			return nil, mismatch(text, t, fmt.Errorf("must be one of %s", strings.Join(t.Choices, ", ")))
		}
		return v, nil
	case KindOptional:
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return c.fromText(text, *t.Elem)
	case KindList, KindSet:
		items := SplitList(text, t.Elem.Kind == KindCommand)
		return c.collect(stringsToAny(items), t)
	case KindMap:
		m := NewMap()
		for _, line := range SplitList(text, true) {
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				return nil, mismatch(line, t, fmt.Errorf("missing '='"))
			}
			if err := c.mapEntry(m, strings.TrimSpace(k), strings.TrimSpace(v), t); err != nil {
				return nil, err
			}
		}
		return m, nil
	case KindCommand:
		cmd, err := ParseCommand(text)
		if err != nil {
			return nil, mismatch(text, t, err)
		}
		return cmd, nil
	case KindEnvList:
		envs, err := ParseEnvList(text)
		if err != nil {
			return nil, mismatch(text, t, err)
		}
		return envs, nil
	case KindSetEnv:
		env := ParseSetEnv(text)
		env.Bind(c.Substitute, c.ReadFile)
		return env, nil
	}
	return nil, mismatch(text, t, fmt.Errorf("unsupported type"))
}

func (c *Converter) fromValue(v any, t Type) (any, error) {
	if v == nil {
		if t.Kind == KindOptional {
			return nil, nil
		}
		return nil, mismatch(v, t, fmt.Errorf("value is null"))
	}
	switch t.Kind {
	case KindString, KindPath, KindChoice:
		switch v.(type) {
		case bool, int64, float64, int:
			return c.fromText(Stringify(v), t)
		}
		return nil, mismatch(v, t, nil)
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64, int, float64:
			return c.fromText(Stringify(b), t)
		}
		return nil, mismatch(v, t, nil)
	case KindInt:
		switch n := v.(type) {
		case int64:
			return int(n), nil
		case int:
			return n, nil
		case float64:
			if n == math.Trunc(n) {
				return int(n), nil
			}
		}
		return nil, mismatch(v, t, nil)
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
		return nil, mismatch(v, t, nil)
	case KindOptional:
		return c.fromValue(v, *t.Elem)
	case KindList, KindSet:
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(v, t, fmt.Errorf("expected a list"))
		}
		return c.collect(items, t)
	case KindMap:
		table, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(v, t, fmt.Errorf("expected a table"))
		}
		m := NewMap()
		for _, k := range sortedKeys(table) {
			if err := c.mapEntryValue(m, k, table[k], t); err != nil {
				return nil, err
			}
		}
		return m, nil
	case KindCommand:
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(v, t, fmt.Errorf("expected a list of arguments"))
		}
		args := make([]string, 0, len(items))
		for _, item := range items {
			args = append(args, Stringify(item))
		}
		return NewCommand(args), nil
	case KindEnvList:
		envs, err := EnvListFromValue(v)
		if err != nil {
			return nil, mismatch(v, t, err)
		}
		return envs, nil
	case KindSetEnv:
		table, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(v, t, fmt.Errorf("expected a table"))
		}
		entries := make(map[string]string, len(table))
		for k, val := range table {
			entries[k] = Stringify(val)
		}
		env := NewSetEnv(entries)
		env.Bind(c.Substitute, c.ReadFile)
		return env, nil
	}
	if s, ok := v.(string); ok {
		return c.fromText(s, t)
	}
	return nil, mismatch(v, t, fmt.Errorf("unsupported type"))
}

// collect converts every item and assembles the container t describes.
func (c *Converter) collect(items []any, t Type) (any, error) {
	elem := *t.Elem
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := c.convertItem(item, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if t.Kind == KindSet {
		out = uniqueSorted(out)
	}
	return narrow(out, elem), nil
}

func (c *Converter) convertItem(item any, elem Type) (any, error) {
	if s, ok := item.(string); ok {
		return c.fromText(s, elem)
	}
	return c.fromValue(item, elem)
}

func (c *Converter) mapEntry(m *Map, k, v string, t Type) error {
	key, err := c.fromText(k, *t.Key)
	if err != nil {
		return err
	}
	val, err := c.fromText(v, *t.Elem)
	if err != nil {
		return err
	}
	m.Set(Stringify(key), val)
	return nil
}

func (c *Converter) mapEntryValue(m *Map, k string, v any, t Type) error {
	key, err := c.fromText(k, *t.Key)
	if err != nil {
		return err
	}
	val, err := c.convertItem(v, *t.Elem)
	if err != nil {
		return err
	}
	m.Set(Stringify(key), val)
	return nil
}

// SplitList splits a text container. Commands split on newlines only; other
// values split on newlines when the text has any, else on commas. Items are
// trimmed and empty items dropped.
func SplitList(text string, newlineOnly bool) []string {
	sep := ","
	if newlineOnly || strings.Contains(text, "\n") {
		sep = "\n"
	}
	var items []string
	for _, item := range strings.Split(text, sep) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// narrow converts a homogeneous result into a concrete slice type for the
// common element kinds.
func narrow(items []any, elem Type) any {
	switch elem.Kind {
	case KindString, KindPath, KindChoice:
		out := make([]string, len(items))
		for i, v := range items {
			out[i] = v.(string)
		}
		return out
	case KindCommand:
		out := make([]Command, len(items))
		for i, v := range items {
			out[i] = v.(Command)
		}
		return out
	case KindInt:
		out := make([]int, len(items))
		for i, v := range items {
			out[i] = v.(int)
		}
		return out
	case KindBool:
		out := make([]bool, len(items))
		for i, v := range items {
			out[i] = v.(bool)
		}
		return out
	}
	return items
}

func uniqueSorted(items []any) []any {
	seen := make(map[string]any, len(items))
	for _, v := range items {
		seen[Stringify(v)] = v
	}
	keys := sortedKeys(seen)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(filepath.FromSlash(p))
}

func stringsToAny(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
