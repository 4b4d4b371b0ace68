package app

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/envforge/internal/config"
	"github.com/dshills/envforge/internal/config/convert"
)

// Output formats of RenderConfig.
const (
	FormatINI  = "ini"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

type renderEntry struct {
	key   string
	value any
	err   error
}

type renderSection struct {
	name    string
	entries []renderEntry
}

// RenderConfig writes the resolved options of the core namespace and of
// every selected environment. keys limits the output to the named options;
// unknown keys are skipped. A key that fails to resolve is rendered with
// its error instead of aborting the output.
func (a *Application) RenderConfig(w io.Writer, format string, keys []string) error {
	names, err := a.Selected()
	if err != nil {
		return err
	}

	sets := []*config.ConfigSet{a.cfg.Core()}
	for _, name := range names {
		cs, err := a.cfg.Env(name)
		if err != nil {
			return err
		}
		sets = append(sets, cs)
	}

	sections := make([]renderSection, 0, len(sets))
	for _, cs := range sets {
		sections = append(sections, collect(cs, keys))
	}

	switch format {
	case FormatINI, "":
		return a.renderINI(w, sections, len(keys) == 0)
	case FormatYAML:
		return renderYAML(w, sections)
	case FormatJSON:
		return renderJSON(w, sections)
	default:
		return fmt.Errorf("unknown format %q (want ini, yaml or json)", format)
	}
}

func collect(cs *config.ConfigSet, keys []string) renderSection {
	sec := renderSection{name: cs.Label()}
	wanted := cs.Keys()
	if len(keys) > 0 {
		wanted = wanted[:0:0]
		for _, k := range keys {
			if _, ok := cs.Definition(k); ok {
				wanted = append(wanted, cs.Primary(k))
			}
		}
	}
	for _, key := range wanted {
		v, err := cs.Get(key)
		if table, ok := v.(*convert.SetEnv); ok && err == nil {
			v, err = table.All()
		}
		sec.entries = append(sec.entries, renderEntry{key: key, value: v, err: err})
	}
	return sec
}

func (a *Application) renderINI(w io.Writer, sections []renderSection, withUnused bool) error {
	var b strings.Builder
	unused := map[string][]string{}
	if withUnused {
		unused = a.cfg.UnusedKeys()
	}
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", sec.name)
		for _, e := range sec.entries {
			if e.err != nil {
				fmt.Fprintf(&b, "%s = # Exception: %v\n", e.key, e.err)
				continue
			}
			text := convert.Stringify(e.value)
			if strings.Contains(text, "\n") {
				fmt.Fprintf(&b, "%s =\n  %s\n", e.key, strings.ReplaceAll(text, "\n", "\n  "))
				continue
			}
			fmt.Fprintf(&b, "%s = %s\n", e.key, text)
		}
		if keys := unused[sec.name]; len(keys) > 0 {
			fmt.Fprintf(&b, "# !!! unused: %s\n", strings.Join(keys, ", "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderYAML(w io.Writer, sections []renderSection) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, sec := range sections {
		body := &yaml.Node{Kind: yaml.MappingNode}
		for _, e := range sec.entries {
			value := &yaml.Node{}
			if err := value.Encode(plainOrError(e)); err != nil {
				return fmt.Errorf("encoding %s.%s: %w", sec.name, e.key, err)
			}
			body.Content = append(body.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: e.key}, value)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: sec.name}, body)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}

func renderJSON(w io.Writer, sections []renderSection) error {
	out := make(map[string]map[string]any, len(sections))
	for _, sec := range sections {
		body := make(map[string]any, len(sec.entries))
		for _, e := range sec.entries {
			body[e.key] = plainOrError(e)
		}
		out[sec.name] = body
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func plainOrError(e renderEntry) any {
	if e.err != nil {
		return map[string]string{"error": e.err.Error()}
	}
	v, err := plain(e.value)
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return v
}

// plain converts resolved option values into lists, maps and scalars.
func plain(v any) (any, error) {
	switch val := v.(type) {
	case convert.Command:
		return val.String(), nil
	case []convert.Command:
		out := make([]string, len(val))
		for i, c := range val {
			out[i] = c.String()
		}
		return out, nil
	case convert.EnvList:
		if val.Envs == nil {
			return []string{}, nil
		}
		return slices.Clone(val.Envs), nil
	case *convert.Map:
		out := make(map[string]any, val.Len())
		for _, k := range val.Keys() {
			item, _ := val.Get(k)
			p, err := plain(item)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	}
	return v, nil
}
