package envcache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/dshills/envforge/internal/config"
)

// Well-known snapshot keys.
const (
	KeyKind        = "kind"
	KeyInterpreter = "interpreter"
	KeyDeps        = "deps"
	KeyPackage     = "package"
)

// Snapshot is the persisted identity of an environment. Callers may add
// keys of their own; every key takes part in the comparison.
type Snapshot map[string]any

// NewSnapshot builds a snapshot from its required fields.
func NewSnapshot(kind string, interp Interpreter, deps []string) Snapshot {
	list := make([]any, len(deps))
	for i, d := range deps {
		list[i] = d
	}
	return Snapshot{
		KeyKind:        kind,
		KeyInterpreter: interp.Identity(),
		KeyDeps:        list,
	}
}

// FromConfig builds the snapshot of a resolved environment. The runner
// option is the kind; deps and package follow the environment options.
func FromConfig(cs *config.ConfigSet, interp Interpreter) (Snapshot, error) {
	kind, err := cs.GetString("runner")
	if err != nil {
		return nil, err
	}
	deps, err := cs.GetStrings("deps")
	if err != nil {
		return nil, err
	}
	pkg, err := cs.GetString("package")
	if err != nil {
		return nil, err
	}
	s := NewSnapshot(kind, interp, deps)
	s[KeyPackage] = pkg
	return s, nil
}

// normalize returns the snapshot as it reads back from disk, so that a
// fresh snapshot compares equal to its persisted copy.
func (s Snapshot) normalize() (Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if out == nil {
		out = Snapshot{}
	}
	return out, nil
}

// Interpreter identifies the interpreter an environment was built with.
type Interpreter struct {
	Executable     string `json:"executable"`
	Version        string `json:"version"`
	Implementation string `json:"implementation"`
}

// Identity returns the hex BLAKE3 digest of the interpreter's canonical
// JSON encoding.
func (i Interpreter) Identity() string {
	data, _ := json.Marshal(i)
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Diff lists the keys that differ between two snapshots.
type Diff struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether the snapshots were equal.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare computes the difference from old to current. Keys are sorted.
func Compare(old, current Snapshot) Diff {
	var d Diff
	for k, v := range current {
		prev, ok := old[k]
		switch {
		case !ok:
			d.Added = append(d.Added, k)
		case !reflect.DeepEqual(prev, v):
			d.Changed = append(d.Changed, k)
		}
	}
	for k := range old {
		if _, ok := current[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}
