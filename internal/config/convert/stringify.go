package convert

import (
	"fmt"
	"strconv"
	"strings"
)

// Stringify renders a typed value back to text, the form in which it is
// spliced into other values by cross-references.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []string:
		return strings.Join(val, "\n")
	case []int:
		return joinLines(val)
	case []bool:
		return joinLines(val)
	case []any:
		return joinLines(val)
	case Command:
		return val.String()
	case []Command:
		return joinLines(val)
	case EnvList:
		return strings.Join(val.Envs, "\n")
	case *Map:
		lines := make([]string, 0, val.Len())
		for _, k := range val.Keys() {
			item, _ := val.Get(k)
			lines = append(lines, k+"="+Stringify(item))
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		keys := sortedKeys(val)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+"="+Stringify(val[k]))
		}
		return strings.Join(lines, "\n")
	case map[string]string:
		keys := sortedKeys(val)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+"="+val[k])
		}
		return strings.Join(lines, "\n")
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

func joinLines[T any](items []T) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = Stringify(item)
	}
	return strings.Join(lines, "\n")
}
