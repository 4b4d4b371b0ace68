package substitute

import "strings"

type nodeKind uint8

const (
	nodeText nodeKind = iota
	nodeExpr
	nodeLegacyPosArgs
)

// node is a literal run, a "{...}" span or a legacy "[]" marker.
type node struct {
	kind     nodeKind
	text     string
	children []node
}

// parse splits value into nodes. Escaped braces stay literal text with
// their backslash; an unmatched "{" or "}" is literal. legacy enables the
// "[]" positional arguments marker.
func parse(value string, legacy bool) []node {
	p := parser{s: value, legacy: legacy}
	nodes, _, _ := p.seq(0, false)
	return nodes
}

type parser struct {
	s      string
	legacy bool
}

// seq parses from i to the end of the input, or up to the "}" closing the
// enclosing span when inExpr is set. closed reports whether that "}" was
// found.
func (p *parser) seq(i int, inExpr bool) (nodes []node, next int, closed bool) {
	s := p.s
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			nodes = append(nodes, node{kind: nodeText, text: buf.String()})
			buf.Reset()
		}
	}

	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && isEscapable(s[i+1]):
			buf.WriteString(s[i : i+2])
			i += 2
		case c == '{':
			children, j, ok := p.seq(i+1, true)
			if !ok {
				buf.WriteByte(c)
				i++
				continue
			}
			flush()
			nodes = append(nodes, node{kind: nodeExpr, children: children})
			i = j
		case c == '}' && inExpr:
			flush()
			return nodes, i + 1, true
		case c == '[' && p.legacy && !inExpr && strings.HasPrefix(s[i:], "[]"):
			flush()
			nodes = append(nodes, node{kind: nodeLegacyPosArgs})
			i += 2
		default:
			buf.WriteByte(c)
			i++
		}
	}
	flush()
	return nodes, i, !inExpr
}

func isEscapable(c byte) bool {
	return c == '{' || c == '}' || c == argSeparator
}
