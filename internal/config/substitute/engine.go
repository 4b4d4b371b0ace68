package substitute

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"
	"golang.org/x/term"

	"github.com/dshills/envforge/internal/config/convert"
	cfgerrors "github.com/dshills/envforge/internal/config/errors"
)

// DefaultMaxPasses bounds the number of whole-value passes.
const DefaultMaxPasses = 100

// argSeparator separates a directive from its arguments.
const argSeparator = ':'

// keyPattern matches the key of a cross-reference. Spans whose key does not
// match (for example "38,39" in a factor expression) are left untouched
// without consulting any source.
var keyPattern = regexp.MustCompile(`^[A-Za-z_][\w.-]*$`)

// Engine resolves placeholders. It holds no per-resolution state and may be
// shared between namespaces.
type Engine struct {
	lookupEnv   func(string) (string, bool)
	isTerminal  func() bool
	maxPasses   int
	pathSep     string
	pathListSep string
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		lookupEnv:   defaultLookupEnv,
		isTerminal:  stdoutIsTerminal,
		maxPasses:   DefaultMaxPasses,
		pathSep:     string(filepath.Separator),
		pathListSep: string(filepath.ListSeparator),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Resolve substitutes every placeholder of raw and un-escapes "\{" and "\}".
func (e *Engine) Resolve(raw string, ctx *Context) (string, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	value := raw
	for pass := 0; needsPass(value, pass == 0); pass++ {
		if pass == e.maxPasses {
			return "", &cfgerrors.CircularReferenceError{Chain: append(slices.Clip(ctx.Chain), raw)}
		}
		next, err := e.evalNodes(parse(value, pass == 0), ctx)
		if err != nil {
			return "", err
		}
		if next == value {
			break
		}
		value = next
	}
	return unescape(value), nil
}

// needsPass reports whether value may still hold placeholders. The legacy
// "[]" form is only recognized in the value as written, never in text a
// replacement produced.
func needsPass(value string, first bool) bool {
	return strings.ContainsRune(value, '{') || (first && strings.Contains(value, "[]"))
}

func (e *Engine) evalNodes(nodes []node, ctx *Context) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			b.WriteString(n.text)
		case nodeLegacyPosArgs:
			b.WriteString(e.posargs("", ctx))
		case nodeExpr:
			inner, err := e.evalNodes(n.children, ctx)
			if err != nil {
				return "", err
			}
			out, err := e.evalExpr(inner, ctx)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
		}
	}
	return b.String(), nil
}

// evalExpr resolves one span given its already resolved inner text. A span
// that cannot be resolved is returned unchanged, braces included.
func (e *Engine) evalExpr(inner string, ctx *Context) (string, error) {
	switch inner {
	case "/":
		return e.pathSep, nil
	case ":":
		return e.pathListSep, nil
	case "posargs":
		return e.posargs("", ctx), nil
	}

	directive, args, hasArgs := splitArg(inner)
	if hasArgs {
		switch directive {
		case "env":
			name, def, hasDef := splitArg(args)
			value, found, err := e.lookupVar(name, ctx)
			if err != nil {
				return "", err
			}
			if found {
				return escape(value), nil
			}
			if hasDef {
				return unescapeArg(def), nil
			}
			return "", nil
		case "tty":
			on, off, _ := splitArg(args)
			if e.isTerminal() {
				return unescapeArg(on), nil
			}
			return unescapeArg(off), nil
		case "posargs":
			return e.posargs(unescapeArg(args), ctx), nil
		}
	}

	value, found, err := e.reference(inner, ctx)
	if err != nil {
		return "", err
	}
	if found {
		return value, nil
	}
	return "{" + inner + "}", nil
}

func (e *Engine) posargs(def string, ctx *Context) string {
	if ctx.PosArgs == nil {
		return def
	}
	return escape(shellquote.Join(ctx.PosArgs...))
}

// lookupVar resolves name through the variable table, then the process
// environment. A name that is the entry currently being resolved reads the
// process environment; a name already in progress further up the chain is
// a circular reference.
func (e *Engine) lookupVar(name string, ctx *Context) (string, bool, error) {
	if ctx.Vars != nil {
		marker := convert.ChainPrefix + name
		n := len(ctx.Chain)
		switch {
		case n > 0 && ctx.Chain[n-1] == marker:
			// a={env:a} extends the process value
		case slices.Contains(ctx.Chain, marker):
			return "", false, circularVars(ctx.Chain, marker)
		case ctx.Vars.Has(name):
			v, err := ctx.Vars.Load(name, ctx.Chain)
			if err != nil {
				return "", false, err
			}
			return v, true, nil
		}
	}
	v, ok := e.lookupEnv(name)
	return v, ok, nil
}

func circularVars(chain []string, marker string) error {
	start := slices.Index(chain, marker)
	names := make([]string, 0, len(chain)-start+1)
	for _, c := range append(slices.Clip(chain[start:]), marker) {
		names = append(names, strings.TrimPrefix(c, convert.ChainPrefix))
	}
	return &cfgerrors.CircularReferenceError{Chain: names}
}

// reference resolves a cross-reference span. Sources are tried in order:
// a named environment, a named section through its raw loader, the core
// namespace and finally the current environment. Only not-found failures
// move on to the next source.
func (e *Engine) reference(inner string, ctx *Context) (string, bool, error) {
	ref, ok := parseReference(inner)
	if !ok || ctx.Refs == nil {
		return "", false, nil
	}

	value, found, err := e.lookupReference(ref, ctx)
	if err != nil {
		return "", false, err
	}
	if found {
		return value, true, nil
	}
	if ref.hasDefault {
		return ref.def, true, nil
	}
	return "", false, nil
}

func (e *Engine) lookupReference(ref reference, ctx *Context) (string, bool, error) {
	if ref.section != "" {
		if env, ok := ctx.Refs.EnvOf(ref.section); ok {
			v, err := ctx.Refs.Env(env, ref.key, ctx.Chain)
			if err == nil {
				return escape(convert.Stringify(v)), true, nil
			}
			if !cfgerrors.IsNotFound(err) {
				return "", false, err
			}
		}
		v, err := ctx.Refs.Section(ref.section, ref.key, ctx.EnvName)
		if err == nil {
			return convert.Stringify(v), true, nil
		}
		if !cfgerrors.IsNotFound(err) {
			return "", false, err
		}
		return "", false, nil
	}

	v, err := ctx.Refs.Core(ref.key, ctx.Chain)
	if err == nil {
		return escape(convert.Stringify(v)), true, nil
	}
	if !cfgerrors.IsNotFound(err) {
		return "", false, err
	}
	if ctx.EnvName == "" {
		return "", false, nil
	}
	v, err = ctx.Refs.Env(ctx.EnvName, ref.key, ctx.Chain)
	if err == nil {
		return escape(convert.Stringify(v)), true, nil
	}
	if !cfgerrors.IsNotFound(err) {
		return "", false, err
	}
	return "", false, nil
}

type reference struct {
	section    string
	key        string
	def        string
	hasDefault bool
}

// parseReference splits "[section]key:default".
func parseReference(inner string) (reference, bool) {
	var ref reference
	rest := inner
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return ref, false
		}
		ref.section = strings.TrimSpace(rest[1:end])
		rest = rest[end+1:]
	}
	key, def, hasDef := splitArg(rest)
	ref.key = strings.TrimSpace(key)
	if !keyPattern.MatchString(ref.key) {
		return ref, false
	}
	ref.def = unescapeArg(def)
	ref.hasDefault = hasDef
	return ref, true
}

// splitArg splits s at the first unescaped argument separator.
func splitArg(s string) (head, tail string, found bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case argSeparator:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

var (
	escaper      = strings.NewReplacer("{", `\{`, "}", `\}`)
	unescaper    = strings.NewReplacer(`\{`, "{", `\}`, "}")
	argUnescaper = strings.NewReplacer(`\:`, ":")
)

// escape protects literal braces of an inserted value from later passes.
func escape(s string) string { return escaper.Replace(s) }

func unescape(s string) string { return unescaper.Replace(s) }

func unescapeArg(s string) string { return argUnescaper.Replace(s) }
