package javasrc

import (
	"strings"
	"unicode"

	"github.com/3worlds/aot/internal/member"
)

// typeTable records which top-level types each known package declares.
type typeTable map[string]map[string]bool

func (t typeTable) add(pkg, name string) {
	set, ok := t[pkg]
	if !ok {
		set = make(map[string]bool)
		t[pkg] = set
	}
	set[name] = true
}

func (t typeTable) has(pkg, name string) bool {
	return t[pkg][name]
}

// resolver maps source type references to the erased, fully-qualified
// names used in anchors, following the compiler's lookup order: type
// variables, enclosing and member types, single-type imports, the
// current package, java.lang, then on-demand imports.
type resolver struct {
	u     *unit
	known typeTable
	scope *typeDecl
	vars  map[string]string
}

func (r *resolver) erase(raw string) string {
	return r.eraseDepth(raw, 0)
}

func (r *resolver) eraseDepth(raw string, depth int) string {
	t := member.Erase(stripAnnotations(raw))
	base, suffix := splitArraySuffix(t)
	return r.resolveName(base, depth) + suffix
}

func (r *resolver) resolveName(name string, depth int) string {
	if primitives[name] || name == "" {
		return name
	}
	if first, rest, ok := strings.Cut(name, "."); ok {
		if startsUpper(first) {
			return r.resolveName(first, depth) + "." + rest
		}
		return name
	}

	if bound, ok := r.typeVariable(name); ok {
		if bound == "" || depth > 8 {
			return "java.lang.Object"
		}
		return r.eraseDepth(bound, depth+1)
	}

	for d := r.scope; d != nil; d = d.outer {
		if d.name == name {
			return r.qualify(d.qualified)
		}
		for _, n := range d.nested {
			if n.name == name {
				return r.qualify(n.qualified)
			}
		}
	}
	for _, d := range r.u.types {
		if d.name == name {
			return r.qualify(d.qualified)
		}
	}

	for _, imp := range r.u.imports {
		if imp == name || strings.HasSuffix(imp, "."+name) {
			return imp
		}
	}
	if r.known.has(r.u.pkg, name) {
		return r.qualify(name)
	}
	if jdkIndex["java.lang"][name] {
		return "java.lang." + name
	}

	candidate := ""
	for _, pkg := range r.u.onDemand {
		if set, ok := jdkIndex[pkg]; ok {
			if set[name] {
				return pkg + "." + name
			}
			continue
		}
		if isPlatformPackage(pkg) {
			continue
		}
		if _, known := r.known[pkg]; known {
			if r.known.has(pkg, name) {
				return pkg + "." + name
			}
			continue
		}
		if candidate == "" {
			candidate = pkg + "." + name
		}
	}
	if candidate != "" {
		return candidate
	}
	return r.qualify(name)
}

// typeVariable looks name up in the member's type parameters, then in
// those of each enclosing type.
func (r *resolver) typeVariable(name string) (string, bool) {
	if bound, ok := r.vars[name]; ok {
		return bound, true
	}
	for d := r.scope; d != nil; d = d.outer {
		if bound, ok := d.typeParams[name]; ok {
			return bound, true
		}
	}
	return "", false
}

func (r *resolver) qualify(name string) string {
	if r.u.pkg == "" {
		return name
	}
	return r.u.pkg + "." + name
}

func isPlatformPackage(pkg string) bool {
	return strings.HasPrefix(pkg, "java.") || strings.HasPrefix(pkg, "javax.")
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func splitArraySuffix(t string) (string, string) {
	i := len(t)
	for i > 0 && (t[i-1] == '[' || t[i-1] == ']' || t[i-1] == '.') {
		i--
	}
	return t[:i], t[i:]
}

// stripAnnotations drops type-use annotations such as "@NonNull".
func stripAnnotations(t string) string {
	if !strings.Contains(t, "@") {
		return t
	}
	var b strings.Builder
	for i := 0; i < len(t); i++ {
		if t[i] != '@' {
			b.WriteByte(t[i])
			continue
		}
		i++
		for i < len(t) && (isIdentPart(t[i]) || t[i] == '.') {
			i++
		}
		if i < len(t) && t[i] == '(' {
			depth := 0
			for ; i < len(t); i++ {
				if t[i] == '(' {
					depth++
				} else if t[i] == ')' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			continue
		}
		i--
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || '0' <= c && c <= '9'
}

// labelType renders a source type the way the docs label shows it:
// package qualifiers dropped, whitespace collapsed, a space after commas.
//
//	java.util.Map<String,java.util.List< Integer >>  ->  Map<String, List<Integer>>
func labelType(raw string) string {
	raw = stripAnnotations(raw)
	var b strings.Builder
	space := false
	last := byte(0)
	for i := 0; i < len(raw); {
		c := raw[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			space = true
			i++
		case isIdentStart(c):
			j := i
			for {
				for j < len(raw) && isIdentPart(raw[j]) {
					j++
				}
				if j+1 < len(raw) && raw[j] == '.' && isIdentStart(raw[j+1]) {
					j++
					continue
				}
				break
			}
			segs := strings.Split(raw[i:j], ".")
			for len(segs) > 1 && !startsUpper(segs[0]) {
				segs = segs[1:]
			}
			if space && (isIdentPart(last) || last == '?') {
				b.WriteByte(' ')
			}
			b.WriteString(strings.Join(segs, "."))
			last = raw[j-1]
			space = false
			i = j
		case c == ',':
			b.WriteString(", ")
			last = ' '
			space = false
			i++
		case c == '&':
			b.WriteString(" & ")
			last = ' '
			space = false
			i++
		default:
			if c == '?' && space && last != '<' && last != ' ' && last != 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(c)
			last = c
			space = false
			i++
		}
	}
	return b.String()
}
