package member

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// ConstructorName is the name constructors carry in anchors.
const ConstructorName = "<init>"

const upperhex = "0123456789ABCDEF"

// EncodeAnchor builds the "u" value for an executable member from its name
// and fully-qualified, erased parameter types.
func EncodeAnchor(name string, params []string) string {
	return Escape(name + "(" + strings.Join(params, ",") + ")")
}

// Escape percent-encodes every byte outside the anchor-safe set using
// uppercase hex, the way the docs generator writes anchors.
func Escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !anchorSafe(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if anchorSafe(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
	}
	return string(buf)
}

// Unescape reverses Escape.
func Unescape(s string) (string, error) {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("decoding anchor %q: %w", s, err)
	}
	return decoded, nil
}

func anchorSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '(', ')', '[', ']', ',', '$', '*':
		return true
	}
	return false
}

// Erase strips generic arguments and whitespace from a type, keeping array
// and varargs suffixes: "Tree<? extends TreeNode>" -> "Tree",
// "List<String>[]" -> "List[]".
func Erase(t string) string {
	var b strings.Builder
	depth := 0
	for _, r := range t {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth > 0, unicode.IsSpace(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitSignature splits "name(a,b)" into its name and parameters.
func splitSignature(sig string) (name string, params []string, ok bool) {
	open := strings.IndexByte(sig, '(')
	if open < 0 || !strings.HasSuffix(sig, ")") {
		return "", nil, false
	}
	return sig[:open], SplitParams(sig[open+1 : len(sig)-1]), true
}

// looksLikeTypeVariable reports whether an erased label parameter is a
// conventional type variable name (T, E, K2, ...), whose anchor form is
// the variable's bound rather than the name itself.
func looksLikeTypeVariable(param string) bool {
	base := strings.TrimRight(param, "[].")
	if base == "" || len(base) > 2 {
		return false
	}
	r := rune(base[0])
	if !unicode.IsUpper(r) {
		return false
	}
	for _, c := range base[1:] {
		if !unicode.IsDigit(c) && !unicode.IsUpper(c) {
			return false
		}
	}
	return true
}

// arraySuffix returns the trailing "[]"/"..." part of a type.
func arraySuffix(t string) string {
	i := len(t)
	for i > 0 && (t[i-1] == '[' || t[i-1] == ']' || t[i-1] == '.') {
		i--
	}
	return t[i:]
}
