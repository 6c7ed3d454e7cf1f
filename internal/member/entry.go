// Package member defines the record type of a javadoc member search index
// and the rules tying its display label to its URL anchor.
//
// A record describes one documented method, constructor or field:
//
//	{"p":"au.edu.anu.aot.archetype","c":"Archetypes","l":"check(NodeSet<?>, ArchetypeRootSpec)",
//	 "u":"check(fr.cnrs.iees.omugi.graph.NodeSet,au.edu.anu.aot.archetype.ArchetypeRootSpec)"}
//
// The "u" anchor is only written when it differs from the label.
package member

import (
	"strings"
)

// Kind classifies a documented member.
type Kind string

const (
	KindField       Kind = "field"
	KindMethod      Kind = "method"
	KindConstructor Kind = "constructor"
)

// ParseKind maps a user supplied kind name to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "field", "fields", "constant", "const":
		return KindField, true
	case "method", "methods", "function", "func":
		return KindMethod, true
	case "constructor", "constructors", "ctor", "init":
		return KindConstructor, true
	}
	return "", false
}

// Entry is a single member search index record.
type Entry struct {
	Package string `json:"p"`
	Class   string `json:"c"`
	Label   string `json:"l"`
	URL     string `json:"u,omitempty"`
}

// Name returns the member name: the label up to its parameter list.
func (e Entry) Name() string {
	if i := strings.IndexByte(e.Label, '('); i >= 0 {
		return e.Label[:i]
	}
	return e.Label
}

// IsExecutable reports whether the label carries a parameter list.
func (e Entry) IsExecutable() bool {
	return strings.IndexByte(e.Label, '(') >= 0
}

// SimpleClassName returns the innermost class name, so a nested class
// "Outer.Inner" yields "Inner".
func (e Entry) SimpleClassName() string {
	if i := strings.LastIndexByte(e.Class, '.'); i >= 0 {
		return e.Class[i+1:]
	}
	return e.Class
}

func (e Entry) Kind() Kind {
	if !e.IsExecutable() {
		return KindField
	}
	if e.Name() == e.SimpleClassName() {
		return KindConstructor
	}
	return KindMethod
}

// Params returns the label's parameter types as written, e.g.
// ["NodeSet<?>", "Tree<? extends TreeNode>"]. Fields return nil.
func (e Entry) Params() []string {
	open := strings.IndexByte(e.Label, '(')
	if open < 0 {
		return nil
	}
	end := strings.LastIndexByte(e.Label, ')')
	if end < open {
		end = len(e.Label)
	}
	return SplitParams(e.Label[open+1 : end])
}

// Anchor returns the fragment the docs use to address the member.
func (e Entry) Anchor() string {
	if e.URL != "" {
		return e.URL
	}
	return e.Label
}

// Href returns the page-relative link the docs search widget builds for
// the member: package path, class page, anchor.
func (e Entry) Href() string {
	var b strings.Builder
	if e.Package != "" {
		b.WriteString(strings.ReplaceAll(e.Package, ".", "/"))
		b.WriteByte('/')
	}
	b.WriteString(e.Class)
	b.WriteString(".html#")
	b.WriteString(e.Anchor())
	return b.String()
}

// Key identifies the member uniquely within an index. Overloads share a
// label name but differ in anchor.
func (e Entry) Key() string {
	return e.Package + "." + e.Class + "#" + e.Anchor()
}

// QualifiedName returns package.class.name, the form shown in search results.
func (e Entry) QualifiedName() string {
	return e.Package + "." + e.Class + "." + e.Name()
}

// SplitParams splits a parameter list on commas that are not nested in
// generic brackets. Surrounding whitespace is trimmed and empty lists
// return nil.
func SplitParams(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var params []string
	depth := 0
	start := 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				params = append(params, strings.TrimSpace(list[start:i]))
				start = i + 1
			}
		}
	}
	return append(params, strings.TrimSpace(list[start:]))
}
