// Package jsindex reads and writes javadoc member-search-index files.
//
// A file assigns an array of records to a global and then notifies the
// search widget:
//
//	memberSearchIndex = [{"p":"...","c":"...","l":"..."},...];updateSearchResults();
//
// Parsing goes through tree-sitter's JavaScript grammar so hand-edited or
// reformatted files (single quotes, bare keys, whitespace, var/let
// declarations) load the same way the browser would load them.
package jsindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/3worlds/aot/internal/member"
	apperrors "github.com/3worlds/aot/pkg/errors"
)

const (
	DefaultVariable = "memberSearchIndex"
	DefaultCallback = "updateSearchResults"
)

// Document is a parsed index file.
type Document struct {
	Variable string
	Callback string
	Entries  []member.Entry
}

// NewDocument wraps entries in the default variable and callback.
func NewDocument(entries []member.Entry) *Document {
	return &Document{
		Variable: DefaultVariable,
		Callback: DefaultCallback,
		Entries:  entries,
	}
}

// SyntaxError locates a parse failure in the source, 1-based.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return apperrors.ErrMalformedIndex
}

// ParseFile reads and parses the index file at path.
func ParseFile(ctx context.Context, path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	doc, err := Parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse parses a member-search-index file, or a bare array of records.
func Parse(ctx context.Context, src []byte) (*Document, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing index: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parsing index: %w", apperrors.ErrMalformedIndex)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root)
	}

	doc := &Document{}
	var array *sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		switch stmt.Type() {
		case "comment":
			continue
		case "expression_statement":
		case "lexical_declaration", "variable_declaration":
			if array != nil {
				return nil, unexpected(stmt, "second index declaration")
			}
			decl := firstNamed(stmt, "variable_declarator")
			if decl == nil {
				return nil, unexpected(stmt, "declaration without declarator")
			}
			name, value := decl.ChildByFieldName("name"), decl.ChildByFieldName("value")
			if name == nil || value == nil || value.Type() != "array" {
				return nil, unexpected(stmt, "declaration is not an array")
			}
			doc.Variable = name.Content(src)
			array = value
			continue
		default:
			return nil, unexpected(stmt, "unexpected "+stmt.Type())
		}

		expr := stmt.NamedChild(0)
		if expr == nil {
			continue
		}
		expr = unwrapParens(expr)
		switch expr.Type() {
		case "assignment_expression":
			if array != nil {
				return nil, unexpected(expr, "second index assignment")
			}
			left, right := expr.ChildByFieldName("left"), expr.ChildByFieldName("right")
			if left == nil || right == nil || right.Type() != "array" {
				return nil, unexpected(expr, "assignment is not an array")
			}
			doc.Variable = left.Content(src)
			array = right
		case "array":
			if array != nil {
				return nil, unexpected(expr, "second index array")
			}
			array = expr
		case "call_expression":
			fn := expr.ChildByFieldName("function")
			if fn == nil {
				return nil, unexpected(expr, "call without callee")
			}
			doc.Callback = fn.Content(src)
		default:
			return nil, unexpected(expr, "unexpected "+expr.Type())
		}
	}
	if array == nil {
		return nil, fmt.Errorf("%w: no index array found", apperrors.ErrMalformedIndex)
	}

	entries, err := decodeArray(array, src)
	if err != nil {
		return nil, err
	}
	doc.Entries = entries
	return doc, nil
}

func decodeArray(array *sitter.Node, src []byte) ([]member.Entry, error) {
	n := int(array.NamedChildCount())
	entries := make([]member.Entry, 0, n)
	for i := 0; i < n; i++ {
		obj := array.NamedChild(i)
		if obj.Type() == "comment" {
			continue
		}
		if obj.Type() != "object" {
			return nil, unexpected(obj, fmt.Sprintf("record %d is %s, not an object", len(entries), obj.Type()))
		}
		e, err := decodeObject(obj, src)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeObject(obj *sitter.Node, src []byte) (member.Entry, error) {
	var e member.Entry
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() == "comment" {
			continue
		}
		if pair.Type() != "pair" {
			return e, unexpected(pair, "record member is "+pair.Type())
		}
		keyNode, valueNode := pair.ChildByFieldName("key"), pair.ChildByFieldName("value")
		if keyNode == nil || valueNode == nil {
			return e, unexpected(pair, "incomplete record member")
		}

		var key string
		switch keyNode.Type() {
		case "property_identifier":
			key = keyNode.Content(src)
		case "string":
			k, err := unquote(keyNode.Content(src))
			if err != nil {
				return e, unexpected(keyNode, err.Error())
			}
			key = k
		default:
			return e, unexpected(keyNode, "unsupported key "+keyNode.Type())
		}

		var target *string
		switch key {
		case "p":
			target = &e.Package
		case "c":
			target = &e.Class
		case "l":
			target = &e.Label
		case "u":
			target = &e.URL
		default:
			continue
		}
		if valueNode.Type() != "string" {
			return e, unexpected(valueNode, fmt.Sprintf("value of %q is %s, not a string", key, valueNode.Type()))
		}
		v, err := unquote(valueNode.Content(src))
		if err != nil {
			return e, unexpected(valueNode, err.Error())
		}
		*target = v
	}
	return e, nil
}

func unwrapParens(n *sitter.Node) *sitter.Node {
	for n.Type() == "parenthesized_expression" && n.NamedChildCount() > 0 {
		n = n.NamedChild(0)
	}
	return n
}

func firstNamed(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func unexpected(n *sitter.Node, msg string) error {
	p := n.StartPoint()
	return &SyntaxError{Line: int(p.Row) + 1, Column: int(p.Column) + 1, Msg: msg}
}

// syntaxError reports the first ERROR or missing node under root.
func syntaxError(root *sitter.Node) error {
	var walk func(n *sitter.Node) *sitter.Node
	walk = func(n *sitter.Node) *sitter.Node {
		if n.Type() == "ERROR" || n.IsMissing() {
			return n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c == nil || !(c.HasError() || c.IsMissing()) {
				continue
			}
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	bad := walk(root)
	if bad == nil {
		bad = root
	}
	msg := "syntax error"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %q", bad.Type())
	}
	return unexpected(bad, msg)
}

// Render writes doc in the layout the docs generator emits: one line,
// compact records, then the callback.
func Render(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	variable := doc.Variable
	if variable == "" {
		variable = DefaultVariable
	}
	bw.WriteString(variable)
	bw.WriteString(" = [")
	for i, e := range doc.Entries {
		if i > 0 {
			bw.WriteByte(',')
		}
		if err := writeEntry(bw, e); err != nil {
			return err
		}
	}
	bw.WriteString("];")
	if doc.Callback != "" {
		bw.WriteString(doc.Callback)
		bw.WriteString("();")
	}
	return bw.Flush()
}

func writeEntry(w *bufio.Writer, e member.Entry) error {
	fields := [...]struct {
		key, value string
	}{{"p", e.Package}, {"c", e.Class}, {"l", e.Label}, {"u", e.URL}}

	w.WriteByte('{')
	for i, f := range fields {
		if f.key == "u" && f.value == "" {
			continue
		}
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(`"` + f.key + `":`)
		if err := writeString(w, f.value); err != nil {
			return err
		}
	}
	w.WriteByte('}')
	return nil
}

// writeString writes s as a JSON string without HTML escaping, so generic
// labels keep their literal angle brackets.
func writeString(w *bufio.Writer, s string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding %q: %w", s, err)
	}
	_, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return err
}
