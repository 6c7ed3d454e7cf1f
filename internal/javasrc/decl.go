package javasrc

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/3worlds/aot/internal/member"
)

type typeKind string

const (
	kindClass      typeKind = "class"
	kindInterface  typeKind = "interface"
	kindEnum       typeKind = "enum"
	kindRecord     typeKind = "record"
	kindAnnotation typeKind = "annotation"
)

// unit is what the generator keeps of a parsed compilation unit.
type unit struct {
	path     string
	pkg      string
	imports  []string
	onDemand []string
	types    []*typeDecl
	hasError bool
}

type typeDecl struct {
	kind       typeKind
	name       string
	qualified  string
	visible    bool
	outer      *typeDecl
	typeParams map[string]string
	components []param
	members    []memberDecl
	nested     []*typeDecl
}

type memberDecl struct {
	kind       member.Kind
	name       string
	params     []param
	typeParams map[string]string
	// hidden members are tracked only for overload and default
	// constructor bookkeeping.
	hidden bool
}

type param struct {
	name    string
	typ     string
	varargs bool
}

func (d *typeDecl) hasConstructor(arity int) bool {
	for _, m := range d.members {
		if m.kind == member.KindConstructor && (arity < 0 || len(m.params) == arity) {
			return true
		}
	}
	return false
}

func (d *typeDecl) hasMethod(name string, arity int) bool {
	for _, m := range d.members {
		if m.kind == member.KindMethod && m.name == name && len(m.params) == arity {
			return true
		}
	}
	return false
}

func (d *typeDecl) isInterface() bool {
	return d.kind == kindInterface || d.kind == kindAnnotation
}

// extract walks a tree-sitter Java syntax tree into a unit.
func extract(path string, root *sitter.Node, src []byte) *unit {
	u := &unit{path: path, hasError: root.HasError()}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "package_declaration":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				c := n.NamedChild(j)
				if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
					u.pkg = stripSpace(c.Content(src))
				}
			}
		case "import_declaration":
			imp := strings.TrimSpace(n.Content(src))
			imp = strings.TrimPrefix(imp, "import")
			imp = strings.TrimSuffix(strings.TrimSpace(imp), ";")
			imp = strings.TrimSpace(imp)
			if strings.HasPrefix(imp, "static ") || strings.HasPrefix(imp, "static\t") {
				continue
			}
			imp = stripSpace(imp)
			if pkg, ok := strings.CutSuffix(imp, ".*"); ok {
				u.onDemand = append(u.onDemand, pkg)
			} else {
				u.imports = append(u.imports, imp)
			}
		default:
			if d := extractType(n, src, nil); d != nil {
				u.types = append(u.types, d)
			}
		}
	}
	return u
}

func extractType(n *sitter.Node, src []byte, outer *typeDecl) *typeDecl {
	var kind typeKind
	switch n.Type() {
	case "class_declaration":
		kind = kindClass
	case "interface_declaration":
		kind = kindInterface
	case "enum_declaration":
		kind = kindEnum
	case "record_declaration":
		kind = kindRecord
	case "annotation_type_declaration":
		kind = kindAnnotation
	default:
		return nil
	}
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	mods := modifiers(n)
	d := &typeDecl{
		kind:       kind,
		name:       nameNode.Content(src),
		outer:      outer,
		typeParams: typeParameters(n.ChildByFieldName("type_parameters"), src),
	}
	d.qualified = d.name
	switch {
	case outer == nil:
		d.visible = mods["public"] || mods["protected"]
	case outer.isInterface():
		d.visible = outer.visible && !mods["private"]
	default:
		d.visible = outer.visible && (mods["public"] || mods["protected"])
	}
	if outer != nil {
		d.qualified = outer.qualified + "." + d.name
	}
	if kind == kindRecord {
		d.components = parameters(n.ChildByFieldName("parameters"), src)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		d.extractBody(body, src)
	}
	return d
}

func (d *typeDecl) extractBody(body *sitter.Node, src []byte) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		n := body.NamedChild(i)
		switch n.Type() {
		case "enum_constant":
			if name := n.ChildByFieldName("name"); name != nil {
				d.members = append(d.members, memberDecl{kind: member.KindField, name: name.Content(src)})
			}
		case "enum_body_declarations":
			d.extractBody(n, src)
		case "field_declaration", "constant_declaration":
			if !d.memberVisible(modifiers(n)) {
				continue
			}
			for j := 0; j < int(n.NamedChildCount()); j++ {
				c := n.NamedChild(j)
				if c.Type() != "variable_declarator" {
					continue
				}
				if name := c.ChildByFieldName("name"); name != nil {
					d.members = append(d.members, memberDecl{kind: member.KindField, name: name.Content(src)})
				}
			}
		case "method_declaration", "annotation_type_element_declaration":
			name := n.ChildByFieldName("name")
			if name == nil || !d.memberVisible(modifiers(n)) {
				continue
			}
			d.members = append(d.members, memberDecl{
				kind:       member.KindMethod,
				name:       name.Content(src),
				params:     parameters(n.ChildByFieldName("parameters"), src),
				typeParams: typeParameters(n.ChildByFieldName("type_parameters"), src),
			})
		case "constructor_declaration":
			mods := modifiers(n)
			d.members = append(d.members, memberDecl{
				kind:       member.KindConstructor,
				name:       d.name,
				params:     parameters(n.ChildByFieldName("parameters"), src),
				typeParams: typeParameters(n.ChildByFieldName("type_parameters"), src),
				hidden:     d.kind == kindEnum || !(mods["public"] || mods["protected"]),
			})
		case "compact_constructor_declaration":
			mods := modifiers(n)
			d.members = append(d.members, memberDecl{
				kind:   member.KindConstructor,
				name:   d.name,
				params: d.components,
				hidden: !(mods["public"] || mods["protected"]),
			})
		default:
			if nested := extractType(n, src, d); nested != nil {
				d.nested = append(d.nested, nested)
			}
		}
	}
}

// memberVisible reports whether a member with the given modifiers shows up
// in the generated docs: public and protected members, and every
// non-private interface member.
func (d *typeDecl) memberVisible(mods map[string]bool) bool {
	if d.isInterface() {
		return !mods["private"]
	}
	return mods["public"] || mods["protected"]
}

func modifiers(n *sitter.Node) map[string]bool {
	mods := make(map[string]bool)
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || c.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(c.ChildCount()); j++ {
			if k := c.Child(j); k != nil && !k.IsNamed() {
				mods[k.Type()] = true
			}
		}
	}
	return mods
}

func typeParameters(n *sitter.Node, src []byte) map[string]string {
	if n == nil {
		return nil
	}
	params := make(map[string]string)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		tp := n.NamedChild(i)
		if tp.Type() != "type_parameter" {
			continue
		}
		var name, bound string
		for j := 0; j < int(tp.NamedChildCount()); j++ {
			c := tp.NamedChild(j)
			switch c.Type() {
			case "type_identifier", "identifier":
				name = c.Content(src)
			case "type_bound":
				if c.NamedChildCount() > 0 {
					bound = c.NamedChild(0).Content(src)
				}
			}
		}
		if name != "" {
			params[name] = bound
		}
	}
	return params
}

func parameters(n *sitter.Node, src []byte) []param {
	if n == nil {
		return nil
	}
	var params []param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "formal_parameter":
			t := p.ChildByFieldName("type")
			if t == nil {
				continue
			}
			typ := t.Content(src)
			if dims := p.ChildByFieldName("dimensions"); dims != nil {
				typ += stripSpace(dims.Content(src))
			}
			pr := param{typ: typ}
			if name := p.ChildByFieldName("name"); name != nil {
				pr.name = name.Content(src)
			}
			params = append(params, pr)
		case "spread_parameter":
			pr := param{varargs: true}
			for j := 0; j < int(p.NamedChildCount()); j++ {
				c := p.NamedChild(j)
				switch c.Type() {
				case "modifiers":
				case "variable_declarator":
					if name := c.ChildByFieldName("name"); name != nil {
						pr.name = name.Content(src)
					}
				default:
					if pr.typ == "" {
						pr.typ = c.Content(src)
					}
				}
			}
			if pr.typ != "" {
				params = append(params, pr)
			}
		}
	}
	return params
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
