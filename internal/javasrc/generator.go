// Package javasrc regenerates a member search index from Java sources.
//
// Sources are parsed with tree-sitter's Java grammar. The generator emits
// the records the docs tool writes for public and protected members:
// methods, constructors (including implicit default constructors), fields,
// enum constants and the implicit enum methods. Anchors use erased,
// fully-qualified parameter types resolved from imports and the packages
// the generator knows about.
package javasrc

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"golang.org/x/sync/errgroup"

	"github.com/3worlds/aot/internal/member"
)

// Options tunes generation.
type Options struct {
	// Packages restricts output to packages equal to or nested under one
	// of these names. Empty means every package.
	Packages []string
	// Known seeds the type table, typically with an existing index, so
	// references to types outside the source tree resolve to the right
	// package.
	Known []member.Entry
	// Concurrency bounds parallel parsing. Zero uses GOMAXPROCS.
	Concurrency int
}

// Result is the outcome of a generation run.
type Result struct {
	Entries  []member.Entry
	Files    int
	Warnings []string
}

type Generator struct {
	opts   Options
	logger *slog.Logger
}

func NewGenerator(opts Options) *Generator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Generator{
		opts:   opts,
		logger: slog.Default().With("component", "javasrc"),
	}
}

// Generate parses every .java file under root and returns the sorted
// index entries.
func (g *Generator) Generate(ctx context.Context, root string) (*Result, error) {
	paths, err := javaFiles(root)
	if err != nil {
		return nil, err
	}
	units, err := g.parseAll(ctx, paths)
	if err != nil {
		return nil, err
	}
	result := g.emit(units)
	g.logger.Info("index generated",
		"root", root,
		"files", result.Files,
		"entries", len(result.Entries),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// GenerateSources is Generate over in-memory sources keyed by file name.
func (g *Generator) GenerateSources(ctx context.Context, sources map[string][]byte) (*Result, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	units := make([]*unit, 0, len(names))
	for _, name := range names {
		u, err := parseUnit(ctx, name, sources[name])
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return g.emit(units), nil
}

func javaFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".java") || name == "package-info.java" || name == "module-info.java" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (g *Generator) parseAll(ctx context.Context, paths []string) ([]*unit, error) {
	units := make([]*unit, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Concurrency)
	for i, path := range paths {
		eg.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			u, err := parseUnit(egCtx, path, src)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

func parseUnit(ctx context.Context, path string, src []byte) (*unit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parsing %s: nil tree", path)
	}
	defer tree.Close()
	return extract(path, tree.RootNode(), src), nil
}

func (g *Generator) emit(units []*unit) *Result {
	known := make(typeTable)
	for _, e := range g.opts.Known {
		top, _, _ := strings.Cut(e.Class, ".")
		known.add(e.Package, top)
	}
	for _, u := range units {
		for _, d := range u.types {
			known.add(u.pkg, d.name)
		}
	}

	result := &Result{Files: len(units)}
	for _, u := range units {
		if u.hasError {
			msg := fmt.Sprintf("%s: syntax errors, members may be missing", u.path)
			result.Warnings = append(result.Warnings, msg)
			g.logger.Warn("java source has syntax errors", "path", u.path)
		}
		if !g.included(u.pkg) {
			continue
		}
		for _, d := range u.types {
			result.Entries = appendType(result.Entries, u, known, d)
		}
	}
	member.Sort(result.Entries)

	for i, e := range result.Entries {
		for _, issue := range member.Validate(e) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("entry %d %s: %s", i, e.Key(), issue))
		}
	}
	return result
}

func (g *Generator) included(pkg string) bool {
	if len(g.opts.Packages) == 0 {
		return true
	}
	for _, p := range g.opts.Packages {
		if pkg == p || strings.HasPrefix(pkg, p+".") {
			return true
		}
	}
	return false
}

func appendType(entries []member.Entry, u *unit, known typeTable, d *typeDecl) []member.Entry {
	if !d.visible {
		return entries
	}
	add := func(m memberDecl) {
		entries = append(entries, entryFor(u, known, d, m))
	}

	for _, m := range d.members {
		if !m.hidden {
			add(m)
		}
	}

	switch d.kind {
	case kindClass:
		if !d.hasConstructor(-1) {
			add(memberDecl{kind: member.KindConstructor, name: d.name})
		}
	case kindEnum:
		add(memberDecl{kind: member.KindMethod, name: "values"})
		add(memberDecl{kind: member.KindMethod, name: "valueOf", params: []param{{typ: "String"}}})
	case kindRecord:
		if !d.hasConstructor(len(d.components)) {
			add(memberDecl{kind: member.KindConstructor, name: d.name, params: d.components})
		}
		for _, c := range d.components {
			if c.name != "" && !d.hasMethod(c.name, 0) {
				add(memberDecl{kind: member.KindMethod, name: c.name})
			}
		}
		if !d.hasMethod("equals", 1) {
			add(memberDecl{kind: member.KindMethod, name: "equals", params: []param{{typ: "Object"}}})
		}
		if !d.hasMethod("hashCode", 0) {
			add(memberDecl{kind: member.KindMethod, name: "hashCode"})
		}
		if !d.hasMethod("toString", 0) {
			add(memberDecl{kind: member.KindMethod, name: "toString"})
		}
	}

	for _, n := range d.nested {
		entries = appendType(entries, u, known, n)
	}
	return entries
}

// entryFor builds the record for one member of d.
func entryFor(u *unit, known typeTable, d *typeDecl, m memberDecl) member.Entry {
	e := member.Entry{Package: u.pkg, Class: d.qualified, Label: m.name}
	if m.kind == member.KindField {
		return e
	}

	r := &resolver{u: u, known: known, scope: d, vars: m.typeParams}
	labels := make([]string, len(m.params))
	anchors := make([]string, len(m.params))
	for i, p := range m.params {
		labels[i] = labelType(p.typ)
		anchors[i] = r.erase(p.typ)
		if p.varargs {
			labels[i] += "..."
			anchors[i] += "..."
		}
	}
	e.Label = m.name + "(" + strings.Join(labels, ", ") + ")"

	name := m.name
	if m.kind == member.KindConstructor {
		name = member.ConstructorName
	}
	// javadoc writes u only when the anchor is not the label itself.
	if anchor := member.EncodeAnchor(name, anchors); anchor != e.Label {
		e.URL = anchor
	}
	return e
}
