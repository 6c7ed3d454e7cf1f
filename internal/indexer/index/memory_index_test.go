package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/member"
)

func newTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	m := NewMemoryIndex()
	for _, e := range []member.Entry{
		{Package: "au.edu.anu.aot.archetype", Class: "Archetypes", Label: "checkArchetype(Tree<? extends TreeNode>)", URL: "checkArchetype(fr.cnrs.iees.omugi.graph.Tree)"},
		{Package: "au.edu.anu.aot.archetype", Class: "Archetypes", Label: "CLASS_NAME"},
		{Package: "au.edu.anu.aot.errorMessaging", Class: "ErrorMessagable", Label: "category()"},
	} {
		m.AddEntry(e.Key(), e)
	}
	return m
}

func TestAddEntryFields(t *testing.T) {
	m := newTestIndex(t)
	assert.Equal(t, 3, m.DocCount())

	postings := m.Search("archetype")
	require.Len(t, postings, 2)

	byKey := map[string]Posting{}
	for _, p := range postings {
		byKey[p.Key] = p
	}
	check := byKey["au.edu.anu.aot.archetype.Archetypes#checkArchetype(fr.cnrs.iees.omugi.graph.Tree)"]
	assert.True(t, check.Fields.Has(FieldName|FieldPackage))
	assert.False(t, check.Fields.Has(FieldParams))
	// "Archetypes" tokenises to its own term.
	assert.False(t, check.Fields.Has(FieldClass))
	assert.Equal(t, 2, check.Frequency)

	tree := m.Search("tree")
	require.Len(t, tree, 1)
	assert.Equal(t, FieldParams, tree[0].Fields)
	assert.Equal(t, 2, tree[0].Frequency)

	assert.Nil(t, m.Search("missing"))
}

func TestAddEntryReturnsLength(t *testing.T) {
	m := NewMemoryIndex()
	n := m.AddEntry("k", member.Entry{Package: "a.bb", Class: "Foo", Label: "getBar(int)"})
	// get bar | int | foo | bb
	assert.Equal(t, 5, n)
}

func TestSearchPrefix(t *testing.T) {
	m := newTestIndex(t)
	terms := m.SearchPrefix("c", 0)
	var names []string
	for _, te := range terms {
		names = append(names, te.Term)
	}
	assert.Equal(t, []string{"category", "check", "class"}, names)

	limited := m.SearchPrefix("c", 2)
	assert.Len(t, limited, 2)

	m.AddEntry("x", member.Entry{Package: "p", Class: "Cache", Label: "clear()"})
	names = names[:0]
	for _, te := range m.SearchPrefix("cl", 0) {
		names = append(names, te.Term)
	}
	assert.Equal(t, []string{"class", "clear"}, names)
}

func TestSnapshotAndReset(t *testing.T) {
	m := newTestIndex(t)
	snap := m.Snapshot()
	require.NotEmpty(t, snap)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].Term, snap[i].Term)
	}
	assert.Positive(t, m.Size())

	m.Reset()
	assert.Zero(t, m.DocCount())
	assert.Zero(t, m.Size())
	assert.Empty(t, m.Snapshot())
	assert.Empty(t, m.SearchPrefix("c", 0))
}
