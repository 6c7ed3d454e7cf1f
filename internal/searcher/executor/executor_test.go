package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/indexer"
	"github.com/3worlds/aot/internal/indexer/shard"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/internal/searcher/parser"
	"github.com/3worlds/aot/pkg/config"
	apperrors "github.com/3worlds/aot/pkg/errors"
)

const indexFile = "../../jsindex/testdata/member-search-index.js"

func loadEngine(t testing.TB) *indexer.Engine {
	t.Helper()
	doc, err := jsindex.ParseFile(context.Background(), indexFile)
	require.NoError(t, err)
	engine, err := indexer.NewEngine("aot", "")
	require.NoError(t, err)
	require.NoError(t, engine.Replace(doc.Entries))
	return engine
}

func mustParse(t *testing.T, query string) *parser.QueryPlan {
	t.Helper()
	plan, err := parser.Parse(query)
	require.NoError(t, err)
	return plan
}

func TestExecuteExactNameFirst(t *testing.T) {
	ex := New(loadEngine(t))
	result, err := ex.Execute(context.Background(), mustParse(t, "checkArchetype"), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalHits)
	require.Len(t, result.Results, 3)
	top := result.Results[0]
	assert.Equal(t, "checkArchetype(Tree<? extends TreeNode>)", top.Label)
	assert.Equal(t, "aot", top.Source)
	assert.Equal(t, member.KindMethod, top.Kind)
	assert.Equal(t, "exact", top.Match)
	assert.Equal(t, "au/edu/anu/aot/archetype/Archetypes.html#checkArchetype(fr.cnrs.iees.omugi.graph.Tree)", top.Href)
	assert.Greater(t, top.Score, result.Results[1].Score)
	assert.Contains(t, result.TermStats, "check")
	assert.Contains(t, result.TermStats, "archetype")
}

func TestExecuteExclude(t *testing.T) {
	ex := New(loadEngine(t))
	result, err := ex.Execute(context.Background(), mustParse(t, "check NOT tree"), 10)
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalHits)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "check(NodeSet<?>, ArchetypeRootSpec)", result.Results[0].Label)
	for _, hit := range result.Results {
		assert.NotContains(t, hit.Label, "Tree")
	}
}

func TestExecuteInitials(t *testing.T) {
	ex := New(loadEngine(t))
	result, err := ex.Execute(context.Background(), mustParse(t, "hp"), 10)
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	assert.Equal(t, "HAS_PARENT", result.Results[0].Label)
	assert.Equal(t, "HAS_PROPERTY", result.Results[1].Label)
	for _, hit := range result.Results {
		assert.Equal(t, "initials", hit.Match)
		assert.Equal(t, member.KindField, hit.Kind)
	}
}

func TestExecuteFiltersOnly(t *testing.T) {
	ex := New(loadEngine(t))
	result, err := ex.Execute(context.Background(), mustParse(t, "c:Archetypes kind:field"), 5)
	require.NoError(t, err)

	assert.Equal(t, 12, result.TotalHits)
	require.Len(t, result.Results, 5)
	assert.Equal(t, "CLASS_NAME", result.Results[0].Label)
	for _, hit := range result.Results {
		assert.Equal(t, "Archetypes", hit.Class)
		assert.Equal(t, member.KindField, hit.Kind)
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	ex := New(loadEngine(t))
	result, err := ex.Execute(context.Background(), mustParse(t, ""), 10)
	require.NoError(t, err)
	assert.Zero(t, result.TotalHits)
	assert.NotNil(t, result.Results)
	assert.Empty(t, result.Results)
}

func TestExecuteCancelled(t *testing.T) {
	ex := New(loadEngine(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ex.Execute(ctx, mustParse(t, "check"), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func newRouter(t *testing.T) *shard.Router {
	t.Helper()
	r, err := shard.NewRouter(config.IndexerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	doc, err := jsindex.ParseFile(context.Background(), indexFile)
	require.NoError(t, err)
	require.NoError(t, r.Load(context.Background(), "aot", doc.Entries))
	require.NoError(t, r.Load(context.Background(), "omugi", []member.Entry{
		{Package: "fr.cnrs.iees.omugi.graph", Class: "NodeSet", Label: "check()"},
		{Package: "fr.cnrs.iees.omugi.graph", Class: "NodeSet", Label: "size()"},
	}))
	return r
}

func TestShardedExecuteMergesSources(t *testing.T) {
	se := NewSharded(newRouter(t), 0)
	result, err := se.Execute(context.Background(), mustParse(t, "check"), 3, "")
	require.NoError(t, err)

	assert.Equal(t, 8, result.TotalHits)
	assert.Equal(t, 8, result.TermStats["check"])
	require.Len(t, result.Results, 3)
	assert.Equal(t, "aot", result.Results[0].Source)
	assert.Equal(t, "aot", result.Results[1].Source)
	assert.Equal(t, "omugi", result.Results[2].Source)
	for _, hit := range result.Results {
		assert.Equal(t, "exact", hit.Match)
	}
	assert.Empty(t, result.FailedSources)
}

func TestShardedExecuteSingleSource(t *testing.T) {
	se := NewSharded(newRouter(t), 0)
	result, err := se.Execute(context.Background(), mustParse(t, "check"), 10, "omugi")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalHits)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "NodeSet", result.Results[0].Class)

	_, err = se.Execute(context.Background(), mustParse(t, "check"), 10, "missing")
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))
}

func TestShardedExecuteNoSources(t *testing.T) {
	r, err := shard.NewRouter(config.IndexerConfig{})
	require.NoError(t, err)
	defer r.Close()
	result, err := NewSharded(r, 0).Execute(context.Background(), mustParse(t, "check"), 10, "")
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}
