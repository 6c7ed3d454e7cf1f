package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/indexer/shard"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	router, err := shard.NewRouter(config.IndexerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })
	doc, err := jsindex.ParseFile(context.Background(), "../jsindex/testdata/member-search-index.js")
	require.NoError(t, err)
	require.NoError(t, router.Load(context.Background(), "aot", doc.Entries))
	return New("msi", "test", executor.NewSharded(router, 0), router)
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestToolDefinitions(t *testing.T) {
	search := SearchMembersTool()
	assert.Equal(t, ToolSearchMembers, search.Name)
	assert.Contains(t, search.InputSchema.Required, "query")

	list := ListClassMembersTool()
	assert.Equal(t, ToolListClassMembers, list.Name)
	assert.Contains(t, list.InputSchema.Required, "class")
}

func TestSearchMembers(t *testing.T) {
	s := newTestServer(t)
	result, err := s.HandleSearchMembers(context.Background(), call(map[string]any{
		"query": "checkArchetype",
		"limit": float64(2),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	out := text(t, result)
	assert.True(t, strings.HasPrefix(out, "Found 3 member(s) matching 'checkArchetype', showing 2:"), out)
	assert.Contains(t, out, "au.edu.anu.aot.archetype.Archetypes.checkArchetype(Tree<? extends TreeNode>) [method]")
	assert.Contains(t, out, "au/edu/anu/aot/archetype/Archetypes.html#checkArchetype(fr.cnrs.iees.omugi.graph.Tree)")
}

func TestSearchMembersErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.HandleSearchMembers(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.HandleSearchMembers(ctx, call(map[string]any{"query": "kind:bogus"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "Invalid query")

	result, err = s.HandleSearchMembers(ctx, call(map[string]any{"query": "node", "source": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.HandleSearchMembers(ctx, call(map[string]any{"query": "zzzzqqq"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "No members found matching 'zzzzqqq'", text(t, result))
}

func TestListClassMembers(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.HandleListClassMembers(ctx, call(map[string]any{"class": "ErrorListListener"}))
	require.NoError(t, err)
	out := text(t, result)
	assert.True(t, strings.HasPrefix(out, "3 member(s) of ErrorListListener:"), out)
	assert.Contains(t, out, "onStartCheck() [method] au/edu/anu/aot/errorMessaging/ErrorListListener.html#onStartCheck()")

	result, err = s.HandleListClassMembers(ctx, call(map[string]any{"class": "ErrorListListener", "package": "other.pkg"}))
	require.NoError(t, err)
	assert.Equal(t, "No class 'ErrorListListener' found", text(t, result))

	result, err = s.HandleListClassMembers(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListClassMembersSortsAcrossSources(t *testing.T) {
	router, err := shard.NewRouter(config.IndexerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })
	ctx := context.Background()
	require.NoError(t, router.Load(ctx, "aa", []member.Entry{
		{Package: "org.example", Class: "Node", Label: "remove()"},
		{Package: "org.example", Class: "Node", Label: "Node()", URL: "%3Cinit%3E()"},
	}))
	require.NoError(t, router.Load(ctx, "zz", []member.Entry{
		{Package: "org.example", Class: "Node", Label: "add()"},
	}))
	s := New("msi", "test", executor.NewSharded(router, 0), router)

	result, err := s.HandleListClassMembers(ctx, call(map[string]any{"class": "Node"}))
	require.NoError(t, err)
	out := text(t, result)
	add, ctor, remove := strings.Index(out, "add()"), strings.Index(out, "Node() [constructor]"), strings.Index(out, "remove()")
	require.True(t, add > 0 && ctor > 0 && remove > 0, out)
	assert.Less(t, add, ctor)
	assert.Less(t, ctor, remove)
}
