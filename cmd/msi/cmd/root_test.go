package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/searcher/executor"
)

const (
	testIndex = "../../../internal/jsindex/testdata/member-search-index.js"
	javaSrc   = "../../../internal/javasrc/testdata/src"
	javaIndex = "../../../internal/javasrc/testdata/member-search-index.js"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"validate", "search", "gen", "render", "mcp", "keys"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_Version(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "msi version dev\n", out)
}

func TestValidate_CleanIndex(t *testing.T) {
	out, err := run(t, "validate", testIndex)
	require.NoError(t, err)
	assert.Contains(t, out, "85 entries, 0 errors, 0 warnings")
}

func TestValidate_Malformed(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.js")
	require.NoError(t, os.WriteFile(bad, []byte(`memberSearchIndex = [{"p":"a","c":"B"`), 0o644))

	out, err := run(t, "validate", testIndex, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 file(s) failed validation")
	assert.Contains(t, out, bad+": 1:")
}

func TestValidate_StrictFailsOnWarnings(t *testing.T) {
	dup := filepath.Join(t.TempDir(), "dup.js")
	entry := `{"p":"a.b","c":"C","l":"run()"}`
	require.NoError(t, os.WriteFile(dup, []byte("memberSearchIndex = ["+entry+","+entry+"];"), 0o644))

	out, err := run(t, "validate", dup)
	require.NoError(t, err)
	assert.Contains(t, out, "2 entries, 0 errors, 1 warnings")
	assert.Contains(t, out, "#1 a.b.C.run")

	_, err = run(t, "validate", "--strict", dup)
	assert.Error(t, err)
}

func TestValidate_JSON(t *testing.T) {
	out, err := run(t, "validate", "--format", "json", testIndex)
	require.NoError(t, err)

	var reports []fileReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 85, reports[0].Report.Entries)
	assert.Empty(t, reports[0].Syntax)
}

func TestSearch_Text(t *testing.T) {
	out, err := run(t, "search", "--index", "aot="+testIndex, "checkArchetype")
	require.NoError(t, err)
	assert.Contains(t, out, " 1. au.edu.anu.aot.archetype.Archetypes.checkArchetype(Tree<? extends TreeNode>) [method]")
	assert.Contains(t, out, "au/edu/anu/aot/archetype/Archetypes.html#checkArchetype(fr.cnrs.iees.omugi.graph.Tree) (aot, score")
	assert.Contains(t, out, "3 of 3 match(es)")
}

func TestSearch_JSON(t *testing.T) {
	out, err := run(t, "search", "-i", testIndex, "-n", "1", "-f", "json", "checkArchetype")
	require.NoError(t, err)

	var result executor.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.TotalHits)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "member-search-index", result.Results[0].Source)
}

func TestSearch_NoResults(t *testing.T) {
	out, err := run(t, "search", "-i", testIndex, "zzzzqqq")
	require.NoError(t, err)
	assert.Equal(t, "No members found matching \"zzzzqqq\"\n", out)
}

func TestSearch_Errors(t *testing.T) {
	_, err := run(t, "search", "-i", testIndex, "kind:interface")
	assert.Error(t, err)

	_, err = run(t, "search", "-i", "bad name="+testIndex, "node")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source name")

	_, err = run(t, "search", "-i", testIndex, "-s", "missing", "node")
	assert.Error(t, err)

	_, err = run(t, "search", "-i", testIndex, "-n", "0", "node")
	assert.Error(t, err)

	_, err = run(t, "search", "-i", filepath.Join(t.TempDir(), "none.js"), "node")
	assert.Error(t, err)
}

func TestRender_RoundTrips(t *testing.T) {
	out := filepath.Join(t.TempDir(), "index.js")
	_, err := run(t, "render", "--index", testIndex, "-o", out)
	require.NoError(t, err)

	ctx := context.Background()
	want, err := jsindex.ParseFile(ctx, testIndex)
	require.NoError(t, err)
	got, err := jsindex.ParseFile(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, want.Entries, got.Entries)
}

func TestRender_Stdout(t *testing.T) {
	out, err := run(t, "render", testIndex)
	require.NoError(t, err)
	assert.Contains(t, out, "memberSearchIndex = [")
	assert.Contains(t, out, "];updateSearchResults();")

	_, err = run(t, "render")
	assert.Error(t, err)
}

func TestGen_WritesIndex(t *testing.T) {
	out := filepath.Join(t.TempDir(), "generated.js")
	stdout, err := run(t, "gen", "--src", javaSrc, "--known", javaIndex, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "from 5 files to "+out)

	doc, err := jsindex.ParseFile(context.Background(), out)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Entries)
}

func TestGen_RequiresSrc(t *testing.T) {
	_, err := run(t, "gen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "src")
}

func TestKeys_RequiresName(t *testing.T) {
	_, err := run(t, "keys", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}
