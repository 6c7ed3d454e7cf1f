package jsindex

import (
	"bytes"
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/member"
	apperrors "github.com/3worlds/aot/pkg/errors"
)

const realIndex = "testdata/member-search-index.js"

func TestParseRealIndex(t *testing.T) {
	doc, err := ParseFile(context.Background(), realIndex)
	require.NoError(t, err)

	assert.Equal(t, DefaultVariable, doc.Variable)
	assert.Equal(t, DefaultCallback, doc.Callback)
	require.Len(t, doc.Entries, 85)

	first := member.Entry{Package: "au.edu.anu.aot.errorMessaging", Class: "ErrorMessagable", Label: "actionInfo()"}
	if diff := cmp.Diff(first, doc.Entries[0]); diff != "" {
		t.Errorf("first entry mismatch (-want +got):\n%s", diff)
	}
	last := doc.Entries[len(doc.Entries)-1]
	assert.Equal(t, "values()", last.Label)

	var fields, withURL int
	for _, e := range doc.Entries {
		if e.Kind() == member.KindField {
			fields++
		}
		if e.URL != "" {
			withURL++
		}
	}
	assert.Equal(t, 29, fields)
	assert.Equal(t, 35, withURL)
}

func TestRealIndexIsValidAndSorted(t *testing.T) {
	doc, err := ParseFile(context.Background(), realIndex)
	require.NoError(t, err)

	report := member.ValidateAll(doc.Entries)
	assert.Zero(t, report.Errors, "%v", report.Issues)
	assert.Zero(t, report.Warnings, "%v", report.Issues)

	sorted := slices.Clone(doc.Entries)
	member.Sort(sorted)
	if diff := cmp.Diff(doc.Entries, sorted); diff != "" {
		t.Errorf("index is not in documentation order (-file +sorted):\n%s", diff)
	}
}

func TestRenderReproducesGeneratorOutput(t *testing.T) {
	src, err := os.ReadFile(realIndex)
	require.NoError(t, err)
	doc, err := Parse(context.Background(), src)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))
	assert.Equal(t, string(src), buf.String())
}

func TestParseVariants(t *testing.T) {
	want := []member.Entry{
		{Package: "a.b", Class: "C", Label: "get(List<String>)", URL: "get(java.util.List)"},
		{Package: "a.b", Class: "C", Label: "NAME"},
	}
	tests := []struct {
		name     string
		src      string
		variable string
		callback string
	}{
		{
			name:     "generator layout",
			src:      `memberSearchIndex = [{"p":"a.b","c":"C","l":"get(List<String>)","u":"get(java.util.List)"},{"p":"a.b","c":"C","l":"NAME"}];updateSearchResults();`,
			variable: "memberSearchIndex",
			callback: "updateSearchResults",
		},
		{
			name:     "bare keys single quotes and comments",
			src:      looseIndex,
			variable: "idx",
		},
		{
			name: "bare json array",
			src:  `[{"p":"a.b","c":"C","l":"get(List<String>)","u":"get(java.util.List)"},{"p":"a.b","c":"C","l":"N\x41ME"}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(context.Background(), []byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.variable, doc.Variable)
			assert.Equal(t, tt.callback, doc.Callback)
			if diff := cmp.Diff(want, doc.Entries); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const looseIndex = `// regenerated
var idx = [
  {p: 'a.b', c: 'C', l: 'get(List<String>)', u: 'get(java.util.List)', extra: 1},
  {p: 'a.b', c: 'C', l: 'NAME'}, /* trailing */
];`

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"unterminated array", "memberSearchIndex = [{\"p\":\"a\",\"c\":\"C\",\"l\":\"x\"}\n", 0},
		{"number value", "memberSearchIndex = [{\"p\":1,\"c\":\"C\",\"l\":\"x\"}];", 1},
		{"not an object", "memberSearchIndex = [\n\"x\"];", 2},
		{"not an array", "memberSearchIndex = {};", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedIndex), err.Error())
			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
			if tt.line > 0 {
				assert.Equal(t, tt.line, syn.Line)
			}
		})
	}
}

func TestParseNoArray(t *testing.T) {
	_, err := Parse(context.Background(), []byte("updateSearchResults();"))
	assert.ErrorIs(t, err, apperrors.ErrMalformedIndex)
}

func TestRenderDefaultsAndOmitsEmptyURL(t *testing.T) {
	doc := &Document{Entries: []member.Entry{{Package: "a", Class: "B", Label: "C<D>"}}}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))
	assert.Equal(t, `memberSearchIndex = [{"p":"a","c":"B","l":"C<D>"}];`, buf.String())
}

func TestUnquote(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"plain"`, "plain"},
		{`'it\'s'`, "it's"},
		{`"tab\tnew\n"`, "tab\tnew\n"},
		{`"caf\u00e9\x41"`, "caf\u00e9A"},
		{`"\u{1F600}"`, "\U0001F600"},
		{`"\uD83D\uDE00"`, "\U0001F600"},
		{`"back\\slash\/"`, `back\slash/`},
	}
	for _, tt := range tests {
		got, err := unquote(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{`"`, `"abc'`, `"\x4"`, `"\u12"`, `abc`} {
		_, err := unquote(bad)
		assert.Error(t, err, bad)
	}
}
