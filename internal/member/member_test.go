package member

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	checkEntry = Entry{
		Package: "au.edu.anu.aot.archetype",
		Class:   "Archetypes",
		Label:   "check(NodeSet<?>, Tree<? extends TreeNode>)",
		URL:     "check(fr.cnrs.iees.omugi.graph.NodeSet,fr.cnrs.iees.omugi.graph.Tree)",
	}
	ctorEntry = Entry{
		Package: "au.edu.anu.aot.errorMessaging.impl",
		Class:   "SpecificationErrorMsg",
		Label:   "SpecificationErrorMsg(SpecificationErrors, String, String, Object...)",
		URL:     "%3Cinit%3E(au.edu.anu.aot.errorMessaging.impl.SpecificationErrors,java.lang.String,java.lang.String,java.lang.Object...)",
	}
	fieldEntry = Entry{
		Package: "au.edu.anu.aot.errorMessaging.impl",
		Class:   "SpecificationErrors",
		Label:   "EDGE_CLASS_UNKNOWN",
	}
)

func TestKind(t *testing.T) {
	assert.Equal(t, KindMethod, checkEntry.Kind())
	assert.Equal(t, KindConstructor, ctorEntry.Kind())
	assert.Equal(t, KindField, fieldEntry.Kind())

	nested := Entry{Package: "a.b", Class: "Outer.Inner", Label: "Inner()", URL: "%3Cinit%3E()"}
	assert.Equal(t, KindConstructor, nested.Kind())
}

func TestParams(t *testing.T) {
	assert.Equal(t, []string{"NodeSet<?>", "Tree<? extends TreeNode>"}, checkEntry.Params())
	assert.Equal(t, []string{"Map<String, List<Integer>>", "int"},
		Entry{Label: "put(Map<String, List<Integer>>, int)"}.Params())
	assert.Nil(t, Entry{Label: "values()"}.Params())
	assert.Nil(t, fieldEntry.Params())
}

func TestHrefAndKey(t *testing.T) {
	assert.Equal(t,
		"au/edu/anu/aot/archetype/Archetypes.html#check(fr.cnrs.iees.omugi.graph.NodeSet,fr.cnrs.iees.omugi.graph.Tree)",
		checkEntry.Href())
	assert.Equal(t,
		"au/edu/anu/aot/errorMessaging/impl/SpecificationErrors.html#EDGE_CLASS_UNKNOWN",
		fieldEntry.Href())
	assert.Equal(t, "au.edu.anu.aot.errorMessaging.impl.SpecificationErrors#EDGE_CLASS_UNKNOWN", fieldEntry.Key())
	assert.Equal(t, "au.edu.anu.aot.archetype.Archetypes.check", checkEntry.QualifiedName())
}

func TestEncodeAnchor(t *testing.T) {
	assert.Equal(t, "%3Cinit%3E()", EncodeAnchor(ConstructorName, nil))
	assert.Equal(t, "valueOf(java.lang.String)", EncodeAnchor("valueOf", []string{"java.lang.String"}))
	assert.Equal(t, "a%20b", Escape("a b"))

	decoded, err := Unescape(ctorEntry.URL)
	require.NoError(t, err)
	assert.Equal(t, "<init>(au.edu.anu.aot.errorMessaging.impl.SpecificationErrors,java.lang.String,java.lang.String,java.lang.Object...)", decoded)
}

func TestErase(t *testing.T) {
	tests := map[string]string{
		"NodeSet<?>":                 "NodeSet",
		"Tree<? extends TreeNode>":   "Tree",
		"Map<String, List<Integer>>": "Map",
		"List<String>[]":             "List[]",
		"Object...":                  "Object...",
		" int ":                      "int",
	}
	for in, want := range tests {
		assert.Equal(t, want, Erase(in), in)
	}
}

func TestValidateAcceptsGeneratedShapes(t *testing.T) {
	for _, e := range []Entry{checkEntry, ctorEntry, fieldEntry,
		{Package: "p", Class: "Archetypes", Label: "Archetypes()", URL: "%3Cinit%3E()"},
		{Package: "p", Class: "SpecificationErrors", Label: "values()"},
		{Package: "p", Class: "Box", Label: "put(T[])", URL: "put(java.lang.Object[])"},
	} {
		assert.Empty(t, Validate(e), e.Label)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	issues := Validate(Entry{})
	require.Len(t, issues, 3)
	for _, issue := range issues {
		assert.Equal(t, SeverityError, issue.Severity)
	}
	assert.Equal(t, []string{"p", "c", "l"}, []string{issues[0].Field, issues[1].Field, issues[2].Field})
}

func TestValidateRejectsBadAnchors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		msg  string
	}{
		{"unencoded", "<init>(java.lang.String)", "unencoded character"},
		{"wrong name", "checkAll(fr.cnrs.iees.omugi.graph.NodeSet,fr.cnrs.iees.omugi.graph.Tree)", "anchor names"},
		{"arity", "check(fr.cnrs.iees.omugi.graph.NodeSet)", "2"},
		{"wrong type", "check(fr.cnrs.iees.omugi.graph.NodeList,fr.cnrs.iees.omugi.graph.Tree)", "does not match"},
		{"not erased", "check(NodeSet%3C%3F%3E,fr.cnrs.iees.omugi.graph.Tree)", "not erased"},
		{"bad escape", "check(%ZZ)", "decoding anchor"},
		{"not a signature", "check", "not a signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := checkEntry
			e.URL = tt.url
			issues := Validate(e)
			require.Len(t, issues, 1)
			assert.Equal(t, "u", issues[0].Field)
			assert.Equal(t, SeverityError, issues[0].Severity)
			assert.Contains(t, issues[0].Message, tt.msg)
		})
	}
}

func TestValidateConstructorAnchorOnMethodRejected(t *testing.T) {
	e := Entry{Package: "p", Class: "C", Label: "build()", URL: "%3Cinit%3E()"}
	assert.True(t, HasErrors(Validate(e)))
}

func TestValidateWarnsOnMissingAnchor(t *testing.T) {
	e := checkEntry
	e.URL = ""
	issues := Validate(e)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
	assert.False(t, HasErrors(issues))
}

func TestValidateMissingAnchorOnlyWhereItDiffers(t *testing.T) {
	tests := []struct {
		label string
		warn  bool
	}{
		{"onEndCheck(boolean)", false},
		{"resize(int[], long...)", true},
		{"resize(int[],long...)", false},
		{"endCheck()", false},
		{"addListener(ErrorListListener)", true},
		{"put(T)", true},
		{"ErrorListListener()", true},
	}
	for _, tt := range tests {
		e := Entry{Package: "au.edu.anu.aot.errorMessaging", Class: "ErrorListListener", Label: tt.label}
		issues := Validate(e)
		if !tt.warn {
			assert.Empty(t, issues, tt.label)
			continue
		}
		require.Len(t, issues, 1, tt.label)
		assert.Equal(t, "u", issues[0].Field)
		assert.Equal(t, SeverityWarning, issues[0].Severity)
	}
}

func TestValidateFieldAnchor(t *testing.T) {
	e := fieldEntry
	e.URL = "EDGE_CLASS_UNKNOWN"
	assert.Empty(t, Validate(e))
	e.URL = "EDGE_CLASS_KNOWN"
	assert.True(t, HasErrors(Validate(e)))
}

func TestValidateAllFlagsDuplicates(t *testing.T) {
	report := ValidateAll([]Entry{checkEntry, fieldEntry, checkEntry, {Class: "X", Label: "y"}})
	assert.Equal(t, 4, report.Entries)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Warnings)
	assert.False(t, report.OK())
	assert.Equal(t, 2, report.Issues[0].Index)
}

func TestSort(t *testing.T) {
	entries := []Entry{
		{Package: "a.impl", Class: "B", Label: "category()"},
		{Package: "a", Class: "Z", Label: "CLASS_NAME"},
		{Package: "a", Class: "A", Label: "category()"},
		{Package: "a", Class: "A", Label: "checkArchetype(Tree)"},
		{Package: "a", Class: "A", Label: "check(NodeSet)"},
		{Package: "a", Class: "A", Label: "actionInfo()"},
	}
	Sort(entries)
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Class + "." + e.Label
	}
	assert.Equal(t, []string{
		"A.actionInfo()",
		"A.category()",
		"B.category()",
		"A.check(NodeSet)",
		"A.checkArchetype(Tree)",
		"Z.CLASS_NAME",
	}, labels)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("Ctor")
	assert.True(t, ok)
	assert.Equal(t, KindConstructor, k)
	_, ok = ParseKind("enum")
	assert.False(t, ok)
}
