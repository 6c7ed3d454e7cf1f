package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"getNODE_RANGE_INCORRECT1(String, StringTable, IntegerRange, int)",
			[]string{"get", "node", "range", "incorrect1", "string", "string", "table", "integer", "range", "int"}},
		{"checkArchetype", []string{"check", "archetype"}},
		{"XMLParser", []string{"xml", "parser"}},
		{"au.edu.anu.aot.errorMessaging.impl", []string{"au", "edu", "anu", "aot", "error", "messaging", "impl"}},
		{"Tree<? extends TreeNode>", []string{"tree", "extends", "tree", "node"}},
		{"utf8String x 2", []string{"utf8", "string", "2"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Terms(tt.in), tt.in)
	}
}

func TestTokenPositions(t *testing.T) {
	tokens := Tokenize("isArchetype(Tree)")
	assert.Equal(t, []Token{{"is", 0}, {"archetype", 1}, {"tree", 2}}, tokens)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "checkarchetype", Fold("check_Archetype"))
	assert.Equal(t, "checkarchetype", Fold("checkArchetype"))
	assert.Equal(t, "init", Fold("<init>"))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "ca", Initials("checkArchetype"))
	assert.Equal(t, "hp", Initials("HAS_PARENT"))
	assert.Equal(t, "emm", Initials("ErrorMessageManager"))
}
