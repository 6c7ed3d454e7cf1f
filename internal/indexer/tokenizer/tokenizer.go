// Package tokenizer splits Java member names, signatures and package
// paths into search terms. Identifiers are broken on non-alphanumeric
// characters and on camelCase and SCREAMING_SNAKE boundaries, then
// lower-cased, so "getNODE_RANGE_INCORRECT1" yields get, node, range,
// incorrect1.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lower-cased Tokens. Single letters are dropped;
// single digits are kept.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words)*2)
	pos := 0
	for _, word := range words {
		for _, part := range splitCamel(word) {
			if utf8.RuneCountInString(part) < 2 && !unicode.IsDigit([]rune(part)[0]) {
				continue
			}
			tokens = append(tokens, Token{
				Term:     strings.ToLower(part),
				Position: pos,
			})
			pos++
		}
	}
	return tokens
}

// Terms returns just the terms of Tokenize(text).
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// Fold normalises a whole name for comparison: lower-cased with every
// non-alphanumeric character removed, so "check_Archetype" and
// "checkArchetype" fold to the same string.
func Fold(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Initials returns the first letter of every identifier part, lower-cased:
// "checkArchetype" -> "ca", "HAS_PARENT" -> "hp".
func Initials(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, word := range words {
		for _, part := range splitCamel(word) {
			r := []rune(part)[0]
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToLower(r))
			}
		}
	}
	return b.String()
}

// splitCamel splits an alphanumeric word at lower-to-upper transitions and
// before the last capital of an acronym followed by lower case, so
// "XMLParser" gives XML, Parser and "getEdgeId" gives get, Edge, Id.
// Digits stay attached to the part they follow.
func splitCamel(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil
	}
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			boundary = true
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			boundary = true
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}
