// Package parser turns a member search query into a QueryPlan.
//
// Words are matched as symbol terms, so getEdgeId searches for get, edge
// and id. AND and OR switch the combination mode for the whole query, NOT
// or a leading dash excludes the following word, and the qualifiers
// package:/p:, class:/c: and kind: restrict the entries considered.
package parser

import (
	"strings"

	"github.com/3worlds/aot/internal/indexer/tokenizer"
	"github.com/3worlds/aot/internal/member"
	apperrors "github.com/3worlds/aot/pkg/errors"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

type QueryPlan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	Packages     []string
	Classes      []string
	Kinds        []member.Kind
	// Name is the folded concatenation of the positive words, compared
	// against member names to find exact, prefix and initials matches.
	Name     string
	RawQuery string
}

// Parse builds the plan for query. Only an unknown kind: value is an error.
func Parse(query string) (*QueryPlan, error) {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan, nil
	}
	words := strings.Fields(query)
	excludeNext := false
	var name strings.Builder
	for _, word := range words {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		if qualifier, value, ok := splitQualifier(word); ok {
			if err := plan.addFilter(qualifier, value); err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(word, "-") && len(word) > 1 {
			excludeNext = true
			word = word[1:]
		}
		terms := tokenizer.Terms(word)
		if excludeNext {
			plan.ExcludeTerms = appendUnique(plan.ExcludeTerms, terms...)
			excludeNext = false
			continue
		}
		plan.Terms = appendUnique(plan.Terms, terms...)
		name.WriteString(tokenizer.Fold(word))
	}
	plan.Name = name.String()
	return plan, nil
}

func splitQualifier(word string) (string, string, bool) {
	i := strings.IndexByte(word, ':')
	if i <= 0 || i == len(word)-1 {
		return "", "", false
	}
	switch q := strings.ToLower(word[:i]); q {
	case "p", "package", "c", "class", "kind":
		return q, word[i+1:], true
	}
	return "", "", false
}

func (p *QueryPlan) addFilter(qualifier, value string) error {
	switch qualifier {
	case "p", "package":
		p.Packages = appendUnique(p.Packages, strings.ToLower(value))
	case "c", "class":
		p.Classes = appendUnique(p.Classes, strings.ToLower(value))
	case "kind":
		kind, ok := member.ParseKind(value)
		if !ok {
			return apperrors.Newf(apperrors.ErrInvalidInput, "unknown kind %q: use method, constructor or field", value)
		}
		for _, k := range p.Kinds {
			if k == kind {
				return nil
			}
		}
		p.Kinds = append(p.Kinds, kind)
	}
	return nil
}

// HasFilters reports whether the plan restricts entries by qualifier.
func (p *QueryPlan) HasFilters() bool {
	return len(p.Packages) > 0 || len(p.Classes) > 0 || len(p.Kinds) > 0
}

// Empty reports whether the plan can match nothing: no search terms and
// no qualifier to list entries by.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0 && !p.HasFilters()
}

// Matches reports whether e passes the qualifiers. Values of one qualifier
// are alternatives; different qualifiers must all hold. Package and class
// values match case-insensitive substrings.
func (p *QueryPlan) Matches(e member.Entry) bool {
	if len(p.Packages) > 0 && !containsAny(strings.ToLower(e.Package), p.Packages) {
		return false
	}
	if len(p.Classes) > 0 && !containsAny(strings.ToLower(e.Class), p.Classes) {
		return false
	}
	if len(p.Kinds) > 0 {
		kind := e.Kind()
		for _, k := range p.Kinds {
			if k == kind {
				return true
			}
		}
		return false
	}
	return true
}

func containsAny(s string, values []string) bool {
	for _, v := range values {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, values ...string) []string {
outer:
	for _, v := range values {
		for _, existing := range list {
			if existing == v {
				continue outer
			}
		}
		list = append(list, v)
	}
	return list
}
