// Package executor runs query plans against member search indexes. The
// Executor serves a single source; the ShardedExecutor fans a query out
// over every loaded source and merges the ranked hits.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/3worlds/aot/internal/indexer/index"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/internal/searcher/parser"
	"github.com/3worlds/aot/internal/searcher/ranker"
)

// maxExpansions caps how many index terms one query term expands to.
const maxExpansions = 32

// Index is the read side of an indexer.Engine.
type Index interface {
	Name() string
	Search(term string) (index.PostingList, error)
	SearchPrefix(prefix string, limit int) ([]index.TermEntry, error)
	Entry(key string) (member.Entry, bool)
	Entries() []member.Entry
	DocLength(key string) int
	AvgDocLength() float64
	TotalDocs() int64
}

// Hit is one ranked member.
type Hit struct {
	Source  string      `json:"source"`
	Key     string      `json:"key"`
	Package string      `json:"package"`
	Class   string      `json:"class"`
	Label   string      `json:"label"`
	URL     string      `json:"url,omitempty"`
	Kind    member.Kind `json:"kind"`
	Href    string      `json:"href"`
	Match   string      `json:"match,omitempty"`
	Score   float64     `json:"score"`
}

// Entry returns the index record the hit was built from.
func (h Hit) Entry() member.Entry {
	return member.Entry{Package: h.Package, Class: h.Class, Label: h.Label, URL: h.URL}
}

type SearchResult struct {
	Query         string         `json:"query"`
	TotalHits     int            `json:"total_hits"`
	Results       []Hit          `json:"results"`
	TermStats     map[string]int `json:"term_stats"`
	FailedSources []string       `json:"failed_sources,omitempty"`
}

func emptyResult(plan *parser.QueryPlan) *SearchResult {
	return &SearchResult{
		Query:     plan.RawQuery,
		Results:   []Hit{},
		TermStats: map[string]int{},
	}
}

type Executor struct {
	idx    Index
	logger *slog.Logger
}

func New(idx Index) *Executor {
	return &Executor{
		idx:    idx,
		logger: slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if plan.Empty() {
		return emptyResult(plan), nil
	}
	sr, err := rankSource(ctx, e.idx, plan, limit)
	if err != nil {
		return nil, err
	}
	results := make([]Hit, 0, len(sr.docs))
	for _, doc := range sr.docs {
		results = append(results, sr.hits[doc.Key])
	}
	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", sr.total,
		"results", len(results),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: sr.total,
		Results:   results,
		TermStats: sr.termStats,
	}, nil
}

// sourceResult is the ranked outcome of one source.
type sourceResult struct {
	source    string
	docs      []ranker.ScoredDoc
	hits      map[string]Hit
	total     int
	termStats map[string]int
}

// rankSource evaluates plan against one index. Every query term matches
// the index term itself and, at reduced weight, the terms it prefixes.
func rankSource(ctx context.Context, idx Index, plan *parser.QueryPlan, limit int) (sourceResult, error) {
	sr := sourceResult{
		source:    idx.Name(),
		termStats: make(map[string]int),
	}
	var weighted []ranker.TermPostings
	var candidates map[string]struct{}
	if len(plan.Terms) > 0 {
		docSets := make([]map[string]struct{}, 0, len(plan.Terms))
		for _, term := range plan.Terms {
			if err := ctx.Err(); err != nil {
				return sr, err
			}
			expanded, err := expandTerm(idx, term)
			if err != nil {
				return sr, err
			}
			docs := make(map[string]struct{})
			for _, tp := range expanded {
				for _, p := range tp.Postings {
					docs[p.Key] = struct{}{}
				}
			}
			if len(docs) > 0 {
				sr.termStats[term] = len(docs)
			}
			docSets = append(docSets, docs)
			weighted = append(weighted, expanded...)
		}
		switch plan.Type {
		case parser.QueryAND:
			candidates = intersect(docSets)
		case parser.QueryOR:
			candidates = union(docSets)
		}
	} else {
		entries := idx.Entries()
		candidates = make(map[string]struct{}, len(entries))
		for _, entry := range entries {
			candidates[entry.Key()] = struct{}{}
		}
	}
	if len(plan.Name) >= 2 {
		// names such as "hp" for HAS_PARENT match by initials only
		for _, entry := range idx.Entries() {
			if ranker.MatchTier(entry.Name(), plan.Name) >= ranker.TierInitials {
				candidates[entry.Key()] = struct{}{}
			}
		}
	}

	for _, term := range plan.ExcludeTerms {
		postings, err := idx.Search(term)
		if err != nil {
			return sr, fmt.Errorf("searching exclude term %q: %w", term, err)
		}
		for _, p := range postings {
			delete(candidates, p.Key)
		}
	}

	entries := make(map[string]member.Entry, len(candidates))
	for key := range candidates {
		entry, ok := idx.Entry(key)
		if !ok || !plan.Matches(entry) {
			delete(candidates, key)
			continue
		}
		entries[key] = entry
	}

	params := ranker.RankParams{
		TotalDocs:    idx.TotalDocs(),
		AvgDocLength: idx.AvgDocLength(),
		Name:         plan.Name,
	}
	getDocInfo := func(key string) ranker.DocInfo {
		return ranker.DocInfo{
			DocLength: idx.DocLength(key),
			Name:      entries[key].Name(),
		}
	}
	sr.docs = ranker.Rank(weighted, candidates, params, getDocInfo, limit)
	sr.total = len(candidates)
	sr.hits = make(map[string]Hit, len(sr.docs))
	for i := range sr.docs {
		sr.docs[i].Source = sr.source
		sr.hits[sr.docs[i].Key] = newHit(sr.source, entries[sr.docs[i].Key], sr.docs[i])
	}
	return sr, nil
}

func expandTerm(idx Index, term string) ([]ranker.TermPostings, error) {
	exact, err := idx.Search(term)
	if err != nil {
		return nil, fmt.Errorf("searching term %q: %w", term, err)
	}
	result := make([]ranker.TermPostings, 0, 1)
	if len(exact) > 0 {
		result = append(result, ranker.TermPostings{Term: term, Weight: 1, Postings: exact})
	}
	expansions, err := idx.SearchPrefix(term, maxExpansions)
	if err != nil {
		return nil, fmt.Errorf("expanding term %q: %w", term, err)
	}
	for _, te := range expansions {
		if te.Term == term {
			continue
		}
		result = append(result, ranker.TermPostings{Term: te.Term, Weight: ranker.PrefixWeight, Postings: te.Postings})
	}
	return result, nil
}

func newHit(source string, entry member.Entry, doc ranker.ScoredDoc) Hit {
	return Hit{
		Source:  source,
		Key:     doc.Key,
		Package: entry.Package,
		Class:   entry.Class,
		Label:   entry.Label,
		URL:     entry.URL,
		Kind:    entry.Kind(),
		Href:    entry.Href(),
		Match:   doc.Tier.String(),
		Score:   doc.Score,
	}
}

func intersect(sets []map[string]struct{}) map[string]struct{} {
	if len(sets) == 0 {
		return make(map[string]struct{})
	}
	shortest := 0
	for i, s := range sets {
		if len(s) < len(sets[shortest]) {
			shortest = i
		}
	}
	candidates := make(map[string]struct{}, len(sets[shortest]))
	for key := range sets[shortest] {
		candidates[key] = struct{}{}
	}
	for i, s := range sets {
		if i == shortest {
			continue
		}
		for key := range candidates {
			if _, ok := s[key]; !ok {
				delete(candidates, key)
			}
		}
	}
	return candidates
}

func union(sets []map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{})
	for _, s := range sets {
		for key := range s {
			result[key] = struct{}{}
		}
	}
	return result
}
