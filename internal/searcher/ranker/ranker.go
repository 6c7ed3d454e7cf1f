// Package ranker scores candidate members with BM25 over their postings
// and boosts members whose name matches the query as a whole.
package ranker

import (
	"math"
	"sort"
	"strings"

	"github.com/3worlds/aot/internal/indexer/index"
	"github.com/3worlds/aot/internal/indexer/tokenizer"
)

const (
	k1 = 1.2
	b  = 0.75

	// PrefixWeight scales the postings of terms reached by prefix
	// expansion rather than by the query term itself.
	PrefixWeight = 0.6
)

// Tier grades how a member name matches the folded query.
type Tier int

const (
	TierNone Tier = iota
	TierSubstring
	TierInitials
	TierPrefix
	TierExact
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierInitials:
		return "initials"
	case TierSubstring:
		return "substring"
	}
	return ""
}

var tierBoost = [...]float64{
	TierNone:      0,
	TierSubstring: 1.5,
	TierInitials:  3,
	TierPrefix:    6,
	TierExact:     10,
}

// Boost returns the score added for a name match of tier t.
func (t Tier) Boost() float64 {
	if t < TierNone || t > TierExact {
		return 0
	}
	return tierBoost[t]
}

// MatchTier compares a member name with a query already folded by
// tokenizer.Fold. Initials need at least two letters.
func MatchTier(name, query string) Tier {
	if query == "" {
		return TierNone
	}
	folded := tokenizer.Fold(name)
	switch {
	case folded == query:
		return TierExact
	case strings.HasPrefix(folded, query):
		return TierPrefix
	case len(query) >= 2 && strings.HasPrefix(tokenizer.Initials(name), query):
		return TierInitials
	case strings.Contains(folded, query):
		return TierSubstring
	}
	return TierNone
}

// ScoredDoc is a ranked member, addressed by source and entry key.
type ScoredDoc struct {
	Source string  `json:"source,omitempty"`
	Key    string  `json:"key"`
	Score  float64 `json:"score"`
	Tier   Tier    `json:"tier"`
}

type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
	// Name is the folded query compared against member names.
	Name string
}

type DocInfo struct {
	DocLength int
	Name      string
}

// TermPostings is the posting list of one index term with the weight its
// matches carry: 1 for a query term, PrefixWeight for an expansion.
type TermPostings struct {
	Term     string
	Weight   float64
	Postings index.PostingList
}

// Rank scores every candidate and returns the best limit of them, highest
// score first. Postings of keys outside candidates are ignored. Scores are
// rounded to 4 decimals and ties are broken by key.
func Rank(
	terms []TermPostings,
	candidates map[string]struct{},
	params RankParams,
	getDocInfo func(key string) DocInfo,
	limit int,
) []ScoredDoc {
	if len(candidates) == 0 {
		return []ScoredDoc{}
	}
	scores := make(map[string]float64, len(candidates))
	infos := make(map[string]DocInfo, len(candidates))
	info := func(key string) DocInfo {
		if di, ok := infos[key]; ok {
			return di
		}
		di := getDocInfo(key)
		infos[key] = di
		return di
	}
	for _, tp := range terms {
		idf := computeIDF(params.TotalDocs, len(tp.Postings))
		for _, p := range tp.Postings {
			if _, ok := candidates[p.Key]; !ok {
				continue
			}
			tfNorm := computeTFNorm(p.Frequency, info(p.Key).DocLength, params.AvgDocLength)
			scores[p.Key] += idf * tfNorm * tp.Weight * fieldWeight(p.Fields)
		}
	}
	results := make([]ScoredDoc, 0, len(candidates))
	for key := range candidates {
		tier := MatchTier(info(key).Name, params.Name)
		score := scores[key] + tier.Boost()
		results = append(results, ScoredDoc{
			Key:   key,
			Score: math.Round(score*10000) / 10000,
			Tier:  tier,
		})
	}
	SortScored(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// SortScored orders docs by descending score, then key, then source.
func SortScored(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		return Less(docs[j], docs[i])
	})
}

// Less reports whether a ranks below c.
func Less(a, c ScoredDoc) bool {
	if a.Score != c.Score {
		return a.Score < c.Score
	}
	if a.Key != c.Key {
		return a.Key > c.Key
	}
	return a.Source > c.Source
}

// fieldWeight favours matches in the member name over its signature and
// location.
func fieldWeight(f index.Field) float64 {
	switch {
	case f.Has(index.FieldName):
		return 1.5
	case f.Has(index.FieldParams):
		return 1.0
	case f.Has(index.FieldClass):
		return 0.8
	case f.Has(index.FieldPackage):
		return 0.5
	}
	return 1.0
}

func computeIDF(totalDocs int64, docFreq int) float64 {
	n := float64(totalDocs)
	df := float64(docFreq)
	if df == 0 || n == 0 {
		return 0
	}
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

func computeTFNorm(termFreq, docLength int, avgDocLength float64) float64 {
	tf := float64(termFreq)
	dl := float64(docLength)
	if avgDocLength == 0 {
		avgDocLength = 1
	}
	return (tf * (k1 + 1)) / (tf + k1*(1-b+b*dl/avgDocLength))
}
