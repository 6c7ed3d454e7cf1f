package ranker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/indexer/index"
)

func TestMatchTier(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Tier
	}{
		{"checkArchetype", "checkarchetype", TierExact},
		{"CHECK_ARCHETYPE", "checkarchetype", TierExact},
		{"checkArchetype", "checkarch", TierPrefix},
		{"getEdgeId", "gei", TierInitials},
		{"HAS_PARENT", "hp", TierInitials},
		{"isArchetype", "archetype", TierSubstring},
		{"toString", "archetype", TierNone},
		{"toString", "", TierNone},
		{"toString", "t", TierPrefix},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.query, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchTier(tc.name, tc.query))
		})
	}
}

func TestTierOrdering(t *testing.T) {
	assert.Greater(t, TierExact.Boost(), TierPrefix.Boost())
	assert.Greater(t, TierPrefix.Boost(), TierInitials.Boost())
	assert.Greater(t, TierInitials.Boost(), TierSubstring.Boost())
	assert.Greater(t, TierSubstring.Boost(), TierNone.Boost())
	assert.Equal(t, "initials", TierInitials.String())
}

func TestRankOrdersByTierThenBM25(t *testing.T) {
	names := map[string]string{
		"a#checkArchetype": "checkArchetype",
		"a#isArchetype":    "isArchetype",
		"a#check":          "check",
	}
	archetype := TermPostings{Term: "archetype", Weight: 1, Postings: index.PostingList{
		{Key: "a#checkArchetype", Frequency: 1, Fields: index.FieldName},
		{Key: "a#isArchetype", Frequency: 1, Fields: index.FieldName},
	}}
	check := TermPostings{Term: "check", Weight: 1, Postings: index.PostingList{
		{Key: "a#checkArchetype", Frequency: 1, Fields: index.FieldName},
		{Key: "a#check", Frequency: 1, Fields: index.FieldName},
	}}
	candidates := map[string]struct{}{"a#checkArchetype": {}, "a#isArchetype": {}, "a#check": {}}
	params := RankParams{TotalDocs: 10, AvgDocLength: 3, Name: "checkarchetype"}
	info := func(key string) DocInfo { return DocInfo{DocLength: 3, Name: names[key]} }

	ranked := Rank([]TermPostings{archetype, check}, candidates, params, info, 10)
	require.Len(t, ranked, 3)
	assert.Equal(t, "a#checkArchetype", ranked[0].Key)
	assert.Equal(t, TierExact, ranked[0].Tier)
	// both remaining docs match one term; neither name matches the query
	assert.Equal(t, ranked[1].Score, ranked[2].Score)
	assert.Equal(t, "a#check", ranked[1].Key)
	assert.Equal(t, "a#isArchetype", ranked[2].Key)
}

func TestRankIgnoresNonCandidates(t *testing.T) {
	tp := TermPostings{Term: "node", Weight: 1, Postings: index.PostingList{
		{Key: "x", Frequency: 1, Fields: index.FieldName},
		{Key: "y", Frequency: 1, Fields: index.FieldName},
	}}
	ranked := Rank([]TermPostings{tp}, map[string]struct{}{"y": {}},
		RankParams{TotalDocs: 2, AvgDocLength: 1},
		func(string) DocInfo { return DocInfo{DocLength: 1} }, 10)
	require.Len(t, ranked, 1)
	assert.Equal(t, "y", ranked[0].Key)
}

func TestRankLimitAndRounding(t *testing.T) {
	var postings index.PostingList
	candidates := make(map[string]struct{})
	for _, key := range []string{"d", "c", "b", "a"} {
		postings = append(postings, index.Posting{Key: key, Frequency: 1, Fields: index.FieldPackage})
		candidates[key] = struct{}{}
	}
	ranked := Rank([]TermPostings{{Term: "aot", Weight: PrefixWeight, Postings: postings}}, candidates,
		RankParams{TotalDocs: 7, AvgDocLength: 4},
		func(string) DocInfo { return DocInfo{DocLength: 5} }, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Key)
	assert.Equal(t, "b", ranked[1].Key)
	assert.Greater(t, ranked[0].Score, 0.0)
	assert.Equal(t, ranked[0].Score, math.Round(ranked[0].Score*10000)/10000)
}

func TestRankEmpty(t *testing.T) {
	ranked := Rank(nil, nil, RankParams{}, func(string) DocInfo { return DocInfo{} }, 10)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestFieldWeight(t *testing.T) {
	assert.Greater(t, fieldWeight(index.FieldName|index.FieldPackage), fieldWeight(index.FieldParams))
	assert.Greater(t, fieldWeight(index.FieldClass), fieldWeight(index.FieldPackage))
}

func TestComputeIDF(t *testing.T) {
	assert.Zero(t, computeIDF(0, 0))
	rare := computeIDF(100, 1)
	common := computeIDF(100, 90)
	assert.Greater(t, rare, common)
	assert.Greater(t, common, 0.0)
}
