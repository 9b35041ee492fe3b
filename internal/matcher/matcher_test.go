package matcher

import (
	"context"
	"fmt"
	"sync"
	"testing"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steph-grigors/ai-job-matcher/internal/embedding"
	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

// queueEmbedder hands out preset vectors in call order: the profile
// query first, then one per listing.
type queueEmbedder struct {
	vectors [][]float64
	fail    error
}

func (q *queueEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error) {
	if q.fail != nil {
		return nil, q.fail
	}
	if len(texts) != len(q.vectors) {
		return nil, fmt.Errorf("queueEmbedder: got %d texts, have %d vectors", len(texts), len(q.vectors))
	}
	return q.vectors, nil
}

func (q *queueEmbedder) GetDimensions() int { return 2 }
func (q *queueEmbedder) ModelID() string    { return "queue-model" }

type stubScorer struct {
	mu     sync.Mutex
	scores map[string]float64
	errIDs map[string]bool
	calls  []string
}

func (s *stubScorer) Score(ctx context.Context, profile *types.ResumeProfile, listing *types.JobListing) (float64, string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, listing.ID)
	s.mu.Unlock()
	if s.errIDs[listing.ID] {
		return 0, "", fmt.Errorf("%w: model unavailable", ErrScoringFailure)
	}
	return s.scores[listing.ID], "rationale for " + listing.ID, nil
}

func testProfile() *types.ResumeProfile {
	return &types.ResumeProfile{
		TargetTitles: []string{"Backend Engineer"},
		Skills:       []string{"Go"},
	}
}

func testListings(ids ...string) []*types.JobListing {
	out := make([]*types.JobListing, 0, len(ids))
	for _, id := range ids {
		out = append(out, &types.JobListing{ID: id, Title: "Role " + id, Description: "desc " + id})
	}
	return out
}

func TestMatchSimilarityOnly(t *testing.T) {
	emb := &queueEmbedder{vectors: [][]float64{
		{1, 0},  // query
		{1, 0},  // a: cos 1 -> 100
		{0, 1},  // b: cos 0 -> 50
		{-1, 0}, // c: cos -1 -> 0
	}}
	m := NewMatcher(emb, WithThresholds(40, 10))

	results, err := m.Match(context.Background(), testProfile(), testListings("a", "b", "c"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ListingID)
	assert.InDelta(t, 100.0, results[0].SimilarityPct, 1e-9)
	assert.InDelta(t, 100.0, results[0].FinalScore, 1e-9)
	assert.True(t, results[0].LLMUnscored)
	assert.Equal(t, 1, results[0].Rank)

	assert.Equal(t, "b", results[1].ListingID)
	assert.InDelta(t, 50.0, results[1].FinalScore, 1e-9)
	assert.Equal(t, 2, results[1].Rank)
}

func TestMatchFusesLLMScores(t *testing.T) {
	emb := &queueEmbedder{vectors: [][]float64{
		{1, 0},
		{1, 0}, // a: similarity 100
		{0, 1}, // b: similarity 50
	}}
	scorer := &stubScorer{scores: map[string]float64{"a": 40, "b": 100}}
	m := NewMatcher(emb,
		WithScorer(scorer),
		WithThresholds(0, 10),
		WithFusionWeights(0.4, 0.6),
	)

	results, err := m.Match(context.Background(), testProfile(), testListings("a", "b"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	// b: 0.4*50 + 0.6*100 = 80; a: 0.4*100 + 0.6*40 = 64.
	assert.Equal(t, "b", results[0].ListingID)
	assert.InDelta(t, 80.0, results[0].FinalScore, 1e-9)
	assert.False(t, results[0].LLMUnscored)
	assert.Equal(t, "rationale for b", results[0].Rationale)

	assert.Equal(t, "a", results[1].ListingID)
	assert.InDelta(t, 64.0, results[1].FinalScore, 1e-9)
}

func TestMatchDegradesOnScoringFailure(t *testing.T) {
	emb := &queueEmbedder{vectors: [][]float64{
		{1, 0},
		{1, 0}, // a
		{1, 1}, // b
	}}
	scorer := &stubScorer{
		scores: map[string]float64{"b": 90},
		errIDs: map[string]bool{"a": true},
	}
	m := NewMatcher(emb, WithScorer(scorer), WithThresholds(0, 10), WithFusionWeights(0.4, 0.6))

	results, err := m.Match(context.Background(), testProfile(), testListings("a", "b"))
	require.NoError(t, err, "a single scoring failure must not abort the run")
	require.Len(t, results, 2)

	byID := map[string]types.MatchResult{}
	for _, r := range results {
		byID[r.ListingID] = r
	}
	assert.True(t, byID["a"].LLMUnscored)
	assert.InDelta(t, byID["a"].SimilarityPct, byID["a"].FinalScore, 1e-9, "unscored listing falls back to similarity")
	assert.False(t, byID["b"].LLMUnscored)
}

func TestMatchAbortsOnEmbeddingFailure(t *testing.T) {
	emb := &queueEmbedder{fail: fmt.Errorf("%w: provider down", embedding.ErrEmbeddingFailure)}
	m := NewMatcher(emb)

	_, err := m.Match(context.Background(), testProfile(), testListings("a"))
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailure)
}

func TestMatchTruncatesToTopN(t *testing.T) {
	emb := &queueEmbedder{vectors: [][]float64{
		{1, 0},
		{1, 0},
		{2, 0.1},
		{3, 0.2},
		{1, 0.1},
	}}
	m := NewMatcher(emb, WithThresholds(0, 2))

	results, err := m.Match(context.Background(), testProfile(), testListings("a", "b", "c", "d"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.GreaterOrEqual(t, results[0].FinalScore, results[1].FinalScore)
}

func TestMatchTieBreaksByListingID(t *testing.T) {
	// Identical vectors give identical similarity; order must fall back
	// to listing id ascending.
	emb := &queueEmbedder{vectors: [][]float64{
		{1, 0},
		{1, 0},
		{1, 0},
		{1, 0},
	}}
	m := NewMatcher(emb, WithThresholds(0, 10))

	results, err := m.Match(context.Background(), testProfile(), testListings("c", "a", "b"))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ListingID)
	assert.Equal(t, "b", results[1].ListingID)
	assert.Equal(t, "c", results[2].ListingID)
}

func TestMatchOnlyScoresTopM(t *testing.T) {
	emb := &queueEmbedder{vectors: [][]float64{
		{1, 0},
		{1, 0},    // a: highest similarity
		{1, 0.1},  // b
		{-1, 0.5}, // c: lowest
	}}
	scorer := &stubScorer{scores: map[string]float64{"a": 90, "b": 80, "c": 70}}
	m := NewMatcher(emb,
		WithScorer(scorer),
		WithThresholds(0, 10),
		WithScoringConcurrency(2, 2),
	)

	_, err := m.Match(context.Background(), testProfile(), testListings("a", "b", "c"))
	require.NoError(t, err)

	assert.Len(t, scorer.calls, 2)
	assert.NotContains(t, scorer.calls, "c", "listing outside top-M must not reach the scorer")
}

func TestMatchEmptyListings(t *testing.T) {
	m := NewMatcher(&queueEmbedder{})
	results, err := m.Match(context.Background(), testProfile(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMatchUsesRawTextWhenSummaryEmpty(t *testing.T) {
	emb := &queueEmbedder{vectors: [][]float64{
		{1, 0},
		{1, 0},
	}}
	m := NewMatcher(emb, WithThresholds(0, 10))

	profile := &types.ResumeProfile{RawText: "ten years of backend work"}
	results, err := m.Match(context.Background(), profile, testListings("a"))
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMatchRejectsEmptyProfile(t *testing.T) {
	m := NewMatcher(&queueEmbedder{})

	_, err := m.Match(context.Background(), &types.ResumeProfile{}, testListings("a"))
	assert.Error(t, err)

	_, err = m.Match(context.Background(), nil, testListings("a"))
	assert.Error(t, err)
}
