// Package matcher ranks fetched job listings against a structured resume
// profile. Ranking combines embedding similarity with an optional LLM
// relevance score under fixed fusion weights.
package matcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/embedding"
	"github.com/steph-grigors/ai-job-matcher/internal/index"
	"github.com/steph-grigors/ai-job-matcher/internal/types"
	"github.com/steph-grigors/ai-job-matcher/pkg/ratelimit"
)

const (
	defaultMinScore     = 60.0
	defaultTopN         = 10
	defaultTopMForLLM   = 10
	defaultScoreWorkers = 4
	defaultSimWeight    = 0.4
	defaultLLMWeight    = 0.6
)

// Matcher runs the embed, index, score and fuse pipeline for one search.
type Matcher struct {
	embedder  embedding.TextEmbedder
	scorer    RelevanceScorer
	limiter   *ratelimit.TokenBucket
	minScore  float64
	topN      int
	topM      int
	workers   int
	simWeight float64
	llmWeight float64
	useLLM    bool
	logger    zerolog.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithScorer enables LLM relevance scoring of the top candidates.
func WithScorer(s RelevanceScorer) MatcherOption {
	return func(m *Matcher) {
		m.scorer = s
		m.useLLM = s != nil
	}
}

// WithLimiter caps the rate of LLM scoring calls.
func WithLimiter(l *ratelimit.TokenBucket) MatcherOption {
	return func(m *Matcher) {
		m.limiter = l
	}
}

// WithThresholds overrides the minimum final score and result count.
func WithThresholds(minScore float64, topN int) MatcherOption {
	return func(m *Matcher) {
		if minScore >= 0 && minScore <= 100 {
			m.minScore = minScore
		}
		if topN > 0 {
			m.topN = topN
		}
	}
}

// WithFusionWeights sets the similarity and LLM weights. The weights
// should sum to 1; callers validate that at config load.
func WithFusionWeights(simWeight, llmWeight float64) MatcherOption {
	return func(m *Matcher) {
		if simWeight >= 0 && llmWeight >= 0 {
			m.simWeight = simWeight
			m.llmWeight = llmWeight
		}
	}
}

// WithScoringConcurrency sets how many listings get LLM scored and how
// many scoring calls run at once.
func WithScoringConcurrency(topM, workers int) MatcherOption {
	return func(m *Matcher) {
		if topM > 0 {
			m.topM = topM
		}
		if workers > 0 {
			m.workers = workers
		}
	}
}

// WithMatcherLogger sets a custom logger.
func WithMatcherLogger(logger zerolog.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// NewMatcher builds a matcher around the given embedder. Without
// WithScorer the pipeline ranks on similarity alone.
func NewMatcher(embedder embedding.TextEmbedder, options ...MatcherOption) *Matcher {
	m := &Matcher{
		embedder:  embedder,
		minScore:  defaultMinScore,
		topN:      defaultTopN,
		topM:      defaultTopMForLLM,
		workers:   defaultScoreWorkers,
		simWeight: defaultSimWeight,
		llmWeight: defaultLLMWeight,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Match ranks listings against the profile and returns at most topN
// results with final score at or above the minimum, ordered by final
// score descending. A bulk embedding failure aborts the whole run; a
// single listing's scoring failure only degrades that listing to its
// similarity score.
func (m *Matcher) Match(ctx context.Context, profile *types.ResumeProfile, listings []*types.JobListing) ([]types.MatchResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile must not be nil")
	}
	if len(listings) == 0 {
		return []types.MatchResult{}, nil
	}

	queryText := profile.SummaryText()
	if queryText == "" {
		queryText = profile.RawText
	}
	if queryText == "" {
		return nil, fmt.Errorf("profile has no usable text")
	}

	texts := make([]string, 0, len(listings)+1)
	texts = append(texts, queryText)
	for _, l := range listings {
		texts = append(texts, listingText(l))
	}

	vectors, err := m.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed search corpus: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", embedding.ErrEmbeddingFailure, len(vectors), len(texts))
	}

	queryVec := vectors[0]
	ix, err := index.NewCosineIndex(len(queryVec))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.JobListing, len(listings))
	for i, l := range listings {
		if err := ix.Add(l.ID, vectors[i+1]); err != nil {
			return nil, fmt.Errorf("index listing %s: %w", l.ID, err)
		}
		byID[l.ID] = l
	}

	hits, err := ix.Search(queryVec, len(listings))
	if err != nil {
		return nil, err
	}

	results := make([]types.MatchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, types.MatchResult{
			ListingID:     h.ID,
			SimilarityPct: index.SimilarityToPercent(h.Similarity),
			LLMUnscored:   true,
		})
	}

	if m.useLLM && m.scorer != nil {
		m.scoreTopCandidates(ctx, profile, byID, results)
	}

	for i := range results {
		if results[i].LLMUnscored {
			results[i].FinalScore = results[i].SimilarityPct
		} else {
			results[i].FinalScore = m.simWeight*results[i].SimilarityPct + m.llmWeight*results[i].LLMScore
		}
	}

	filtered := results[:0]
	for _, r := range results {
		if r.FinalScore >= m.minScore {
			filtered = append(filtered, r)
		}
	}
	results = filtered

	types.SortMatchResults(results)
	if len(results) > m.topN {
		results = results[:m.topN]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	m.logger.Info().
		Int("listings", len(listings)).
		Int("results", len(results)).
		Msg("match run complete")

	return results, nil
}

// scoreTopCandidates runs LLM scoring over the topM most similar
// listings with bounded concurrency. results must be ordered by
// similarity descending on entry; entries are updated in place.
func (m *Matcher) scoreTopCandidates(ctx context.Context, profile *types.ResumeProfile, byID map[string]*types.JobListing, results []types.MatchResult) {
	limit := m.topM
	if limit > len(results) {
		limit = len(results)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, m.workers)
	for i := 0; i < limit; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(r *types.MatchResult) {
			defer wg.Done()
			defer func() { <-sem }()

			if m.limiter != nil {
				if err := m.limiter.Wait(ctx); err != nil {
					m.logger.Warn().Err(err).Str("listing_id", r.ListingID).Msg("rate limit wait aborted, leaving listing unscored")
					return
				}
			}

			listing := byID[r.ListingID]
			score, rationale, err := m.scorer.Score(ctx, profile, listing)
			if err != nil {
				m.logger.Warn().Err(err).Str("listing_id", r.ListingID).Msg("scoring failed, falling back to similarity")
				return
			}
			r.LLMScore = score
			r.Rationale = rationale
			r.LLMUnscored = false
		}(&results[i])
	}
	wg.Wait()
}
