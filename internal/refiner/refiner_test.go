package refiner

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

type mockChatModel struct {
	response string
	err      error
}

func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{Role: schema.Assistant, Content: m.response}, nil
}

func (m *mockChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (m *mockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func sampleState() ([]types.MatchResult, map[string]*types.JobListing) {
	posted := func(daysAgo int) *time.Time {
		t := time.Now().AddDate(0, 0, -daysAgo)
		return &t
	}
	listings := map[string]*types.JobListing{
		"a": {ID: "a", Title: "Go Engineer", Company: "Acme", Location: "Berlin", SalaryMin: 60000, SalaryMax: 80000, ContractType: "full_time", PostedAt: posted(10)},
		"b": {ID: "b", Title: "Platform Engineer", Company: "Globex", Location: "Remote", SalaryMin: 90000, SalaryMax: 120000, ContractType: "contract", PostedAt: posted(1)},
		"c": {ID: "c", Title: "Data Engineer", Company: "Initech", Location: "Berlin", PostedAt: posted(5)},
	}
	results := []types.MatchResult{
		{ListingID: "a", FinalScore: 90, SimilarityPct: 88, Rank: 1},
		{ListingID: "b", FinalScore: 80, SimilarityPct: 75, Rank: 2},
		{ListingID: "c", FinalScore: 70, SimilarityPct: 72, Rank: 3},
	}
	return results, listings
}

func TestRefineAppliesLocationFilter(t *testing.T) {
	chat := &mockChatModel{response: `{"filters": [{"field": "location", "contains": "berlin"}], "sort_by": ""}`}
	r := NewRefiner(chat)

	results, listings := sampleState()
	outcome, err := r.Refine(context.Background(), "only jobs in Berlin", results, listings)
	require.NoError(t, err)

	assert.True(t, outcome.Interpreted)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "a", outcome.Results[0].ListingID)
	assert.Equal(t, "c", outcome.Results[1].ListingID)
	assert.Equal(t, 1, outcome.Results[0].Rank)
	assert.Equal(t, 2, outcome.Results[1].Rank)
}

func TestRefineKeepsResultsWhenUninterpretable(t *testing.T) {
	chat := &mockChatModel{response: "I do not understand that request."}
	r := NewRefiner(chat)

	results, listings := sampleState()
	outcome, err := r.Refine(context.Background(), "what is the meaning of life", results, listings)
	require.NoError(t, err)

	assert.False(t, outcome.Interpreted)
	assert.Equal(t, results, outcome.Results)
}

func TestRefineEmptyDirectiveIsNotInterpreted(t *testing.T) {
	chat := &mockChatModel{response: `{"filters": [], "sort_by": ""}`}
	r := NewRefiner(chat)

	results, listings := sampleState()
	outcome, err := r.Refine(context.Background(), "tell me a joke", results, listings)
	require.NoError(t, err)
	assert.False(t, outcome.Interpreted)
	assert.Equal(t, results, outcome.Results)
}

func TestApplySalaryFilter(t *testing.T) {
	results, listings := sampleState()
	directive := types.RefinementDirective{
		Filters: []types.FilterPredicate{{Field: "salary", MinValue: 100000}},
	}

	out := Apply(directive, results, listings)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ListingID)
}

func TestApplySalaryFilterDropsUnknownSalary(t *testing.T) {
	results, listings := sampleState()

	minOnly := types.RefinementDirective{
		Filters: []types.FilterPredicate{{Field: "salary", MinValue: 1}},
	}
	for _, r := range Apply(minOnly, results, listings) {
		assert.NotEqual(t, "c", r.ListingID, "listing without salary data cannot satisfy a salary bound")
	}

	maxOnly := types.RefinementDirective{
		Filters: []types.FilterPredicate{{Field: "salary", MaxValue: 100000}},
	}
	for _, r := range Apply(maxOnly, results, listings) {
		assert.NotEqual(t, "c", r.ListingID, "a max-only bound drops unknown salaries too")
	}
}

func TestApplySortBySalary(t *testing.T) {
	results, listings := sampleState()
	directive := types.RefinementDirective{SortBy: types.SortBySalary}

	out := Apply(directive, results, listings)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ListingID)
	assert.Equal(t, "a", out[1].ListingID)
	assert.Equal(t, "c", out[2].ListingID)
}

func TestApplySortByDate(t *testing.T) {
	results, listings := sampleState()
	directive := types.RefinementDirective{SortBy: types.SortByDate}

	out := Apply(directive, results, listings)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ListingID, "newest listing first")
	assert.Equal(t, "c", out[1].ListingID)
	assert.Equal(t, "a", out[2].ListingID)
}

func TestApplyScoreFilter(t *testing.T) {
	results, listings := sampleState()
	directive := types.RefinementDirective{
		Filters: []types.FilterPredicate{{Field: "score", MinValue: 80}},
	}

	out := Apply(directive, results, listings)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ListingID)
	assert.Equal(t, "b", out[1].ListingID)
}

func TestApplyNeverAddsResultsBack(t *testing.T) {
	results, listings := sampleState()
	first := Apply(types.RefinementDirective{
		Filters: []types.FilterPredicate{{Field: "location", Contains: "berlin"}},
	}, results, listings)
	require.Len(t, first, 2)

	// A follow-up directive with no filters only reorders what is left.
	second := Apply(types.RefinementDirective{SortBy: types.SortByScore}, first, listings)
	assert.Len(t, second, 2)
}

func TestApplyUnknownFieldKeepsEverything(t *testing.T) {
	results, listings := sampleState()
	out := Apply(types.RefinementDirective{
		Filters: []types.FilterPredicate{{Field: "mystery", Contains: "x"}},
	}, results, listings)
	assert.Len(t, out, len(results))
}

func TestParseDirectiveNormalizesFields(t *testing.T) {
	directive, err := parseDirective(`{"filters": [{"field": " Location ", "contains": " Berlin "}], "sort_by": "SALARY"}`)
	require.NoError(t, err)
	require.Len(t, directive.Filters, 1)
	assert.Equal(t, "location", directive.Filters[0].Field)
	assert.Equal(t, "Berlin", directive.Filters[0].Contains)
	assert.Equal(t, types.SortBySalary, directive.SortBy)
}
