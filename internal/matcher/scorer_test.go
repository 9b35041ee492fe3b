package matcher

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

type mockChatModel struct {
	response  string
	err       error
	callCount int
}

func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.callCount++
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

func scoringListing() *types.JobListing {
	return &types.JobListing{ID: "job-1", Title: "Backend Engineer", Company: "Acme", Description: "Go services"}
}

func TestScoreParsesResponse(t *testing.T) {
	chat := &mockChatModel{response: `{"score": 85, "rationale": "Strong Go match."}`}
	s := NewLLMScorer(chat)

	score, rationale, err := s.Score(context.Background(), testProfile(), scoringListing())
	require.NoError(t, err)
	assert.InDelta(t, 85.0, score, 1e-9)
	assert.Equal(t, "Strong Go match.", rationale)
}

func TestScoreHandlesWrappedJSON(t *testing.T) {
	chat := &mockChatModel{response: "Here you go:\n```json\n{\"score\": 42, \"rationale\": \"partial fit\"}\n```"}
	s := NewLLMScorer(chat)

	score, _, err := s.Score(context.Background(), testProfile(), scoringListing())
	require.NoError(t, err)
	assert.InDelta(t, 42.0, score, 1e-9)
}

func TestScoreClampsOutOfRange(t *testing.T) {
	chat := &mockChatModel{response: `{"score": 140, "rationale": "over-eager"}`}
	s := NewLLMScorer(chat)

	score, _, err := s.Score(context.Background(), testProfile(), scoringListing())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, score, 1e-9)

	chat.response = `{"score": -5, "rationale": "negative"}`
	score, _, err = s.Score(context.Background(), testProfile(), scoringListing())
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestScoreWrapsUnparseableResponse(t *testing.T) {
	chat := &mockChatModel{response: "I cannot rate this."}
	s := NewLLMScorer(chat)

	_, _, err := s.Score(context.Background(), testProfile(), scoringListing())
	assert.ErrorIs(t, err, ErrScoringFailure)
}

func TestScoreWrapsModelError(t *testing.T) {
	chat := &mockChatModel{err: assert.AnError}
	s := NewLLMScorer(chat)

	_, _, err := s.Score(context.Background(), testProfile(), scoringListing())
	assert.ErrorIs(t, err, ErrScoringFailure)
	assert.Equal(t, 1, chat.callCount, "non-retryable errors must not be retried")
}
