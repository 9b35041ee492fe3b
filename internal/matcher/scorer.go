package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/llm"
	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

// ErrScoringFailure marks a single listing whose LLM relevance score
// could not be obtained. It never aborts the surrounding match run.
var ErrScoringFailure = errors.New("llm scoring failed")

// RelevanceScorer produces an LLM judgement of how well a candidate fits
// one listing. Implementations return a score in [0, 100] plus a short
// rationale.
type RelevanceScorer interface {
	Score(ctx context.Context, profile *types.ResumeProfile, listing *types.JobListing) (float64, string, error)
}

// LLMScorer asks the chat model to grade candidate/listing fit.
type LLMScorer struct {
	llmModel       model.ToolCallingChatModel
	maxRetries     int
	promptTemplate string
	logger         zerolog.Logger
}

// ScorerOption configures an LLMScorer.
type ScorerOption func(*LLMScorer)

// WithScorerLogger sets a custom logger.
func WithScorerLogger(logger zerolog.Logger) ScorerOption {
	return func(s *LLMScorer) {
		s.logger = logger
	}
}

// WithScorerPrompt replaces the default scoring prompt template.
func WithScorerPrompt(template string) ScorerOption {
	return func(s *LLMScorer) {
		if template != "" {
			s.promptTemplate = template
		}
	}
}

// NewLLMScorer builds a scorer around the given chat model.
func NewLLMScorer(llmModel model.ToolCallingChatModel, options ...ScorerOption) *LLMScorer {
	s := &LLMScorer{
		llmModel:       llmModel,
		maxRetries:     2,
		promptTemplate: defaultScorerPrompt,
		logger:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

const defaultScorerPrompt = `You are a senior technical recruiter. Rate how well the candidate below fits the job listing.

Consider skill overlap, seniority match, domain experience and stated preferences. Be strict: a generic overlap is not a strong fit.

Respond with a single JSON object and nothing else:
{"score": number between 0 and 100, "rationale": "one or two sentences"}

Candidate:
"""
%s
"""

Job listing:
"""
%s
"""`

type scorePayload struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// Score grades one candidate/listing pair. Failures are wrapped in
// ErrScoringFailure so callers can degrade that item instead of aborting.
func (s *LLMScorer) Score(ctx context.Context, profile *types.ResumeProfile, listing *types.JobListing) (float64, string, error) {
	candidate := profile.SummaryText()
	if candidate == "" {
		candidate = profile.RawText
	}
	prompt := fmt.Sprintf(s.promptTemplate, candidate, listingText(listing))

	messages := []*schema.Message{
		schema.SystemMessage("You grade candidate fit for job listings. Respond with JSON only."),
		schema.UserMessage(prompt),
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, "", fmt.Errorf("%w: %v", ErrScoringFailure, ctx.Err())
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		resp, err := s.llmModel.Generate(ctx, messages)
		if err != nil {
			lastErr = err
			if llm.IsRetryableError(err) {
				continue
			}
			return 0, "", fmt.Errorf("%w: %v", ErrScoringFailure, err)
		}
		if resp == nil || resp.Content == "" {
			lastErr = fmt.Errorf("empty response")
			continue
		}

		score, rationale, parseErr := parseScorePayload(resp.Content)
		if parseErr != nil {
			lastErr = parseErr
			s.logger.Warn().Err(parseErr).Str("listing_id", listing.ID).Msg("unparseable score response")
			continue
		}
		return score, rationale, nil
	}
	return 0, "", fmt.Errorf("%w: %v", ErrScoringFailure, lastErr)
}

func parseScorePayload(content string) (float64, string, error) {
	jsonStr := llm.ExtractJSON(content)
	if jsonStr == "" {
		return 0, "", fmt.Errorf("no JSON object in response")
	}
	var payload scorePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		fixed := llm.SanitizeJSON(jsonStr)
		if err2 := json.Unmarshal([]byte(fixed), &payload); err2 != nil {
			return 0, "", fmt.Errorf("unmarshal score JSON: %w", err)
		}
	}
	score := payload.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, strings.TrimSpace(payload.Rationale), nil
}

// listingText flattens a listing into the text block shown to the model
// and embedded by the matcher. Title and company lead so they dominate
// short descriptions.
func listingText(l *types.JobListing) string {
	var b strings.Builder
	b.WriteString(l.Title)
	if l.Company != "" {
		b.WriteString(" at ")
		b.WriteString(l.Company)
	}
	if l.Location != "" {
		b.WriteString(" (")
		b.WriteString(l.Location)
		b.WriteString(")")
	}
	if l.ContractType != "" {
		b.WriteString(". ")
		b.WriteString(l.ContractType)
	}
	if l.Description != "" {
		b.WriteString("\n")
		b.WriteString(l.Description)
	}
	return b.String()
}
