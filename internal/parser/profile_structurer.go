package parser

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

// ErrParseFailure marks resume input that is too short to work with.
// Every other structuring problem degrades to a partial profile.
var ErrParseFailure = errors.New("resume text unusable")

const defaultMinResumeChars = 100

// LLMProfileStructurer extracts a structured ResumeProfile from plain
// resume text via the chat model. Missing sections yield empty lists,
// never errors.
type LLMProfileStructurer struct {
	llmModel       model.ToolCallingChatModel
	minChars       int
	maxRetries     int
	promptTemplate string
	logger         zerolog.Logger
}

// StructurerOption configures an LLMProfileStructurer.
type StructurerOption func(*LLMProfileStructurer)

// WithMinResumeChars overrides the minimum usable input length.
func WithMinResumeChars(n int) StructurerOption {
	return func(s *LLMProfileStructurer) {
		if n > 0 {
			s.minChars = n
		}
	}
}

// WithStructurerLogger sets a custom logger.
func WithStructurerLogger(logger zerolog.Logger) StructurerOption {
	return func(s *LLMProfileStructurer) {
		s.logger = logger
	}
}

// WithCustomPrompt replaces the default extraction prompt template.
func WithCustomPrompt(template string) StructurerOption {
	return func(s *LLMProfileStructurer) {
		if template != "" {
			s.promptTemplate = template
		}
	}
}

// NewLLMProfileStructurer builds a structurer around the given chat model.
func NewLLMProfileStructurer(llmModel model.ToolCallingChatModel, options ...StructurerOption) *LLMProfileStructurer {
	s := &LLMProfileStructurer{
		llmModel:   llmModel,
		minChars:   defaultMinResumeChars,
		maxRetries: 2,
		logger:     zerolog.Nop(),
	}
	s.promptTemplate = defaultStructurerPrompt
	for _, opt := range options {
		opt(s)
	}
	return s
}

const defaultStructurerPrompt = `You are an expert resume parser. Extract structured information from the resume text below.

Rules:
- If a field is not present in the text, use null or an empty list. Never invent information.
- target_titles: infer from recent positions or an objective statement.
- years_experience: total years across all positions, rounded down; 0 if unknown.
- skills: technical skills and tools, one entry each.
- experience: one entry per position with title, organization, duration and a one-sentence description.
- preferences: stated location, role type (full-time, part-time, contract, remote) and salary expectations if present.

Respond with a single JSON object and nothing else:
{
  "name": string or null,
  "email": string or null,
  "target_titles": [string],
  "skills": [string],
  "experience": [{"title": string, "organization": string, "duration": string, "description": string}],
  "preferences": {"location": string, "role_type": string, "salary_min": number, "salary_max": number},
  "years_experience": number
}

Resume text:
"""
%s
"""`

// profilePayload mirrors the JSON contract of the extraction prompt.
type profilePayload struct {
	Name         *string  `json:"name"`
	Email        *string  `json:"email"`
	TargetTitles []string `json:"target_titles"`
	Skills       []string `json:"skills"`
	Experience   []struct {
		Title        string `json:"title"`
		Organization string `json:"organization"`
		Duration     string `json:"duration"`
		Description  string `json:"description"`
	} `json:"experience"`
	Preferences struct {
		Location  string  `json:"location"`
		RoleType  string  `json:"role_type"`
		SalaryMin float64 `json:"salary_min"`
		SalaryMax float64 `json:"salary_max"`
	} `json:"preferences"`
	YearsExperience int `json:"years_experience"`
}

// StructureProfile turns extracted resume text into a ResumeProfile.
// It returns ErrParseFailure only for input below the minimum length;
// an unusable model response degrades to a raw-text-only profile.
func (s *LLMProfileStructurer) StructureProfile(ctx context.Context, text string) (*types.ResumeProfile, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < s.minChars {
		return nil, fmt.Errorf("%w: input has %d characters, need at least %d", ErrParseFailure, len(trimmed), s.minChars)
	}

	content, err := s.callLLM(ctx, fmt.Sprintf(s.promptTemplate, trimmed))
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile structuring LLM call failed, falling back to raw-text profile")
		return fallbackProfile(trimmed), nil
	}

	payload, err := parseProfilePayload(content)
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile structuring response unparseable, falling back to raw-text profile")
		return fallbackProfile(trimmed), nil
	}

	profile := &types.ResumeProfile{
		TargetTitles:    emptyIfNil(payload.TargetTitles),
		Skills:          types.DedupeSkills(payload.Skills),
		Experience:      make([]types.ExperienceEntry, 0, len(payload.Experience)),
		YearsExperience: payload.YearsExperience,
		RawText:         trimmed,
	}
	if payload.Name != nil {
		profile.Name = *payload.Name
	}
	if payload.Email != nil {
		profile.Email = *payload.Email
	}
	for _, exp := range payload.Experience {
		profile.Experience = append(profile.Experience, types.ExperienceEntry{
			Title:        exp.Title,
			Organization: exp.Organization,
			Duration:     exp.Duration,
			Description:  exp.Description,
		})
	}
	profile.Preferences = types.Preferences{
		Location:  payload.Preferences.Location,
		RoleType:  payload.Preferences.RoleType,
		SalaryMin: payload.Preferences.SalaryMin,
		SalaryMax: payload.Preferences.SalaryMax,
	}

	s.logger.Debug().
		Int("skills", len(profile.Skills)).
		Int("experience", len(profile.Experience)).
		Msg("resume profile structured")

	return profile, nil
}

// callLLM performs the generation with a small bounded retry for
// transient provider failures.
func (s *LLMProfileStructurer) callLLM(ctx context.Context, prompt string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage("You extract structured data from resumes. Respond with JSON only."),
		schema.UserMessage(prompt),
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		resp, err := s.llmModel.Generate(ctx, messages)
		if err != nil {
			lastErr = err
			if llm.IsRetryableError(err) {
				continue
			}
			return "", err
		}
		if resp == nil || resp.Content == "" {
			lastErr = fmt.Errorf("empty LLM response")
			continue
		}
		return resp.Content, nil
	}
	return "", lastErr
}

func parseProfilePayload(content string) (*profilePayload, error) {
	content = strings.TrimPrefix(content, "\uFEFF")
	jsonStr := llm.ExtractJSON(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var payload profilePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		fixed := llm.SanitizeJSON(jsonStr)
		if err2 := json.Unmarshal([]byte(fixed), &payload); err2 != nil {
			return nil, fmt.Errorf("unmarshal profile JSON: %w", err)
		}
	}
	return &payload, nil
}

// fallbackProfile keeps a search possible even when structuring fails:
// the raw text still embeds, just without targeted keywords.
func fallbackProfile(text string) *types.ResumeProfile {
	return &types.ResumeProfile{
		TargetTitles: []string{},
		Skills:       []string{},
		Experience:   []types.ExperienceEntry{},
		RawText:      text,
	}
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
