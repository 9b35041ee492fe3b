// Package refiner narrows an existing result set from a free-text
// instruction. Refinement is a pure filter and re-sort over results the
// matcher already produced; it never fetches new listings or re-scores.
package refiner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/llm"
	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

// Outcome is the result of one refinement. When Interpreted is false the
// instruction could not be turned into a directive and Results is the
// input unchanged.
type Outcome struct {
	Results     []types.MatchResult
	Directive   types.RefinementDirective
	Interpreted bool
}

// Refiner interprets refinement instructions with the chat model and
// applies the resulting directive.
type Refiner struct {
	llmModel       model.ToolCallingChatModel
	maxRetries     int
	promptTemplate string
	logger         zerolog.Logger
}

// RefinerOption configures a Refiner.
type RefinerOption func(*Refiner)

// WithRefinerLogger sets a custom logger.
func WithRefinerLogger(logger zerolog.Logger) RefinerOption {
	return func(r *Refiner) {
		r.logger = logger
	}
}

// NewRefiner builds a refiner around the given chat model.
func NewRefiner(llmModel model.ToolCallingChatModel, options ...RefinerOption) *Refiner {
	r := &Refiner{
		llmModel:       llmModel,
		maxRetries:     2,
		promptTemplate: defaultRefinerPrompt,
		logger:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

const defaultRefinerPrompt = `Translate the user's refinement request into filters over an existing list of job matches.

Supported filter fields: title, company, location, contract_type, description, salary, score.
- Text fields use "contains" (case-insensitive substring).
- "salary" and "score" use "min_value" / "max_value" (0 means unset).
Supported sort keys: score, salary, date. Use "" to keep the current order.

Only express what the user asked for. If the request is not about filtering or sorting the current results, return empty filters and an empty sort key.

Respond with a single JSON object and nothing else:
{"filters": [{"field": string, "contains": string, "min_value": number, "max_value": number}], "sort_by": string}

User request:
"""
%s
"""`

type directivePayload struct {
	Filters []struct {
		Field    string  `json:"field"`
		Contains string  `json:"contains"`
		MinValue float64 `json:"min_value"`
		MaxValue float64 `json:"max_value"`
	} `json:"filters"`
	SortBy string `json:"sort_by"`
}

// Refine interprets instruction and applies it to results. listings maps
// listing id to the fetched listing for field lookups; results entries
// without a listing only support score filters.
func (r *Refiner) Refine(ctx context.Context, instruction string, results []types.MatchResult, listings map[string]*types.JobListing) (*Outcome, error) {
	unchanged := make([]types.MatchResult, len(results))
	copy(unchanged, results)

	directive, err := r.interpret(ctx, instruction)
	if err != nil {
		r.logger.Warn().Err(err).Msg("refinement instruction not interpretable, keeping results unchanged")
		return &Outcome{Results: unchanged, Interpreted: false}, nil
	}
	if !directive.Actionable() {
		return &Outcome{Results: unchanged, Interpreted: false}, nil
	}

	refined := Apply(*directive, unchanged, listings)
	return &Outcome{Results: refined, Directive: *directive, Interpreted: true}, nil
}

func (r *Refiner) interpret(ctx context.Context, instruction string) (*types.RefinementDirective, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, fmt.Errorf("empty instruction")
	}

	messages := []*schema.Message{
		schema.SystemMessage("You translate refinement requests into structured filters. Respond with JSON only."),
		schema.UserMessage(fmt.Sprintf(r.promptTemplate, instruction)),
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		resp, err := r.llmModel.Generate(ctx, messages)
		if err != nil {
			lastErr = err
			if llm.IsRetryableError(err) {
				continue
			}
			return nil, err
		}
		if resp == nil || resp.Content == "" {
			lastErr = fmt.Errorf("empty response")
			continue
		}
		// Retrying the same prompt rarely fixes an unparseable
		// directive; fail fast and leave the results unchanged.
		return parseDirective(resp.Content)
	}
	return nil, lastErr
}

func parseDirective(content string) (*types.RefinementDirective, error) {
	jsonStr := llm.ExtractJSON(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var payload directivePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		fixed := llm.SanitizeJSON(jsonStr)
		if err2 := json.Unmarshal([]byte(fixed), &payload); err2 != nil {
			return nil, fmt.Errorf("unmarshal directive JSON: %w", err)
		}
	}

	directive := &types.RefinementDirective{
		Filters: make([]types.FilterPredicate, 0, len(payload.Filters)),
	}
	for _, f := range payload.Filters {
		field := strings.ToLower(strings.TrimSpace(f.Field))
		if field == "" {
			continue
		}
		directive.Filters = append(directive.Filters, types.FilterPredicate{
			Field:    field,
			Contains: strings.TrimSpace(f.Contains),
			MinValue: f.MinValue,
			MaxValue: f.MaxValue,
		})
	}
	switch key := types.SortKey(strings.ToLower(strings.TrimSpace(payload.SortBy))); key {
	case types.SortByScore, types.SortBySalary, types.SortByDate:
		directive.SortBy = key
	}
	return directive, nil
}

// Apply filters and re-sorts results per the directive. It only ever
// removes or reorders entries, never adds any back.
func Apply(directive types.RefinementDirective, results []types.MatchResult, listings map[string]*types.JobListing) []types.MatchResult {
	out := make([]types.MatchResult, 0, len(results))
	for _, r := range results {
		if matchesAll(directive.Filters, r, listings[r.ListingID]) {
			out = append(out, r)
		}
	}

	switch directive.SortBy {
	case types.SortByScore:
		types.SortMatchResults(out)
	case types.SortBySalary:
		sort.SliceStable(out, func(i, j int) bool {
			si, sj := listingSalary(listings[out[i].ListingID]), listingSalary(listings[out[j].ListingID])
			if si != sj {
				return si > sj
			}
			return out[i].FinalScore > out[j].FinalScore
		})
	case types.SortByDate:
		sort.SliceStable(out, func(i, j int) bool {
			ti, tj := listingPostedAt(listings[out[i].ListingID]), listingPostedAt(listings[out[j].ListingID])
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return out[i].FinalScore > out[j].FinalScore
		})
	}

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func matchesAll(filters []types.FilterPredicate, r types.MatchResult, listing *types.JobListing) bool {
	for _, f := range filters {
		if !matchesOne(f, r, listing) {
			return false
		}
	}
	return true
}

func matchesOne(f types.FilterPredicate, r types.MatchResult, listing *types.JobListing) bool {
	switch f.Field {
	case "score":
		if f.MinValue > 0 && r.FinalScore < f.MinValue {
			return false
		}
		if f.MaxValue > 0 && r.FinalScore > f.MaxValue {
			return false
		}
		return true
	case "salary":
		if f.MinValue <= 0 && f.MaxValue <= 0 {
			return true
		}
		if listing == nil {
			return false
		}
		high := listing.SalaryMax
		if high == 0 {
			high = listing.SalaryMin
		}
		// Unknown salary cannot satisfy a salary bound.
		if high == 0 {
			return false
		}
		if f.MinValue > 0 && high < f.MinValue {
			return false
		}
		if f.MaxValue > 0 && listing.SalaryMin > f.MaxValue {
			return false
		}
		return true
	case "title", "company", "location", "contract_type", "description":
		if listing == nil {
			return false
		}
		if f.Contains == "" {
			return true
		}
		return strings.Contains(strings.ToLower(listingField(listing, f.Field)), strings.ToLower(f.Contains))
	default:
		// Unknown fields never eliminate results.
		return true
	}
}

func listingField(l *types.JobListing, field string) string {
	switch field {
	case "title":
		return l.Title
	case "company":
		return l.Company
	case "location":
		return l.Location
	case "contract_type":
		return l.ContractType
	case "description":
		return l.Description
	}
	return ""
}

func listingSalary(l *types.JobListing) float64 {
	if l == nil {
		return 0
	}
	if l.SalaryMax > 0 {
		return l.SalaryMax
	}
	return l.SalaryMin
}

func listingPostedAt(l *types.JobListing) time.Time {
	if l == nil || l.PostedAt == nil {
		return time.Time{}
	}
	return *l.PostedAt
}
