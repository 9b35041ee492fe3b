// Package types holds the shared data model of the matching pipeline:
// structured resume profiles, normalized job listings, embedding vectors
// and ranked match results.
package types

import (
	"sort"
	"strings"
	"time"
)

// ExperienceEntry is one position in a candidate's work history.
type ExperienceEntry struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Duration     string `json:"duration"`
	Description  string `json:"description,omitempty"`
}

// Preferences captures the candidate's stated constraints.
type Preferences struct {
	Location  string  `json:"location,omitempty"`
	RoleType  string  `json:"role_type,omitempty"` // full-time, contract, remote...
	SalaryMin float64 `json:"salary_min,omitempty"`
	SalaryMax float64 `json:"salary_max,omitempty"`
}

// ResumeProfile is the structured representation of one uploaded resume.
// It is created once per upload and never mutated afterwards.
type ResumeProfile struct {
	Name            string            `json:"name,omitempty"`
	Email           string            `json:"email,omitempty"`
	TargetTitles    []string          `json:"target_titles"`
	Skills          []string          `json:"skills"`
	Experience      []ExperienceEntry `json:"experience"`
	Preferences     Preferences       `json:"preferences"`
	YearsExperience int               `json:"years_experience,omitempty"`
	RawText         string            `json:"-"`
}

// SummaryText renders the profile into the focused text representation
// used for embedding and LLM scoring.
func (p *ResumeProfile) SummaryText() string {
	var parts []string
	if len(p.TargetTitles) > 0 {
		parts = append(parts, "Target roles: "+strings.Join(p.TargetTitles, ", "))
	}
	if len(p.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(p.Skills, ", "))
	}
	if len(p.Experience) > 0 {
		var lines []string
		for _, exp := range p.Experience {
			line := exp.Title + " at " + exp.Organization + " (" + exp.Duration + ")"
			if exp.Description != "" {
				line += ". " + exp.Description
			}
			lines = append(lines, line)
		}
		parts = append(parts, "Work experience:\n"+strings.Join(lines, "\n"))
	}
	if p.Preferences.Location != "" {
		parts = append(parts, "Preferred location: "+p.Preferences.Location)
	}
	return strings.Join(parts, "\n\n")
}

// JobListing is one normalized job record from the external search source.
// The ID is unique per source and external id; a collection of listings
// forms the candidate set for one search.
type JobListing struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Company      string     `json:"company"`
	Location     string     `json:"location"`
	Description  string     `json:"description"`
	SalaryMin    float64    `json:"salary_min,omitempty"`
	SalaryMax    float64    `json:"salary_max,omitempty"`
	ContractType string     `json:"contract_type,omitempty"`
	SourceURL    string     `json:"source_url"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
}

// EmbeddingVector is a fixed-length vector produced by one embedding model.
// Vectors compared in one similarity query must share both dimensionality
// and originating model.
type EmbeddingVector []float64

// MatchResult is one ranked entry of a search. Results are recomputed
// wholesale; individual entries are never mutated in place.
type MatchResult struct {
	ListingID     string  `json:"listing_id"`
	SimilarityPct float64 `json:"similarity_pct"` // 0-100
	LLMScore      float64 `json:"llm_score,omitempty"`
	LLMUnscored   bool    `json:"llm_unscored,omitempty"`
	FinalScore    float64 `json:"final_score"` // fused percentage, 0-100
	Rationale     string  `json:"rationale,omitempty"`
	Rank          int     `json:"rank"`
}

// SortKey identifies a re-rank ordering a refinement may request.
type SortKey string

const (
	SortByScore  SortKey = "score"
	SortBySalary SortKey = "salary"
	SortByDate   SortKey = "date"
)

// FilterPredicate is a single field condition extracted from a
// natural-language refinement instruction.
type FilterPredicate struct {
	Field    string  `json:"field"` // location, title, company, description, salary
	Contains string  `json:"contains,omitempty"`
	MinValue float64 `json:"min_value,omitempty"`
	MaxValue float64 `json:"max_value,omitempty"`
}

// RefinementDirective is the parsed intent of a follow-up instruction.
// It is consumed immediately to produce a new result sequence.
type RefinementDirective struct {
	Filters []FilterPredicate `json:"filters,omitempty"`
	SortBy  SortKey           `json:"sort_by,omitempty"`
}

// Actionable reports whether the directive would change anything.
func (d *RefinementDirective) Actionable() bool {
	return d != nil && (len(d.Filters) > 0 || d.SortBy != "")
}

// SortMatchResults applies the deterministic result ordering: final score
// descending, similarity descending on ties, then listing id ascending.
func SortMatchResults(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].SimilarityPct != results[j].SimilarityPct {
			return results[i].SimilarityPct > results[j].SimilarityPct
		}
		return results[i].ListingID < results[j].ListingID
	})
}

// DedupeSkills removes duplicates case-insensitively while keeping first
// occurrence order.
func DedupeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
