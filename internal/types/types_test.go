package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortMatchResults(t *testing.T) {
	results := []MatchResult{
		{ListingID: "c", FinalScore: 70, SimilarityPct: 70},
		{ListingID: "b", FinalScore: 90, SimilarityPct: 60},
		{ListingID: "a", FinalScore: 70, SimilarityPct: 80},
		{ListingID: "e", FinalScore: 70, SimilarityPct: 70},
	}

	SortMatchResults(results)

	// Final score first, then similarity, then id.
	assert.Equal(t, "b", results[0].ListingID)
	assert.Equal(t, "a", results[1].ListingID)
	assert.Equal(t, "c", results[2].ListingID)
	assert.Equal(t, "e", results[3].ListingID)
}

func TestDedupeSkills(t *testing.T) {
	got := DedupeSkills([]string{"Go", "  ", "go", "Python", "GO", "python", "Kafka"})
	assert.Equal(t, []string{"Go", "Python", "Kafka"}, got)
}

func TestSummaryText(t *testing.T) {
	t.Run("empty profile renders empty", func(t *testing.T) {
		p := &ResumeProfile{}
		assert.Empty(t, p.SummaryText())
	})

	t.Run("includes titles skills and experience", func(t *testing.T) {
		p := &ResumeProfile{
			TargetTitles: []string{"Backend Engineer"},
			Skills:       []string{"Go", "MySQL"},
			Experience: []ExperienceEntry{
				{Title: "Engineer", Organization: "Acme", Duration: "2y", Description: "Built APIs."},
			},
			Preferences: Preferences{Location: "Berlin"},
		}
		text := p.SummaryText()
		assert.Contains(t, text, "Backend Engineer")
		assert.Contains(t, text, "Go, MySQL")
		assert.Contains(t, text, "Engineer at Acme (2y). Built APIs.")
		assert.Contains(t, text, "Preferred location: Berlin")
	})
}

func TestRefinementDirectiveActionable(t *testing.T) {
	var nilDirective *RefinementDirective
	assert.False(t, nilDirective.Actionable())
	assert.False(t, (&RefinementDirective{}).Actionable())
	assert.True(t, (&RefinementDirective{SortBy: SortBySalary}).Actionable())
	assert.True(t, (&RefinementDirective{Filters: []FilterPredicate{{Field: "location"}}}).Actionable())
}
