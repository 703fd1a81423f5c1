package scoring

import (
	"strings"
	"testing"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

func TestRecommendationsCleanStudy(t *testing.T) {
	recs := GenerateRecommendations(models.StudyMetrics{TotalSubjects: 100, CleanCRFPct: 100})
	if len(recs) != 0 {
		t.Fatalf("expected no recommendations for a clean study, got %d", len(recs))
	}
}

func TestRecommendationsSAE(t *testing.T) {
	recs := GenerateRecommendations(models.StudyMetrics{SAEIssues: 2})
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(recs))
	}

	rec := recs[0]
	if rec.Priority != models.PriorityCritical {
		t.Errorf("expected CRITICAL priority, got %s", rec.Priority)
	}
	if rec.Category != "Safety" {
		t.Errorf("expected Safety category, got %s", rec.Category)
	}
	if rec.Owner != "Safety team" {
		t.Errorf("expected Safety team owner, got %s", rec.Owner)
	}
	if rec.Deadline != "within 24 hours" {
		t.Errorf("expected 24 hour deadline, got %s", rec.Deadline)
	}
	if !strings.Contains(rec.Action, "2") {
		t.Errorf("action should carry the issue count: %s", rec.Action)
	}
}

func TestRecommendationsOrdering(t *testing.T) {
	metrics := models.StudyMetrics{
		SAEIssues:       1,
		MissingPagesPct: 20,
		OverdueVisits:   15,
		CodingIssues:    5,
		LabIssues:       12,
		EDRRIssues:      25,
	}

	recs := GenerateRecommendations(metrics)
	if len(recs) != 6 {
		t.Fatalf("expected all 6 rules to fire, got %d", len(recs))
	}

	wantOrder := []struct {
		priority string
		category string
	}{
		{models.PriorityCritical, "Safety"},
		{models.PriorityHigh, "Data completeness"},
		{models.PriorityMedium, "Coding"},
		{models.PriorityMedium, "Lab data"},
		{models.PriorityMedium, "Visit compliance"},
		{models.PriorityLow, "Edit checks"},
	}
	for i, want := range wantOrder {
		if recs[i].Priority != want.priority || recs[i].Category != want.category {
			t.Errorf("recs[%d] = %s/%s, want %s/%s",
				i, recs[i].Priority, recs[i].Category, want.priority, want.category)
		}
	}
}

func TestRecommendationThresholds(t *testing.T) {
	tests := []struct {
		name    string
		metrics models.StudyMetrics
		fires   bool
	}{
		{"missing pages at threshold", models.StudyMetrics{MissingPagesPct: 15}, false},
		{"missing pages above threshold", models.StudyMetrics{MissingPagesPct: 15.1}, true},
		{"overdue at threshold", models.StudyMetrics{OverdueVisits: 10}, false},
		{"overdue above threshold", models.StudyMetrics{OverdueVisits: 11}, true},
		{"no coding issues", models.StudyMetrics{CodingIssues: 0}, false},
		{"one coding issue", models.StudyMetrics{CodingIssues: 1}, true},
		{"labs at threshold", models.StudyMetrics{LabIssues: 10}, false},
		{"labs above threshold", models.StudyMetrics{LabIssues: 11}, true},
		{"edrr at threshold", models.StudyMetrics{EDRRIssues: 20}, false},
		{"edrr above threshold", models.StudyMetrics{EDRRIssues: 21}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := GenerateRecommendations(tt.metrics)
			if tt.fires && len(recs) != 1 {
				t.Errorf("expected rule to fire, got %d recommendations", len(recs))
			}
			if !tt.fires && len(recs) != 0 {
				t.Errorf("expected no rule to fire, got %d recommendations", len(recs))
			}
		})
	}
}
