package scoring

import (
	"fmt"
	"sort"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

// priorityRank orders recommendation priorities for sorting, highest first.
var priorityRank = map[string]int{
	models.PriorityCritical: 0,
	models.PriorityHigh:     1,
	models.PriorityMedium:   2,
	models.PriorityLow:      3,
}

type recommendationRule struct {
	priority string
	category string
	owner    string
	deadline string
	applies  func(models.StudyMetrics) bool
	action   func(models.StudyMetrics) string
}

// recommendationRules is the fixed trigger table. Each rule fires at most
// once per study; a study with no firing rules gets no recommendations.
var recommendationRules = []recommendationRule{
	{
		priority: models.PriorityCritical,
		category: "Safety",
		owner:    "Safety team",
		deadline: "within 24 hours",
		applies:  func(m models.StudyMetrics) bool { return m.SAEIssues > 0 },
		action: func(m models.StudyMetrics) string {
			return fmt.Sprintf("Reconcile %d open SAE issues against the safety database", m.SAEIssues)
		},
	},
	{
		priority: models.PriorityHigh,
		category: "Data completeness",
		owner:    "CRA",
		deadline: "within 72 hours",
		applies:  func(m models.StudyMetrics) bool { return m.MissingPagesPct > 15 },
		action: func(m models.StudyMetrics) string {
			return fmt.Sprintf("Retrieve missing CRF pages, %.1f%% of expected pages are outstanding", m.MissingPagesPct)
		},
	},
	{
		priority: models.PriorityMedium,
		category: "Visit compliance",
		owner:    "CRA",
		deadline: "within 7 days",
		applies:  func(m models.StudyMetrics) bool { return m.OverdueVisits > 10 },
		action: func(m models.StudyMetrics) string {
			return fmt.Sprintf("Schedule %d overdue subject visits", m.OverdueVisits)
		},
	},
	{
		priority: models.PriorityMedium,
		category: "Coding",
		owner:    "Data Management",
		deadline: "within 7 days",
		applies:  func(m models.StudyMetrics) bool { return m.CodingIssues > 0 },
		action: func(m models.StudyMetrics) string {
			return fmt.Sprintf("Resolve %d uncoded or query-flagged terms", m.CodingIssues)
		},
	},
	{
		priority: models.PriorityMedium,
		category: "Lab data",
		owner:    "Data Management",
		deadline: "within 7 days",
		applies:  func(m models.StudyMetrics) bool { return m.LabIssues > 10 },
		action: func(m models.StudyMetrics) string {
			return fmt.Sprintf("Reconcile %d outstanding lab issues", m.LabIssues)
		},
	},
	{
		priority: models.PriorityLow,
		category: "Edit checks",
		owner:    "Data Management",
		deadline: "within 14 days",
		applies:  func(m models.StudyMetrics) bool { return m.EDRRIssues > 20 },
		action: func(m models.StudyMetrics) string {
			return fmt.Sprintf("Review %d open edit-check discrepancies", m.EDRRIssues)
		},
	},
}

// GenerateRecommendations evaluates the rule table against one study's
// metrics and returns the firing recommendations sorted by priority, then
// category.
func GenerateRecommendations(metrics models.StudyMetrics) []models.Recommendation {
	out := make([]models.Recommendation, 0, 4)
	for _, rule := range recommendationRules {
		if !rule.applies(metrics) {
			continue
		}
		out = append(out, models.Recommendation{
			Priority: rule.priority,
			Category: rule.category,
			Action:   rule.action(metrics),
			Owner:    rule.owner,
			Deadline: rule.deadline,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := priorityRank[out[i].Priority], priorityRank[out[j].Priority]
		if ri != rj {
			return ri < rj
		}
		return out[i].Category < out[j].Category
	})
	return out
}
