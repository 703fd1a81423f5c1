package collab

import (
	"fmt"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/google/uuid"
)

type alertRule struct {
	name     string
	severity string
	notify   string
	applies  func(models.StudySummary) bool
	message  func(models.StudySummary) string
}

// alertRules is the fixed trigger table evaluated against every published
// snapshot. Each rule fires at most once per study per snapshot; dedup
// against still-open alerts happens in the service.
var alertRules = []alertRule{
	{
		name:     "risk_critical",
		severity: models.AlertCritical,
		notify:   "pm",
		applies:  func(s models.StudySummary) bool { return s.Risk.Level == models.RiskCritical },
		message: func(s models.StudySummary) string {
			return fmt.Sprintf("%s risk level is Critical (normalized %.1f)", s.StudyID, s.Risk.NormalizedScore)
		},
	},
	{
		name:     "sae_open",
		severity: models.AlertCritical,
		notify:   "safety",
		applies:  func(s models.StudySummary) bool { return s.Metrics.SAEIssues > 0 },
		message: func(s models.StudySummary) string {
			return fmt.Sprintf("%s has %d unresolved SAE issues", s.StudyID, s.Metrics.SAEIssues)
		},
	},
	{
		name:     "dqi_low",
		severity: models.AlertWarning,
		notify:   "dm",
		applies:  func(s models.StudySummary) bool { return s.DQI.Score < 60 },
		message: func(s models.StudySummary) string {
			return fmt.Sprintf("%s DQI dropped to %.2f (%s)", s.StudyID, s.DQI.Score, s.DQI.Level)
		},
	},
	{
		name:     "visits_overdue",
		severity: models.AlertWarning,
		notify:   "cra",
		applies:  func(s models.StudySummary) bool { return s.Metrics.OverdueVisits > 20 },
		message: func(s models.StudySummary) string {
			return fmt.Sprintf("%s has %d overdue subject visits", s.StudyID, s.Metrics.OverdueVisits)
		},
	},
}

// EvaluateAlerts runs the rule table over a snapshot and returns the alert
// candidates, in snapshot study order, rules in table order.
func EvaluateAlerts(summary *models.PortfolioSummary) []models.Alert {
	now := time.Now().UTC()
	alerts := make([]models.Alert, 0)
	for _, study := range summary.Studies {
		for _, rule := range alertRules {
			if !rule.applies(study) {
				continue
			}
			alerts = append(alerts, models.Alert{
				ID:        uuid.New(),
				StudyID:   study.StudyID,
				Rule:      rule.name,
				Severity:  rule.severity,
				Message:   rule.message(study),
				CreatedAt: now,
			})
		}
	}
	return alerts
}

// FilterNew drops candidates whose study+rule pair is already open, so a
// persisting condition raises one alert until it is acknowledged.
func FilterNew(candidates []models.Alert, open map[string]struct{}) []models.Alert {
	out := make([]models.Alert, 0, len(candidates))
	for _, alert := range candidates {
		if _, exists := open[alertKey(alert.StudyID, alert.Rule)]; exists {
			continue
		}
		out = append(out, alert)
	}
	return out
}

func alertKey(studyID, rule string) string {
	return studyID + "/" + rule
}

// notifyRole returns the inbox a rule's alerts land in.
func notifyRole(rule string) string {
	for _, r := range alertRules {
		if r.name == rule {
			return r.notify
		}
	}
	return "dm"
}
