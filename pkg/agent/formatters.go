package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

// listCap bounds every ranked list an answer renders.
const listCap = 5

func formatRisk(snap *models.PortfolioSummary, study *models.StudySummary) string {
	if study == nil {
		if len(snap.TopRiskStudies) == 0 {
			return "No studies have been scored yet."
		}
		var b strings.Builder
		b.WriteString("**Portfolio risk ranking**\n")
		for i, top := range snap.TopRiskStudies {
			if i >= listCap {
				break
			}
			fmt.Fprintf(&b, "%d. %s (%s): %s, normalized %.1f\n",
				i+1, top.StudyID, top.StudyName, top.Level, top.NormalizedScore)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s (%s)**\n", study.StudyID, study.StudyName)
	fmt.Fprintf(&b, "Risk level: **%s** (normalized %.1f, raw %.1f)\n",
		study.Risk.Level, study.Risk.NormalizedScore, study.Risk.RawScore)

	contributions := sortedContributions(study.Risk.Breakdown)
	if len(contributions) == 0 {
		b.WriteString("No factors are contributing to the risk score.")
		return b.String()
	}
	b.WriteString("Top contributing factors:\n")
	for i, c := range contributions {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "- %s: %.1f\n", c.name, c.value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDQI(snap *models.PortfolioSummary, study *models.StudySummary) string {
	if study == nil {
		if len(snap.Studies) == 0 {
			return "No studies have been scored yet."
		}
		ranked := make([]models.StudySummary, len(snap.Studies))
		copy(ranked, snap.Studies)
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].DQI.Score != ranked[j].DQI.Score {
				return ranked[i].DQI.Score < ranked[j].DQI.Score
			}
			return ranked[i].StudyID < ranked[j].StudyID
		})

		var b strings.Builder
		fmt.Fprintf(&b, "**Portfolio DQI**: average %.2f across %d studies\n", snap.AverageDQI, snap.StudyCount)
		b.WriteString("Lowest scoring studies:\n")
		for i, s := range ranked {
			if i >= listCap {
				break
			}
			fmt.Fprintf(&b, "- %s (%s): %.2f %s\n", s.StudyID, s.StudyName, s.DQI.Score, s.DQI.Level)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s (%s)**\n", study.StudyID, study.StudyName)
	fmt.Fprintf(&b, "DQI: **%.2f** (%s)\n", study.DQI.Score, study.DQI.Level)

	names := make([]string, 0, len(study.DQI.Components))
	for name := range study.DQI.Components {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := study.DQI.Components[names[i]], study.DQI.Components[names[j]]
		if ci.Score != cj.Score {
			return ci.Score < cj.Score
		}
		return names[i] < names[j]
	})
	if len(names) > 0 {
		b.WriteString("Components, weakest first:\n")
		for _, name := range names {
			component := study.DQI.Components[name]
			if component.Available {
				fmt.Fprintf(&b, "- %s: %.2f (weight %.2f)\n", name, component.Score, component.Weight)
			} else {
				fmt.Fprintf(&b, "- %s: no data, neutral %.0f\n", name, component.Score)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRecommendations(snap *models.PortfolioSummary, study *models.StudySummary) string {
	if study == nil {
		flagged := make([]models.StudySummary, 0)
		for _, s := range snap.Studies {
			for _, rec := range s.Recommendations {
				if rec.Priority == models.PriorityCritical || rec.Priority == models.PriorityHigh {
					flagged = append(flagged, s)
					break
				}
			}
		}
		if len(flagged) == 0 {
			return "No studies currently carry critical or high priority recommendations."
		}
		var b strings.Builder
		b.WriteString("Studies with high-priority recommendations:\n")
		for i, s := range flagged {
			if i >= listCap {
				break
			}
			fmt.Fprintf(&b, "- %s (%s): %d open\n", s.StudyID, s.StudyName, len(s.Recommendations))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if len(study.Recommendations) == 0 {
		return fmt.Sprintf("No open recommendations for %s (%s).", study.StudyID, study.StudyName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Recommendations for %s (%s)**\n", study.StudyID, study.StudyName)
	for _, rec := range study.Recommendations {
		fmt.Fprintf(&b, "- [%s] %s: %s (owner: %s, due %s)\n",
			rec.Priority, rec.Category, rec.Action, rec.Owner, rec.Deadline)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCleanPatients(snap *models.PortfolioSummary, study *models.StudySummary) string {
	if study == nil {
		ids := make([]string, 0, len(snap.Studies))
		for _, s := range snap.Studies {
			ids = append(ids, s.StudyID)
		}
		sort.Strings(ids)
		if len(ids) > listCap {
			ids = ids[:listCap]
		}
		if len(ids) == 0 {
			return "No studies have been scored yet."
		}
		return "Name a study to get clean-patient figures. Known studies: " + strings.Join(ids, ", ") + "."
	}

	status := study.CleanPatients
	return fmt.Sprintf("**%s (%s)**\n%d of %d subjects are clean (%.2f%%); %d carry open issues.",
		study.StudyID, study.StudyName, status.Clean, status.Total, status.CleanPercentage, status.Dirty)
}

func formatPortfolio(snap *models.PortfolioSummary, _ *models.StudySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Portfolio**: %d studies, %d subjects\n", snap.StudyCount, snap.TotalSubjects)
	fmt.Fprintf(&b, "Average DQI: %.2f\n", snap.AverageDQI)
	fmt.Fprintf(&b, "Open SAE issues: %d, missing pages: %d\n", snap.TotalSAEIssues, snap.TotalMissingPages)
	b.WriteString("Risk distribution:\n")
	for _, level := range models.RiskLevels {
		fmt.Fprintf(&b, "- %s: %d\n", level, snap.RiskDistribution[level])
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHelp(_ *models.PortfolioSummary, _ *models.StudySummary) string {
	return strings.Join([]string{
		"I answer questions about the latest portfolio snapshot. Try:",
		"- \"how risky is ST-001\" or \"which studies are riskiest\"",
		"- \"what is the DQI for ST-001\" or \"lowest quality studies\"",
		"- \"recommendations for ST-001\"",
		"- \"clean patients in ST-001\"",
		"- \"portfolio overview\"",
	}, "\n")
}

type contribution struct {
	name  string
	value float64
}

func sortedContributions(breakdown map[string]float64) []contribution {
	out := make([]contribution, 0, len(breakdown))
	for name, value := range breakdown {
		if value <= 0 {
			continue
		}
		out = append(out, contribution{name: name, value: value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].name < out[j].name
	})
	return out
}
