package scoring

import (
	"math"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

// componentSources maps each DQI component to the extract source it reads.
// Labs and EDRR extracts feed the risk score only.
var componentSources = map[string]string{
	ComponentVisitCompleteness:  models.SourceVisits,
	ComponentQueryResolution:    models.SourceEDC,
	ComponentSDVStatus:          models.SourceInactivated,
	ComponentCodingCompleteness: models.SourceCoding,
	ComponentFormSignatures:     models.SourceMissingPages,
}

// DQICalculator derives the composite Data Quality Index from reduced study
// metrics. Missing sources score at the neutral midpoint with zero effective
// weight, and the remaining weights are renormalized so they still sum to 1.
type DQICalculator struct {
	weights map[string]float64
	neutral float64
}

func NewDQICalculator(cfg *Config) *DQICalculator {
	return &DQICalculator{
		weights: cfg.DQI.Weights,
		neutral: cfg.DQI.NeutralScore,
	}
}

func (c *DQICalculator) Score(metrics models.StudyMetrics, sources models.SourceAvailability) models.DQIScore {
	components := make(map[string]models.DQIComponent, len(c.weights))

	availableWeight := 0.0
	for name, w := range c.weights {
		if sources.Available(componentSources[name]) {
			availableWeight += w
		}
	}

	// Every backing source absent: score the whole index at the neutral
	// midpoint, keeping the configured weights so the output still sums to 1.
	if availableWeight <= 0 {
		for name, w := range c.weights {
			components[name] = models.DQIComponent{Score: c.neutral, Weight: w, Available: false}
		}
		score := round2(c.neutral)
		return models.DQIScore{Score: score, Level: DQILevel(score), Components: components}
	}

	total := 0.0
	for name, w := range c.weights {
		if !sources.Available(componentSources[name]) {
			components[name] = models.DQIComponent{Score: c.neutral, Weight: 0, Available: false}
			continue
		}
		effective := w / availableWeight
		score := round2(componentScore(name, metrics))
		components[name] = models.DQIComponent{Score: score, Weight: effective, Available: true}
		total += score * effective
	}

	score := round2(total)
	return models.DQIScore{Score: score, Level: DQILevel(score), Components: components}
}

func componentScore(name string, m models.StudyMetrics) float64 {
	switch name {
	case ComponentVisitCompleteness:
		if m.TotalSubjects <= 0 {
			return 100
		}
		return clamp(100 * float64(m.TotalSubjects-m.OverdueVisits) / float64(m.TotalSubjects))
	case ComponentQueryResolution:
		return clamp(m.CleanCRFPct)
	case ComponentSDVStatus:
		if m.TotalSubjects <= 0 {
			return 100
		}
		return clamp(100 * (1 - float64(m.InactivatedRecords)/float64(m.TotalSubjects)))
	case ComponentCodingCompleteness:
		denom := 100.0
		if d := 2 * float64(m.CodingIssues); d > denom {
			denom = d
		}
		return clamp(100 * (1 - float64(m.CodingIssues)/denom))
	case ComponentFormSignatures:
		return clamp(100 - m.MissingPagesPct)
	}
	// Unknown names are rejected by Config.Validate.
	return 0
}

// DQILevel buckets a composite score into its quality band. Boundaries are
// inclusive at the lower edge.
func DQILevel(score float64) string {
	switch {
	case score >= 90:
		return models.DQIExcellent
	case score >= 75:
		return models.DQIGood
	case score >= 60:
		return models.DQIFair
	case score >= 40:
		return models.DQIPoor
	default:
		return models.DQICritical
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
