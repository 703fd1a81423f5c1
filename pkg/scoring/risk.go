package scoring

import (
	"github.com/clinsight-ai/insight/pkg/common/models"
)

// RiskCalculator scores operational risk as a weighted sum of issue counts.
// The raw sum is open-ended; the normalized score divides by the configured
// ceiling and caps at 100.
type RiskCalculator struct {
	weights map[string]float64
	ceiling float64
}

func NewRiskCalculator(cfg *Config) *RiskCalculator {
	return &RiskCalculator{
		weights: cfg.Risk.Weights,
		ceiling: cfg.Risk.Ceiling,
	}
}

func (c *RiskCalculator) Score(metrics models.StudyMetrics) models.RiskScore {
	breakdown := make(map[string]float64, len(c.weights))

	raw := 0.0
	for factor, w := range c.weights {
		contribution := w * float64(factorCount(factor, metrics))
		breakdown[factor] = round2(contribution)
		raw += contribution
	}

	normalized := raw / c.ceiling * 100
	if normalized > 100 {
		normalized = 100
	}

	normalized = round2(normalized)
	return models.RiskScore{
		RawScore:        round2(raw),
		NormalizedScore: normalized,
		Level:           RiskLevel(normalized),
		Breakdown:       breakdown,
	}
}

func factorCount(factor string, m models.StudyMetrics) int {
	switch factor {
	case FactorSAEIssues:
		return m.SAEIssues
	case FactorMissingPages:
		return m.MissingPages
	case FactorOverdueVisits:
		return m.OverdueVisits
	case FactorLabIssues:
		return m.LabIssues
	case FactorCodingIssues:
		return m.CodingIssues
	case FactorEDRRIssues:
		return m.EDRRIssues
	case FactorInactivatedRecords:
		return m.InactivatedRecords
	}
	return 0
}

// RiskLevel buckets a normalized risk score into its severity band.
func RiskLevel(normalized float64) string {
	switch {
	case normalized >= 80:
		return models.RiskCritical
	case normalized >= 60:
		return models.RiskHigh
	case normalized >= 35:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
