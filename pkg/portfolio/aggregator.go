package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/scoring"
)

// InvalidMetricsError marks a study whose reduced metrics cannot be scored.
// The study is excluded from the portfolio; the rest proceed.
type InvalidMetricsError struct {
	StudyID string
	Field   string
}

func (e *InvalidMetricsError) Error() string {
	return fmt.Sprintf("study %s: invalid metrics: %s", e.StudyID, e.Field)
}

// ExcludedStudy records why a study was left out of a snapshot.
type ExcludedStudy struct {
	StudyID string `json:"study_id"`
	Reason  string `json:"reason"`
}

// Engine scores studies and folds them into portfolio snapshots. Per-study
// scoring fans out over a bounded worker pool; study order is preserved in
// the result regardless of completion order.
type Engine struct {
	cfg     *scoring.Config
	dqi     *scoring.DQICalculator
	risk    *scoring.RiskCalculator
	workers int
}

// NewEngine validates the scoring configuration up front; a *ConfigError here
// means the service must not start.
func NewEngine(cfg *scoring.Config, workers int) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		cfg:     cfg,
		dqi:     scoring.NewDQICalculator(cfg),
		risk:    scoring.NewRiskCalculator(cfg),
		workers: workers,
	}, nil
}

// AggregateStudy computes the full per-study view: DQI, risk, clean-patient
// partition, site rollup and recommendations.
func (e *Engine) AggregateStudy(input models.StudyInput) (models.StudySummary, error) {
	if err := validateMetrics(input); err != nil {
		return models.StudySummary{}, err
	}

	sites := input.Sites
	if len(sites) == 0 {
		sites = scoring.RollupSites(input.Subjects)
	}

	return models.StudySummary{
		StudyID:         input.StudyID,
		StudyName:       input.StudyName,
		Metrics:         input.Metrics,
		DQI:             e.dqi.Score(input.Metrics, input.Sources),
		Risk:            e.risk.Score(input.Metrics),
		CleanPatients:   scoring.ClassifySubjects(input.Subjects),
		Sites:           sites,
		Recommendations: scoring.GenerateRecommendations(input.Metrics),
		Sources:         input.Sources,
		RefreshedAt:     time.Now().UTC(),
	}, nil
}

// Recompute scores every input study in parallel and builds the portfolio
// summary. Studies failing validation are excluded and reported, never the
// whole batch.
func (e *Engine) Recompute(ctx context.Context, inputs []models.StudyInput) (*models.PortfolioSummary, []ExcludedStudy) {
	results := make([]*models.StudySummary, len(inputs))
	failures := make([]*ExcludedStudy, len(inputs))

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int, input models.StudyInput) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				failures[i] = &ExcludedStudy{StudyID: input.StudyID, Reason: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()

			summary, err := e.AggregateStudy(input)
			if err != nil {
				logger.WithStudy(input.StudyID).WithError(err).Warn("study excluded from portfolio")
				failures[i] = &ExcludedStudy{StudyID: input.StudyID, Reason: err.Error()}
				return
			}
			results[i] = &summary
		}(i, inputs[i])
	}
	wg.Wait()

	summaries := make([]models.StudySummary, 0, len(inputs))
	excluded := make([]ExcludedStudy, 0)
	for i := range inputs {
		if results[i] != nil {
			summaries = append(summaries, *results[i])
			continue
		}
		if failures[i] != nil {
			excluded = append(excluded, *failures[i])
		}
	}

	summary := e.BuildPortfolio(summaries)
	for i := range summary.Studies {
		summary.Studies[i].RefreshedAt = summary.GeneratedAt
	}
	return summary, excluded
}

// BuildPortfolio folds already computed study summaries into the portfolio
// view. Used by Recompute and to rebuild a snapshot from persisted summaries
// on warm start.
func (e *Engine) BuildPortfolio(summaries []models.StudySummary) *models.PortfolioSummary {
	out := &models.PortfolioSummary{
		StudyCount:       len(summaries),
		RiskDistribution: make(map[string]int, len(models.RiskLevels)),
		TopRiskStudies:   []models.TopRiskStudy{},
		Studies:          summaries,
		GeneratedAt:      time.Now().UTC(),
	}
	for _, level := range models.RiskLevels {
		out.RiskDistribution[level] = 0
	}

	dqiSum := 0.0
	for _, s := range summaries {
		out.TotalSubjects += s.Metrics.TotalSubjects
		out.TotalSAEIssues += s.Metrics.SAEIssues
		out.TotalMissingPages += s.Metrics.MissingPages
		out.RiskDistribution[s.Risk.Level]++
		dqiSum += s.DQI.Score
	}
	if len(summaries) > 0 {
		out.AverageDQI = round2(dqiSum / float64(len(summaries)))
	}

	ranked := make([]models.StudySummary, len(summaries))
	copy(ranked, summaries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Risk.RawScore != ranked[j].Risk.RawScore {
			return ranked[i].Risk.RawScore > ranked[j].Risk.RawScore
		}
		return ranked[i].StudyID < ranked[j].StudyID
	})

	limit := e.cfg.TopRiskLimit
	if limit > len(ranked) {
		limit = len(ranked)
	}
	for _, s := range ranked[:limit] {
		out.TopRiskStudies = append(out.TopRiskStudies, models.TopRiskStudy{
			StudyID:         s.StudyID,
			StudyName:       s.StudyName,
			RawScore:        s.Risk.RawScore,
			NormalizedScore: s.Risk.NormalizedScore,
			Level:           s.Risk.Level,
		})
	}

	return out
}

func validateMetrics(input models.StudyInput) error {
	m := input.Metrics
	counts := []struct {
		field string
		value int
	}{
		{"missing_pages", m.MissingPages},
		{"sae_issues", m.SAEIssues},
		{"overdue_visits", m.OverdueVisits},
		{"lab_issues", m.LabIssues},
		{"coding_issues", m.CodingIssues},
		{"edrr_issues", m.EDRRIssues},
		{"inactivated_records", m.InactivatedRecords},
		{"total_subjects", m.TotalSubjects},
		{"site_count", m.SiteCount},
	}
	for _, c := range counts {
		if c.value < 0 {
			return &InvalidMetricsError{StudyID: input.StudyID, Field: fmt.Sprintf("%s is negative", c.field)}
		}
	}

	if m.CleanCRFPct < 0 || m.CleanCRFPct > 100 {
		return &InvalidMetricsError{StudyID: input.StudyID, Field: "clean_crf_pct outside [0, 100]"}
	}
	if m.MissingPagesPct < 0 || m.MissingPagesPct > 100 {
		return &InvalidMetricsError{StudyID: input.StudyID, Field: "missing_pages_pct outside [0, 100]"}
	}

	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
