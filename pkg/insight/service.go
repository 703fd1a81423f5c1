package insight

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/kafka"
	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/portfolio"
)

var (
	// ErrNoSnapshot means no refresh has published yet and nothing could be
	// restored on warm start.
	ErrNoSnapshot = errors.New("no portfolio snapshot available yet")

	ErrStudyNotFound = errors.New("study not found")
	ErrInvalidFilter = errors.New("invalid filter")
)

// StudyFilter narrows and orders the study list. Zero values mean no
// constraint.
type StudyFilter struct {
	RiskLevel string
	MinDQI    *float64
	MaxDQI    *float64
	SortBy    string
	Limit     int
}

// PortfolioOverview is the portfolio endpoint payload: the rollup without
// the per-study summaries, which GET /studies serves.
type PortfolioOverview struct {
	StudyCount        int                   `json:"study_count"`
	TotalSubjects     int                   `json:"total_subjects"`
	TotalSAEIssues    int                   `json:"total_sae_issues"`
	TotalMissingPages int                   `json:"total_missing_pages"`
	AverageDQI        float64               `json:"average_dqi"`
	RiskDistribution  map[string]int        `json:"risk_distribution"`
	TopRiskStudies    []models.TopRiskStudy `json:"top_risk_studies"`
	GeneratedAt       time.Time             `json:"generated_at"`
}

// RiskOverview is the portfolio risk view: the level histogram plus every
// study's risk figures ranked worst first.
type RiskOverview struct {
	Distribution map[string]int `json:"risk_distribution"`
	Studies      []StudyRisk    `json:"studies"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

type StudyRisk struct {
	StudyID         string             `json:"study_id"`
	StudyName       string             `json:"study_name"`
	RawScore        float64            `json:"raw_score"`
	NormalizedScore float64            `json:"normalized_score"`
	Level           string             `json:"level"`
	Breakdown       map[string]float64 `json:"breakdown"`
}

// DQIOverview is the portfolio quality view.
type DQIOverview struct {
	AverageDQI  float64    `json:"average_dqi"`
	Studies     []StudyDQI `json:"studies"`
	GeneratedAt time.Time  `json:"generated_at"`
}

type StudyDQI struct {
	StudyID    string                         `json:"study_id"`
	StudyName  string                         `json:"study_name"`
	Score      float64                        `json:"score"`
	Level      string                         `json:"level"`
	Components map[string]models.DQIComponent `json:"components"`
}

// SearchHit is one study matched by a free-text search.
type SearchHit struct {
	StudyID   string  `json:"study_id"`
	StudyName string  `json:"study_name"`
	DQIScore  float64 `json:"dqi_score"`
	RiskLevel string  `json:"risk_level"`
}

// FilterOptions feeds the UI pickers: level catalogs, the study IDs present
// in the current snapshot, and the accepted sort keys.
type FilterOptions struct {
	RiskLevels []string `json:"risk_levels"`
	DQILevels  []string `json:"dqi_levels"`
	StudyIDs   []string `json:"study_ids"`
	SortKeys   []string `json:"sort_keys"`
}

// Service is the read side of the insight API. Every query answers from the
// in-memory snapshot; Postgres and Redis only matter at publish time and on
// warm start.
type Service struct {
	snapshots *portfolio.SnapshotStore
	engine    *portfolio.Engine
	repo      *Repository
	cache     *SnapshotCache
}

func NewService(snapshots *portfolio.SnapshotStore, engine *portfolio.Engine, repo *Repository, cache *SnapshotCache) *Service {
	return &Service{
		snapshots: snapshots,
		engine:    engine,
		repo:      repo,
		cache:     cache,
	}
}

func (s *Service) snapshot() (*models.PortfolioSummary, error) {
	snap := s.snapshots.Current()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Portfolio returns the latest published portfolio rollup.
func (s *Service) Portfolio() (*PortfolioOverview, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return &PortfolioOverview{
		StudyCount:        snap.StudyCount,
		TotalSubjects:     snap.TotalSubjects,
		TotalSAEIssues:    snap.TotalSAEIssues,
		TotalMissingPages: snap.TotalMissingPages,
		AverageDQI:        snap.AverageDQI,
		RiskDistribution:  snap.RiskDistribution,
		TopRiskStudies:    snap.TopRiskStudies,
		GeneratedAt:       snap.GeneratedAt,
	}, nil
}

// Studies lists study summaries, filtered and sorted.
func (s *Service) Studies(filter StudyFilter) ([]models.StudySummary, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	out := make([]models.StudySummary, 0, len(snap.Studies))
	for _, study := range snap.Studies {
		if filter.RiskLevel != "" && !strings.EqualFold(study.Risk.Level, filter.RiskLevel) {
			continue
		}
		if filter.MinDQI != nil && study.DQI.Score < *filter.MinDQI {
			continue
		}
		if filter.MaxDQI != nil && study.DQI.Score > *filter.MaxDQI {
			continue
		}
		out = append(out, study)
	}

	switch strings.ToLower(filter.SortBy) {
	case "", "study_id":
		sort.SliceStable(out, func(i, j int) bool { return out[i].StudyID < out[j].StudyID })
	case "name":
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].StudyName != out[j].StudyName {
				return out[i].StudyName < out[j].StudyName
			}
			return out[i].StudyID < out[j].StudyID
		})
	case "risk":
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Risk.RawScore != out[j].Risk.RawScore {
				return out[i].Risk.RawScore > out[j].Risk.RawScore
			}
			return out[i].StudyID < out[j].StudyID
		})
	case "dqi":
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].DQI.Score != out[j].DQI.Score {
				return out[i].DQI.Score < out[j].DQI.Score
			}
			return out[i].StudyID < out[j].StudyID
		})
	default:
		return nil, fmt.Errorf("unknown sort key %q: %w", filter.SortBy, ErrInvalidFilter)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Study returns one study's full summary.
func (s *Service) Study(studyID string) (*models.StudySummary, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	for i := range snap.Studies {
		if snap.Studies[i].StudyID == studyID {
			return &snap.Studies[i], nil
		}
	}
	return nil, ErrStudyNotFound
}

// RiskSummary returns the risk histogram plus every study's risk figures
// ranked by raw score, worst first.
func (s *Service) RiskSummary() (*RiskOverview, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	studies := make([]StudyRisk, 0, len(snap.Studies))
	for _, study := range snap.Studies {
		studies = append(studies, StudyRisk{
			StudyID:         study.StudyID,
			StudyName:       study.StudyName,
			RawScore:        study.Risk.RawScore,
			NormalizedScore: study.Risk.NormalizedScore,
			Level:           study.Risk.Level,
			Breakdown:       study.Risk.Breakdown,
		})
	}
	sort.SliceStable(studies, func(i, j int) bool {
		if studies[i].RawScore != studies[j].RawScore {
			return studies[i].RawScore > studies[j].RawScore
		}
		return studies[i].StudyID < studies[j].StudyID
	})

	return &RiskOverview{
		Distribution: snap.RiskDistribution,
		Studies:      studies,
		GeneratedAt:  snap.GeneratedAt,
	}, nil
}

// DQISummary returns the portfolio quality rollup with per-study scores
// sorted worst first.
func (s *Service) DQISummary() (*DQIOverview, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	studies := make([]StudyDQI, 0, len(snap.Studies))
	for _, study := range snap.Studies {
		studies = append(studies, StudyDQI{
			StudyID:    study.StudyID,
			StudyName:  study.StudyName,
			Score:      study.DQI.Score,
			Level:      study.DQI.Level,
			Components: study.DQI.Components,
		})
	}
	sort.SliceStable(studies, func(i, j int) bool {
		if studies[i].Score != studies[j].Score {
			return studies[i].Score < studies[j].Score
		}
		return studies[i].StudyID < studies[j].StudyID
	})

	return &DQIOverview{
		AverageDQI:  snap.AverageDQI,
		Studies:     studies,
		GeneratedAt: snap.GeneratedAt,
	}, nil
}

// Search matches studies by ID or name substring, case-insensitive.
func (s *Service) Search(query string) ([]SearchHit, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	hits := make([]SearchHit, 0)
	if query == "" {
		return hits, nil
	}
	for _, study := range snap.Studies {
		if strings.Contains(strings.ToLower(study.StudyID), query) ||
			strings.Contains(strings.ToLower(study.StudyName), query) {
			hits = append(hits, SearchHit{
				StudyID:   study.StudyID,
				StudyName: study.StudyName,
				DQIScore:  study.DQI.Score,
				RiskLevel: study.Risk.Level,
			})
		}
	}
	return hits, nil
}

// Filters enumerates accepted filter values for the API consumers. Usable
// before the first snapshot; the study ID list is just empty then.
func (s *Service) Filters() FilterOptions {
	opts := FilterOptions{
		RiskLevels: models.RiskLevels,
		DQILevels:  models.DQILevels,
		StudyIDs:   []string{},
		SortKeys:   []string{"study_id", "name", "risk", "dqi"},
	}
	if snap := s.snapshots.Current(); snap != nil {
		for _, study := range snap.Studies {
			opts.StudyIDs = append(opts.StudyIDs, study.StudyID)
		}
		sort.Strings(opts.StudyIDs)
	}
	return opts
}

// ExportCSV streams the portfolio study table as CSV.
func (s *Service) ExportCSV(w io.Writer) error {
	snap, err := s.snapshot()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"study_id", "study_name", "dqi_score", "dqi_level",
		"risk_raw", "risk_normalized", "risk_level",
		"total_subjects", "clean_percentage",
		"sae_issues", "missing_pages", "overdue_visits",
		"lab_issues", "coding_issues", "edrr_issues", "inactivated_records",
		"open_recommendations",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, study := range snap.Studies {
		m := study.Metrics
		record := []string{
			study.StudyID,
			study.StudyName,
			strconv.FormatFloat(study.DQI.Score, 'f', 2, 64),
			study.DQI.Level,
			strconv.FormatFloat(study.Risk.RawScore, 'f', 2, 64),
			strconv.FormatFloat(study.Risk.NormalizedScore, 'f', 2, 64),
			study.Risk.Level,
			strconv.Itoa(m.TotalSubjects),
			strconv.FormatFloat(study.CleanPatients.CleanPercentage, 'f', 2, 64),
			strconv.Itoa(m.SAEIssues),
			strconv.Itoa(m.MissingPages),
			strconv.Itoa(m.OverdueVisits),
			strconv.Itoa(m.LabIssues),
			strconv.Itoa(m.CodingIssues),
			strconv.Itoa(m.EDRRIssues),
			strconv.Itoa(m.InactivatedRecords),
			strconv.Itoa(len(study.Recommendations)),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WarmStart restores a snapshot before the first refresh: the Redis mirror
// first, then a rebuild from persisted summaries. Missing both is not an
// error; reads stay unavailable until a refresh publishes.
func (s *Service) WarmStart(ctx context.Context) error {
	if s.snapshots.Current() != nil {
		return nil
	}

	if s.cache != nil {
		summary, err := s.cache.Load(ctx)
		if err != nil {
			logger.Log.WithError(err).Warn("snapshot cache read failed")
		} else if summary != nil {
			s.snapshots.Publish(summary)
			logger.Log.Info("Portfolio snapshot restored from cache")
			return nil
		}
	}

	if s.repo != nil {
		summaries, err := s.repo.ListSummaries(ctx)
		if err != nil {
			return fmt.Errorf("loading persisted summaries: %w", err)
		}
		if len(summaries) > 0 {
			s.snapshots.Publish(s.engine.BuildPortfolio(summaries))
			logger.Log.WithField("studies", len(summaries)).Info("Portfolio snapshot rebuilt from warehouse")
		}
	}
	return nil
}

// PersistHook mirrors each published snapshot's study summaries to Postgres.
func PersistHook(repo *Repository) portfolio.PublishHook {
	return func(ctx context.Context, summary *models.PortfolioSummary) {
		if err := repo.ReplaceSummaries(ctx, summary.Studies); err != nil {
			logger.Log.WithError(err).Error("failed to persist study summaries")
		}
	}
}

// CacheHook mirrors each published snapshot to Redis.
func CacheHook(cache *SnapshotCache) portfolio.PublishHook {
	return func(ctx context.Context, summary *models.PortfolioSummary) {
		if err := cache.Store(ctx, summary); err != nil {
			logger.Log.WithError(err).Warn("failed to cache portfolio snapshot")
		}
	}
}

// EventHook announces each published snapshot on the bus.
func EventHook(producer *kafka.Producer) portfolio.PublishHook {
	return func(ctx context.Context, summary *models.PortfolioSummary) {
		_ = producer.PublishEvent(ctx, "refresh.completed", "insight-service", map[string]interface{}{
			"study_count":  summary.StudyCount,
			"average_dqi":  summary.AverageDQI,
			"generated_at": summary.GeneratedAt.Format(time.RFC3339),
		})
	}
}
