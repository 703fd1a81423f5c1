package insight

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/portfolio"
	"github.com/clinsight-ai/insight/pkg/scoring"
)

func newTestEngine(t *testing.T) *portfolio.Engine {
	t.Helper()
	engine, err := portfolio.NewEngine(scoring.DefaultConfig(), 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func summaryFixture(id, name string, dqi float64, dqiLevel string, raw, normalized float64, riskLevel string) models.StudySummary {
	return models.StudySummary{
		StudyID:   id,
		StudyName: name,
		Metrics: models.StudyMetrics{
			TotalSubjects: 100,
			SAEIssues:     1,
			MissingPages:  4,
			OverdueVisits: 2,
			CodingIssues:  3,
		},
		DQI: models.DQIScore{Score: dqi, Level: dqiLevel},
		Risk: models.RiskScore{
			RawScore:        raw,
			NormalizedScore: normalized,
			Level:           riskLevel,
			Breakdown:       map[string]float64{"sae_issues": raw},
		},
		CleanPatients: models.CleanPatientStatus{
			Total:           100,
			Clean:           60,
			Dirty:           40,
			CleanPercentage: 60,
		},
		Recommendations: []models.Recommendation{
			{Priority: models.PriorityMedium, Category: "Coding", Action: "Resolve 3 open coding issues"},
		},
		RefreshedAt: time.Now().UTC(),
	}
}

func seededService(t *testing.T) (*Service, *portfolio.SnapshotStore) {
	t.Helper()
	engine := newTestEngine(t)
	snapshots := portfolio.NewSnapshotStore()
	snapshots.Publish(engine.BuildPortfolio([]models.StudySummary{
		summaryFixture("ST-ALPHA", "Alpha Trial", 92.5, models.DQIExcellent, 10, 12.5, models.RiskLow),
		summaryFixture("ST-BRAVO", "Bravo Oncology", 58.0, models.DQIPoor, 70, 87.5, models.RiskCritical),
		summaryFixture("ST-CHARLIE", "Charlie Extension", 76.0, models.DQIGood, 50, 62.5, models.RiskHigh),
	}))
	return NewService(snapshots, engine, nil, nil), snapshots
}

func TestServiceRequiresSnapshot(t *testing.T) {
	service := NewService(portfolio.NewSnapshotStore(), newTestEngine(t), nil, nil)

	if _, err := service.Portfolio(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Portfolio err = %v, want ErrNoSnapshot", err)
	}
	if _, err := service.Studies(StudyFilter{}); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Studies err = %v, want ErrNoSnapshot", err)
	}
	if _, err := service.Study("ST-ALPHA"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Study err = %v, want ErrNoSnapshot", err)
	}
	if _, err := service.RiskSummary(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("RiskSummary err = %v, want ErrNoSnapshot", err)
	}
	if err := service.ExportCSV(&bytes.Buffer{}); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("ExportCSV err = %v, want ErrNoSnapshot", err)
	}
}

func TestStudiesDefaultOrder(t *testing.T) {
	service, _ := seededService(t)

	studies, err := service.Studies(StudyFilter{})
	if err != nil {
		t.Fatalf("Studies: %v", err)
	}
	if len(studies) != 3 {
		t.Fatalf("expected 3 studies, got %d", len(studies))
	}
	for i, want := range []string{"ST-ALPHA", "ST-BRAVO", "ST-CHARLIE"} {
		if studies[i].StudyID != want {
			t.Errorf("studies[%d] = %s, want %s", i, studies[i].StudyID, want)
		}
	}
}

func TestStudiesFilterByRiskLevel(t *testing.T) {
	service, _ := seededService(t)

	studies, err := service.Studies(StudyFilter{RiskLevel: "critical"})
	if err != nil {
		t.Fatalf("Studies: %v", err)
	}
	if len(studies) != 1 || studies[0].StudyID != "ST-BRAVO" {
		t.Fatalf("expected only ST-BRAVO, got %+v", studies)
	}
}

func TestStudiesFilterByDQIRange(t *testing.T) {
	service, _ := seededService(t)

	min, max := 60.0, 95.0
	studies, err := service.Studies(StudyFilter{MinDQI: &min, MaxDQI: &max})
	if err != nil {
		t.Fatalf("Studies: %v", err)
	}
	if len(studies) != 2 {
		t.Fatalf("expected 2 studies in range, got %d", len(studies))
	}
	if studies[0].StudyID != "ST-ALPHA" || studies[1].StudyID != "ST-CHARLIE" {
		t.Fatalf("unexpected studies in range: %s, %s", studies[0].StudyID, studies[1].StudyID)
	}
}

func TestStudiesSortByRisk(t *testing.T) {
	service, _ := seededService(t)

	studies, err := service.Studies(StudyFilter{SortBy: "risk"})
	if err != nil {
		t.Fatalf("Studies: %v", err)
	}
	for i, want := range []string{"ST-BRAVO", "ST-CHARLIE", "ST-ALPHA"} {
		if studies[i].StudyID != want {
			t.Errorf("risk sort [%d] = %s, want %s", i, studies[i].StudyID, want)
		}
	}
}

func TestStudiesSortByDQIWorstFirst(t *testing.T) {
	service, _ := seededService(t)

	studies, err := service.Studies(StudyFilter{SortBy: "dqi"})
	if err != nil {
		t.Fatalf("Studies: %v", err)
	}
	for i, want := range []string{"ST-BRAVO", "ST-CHARLIE", "ST-ALPHA"} {
		if studies[i].StudyID != want {
			t.Errorf("dqi sort [%d] = %s, want %s", i, studies[i].StudyID, want)
		}
	}
}

func TestStudiesRejectsUnknownSort(t *testing.T) {
	service, _ := seededService(t)

	_, err := service.Studies(StudyFilter{SortBy: "enrollment"})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("err = %v, want ErrInvalidFilter", err)
	}
}

func TestStudiesLimit(t *testing.T) {
	service, _ := seededService(t)

	studies, err := service.Studies(StudyFilter{SortBy: "risk", Limit: 1})
	if err != nil {
		t.Fatalf("Studies: %v", err)
	}
	if len(studies) != 1 || studies[0].StudyID != "ST-BRAVO" {
		t.Fatalf("expected top risk study only, got %+v", studies)
	}
}

func TestStudyLookup(t *testing.T) {
	service, _ := seededService(t)

	study, err := service.Study("ST-CHARLIE")
	if err != nil {
		t.Fatalf("Study: %v", err)
	}
	if study.StudyName != "Charlie Extension" {
		t.Errorf("StudyName = %s", study.StudyName)
	}

	if _, err := service.Study("ST-MISSING"); !errors.Is(err, ErrStudyNotFound) {
		t.Fatalf("err = %v, want ErrStudyNotFound", err)
	}
}

func TestRiskSummary(t *testing.T) {
	service, _ := seededService(t)

	overview, err := service.RiskSummary()
	if err != nil {
		t.Fatalf("RiskSummary: %v", err)
	}
	if overview.Distribution[models.RiskCritical] != 1 ||
		overview.Distribution[models.RiskHigh] != 1 ||
		overview.Distribution[models.RiskLow] != 1 {
		t.Errorf("unexpected distribution: %v", overview.Distribution)
	}
	if len(overview.Studies) != 3 {
		t.Fatalf("expected 3 risk rows, got %d", len(overview.Studies))
	}
	for i, want := range []string{"ST-BRAVO", "ST-CHARLIE", "ST-ALPHA"} {
		if overview.Studies[i].StudyID != want {
			t.Errorf("risk rank [%d] = %s, want %s", i, overview.Studies[i].StudyID, want)
		}
	}
	if overview.Studies[0].Breakdown["sae_issues"] != 70 {
		t.Errorf("breakdown not carried through: %v", overview.Studies[0].Breakdown)
	}
}

func TestStudiesSortByName(t *testing.T) {
	engine := newTestEngine(t)
	snapshots := portfolio.NewSnapshotStore()
	snapshots.Publish(engine.BuildPortfolio([]models.StudySummary{
		summaryFixture("ST-1", "Zenith Trial", 80, models.DQIGood, 10, 12.5, models.RiskLow),
		summaryFixture("ST-2", "Aurora Trial", 80, models.DQIGood, 10, 12.5, models.RiskLow),
	}))
	service := NewService(snapshots, engine, nil, nil)

	studies, err := service.Studies(StudyFilter{SortBy: "name"})
	if err != nil {
		t.Fatalf("Studies: %v", err)
	}
	if studies[0].StudyID != "ST-2" || studies[1].StudyID != "ST-1" {
		t.Fatalf("name sort order: %s, %s", studies[0].StudyID, studies[1].StudyID)
	}
}

func TestDQISummaryWorstFirst(t *testing.T) {
	service, _ := seededService(t)

	overview, err := service.DQISummary()
	if err != nil {
		t.Fatalf("DQISummary: %v", err)
	}
	want := (92.5 + 58.0 + 76.0) / 3
	if math.Abs(overview.AverageDQI-math.Round(want*100)/100) > 0.01 {
		t.Errorf("AverageDQI = %.2f", overview.AverageDQI)
	}
	for i, id := range []string{"ST-BRAVO", "ST-CHARLIE", "ST-ALPHA"} {
		if overview.Studies[i].StudyID != id {
			t.Errorf("dqi overview [%d] = %s, want %s", i, overview.Studies[i].StudyID, id)
		}
	}
}

func TestSearch(t *testing.T) {
	service, _ := seededService(t)

	hits, err := service.Search("bravo")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].StudyID != "ST-BRAVO" {
		t.Fatalf("search by name failed: %+v", hits)
	}
	if hits[0].RiskLevel != models.RiskCritical {
		t.Errorf("hit risk level = %s", hits[0].RiskLevel)
	}

	hits, err = service.Search("st-")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("search by id prefix matched %d studies, want 3", len(hits))
	}

	hits, err = service.Search("   ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("blank query matched %d studies, want 0", len(hits))
	}
}

func TestFilterOptions(t *testing.T) {
	service, _ := seededService(t)

	opts := service.Filters()
	if len(opts.RiskLevels) != 4 {
		t.Errorf("RiskLevels = %v", opts.RiskLevels)
	}
	if len(opts.DQILevels) != 5 {
		t.Errorf("DQILevels = %v", opts.DQILevels)
	}
	if len(opts.StudyIDs) != 3 || opts.StudyIDs[0] != "ST-ALPHA" {
		t.Errorf("StudyIDs = %v", opts.StudyIDs)
	}
	if len(opts.SortKeys) != 4 {
		t.Errorf("SortKeys = %v", opts.SortKeys)
	}
}

func TestExportCSV(t *testing.T) {
	service, _ := seededService(t)

	var buf bytes.Buffer
	if err := service.ExportCSV(&buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing export: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d records", len(records))
	}
	if records[0][0] != "study_id" || records[0][2] != "dqi_score" {
		t.Errorf("unexpected header: %v", records[0])
	}

	row := records[2]
	if row[0] != "ST-BRAVO" || row[1] != "Bravo Oncology" {
		t.Errorf("unexpected row order: %v", row)
	}
	if row[2] != "58.00" {
		t.Errorf("dqi_score column = %s", row[2])
	}
	if row[6] != models.RiskCritical {
		t.Errorf("risk_level column = %s", row[6])
	}
	if row[len(row)-1] != "1" {
		t.Errorf("open_recommendations column = %s", row[len(row)-1])
	}
}

func TestWarmStartKeepsExistingSnapshot(t *testing.T) {
	service, snapshots := seededService(t)
	before := snapshots.Current()

	if err := service.WarmStart(context.Background()); err != nil {
		t.Fatalf("WarmStart: %v", err)
	}
	if snapshots.Current() != before {
		t.Error("warm start replaced an existing snapshot")
	}
}

func TestWarmStartWithoutStoresLeavesNoSnapshot(t *testing.T) {
	service := NewService(portfolio.NewSnapshotStore(), newTestEngine(t), nil, nil)

	if err := service.WarmStart(context.Background()); err != nil {
		t.Fatalf("WarmStart: %v", err)
	}
	if _, err := service.Portfolio(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot after empty warm start, got %v", err)
	}
}
