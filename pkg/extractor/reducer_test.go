package extractor

import (
	"math"
	"testing"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"gorm.io/datatypes"
)

func row(studyID, source string, payload map[string]interface{}) ExtractRow {
	return ExtractRow{
		StudyID: studyID,
		Source:  source,
		Payload: datatypes.JSONMap(payload),
	}
}

func TestReduceSingleStudy(t *testing.T) {
	rows := []ExtractRow{
		row("ST-01", models.SourceEDC, map[string]interface{}{
			"study_name": "Phase III Hypertension", "subject_id": "S001", "site_id": "site-01", "clean": true,
		}),
		row("ST-01", models.SourceEDC, map[string]interface{}{
			"subject_id": "S002", "site_id": "site-01", "open_queries": float64(3),
		}),
		row("ST-01", models.SourceEDC, map[string]interface{}{
			"subject_id": "S003", "site_id": "site-02", "clean": true, "pending_sdv": true,
		}),
		row("ST-01", models.SourceEDC, map[string]interface{}{
			"subject_id": "S004", "site_id": "site-02", "clean": true,
		}),
		row("ST-01", models.SourceMissingPages, map[string]interface{}{
			"subject_id": "S002", "pages": float64(5),
		}),
		row("ST-01", models.SourceSAE, map[string]interface{}{"issue_id": "SAE-1"}),
		row("ST-01", models.SourceSAE, map[string]interface{}{"issue_id": "SAE-2"}),
		row("ST-01", models.SourceVisits, map[string]interface{}{"subject_id": "S002"}),
		row("ST-01", models.SourceLabs, map[string]interface{}{}),
		row("ST-01", models.SourceLabs, map[string]interface{}{}),
		row("ST-01", models.SourceLabs, map[string]interface{}{}),
		row("ST-01", models.SourceCoding, map[string]interface{}{"subject_id": "S004"}),
		row("ST-01", models.SourceEDRR, map[string]interface{}{}),
		row("ST-01", models.SourceInactivated, map[string]interface{}{"subject_id": "S003"}),
	}

	inputs := Reduce(rows)
	if len(inputs) != 1 {
		t.Fatalf("expected 1 study, got %d", len(inputs))
	}

	input := inputs[0]
	if input.StudyID != "ST-01" || input.StudyName != "Phase III Hypertension" {
		t.Errorf("unexpected identity: %s / %s", input.StudyID, input.StudyName)
	}

	m := input.Metrics
	if m.TotalSubjects != 4 || m.SiteCount != 2 {
		t.Errorf("expected 4 subjects over 2 sites, got %d/%d", m.TotalSubjects, m.SiteCount)
	}
	if m.CleanCRFPct != 75 {
		t.Errorf("expected clean CRF 75%%, got %.2f", m.CleanCRFPct)
	}
	if m.MissingPages != 5 {
		t.Errorf("expected 5 missing pages, got %d", m.MissingPages)
	}
	// 5 of 80 expected pages.
	if math.Abs(m.MissingPagesPct-6.25) > 0.001 {
		t.Errorf("expected missing pages pct 6.25, got %.2f", m.MissingPagesPct)
	}
	if m.SAEIssues != 2 || m.OverdueVisits != 1 || m.LabIssues != 3 ||
		m.CodingIssues != 1 || m.EDRRIssues != 1 || m.InactivatedRecords != 1 {
		t.Errorf("unexpected issue counts: %+v", m)
	}

	for source, available := range input.Sources.Map() {
		if !available {
			t.Errorf("source %s should be available", source)
		}
	}

	if len(input.Subjects) != 4 {
		t.Fatalf("expected 4 subject records, got %d", len(input.Subjects))
	}
	for i, want := range []string{"S001", "S002", "S003", "S004"} {
		if input.Subjects[i].SubjectID != want {
			t.Fatalf("subjects not sorted: got %s at %d", input.Subjects[i].SubjectID, i)
		}
	}

	s2 := input.Subjects[1]
	if s2.OpenQueries != 3 || s2.MissingPages != 5 {
		t.Errorf("S002 flags wrong: %+v", s2)
	}
	s3 := input.Subjects[2]
	if !s3.PendingSDV || !s3.Inactivated {
		t.Errorf("S003 flags wrong: %+v", s3)
	}
	s4 := input.Subjects[3]
	if !s4.PendingCoding {
		t.Errorf("S004 should be pending coding: %+v", s4)
	}
	if input.Subjects[0].HasOpenIssue() {
		t.Errorf("S001 should be clean: %+v", input.Subjects[0])
	}
}

func TestReduceSortsStudies(t *testing.T) {
	rows := []ExtractRow{
		row("ST-B", models.SourceSAE, map[string]interface{}{}),
		row("ST-A", models.SourceSAE, map[string]interface{}{}),
	}

	inputs := Reduce(rows)
	if len(inputs) != 2 {
		t.Fatalf("expected 2 studies, got %d", len(inputs))
	}
	if inputs[0].StudyID != "ST-A" || inputs[1].StudyID != "ST-B" {
		t.Errorf("studies not sorted: %s, %s", inputs[0].StudyID, inputs[1].StudyID)
	}
}

func TestReduceTracksAvailability(t *testing.T) {
	rows := []ExtractRow{
		row("ST-01", models.SourceEDC, map[string]interface{}{"subject_id": "S001"}),
		row("ST-01", models.SourceSAE, map[string]interface{}{}),
	}

	input := Reduce(rows)[0]
	if !input.Sources.EDC || !input.Sources.SAE {
		t.Error("edc and sae should be available")
	}
	if input.Sources.Labs || input.Sources.Coding || input.Sources.Visits {
		t.Error("absent sources should stay unavailable")
	}
}

func TestReduceMissingPagesPctCaps(t *testing.T) {
	rows := []ExtractRow{
		row("ST-01", models.SourceEDC, map[string]interface{}{"subject_id": "S001"}),
		row("ST-01", models.SourceMissingPages, map[string]interface{}{"subject_id": "S001", "pages": float64(50)}),
	}

	m := Reduce(rows)[0].Metrics
	// 50 missing of 20 expected pages caps at 100.
	if m.MissingPagesPct != 100 {
		t.Errorf("expected pct capped at 100, got %.2f", m.MissingPagesPct)
	}
}

func TestReduceMissingPagesDefaultOnePerRow(t *testing.T) {
	rows := []ExtractRow{
		row("ST-01", models.SourceMissingPages, map[string]interface{}{"subject_id": "S001"}),
		row("ST-01", models.SourceMissingPages, map[string]interface{}{"subject_id": "S001"}),
	}

	m := Reduce(rows)[0].Metrics
	if m.MissingPages != 2 {
		t.Errorf("expected 2 missing pages, got %d", m.MissingPages)
	}
}

func TestReduceRosterWithoutEDC(t *testing.T) {
	rows := []ExtractRow{
		row("ST-01", models.SourceCoding, map[string]interface{}{"subject_id": "S010"}),
		row("ST-01", models.SourceInactivated, map[string]interface{}{"subject_id": "S011"}),
	}

	input := Reduce(rows)[0]
	if input.Metrics.TotalSubjects != 2 {
		t.Errorf("expected roster of 2 from issue sources, got %d", input.Metrics.TotalSubjects)
	}
	if input.Metrics.CleanCRFPct != 0 {
		t.Errorf("expected clean CRF 0 without edc, got %.2f", input.Metrics.CleanCRFPct)
	}
	if input.Sources.EDC {
		t.Error("edc should be unavailable")
	}
}

func TestReduceStudyNameFallsBackToID(t *testing.T) {
	rows := []ExtractRow{
		row("ST-77", models.SourceLabs, map[string]interface{}{}),
	}

	input := Reduce(rows)[0]
	if input.StudyName != "ST-77" {
		t.Errorf("expected name fallback to id, got %s", input.StudyName)
	}
}

func TestReduceCoercesNumericStrings(t *testing.T) {
	rows := []ExtractRow{
		row("ST-01", models.SourceEDC, map[string]interface{}{
			"subject_id": "S001", "open_queries": "4", "clean": "yes",
		}),
	}

	input := Reduce(rows)[0]
	if input.Subjects[0].OpenQueries != 4 {
		t.Errorf("expected open queries 4 from string, got %d", input.Subjects[0].OpenQueries)
	}
	if input.Metrics.CleanCRFPct != 100 {
		t.Errorf("expected clean CRF 100 from yes flag, got %.2f", input.Metrics.CleanCRFPct)
	}
}
