package scoring

import (
	"math"
	"testing"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

func allSources() models.SourceAvailability {
	return models.SourceAvailability{
		EDC:          true,
		MissingPages: true,
		SAE:          true,
		Visits:       true,
		Labs:         true,
		Coding:       true,
		EDRR:         true,
		Inactivated:  true,
	}
}

func TestDQIPristineStudy(t *testing.T) {
	calc := NewDQICalculator(DefaultConfig())
	metrics := models.StudyMetrics{
		TotalSubjects: 100,
		CleanCRFPct:   100,
	}

	dqi := calc.Score(metrics, allSources())
	if dqi.Score != 100 {
		t.Fatalf("expected score 100 for pristine study, got %.2f", dqi.Score)
	}
	if dqi.Level != models.DQIExcellent {
		t.Errorf("expected level Excellent, got %s", dqi.Level)
	}
	if len(dqi.Components) != 5 {
		t.Errorf("expected 5 components, got %d", len(dqi.Components))
	}
}

func TestDQIWeightedComposite(t *testing.T) {
	calc := NewDQICalculator(DefaultConfig())
	metrics := models.StudyMetrics{
		TotalSubjects:      100,
		OverdueVisits:      10,
		CleanCRFPct:        80,
		InactivatedRecords: 5,
		CodingIssues:       20,
		MissingPagesPct:    12,
	}

	dqi := calc.Score(metrics, allSources())

	// 90*.30 + 80*.25 + 95*.20 + 80*.15 + 88*.10 = 86.8
	if math.Abs(dqi.Score-86.8) > 0.001 {
		t.Fatalf("expected composite 86.80, got %.2f", dqi.Score)
	}
	if dqi.Level != models.DQIGood {
		t.Errorf("expected level Good, got %s", dqi.Level)
	}

	want := map[string]float64{
		ComponentVisitCompleteness:  90,
		ComponentQueryResolution:    80,
		ComponentSDVStatus:          95,
		ComponentCodingCompleteness: 80,
		ComponentFormSignatures:     88,
	}
	for name, score := range want {
		comp, ok := dqi.Components[name]
		if !ok {
			t.Fatalf("missing component %s", name)
		}
		if math.Abs(comp.Score-score) > 0.001 {
			t.Errorf("%s: expected score %.2f, got %.2f", name, score, comp.Score)
		}
		if !comp.Available {
			t.Errorf("%s: expected available", name)
		}
	}
}

func TestDQIMissingSourceRenormalizes(t *testing.T) {
	calc := NewDQICalculator(DefaultConfig())
	metrics := models.StudyMetrics{
		TotalSubjects:      100,
		OverdueVisits:      10,
		CleanCRFPct:        80,
		InactivatedRecords: 5,
		CodingIssues:       20,
		MissingPagesPct:    12,
	}
	sources := allSources()
	sources.Coding = false

	dqi := calc.Score(metrics, sources)

	// (27 + 20 + 19 + 8.8) / 0.85 = 88.0
	if math.Abs(dqi.Score-88.0) > 0.001 {
		t.Fatalf("expected renormalized composite 88.00, got %.2f", dqi.Score)
	}

	coding := dqi.Components[ComponentCodingCompleteness]
	if coding.Available {
		t.Error("coding component should be flagged unavailable")
	}
	if coding.Weight != 0 {
		t.Errorf("unavailable component should carry zero weight, got %.4f", coding.Weight)
	}
	if coding.Score != 50 {
		t.Errorf("unavailable component should score at the neutral midpoint, got %.2f", coding.Score)
	}

	sum := 0.0
	for _, comp := range dqi.Components {
		sum += comp.Weight
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("effective weights should sum to 1.0, got %.8f", sum)
	}
}

func TestDQIAllSourcesMissing(t *testing.T) {
	calc := NewDQICalculator(DefaultConfig())

	dqi := calc.Score(models.StudyMetrics{TotalSubjects: 50}, models.SourceAvailability{})

	if dqi.Score != 50 {
		t.Fatalf("expected neutral composite 50, got %.2f", dqi.Score)
	}
	if dqi.Level != models.DQIPoor {
		t.Errorf("expected level Poor at 50, got %s", dqi.Level)
	}

	sum := 0.0
	for name, comp := range dqi.Components {
		if comp.Available {
			t.Errorf("%s: expected unavailable", name)
		}
		if comp.Score != 50 {
			t.Errorf("%s: expected neutral score 50, got %.2f", name, comp.Score)
		}
		sum += comp.Weight
	}
	// All sources missing keeps the configured weights.
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("configured weights should sum to 1.0, got %.8f", sum)
	}
}

func TestDQILabsDoNotAffectIndex(t *testing.T) {
	calc := NewDQICalculator(DefaultConfig())
	metrics := models.StudyMetrics{
		TotalSubjects: 40,
		CleanCRFPct:   90,
		LabIssues:     500,
	}

	withLabs := calc.Score(metrics, allSources())
	noLabs := allSources()
	noLabs.Labs = false
	withoutLabs := calc.Score(metrics, noLabs)

	if withLabs.Score != withoutLabs.Score {
		t.Fatalf("labs availability changed the index: %.2f vs %.2f", withLabs.Score, withoutLabs.Score)
	}
}

func TestDQIComponentClamping(t *testing.T) {
	calc := NewDQICalculator(DefaultConfig())
	metrics := models.StudyMetrics{
		TotalSubjects: 10,
		OverdueVisits: 25, // more overdue visits than subjects
		CleanCRFPct:   100,
	}

	dqi := calc.Score(metrics, allSources())
	if got := dqi.Components[ComponentVisitCompleteness].Score; got != 0 {
		t.Errorf("expected visit completeness clamped to 0, got %.2f", got)
	}
}

func TestDQIZeroSubjects(t *testing.T) {
	calc := NewDQICalculator(DefaultConfig())
	metrics := models.StudyMetrics{
		TotalSubjects: 0,
		CleanCRFPct:   100,
	}

	dqi := calc.Score(metrics, allSources())
	if got := dqi.Components[ComponentVisitCompleteness].Score; got != 100 {
		t.Errorf("expected visit completeness 100 with no subjects, got %.2f", got)
	}
	if got := dqi.Components[ComponentSDVStatus].Score; got != 100 {
		t.Errorf("expected sdv status 100 with no subjects, got %.2f", got)
	}
}

func TestDQILevelBands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, models.DQIExcellent},
		{90, models.DQIExcellent},
		{89.99, models.DQIGood},
		{75, models.DQIGood},
		{74.99, models.DQIFair},
		{60, models.DQIFair},
		{59.99, models.DQIPoor},
		{40, models.DQIPoor},
		{39.99, models.DQICritical},
		{0, models.DQICritical},
	}

	for _, tt := range tests {
		if got := DQILevel(tt.score); got != tt.want {
			t.Errorf("DQILevel(%.2f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
