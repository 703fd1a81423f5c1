package extractor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

// expectedPagesPerSubject sizes the missing-pages denominator: the share of
// missing pages is taken against 20 expected CRF pages per enrolled subject.
const expectedPagesPerSubject = 20

type subjectState struct {
	record models.SubjectRecord
	hasEDC bool
	clean  bool
}

type studyState struct {
	id       string
	name     string
	sources  models.SourceAvailability
	subjects map[string]*subjectState
	siteIDs  map[string]struct{}

	missingPages  int
	saeIssues     int
	overdueVisits int
	labIssues     int
	codingIssues  int
	edrrIssues    int
	inactivated   int
}

// Reduce folds raw extract rows into one immutable StudyInput per study,
// sorted by study ID. Count sources contribute issue totals; subject-level
// sources additionally build the roster the clean-patient classifier reads.
func Reduce(rows []ExtractRow) []models.StudyInput {
	studies := make(map[string]*studyState)

	for _, row := range rows {
		if row.StudyID == "" {
			continue
		}
		study, ok := studies[row.StudyID]
		if !ok {
			study = &studyState{
				id:       row.StudyID,
				subjects: make(map[string]*subjectState),
				siteIDs:  make(map[string]struct{}),
			}
			studies[row.StudyID] = study
		}
		study.sources.MarkAvailable(row.Source)
		study.apply(row.Source, map[string]interface{}(row.Payload))
	}

	out := make([]models.StudyInput, 0, len(studies))
	for _, study := range studies {
		out = append(out, study.finalize())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudyID < out[j].StudyID })
	return out
}

func (s *studyState) apply(source string, payload map[string]interface{}) {
	if name := getString(payload["study_name"]); name != "" && s.name == "" {
		s.name = name
	}

	switch source {
	case models.SourceEDC:
		subjectID := getString(payload["subject_id"])
		if subjectID == "" {
			return
		}
		sub := s.subject(subjectID)
		sub.hasEDC = true
		if site := getString(payload["site_id"]); site != "" {
			sub.record.SiteID = site
			s.siteIDs[site] = struct{}{}
		}
		if queries := getInt(payload["open_queries"]); queries > sub.record.OpenQueries {
			sub.record.OpenQueries = queries
		}
		if getBool(payload["pending_sdv"]) {
			sub.record.PendingSDV = true
		}
		if getBool(payload["clean"]) {
			sub.clean = true
		}

	case models.SourceMissingPages:
		pages := 1
		if raw, ok := payload["pages"]; ok {
			pages = getInt(raw)
		}
		if pages <= 0 {
			return
		}
		s.missingPages += pages
		if subjectID := getString(payload["subject_id"]); subjectID != "" {
			s.subject(subjectID).record.MissingPages += pages
		}

	case models.SourceSAE:
		s.saeIssues++

	case models.SourceVisits:
		s.overdueVisits++

	case models.SourceLabs:
		s.labIssues++

	case models.SourceCoding:
		s.codingIssues++
		if subjectID := getString(payload["subject_id"]); subjectID != "" {
			s.subject(subjectID).record.PendingCoding = true
		}

	case models.SourceEDRR:
		s.edrrIssues++

	case models.SourceInactivated:
		s.inactivated++
		if subjectID := getString(payload["subject_id"]); subjectID != "" {
			s.subject(subjectID).record.Inactivated = true
		}
	}
}

func (s *studyState) subject(id string) *subjectState {
	sub, ok := s.subjects[id]
	if !ok {
		sub = &subjectState{record: models.SubjectRecord{SubjectID: id}}
		s.subjects[id] = sub
	}
	return sub
}

func (s *studyState) finalize() models.StudyInput {
	subjects := make([]models.SubjectRecord, 0, len(s.subjects))
	edcSubjects := 0
	cleanCRF := 0
	for _, sub := range s.subjects {
		subjects = append(subjects, sub.record)
		if sub.hasEDC {
			edcSubjects++
			if sub.clean {
				cleanCRF++
			}
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].SubjectID < subjects[j].SubjectID })

	metrics := models.StudyMetrics{
		MissingPages:       s.missingPages,
		SAEIssues:          s.saeIssues,
		OverdueVisits:      s.overdueVisits,
		LabIssues:          s.labIssues,
		CodingIssues:       s.codingIssues,
		EDRRIssues:         s.edrrIssues,
		InactivatedRecords: s.inactivated,
		TotalSubjects:      len(subjects),
		SiteCount:          len(s.siteIDs),
	}
	if edcSubjects > 0 {
		metrics.CleanCRFPct = round2(100 * float64(cleanCRF) / float64(edcSubjects))
	}
	metrics.MissingPagesPct = missingPagesPct(s.missingPages, len(subjects))

	name := s.name
	if name == "" {
		name = s.id
	}

	return models.StudyInput{
		StudyID:   s.id,
		StudyName: name,
		Metrics:   metrics,
		Sources:   s.sources,
		Subjects:  subjects,
	}
}

// missingPagesPct expresses missing pages as a share of the pages the study
// should have collected, capped at 100. With no enrolled subjects any missing
// page already means everything expected is absent.
func missingPagesPct(missing, subjects int) float64 {
	if missing <= 0 {
		return 0
	}
	if subjects <= 0 {
		return 100
	}
	pct := 100 * float64(missing) / float64(subjects*expectedPagesPerSubject)
	if pct > 100 {
		pct = 100
	}
	return round2(pct)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func getString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return ""
	}
}

func getInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return 0
}

func getBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return false
}
