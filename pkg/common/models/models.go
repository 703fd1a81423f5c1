package models

import (
	"time"

	"github.com/google/uuid"
)

// Known extract source types. Every per-study extract batch is tagged with
// one of these; the availability flag map is keyed by the same names.
const (
	SourceEDC          = "edc"
	SourceMissingPages = "missing_pages"
	SourceSAE          = "sae"
	SourceVisits       = "visits"
	SourceLabs         = "labs"
	SourceCoding       = "coding"
	SourceEDRR         = "edrr"
	SourceInactivated  = "inactivated"
)

// KnownSources lists every extract source type in a fixed order.
var KnownSources = []string{
	SourceEDC,
	SourceMissingPages,
	SourceSAE,
	SourceVisits,
	SourceLabs,
	SourceCoding,
	SourceEDRR,
	SourceInactivated,
}

// SourceAvailability records which raw extracts were present for a study
// during the latest ingestion cycle. A missing source degrades the dependent
// quality components instead of failing the computation.
type SourceAvailability struct {
	EDC          bool `json:"edc"`
	MissingPages bool `json:"missing_pages"`
	SAE          bool `json:"sae"`
	Visits       bool `json:"visits"`
	Labs         bool `json:"labs"`
	Coding       bool `json:"coding"`
	EDRR         bool `json:"edrr"`
	Inactivated  bool `json:"inactivated"`
}

func (s SourceAvailability) Available(source string) bool {
	switch source {
	case SourceEDC:
		return s.EDC
	case SourceMissingPages:
		return s.MissingPages
	case SourceSAE:
		return s.SAE
	case SourceVisits:
		return s.Visits
	case SourceLabs:
		return s.Labs
	case SourceCoding:
		return s.Coding
	case SourceEDRR:
		return s.EDRR
	case SourceInactivated:
		return s.Inactivated
	}
	return false
}

// Map flattens the flags into the wire representation used by consumers.
func (s SourceAvailability) Map() map[string]bool {
	out := make(map[string]bool, len(KnownSources))
	for _, src := range KnownSources {
		out[src] = s.Available(src)
	}
	return out
}

// MarkAvailable flips the flag for the named source.
func (s *SourceAvailability) MarkAvailable(source string) {
	switch source {
	case SourceEDC:
		s.EDC = true
	case SourceMissingPages:
		s.MissingPages = true
	case SourceSAE:
		s.SAE = true
	case SourceVisits:
		s.Visits = true
	case SourceLabs:
		s.Labs = true
	case SourceCoding:
		s.Coding = true
	case SourceEDRR:
		s.EDRR = true
	case SourceInactivated:
		s.Inactivated = true
	}
}

// StudyMetrics is the immutable per-study snapshot of reduced counts the
// scoring engine consumes. Produced once per ingestion cycle.
type StudyMetrics struct {
	MissingPages       int     `json:"missing_pages"`
	MissingPagesPct    float64 `json:"missing_pages_pct"`
	SAEIssues          int     `json:"sae_issues"`
	OverdueVisits      int     `json:"overdue_visits"`
	LabIssues          int     `json:"lab_issues"`
	CodingIssues       int     `json:"coding_issues"`
	EDRRIssues         int     `json:"edrr_issues"`
	InactivatedRecords int     `json:"inactivated_records"`
	CleanCRFPct        float64 `json:"clean_crf_pct"`
	TotalSubjects      int     `json:"total_subjects"`
	SiteCount          int     `json:"site_count"`
}

// DQI quality levels, highest first.
const (
	DQIExcellent = "Excellent"
	DQIGood      = "Good"
	DQIFair      = "Fair"
	DQIPoor      = "Poor"
	DQICritical  = "Critical"
)

// DQILevels lists every quality band in descending order.
var DQILevels = []string{DQIExcellent, DQIGood, DQIFair, DQIPoor, DQICritical}

// DQIComponent is one weighted slice of the Data Quality Index. Weight is the
// effective weight after renormalization over available sources, so the
// composite equals the sum of score*weight exactly.
type DQIComponent struct {
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Available bool    `json:"available"`
}

type DQIScore struct {
	Score      float64                 `json:"score"`
	Level      string                  `json:"level"`
	Components map[string]DQIComponent `json:"components"`
}

// Risk severity levels on the normalized 0-100 scale.
const (
	RiskCritical = "Critical"
	RiskHigh     = "High"
	RiskMedium   = "Medium"
	RiskLow      = "Low"
)

// RiskLevels lists every severity in descending order.
var RiskLevels = []string{RiskCritical, RiskHigh, RiskMedium, RiskLow}

type RiskScore struct {
	RawScore        float64            `json:"raw_score"`
	NormalizedScore float64            `json:"normalized_score"`
	Level           string             `json:"level"`
	Breakdown       map[string]float64 `json:"breakdown"`
}

// CleanPatientStatus partitions a study's subjects into clean and dirty.
// CleanSubjects and DirtySubjects are sorted ascending and together cover the
// whole population with no overlap.
type CleanPatientStatus struct {
	Total           int      `json:"total"`
	Clean           int      `json:"clean"`
	Dirty           int      `json:"dirty"`
	CleanPercentage float64  `json:"clean_percentage"`
	CleanSubjects   []string `json:"clean_subjects"`
	DirtySubjects   []string `json:"dirty_subjects"`
}

// Recommendation priorities, highest first.
const (
	PriorityCritical = "CRITICAL"
	PriorityHigh     = "HIGH"
	PriorityMedium   = "MEDIUM"
	PriorityLow      = "LOW"
)

type Recommendation struct {
	Priority string `json:"priority"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Owner    string `json:"owner"`
	Deadline string `json:"deadline"`
}

// SiteInfo is the per-site rollup summed from the study's subject records.
type SiteInfo struct {
	SiteID       string `json:"site_id"`
	SubjectCount int    `json:"subject_count"`
	OpenQueries  int    `json:"open_queries"`
	MissingPages int    `json:"missing_pages"`
}

// SubjectRecord carries the per-subject issue signals the clean-patient
// classifier and the site rollup consume.
type SubjectRecord struct {
	SubjectID     string `json:"subject_id"`
	SiteID        string `json:"site_id,omitempty"`
	MissingPages  int    `json:"missing_pages"`
	OpenQueries   int    `json:"open_queries"`
	PendingSDV    bool   `json:"pending_sdv"`
	PendingCoding bool   `json:"pending_coding"`
	Inactivated   bool   `json:"inactivated"`
}

// HasOpenIssue reports whether any source flagged this subject.
func (r SubjectRecord) HasOpenIssue() bool {
	return r.MissingPages > 0 || r.OpenQueries > 0 || r.PendingSDV || r.PendingCoding || r.Inactivated
}

// StudyInput is everything the engine needs to score one study. Built by the
// extractor from the raw per-source batches.
type StudyInput struct {
	StudyID   string             `json:"study_id"`
	StudyName string             `json:"study_name"`
	Metrics   StudyMetrics       `json:"metrics"`
	Sources   SourceAvailability `json:"sources"`
	Subjects  []SubjectRecord    `json:"subjects"`
	Sites     []SiteInfo         `json:"sites"`
}

// StudySummary is the complete computed view of one study.
type StudySummary struct {
	StudyID         string             `json:"study_id"`
	StudyName       string             `json:"study_name"`
	Metrics         StudyMetrics       `json:"metrics"`
	DQI             DQIScore           `json:"dqi"`
	Risk            RiskScore          `json:"risk"`
	CleanPatients   CleanPatientStatus `json:"clean_patients"`
	Sites           []SiteInfo         `json:"sites"`
	Recommendations []Recommendation   `json:"recommendations"`
	Sources         SourceAvailability `json:"data_sources_available"`
	RefreshedAt     time.Time          `json:"refreshed_at"`
}

// TopRiskStudy is one entry of the portfolio risk ranking.
type TopRiskStudy struct {
	StudyID         string  `json:"study_id"`
	StudyName       string  `json:"study_name"`
	RawScore        float64 `json:"raw_score"`
	NormalizedScore float64 `json:"normalized_score"`
	Level           string  `json:"level"`
}

// PortfolioSummary folds every study into the portfolio-wide view. Studies
// preserves ingestion order; TopRiskStudies is ranked by raw risk descending
// with study_id ascending on ties.
type PortfolioSummary struct {
	StudyCount        int            `json:"study_count"`
	TotalSubjects     int            `json:"total_subjects"`
	TotalSAEIssues    int            `json:"total_sae_issues"`
	TotalMissingPages int            `json:"total_missing_pages"`
	AverageDQI        float64        `json:"average_dqi"`
	RiskDistribution  map[string]int `json:"risk_distribution"`
	TopRiskStudies    []TopRiskStudy `json:"top_risk_studies"`
	Studies           []StudySummary `json:"studies"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// Refresh run statuses.
const (
	RefreshQueued    = "queued"
	RefreshRunning   = "running"
	RefreshCompleted = "completed"
	RefreshFailed    = "failed"
)

// RefreshRun tracks one recompute cycle end to end.
type RefreshRun struct {
	ID            uuid.UUID  `json:"id"`
	Status        string     `json:"status"`
	StudyCount    int        `json:"study_count"`
	ExcludedCount int        `json:"excluded_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	RequestedBy   string     `json:"requested_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Event is the envelope published on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // extract.received, refresh.completed, study.alert
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Alert severities.
const (
	AlertCritical = "critical"
	AlertWarning  = "warning"
	AlertInfo     = "info"
)

// Alert is a threshold crossing raised from a published snapshot.
type Alert struct {
	ID           uuid.UUID  `json:"id"`
	StudyID      string     `json:"study_id"`
	Rule         string     `json:"rule"`
	Severity     string     `json:"severity"`
	Message      string     `json:"message"`
	Acknowledged bool       `json:"acknowledged"`
	CreatedAt    time.Time  `json:"created_at"`
	AckedAt      *time.Time `json:"acked_at,omitempty"`
	AckedBy      string     `json:"acked_by,omitempty"`
}

// Comment is a per-study note left by a team member.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	StudyID   string    `json:"study_id"`
	Author    string    `json:"author"`
	Role      string    `json:"role,omitempty"`
	Body      string    `json:"body"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification lands in a role's inbox, fed by alerts and comment mentions.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Kind      string    `json:"kind"` // alert, mention
	Message   string    `json:"message"`
	RefID     string    `json:"ref_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamRole is one entry of the fixed role catalog used for owner assignment.
type TeamRole struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// AgentQuery and AgentAnswer are the request/response contract of the
// keyword-routed query agent.
type AgentQuery struct {
	Query string `json:"query"`
}

type AgentAnswer struct {
	Intent  string `json:"intent"`
	StudyID string `json:"study_id,omitempty"`
	Text    string `json:"text"`
}
