package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/portfolio"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type staticSource struct {
	inputs []models.StudyInput
}

func (s *staticSource) BuildInputs(ctx context.Context) ([]models.StudyInput, error) {
	return s.inputs, nil
}

type memoryRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.RefreshRun
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[uuid.UUID]*models.RefreshRun)}
}

func (m *memoryRuns) Create(ctx context.Context, run *models.RefreshRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *run
	m.runs[run.ID] = &stored
	return nil
}

func (m *memoryRuns) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			run.Status = value.(string)
		case "error_message":
			run.ErrorMessage = value.(string)
		case "study_count":
			run.StudyCount = value.(int)
		case "excluded_count":
			run.ExcludedCount = value.(int)
		case "started_at":
			at := value.(time.Time)
			run.StartedAt = &at
		case "completed_at":
			at := value.(time.Time)
			run.CompletedAt = &at
		}
	}
	return nil
}

func (m *memoryRuns) Get(ctx context.Context, id uuid.UUID) (*models.RefreshRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (m *memoryRuns) List(ctx context.Context, limit int) ([]models.RefreshRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RefreshRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, *run)
	}
	return out, nil
}

func subjectIDs(prefix string, from, to int) []string {
	ids := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, fmt.Sprintf("%s%03d", prefix, i))
	}
	return ids
}

func newTestRouter(t *testing.T) (*mux.Router, *portfolio.Refresher) {
	t.Helper()
	engine := newTestEngine(t)
	snapshots := portfolio.NewSnapshotStore()

	delta := summaryFixture("ST-DELTA", "Delta Registry", 81.0, models.DQIGood, 30, 37.5, models.RiskMedium)
	delta.CleanPatients = models.CleanPatientStatus{
		Total:           15,
		Clean:           12,
		Dirty:           3,
		CleanPercentage: 80,
		CleanSubjects:   subjectIDs("S", 1, 12),
		DirtySubjects:   subjectIDs("S", 13, 15),
	}

	snapshots.Publish(engine.BuildPortfolio([]models.StudySummary{
		summaryFixture("ST-ALPHA", "Alpha Trial", 92.5, models.DQIExcellent, 10, 12.5, models.RiskLow),
		summaryFixture("ST-BRAVO", "Bravo Oncology", 58.0, models.DQIPoor, 70, 87.5, models.RiskCritical),
		delta,
	}))

	refresher := portfolio.NewRefresher(engine, &staticSource{}, snapshots, newMemoryRuns())
	service := NewService(snapshots, engine, nil, nil)

	router := mux.NewRouter()
	NewHandler(service, refresher).Register(router)
	return router, refresher
}

func doRequest(router *mux.Router, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPortfolioEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/portfolio")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var overview struct {
		PortfolioOverview
		Studies []models.StudySummary `json:"studies"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&overview); err != nil {
		t.Fatalf("decoding portfolio: %v", err)
	}
	if overview.Studies != nil {
		t.Error("portfolio payload should not carry the studies array")
	}
	if overview.StudyCount != 3 {
		t.Errorf("StudyCount = %d", overview.StudyCount)
	}
	if len(overview.RiskDistribution) != 4 {
		t.Errorf("RiskDistribution = %v", overview.RiskDistribution)
	}
}

func TestPortfolioUnavailableBeforeFirstRefresh(t *testing.T) {
	engine := newTestEngine(t)
	snapshots := portfolio.NewSnapshotStore()
	service := NewService(snapshots, engine, nil, nil)
	refresher := portfolio.NewRefresher(engine, &staticSource{}, snapshots, newMemoryRuns())

	router := mux.NewRouter()
	NewHandler(service, refresher).Register(router)

	rec := doRequest(router, http.MethodGet, "/portfolio")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestStudiesEndpointFilter(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/studies?risk_level=Critical")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Items []models.StudySummary `json:"items"`
		Count int                   `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding studies: %v", err)
	}
	if resp.Count != 1 || resp.Items[0].StudyID != "ST-BRAVO" {
		t.Fatalf("unexpected filter result: %+v", resp)
	}
}

func TestStudiesEndpointRejectsBadParams(t *testing.T) {
	router, _ := newTestRouter(t)

	if rec := doRequest(router, http.MethodGet, "/studies?sort=enrollment"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad sort status = %d, want 400", rec.Code)
	}
	if rec := doRequest(router, http.MethodGet, "/studies?min_dqi=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad min_dqi status = %d, want 400", rec.Code)
	}
}

func TestStudyEndpointNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	if rec := doRequest(router, http.MethodGet, "/studies/ST-NOPE"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPatientsEndpointTruncatesIDLists(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/studies/ST-DELTA/patients")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Total           int      `json:"total"`
		Clean           int      `json:"clean"`
		Dirty           int      `json:"dirty"`
		CleanPercentage float64  `json:"clean_percentage"`
		CleanSubjects   []string `json:"clean_subjects"`
		DirtySubjects   []string `json:"dirty_subjects"`
		Truncated       bool     `json:"truncated"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding patients: %v", err)
	}
	if resp.Clean != 12 || resp.Dirty != 3 {
		t.Errorf("counts = %d clean / %d dirty", resp.Clean, resp.Dirty)
	}
	if len(resp.CleanSubjects) != 10 {
		t.Errorf("clean list length = %d, want 10", len(resp.CleanSubjects))
	}
	if len(resp.DirtySubjects) != 3 {
		t.Errorf("dirty list length = %d, want 3", len(resp.DirtySubjects))
	}
	if !resp.Truncated {
		t.Error("expected truncated flag")
	}
	if resp.CleanPercentage != 80 {
		t.Errorf("clean percentage = %v", resp.CleanPercentage)
	}
}

func TestExportEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/export/portfolio.csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "portfolio.csv") {
		t.Errorf("Content-Disposition = %s", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "study_id,") {
		t.Errorf("unexpected export body: %q", rec.Body.String()[:40])
	}
}

func TestRefreshLifecycleOverHTTP(t *testing.T) {
	router, refresher := newTestRouter(t)

	done := make(chan struct{})
	refresher.AddHook(func(ctx context.Context, summary *models.PortfolioSummary) {
		close(done)
	})

	rec := doRequest(router, http.MethodPost, "/refresh")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Run models.RefreshRun `json:"run"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding refresh response: %v", err)
	}
	if resp.Run.Status != models.RefreshQueued {
		t.Errorf("initial status = %s", resp.Run.Status)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not complete")
	}

	rec = doRequest(router, http.MethodGet, "/refresh/"+resp.Run.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status lookup = %d", rec.Code)
	}
	var statusResp struct {
		Run models.RefreshRun `json:"run"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&statusResp); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if statusResp.Run.Status != models.RefreshCompleted {
		t.Errorf("final status = %s", statusResp.Run.Status)
	}

	rec = doRequest(router, http.MethodGet, "/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
}

func TestRefreshStatusErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	if rec := doRequest(router, http.MethodGet, "/refresh/not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", rec.Code)
	}
	if rec := doRequest(router, http.MethodGet, "/refresh/"+uuid.NewString()); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}
