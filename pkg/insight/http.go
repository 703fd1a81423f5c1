package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/portfolio"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// maxPatientIDs caps the subject ID lists returned over HTTP. Counts and
// percentages always cover the full population.
const maxPatientIDs = 10

// Handler exposes the insight read API and the refresh trigger.
type Handler struct {
	service   *Service
	refresher *portfolio.Refresher
}

func NewHandler(service *Service, refresher *portfolio.Refresher) *Handler {
	return &Handler{service: service, refresher: refresher}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/portfolio", h.handlePortfolio).Methods(http.MethodGet)
	r.HandleFunc("/portfolio/risks", h.handleRiskSummary).Methods(http.MethodGet)
	r.HandleFunc("/portfolio/dqi", h.handleDQISummary).Methods(http.MethodGet)
	r.HandleFunc("/studies", h.handleStudies).Methods(http.MethodGet)
	r.HandleFunc("/studies/{studyID}", h.handleStudy).Methods(http.MethodGet)
	r.HandleFunc("/studies/{studyID}/sites", h.handleSites).Methods(http.MethodGet)
	r.HandleFunc("/studies/{studyID}/patients", h.handlePatients).Methods(http.MethodGet)
	r.HandleFunc("/studies/{studyID}/recommendations", h.handleRecommendations).Methods(http.MethodGet)
	r.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/filters", h.handleFilters).Methods(http.MethodGet)
	r.HandleFunc("/export/portfolio.csv", h.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/refresh", h.handleTriggerRefresh).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.handleRefreshHistory).Methods(http.MethodGet)
	r.HandleFunc("/refresh/{id}", h.handleRefreshStatus).Methods(http.MethodGet)
}

func (h *Handler) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Portfolio()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRiskSummary(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.RiskSummary()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) handleDQISummary(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.DQISummary()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) handleStudies(w http.ResponseWriter, r *http.Request) {
	filter := StudyFilter{
		RiskLevel: r.URL.Query().Get("risk_level"),
		SortBy:    r.URL.Query().Get("sort"),
		Limit:     parseLimit(r, 0),
	}
	var err error
	if filter.MinDQI, err = parseScore(r, "min_dqi"); err != nil {
		writeServiceError(w, err)
		return
	}
	if filter.MaxDQI, err = parseScore(r, "max_dqi"); err != nil {
		writeServiceError(w, err)
		return
	}

	studies, err := h.service.Studies(filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": studies, "count": len(studies)})
}

func (h *Handler) handleStudy(w http.ResponseWriter, r *http.Request) {
	study, err := h.service.Study(mux.Vars(r)["studyID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"study": study})
}

func (h *Handler) handleSites(w http.ResponseWriter, r *http.Request) {
	study, err := h.service.Study(mux.Vars(r)["studyID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"study_id": study.StudyID,
		"items":    study.Sites,
	})
}

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	study, err := h.service.Study(mux.Vars(r)["studyID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := study.CleanPatients
	clean, dirty := status.CleanSubjects, status.DirtySubjects
	truncated := false
	if len(clean) > maxPatientIDs {
		clean = clean[:maxPatientIDs]
		truncated = true
	}
	if len(dirty) > maxPatientIDs {
		dirty = dirty[:maxPatientIDs]
		truncated = true
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"study_id":         study.StudyID,
		"total":            status.Total,
		"clean":            status.Clean,
		"dirty":            status.Dirty,
		"clean_percentage": status.CleanPercentage,
		"clean_subjects":   clean,
		"dirty_subjects":   dirty,
		"truncated":        truncated,
	})
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	study, err := h.service.Study(mux.Vars(r)["studyID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"study_id": study.StudyID,
		"items":    study.Recommendations,
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	hits, err := h.service.Search(r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": hits, "count": len(hits)})
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Filters())
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="portfolio.csv"`)
	if err := h.service.ExportCSV(w); err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		logger.Log.WithError(err).Error("portfolio export failed")
	}
}

func (h *Handler) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	run, err := h.refresher.Enqueue(r.Context(), resolveActor(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to enqueue refresh")
		http.Error(w, "failed to enqueue refresh", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"run": run})
}

func (h *Handler) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	run, err := h.refresher.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, "refresh run not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load refresh run")
		http.Error(w, "failed to load refresh run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run": run})
}

func (h *Handler) handleRefreshHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := h.refresher.History(r.Context(), parseLimit(r, 20))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list refresh runs")
		http.Error(w, "failed to list refresh runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": runs})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoSnapshot):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrStudyNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidFilter):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Log.WithError(err).Error("insight request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func parseScore(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be numeric: %w", key, ErrInvalidFilter)
	}
	return &v, nil
}

func resolveActor(r *http.Request) string {
	if actor := r.Header.Get("X-Requested-By"); actor != "" {
		return actor
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
