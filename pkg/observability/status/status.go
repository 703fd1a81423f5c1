package status

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/portfolio"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// Handler answers operational questions about the pipeline: how much data
// is flowing in, whether scoring keeps up, and how the alert inboxes look.
type Handler struct {
	db        *gorm.DB
	snapshots *portfolio.SnapshotStore
	interval  time.Duration
}

type OverviewMetrics struct {
	ExtractRows        int     `json:"extractRows"`
	BatchesLastHour    int     `json:"batchesLastHour"`
	SnapshotStudies    int     `json:"snapshotStudies"`
	SnapshotAgeSeconds float64 `json:"snapshotAgeSeconds"`
	FailedRunsToday    int     `json:"failedRunsToday"`
	OpenAlerts         int     `json:"openAlerts"`
	UnreadMentions     int     `json:"unreadMentions"`
}

type PipelineStatus struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	Details   string    `json:"details"`
}

func NewHandler(db *gorm.DB, snapshots *portfolio.SnapshotStore, refreshInterval time.Duration) *Handler {
	return &Handler{db: db, snapshots: snapshots, interval: refreshInterval}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/system/overview", h.handleOverview).Methods(http.MethodGet)
	r.HandleFunc("/system/pipelines", h.handlePipelines).Methods(http.MethodGet)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.collect(r)
	if err != nil {
		logger.Log.WithError(err).Error("failed to collect system overview")
		http.Error(w, "failed to collect system overview", http.StatusInternalServerError)
		return
	}

	writeJSON(w, metrics)
}

func (h *Handler) handlePipelines(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.collect(r)
	if err != nil {
		logger.Log.WithError(err).Error("failed to collect pipeline status")
		http.Error(w, "failed to collect pipeline status", http.StatusInternalServerError)
		return
	}

	fresh := metrics.SnapshotAgeSeconds >= 0 && metrics.SnapshotAgeSeconds < 2*h.interval.Seconds()

	now := time.Now().UTC()
	statuses := []PipelineStatus{
		{
			ID:        "intake",
			Stage:     "Extract intake",
			Status:    deriveStatus(metrics.ExtractRows > 0, metrics.BatchesLastHour >= 0),
			UpdatedAt: now,
			Details:   fmt.Sprintf("%d rows stored, %d batches in the last hour", metrics.ExtractRows, metrics.BatchesLastHour),
		},
		{
			ID:        "scoring",
			Stage:     "Scoring and snapshot publish",
			Status:    deriveStatus(fresh, metrics.FailedRunsToday == 0),
			UpdatedAt: now,
			Details:   fmt.Sprintf("%d studies scored, snapshot age %.0fs, %d failed runs today", metrics.SnapshotStudies, metrics.SnapshotAgeSeconds, metrics.FailedRunsToday),
		},
		{
			ID:        "alerting",
			Stage:     "Alerts and inboxes",
			Status:    deriveStatus(metrics.OpenAlerts < 25, metrics.UnreadMentions < 100),
			UpdatedAt: now,
			Details:   fmt.Sprintf("%d open alerts, %d unread notifications", metrics.OpenAlerts, metrics.UnreadMentions),
		},
	}

	writeJSON(w, statuses)
}

func (h *Handler) collect(r *http.Request) (OverviewMetrics, error) {
	metrics := OverviewMetrics{SnapshotAgeSeconds: -1}

	if snap := h.snapshots.Current(); snap != nil {
		metrics.SnapshotStudies = snap.StudyCount
		metrics.SnapshotAgeSeconds = time.Since(snap.GeneratedAt).Seconds()
	}

	db := h.db.WithContext(r.Context())

	var rows sql.NullInt64
	if err := db.Raw(`SELECT COUNT(*) FROM source_extracts`).Scan(&rows).Error; err != nil {
		return metrics, err
	}
	if rows.Valid {
		metrics.ExtractRows = int(rows.Int64)
	}

	var batches sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(DISTINCT batch_id)
		FROM source_extracts
		WHERE created_at > NOW() - INTERVAL '1 hour'
	`).Scan(&batches).Error; err != nil {
		return metrics, err
	}
	if batches.Valid {
		metrics.BatchesLastHour = int(batches.Int64)
	}

	var failed sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM refresh_runs
		WHERE status = 'failed' AND DATE(created_at) = CURRENT_DATE
	`).Scan(&failed).Error; err != nil {
		return metrics, err
	}
	if failed.Valid {
		metrics.FailedRunsToday = int(failed.Int64)
	}

	var alerts sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM alerts
		WHERE acknowledged = FALSE
	`).Scan(&alerts).Error; err != nil {
		return metrics, err
	}
	if alerts.Valid {
		metrics.OpenAlerts = int(alerts.Int64)
	}

	var unread sql.NullInt64
	if err := db.Raw(`
		SELECT COUNT(*)
		FROM notifications
		WHERE read = FALSE
	`).Scan(&unread).Error; err != nil {
		return metrics, err
	}
	if unread.Valid {
		metrics.UnreadMentions = int(unread.Int64)
	}

	return metrics, nil
}

func deriveStatus(conditionA, conditionB bool) string {
	switch {
	case conditionA && conditionB:
		return "healthy"
	case conditionA || conditionB:
		return "degraded"
	default:
		return "failing"
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}
