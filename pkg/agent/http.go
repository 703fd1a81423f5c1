package agent

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/observability/metrics"
	"github.com/clinsight-ai/insight/pkg/portfolio"
	"github.com/gorilla/mux"
)

const maxQueryBytes = 64 << 10

// Handler answers intent-routed queries over the latest snapshot.
type Handler struct {
	router    *Router
	snapshots *portfolio.SnapshotStore
}

func NewHandler(router *Router, snapshots *portfolio.SnapshotStore) *Handler {
	return &Handler{router: router, snapshots: snapshots}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/agent/query", h.handleQuery).Methods(http.MethodPost)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)
	var req models.AgentQuery
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	snap := h.snapshots.Current()
	if snap == nil {
		http.Error(w, "no portfolio snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	metrics.IncAgentQuery()
	answer := h.router.Respond(snap, req.Query)
	writeJSON(w, http.StatusOK, answer)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
