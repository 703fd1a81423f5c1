package extractor

import (
	"encoding/json"
	"net/http"

	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
	catalog Catalog
	maxBody int64
}

func NewHTTPHandler(service *Service, catalog Catalog, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, catalog: catalog, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/ingest/sources", h.handleSources).Methods(http.MethodGet)
	router.HandleFunc("/ingest/{source}", h.handleIngest).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid extract batch payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := h.service.IngestBatch(r.Context(), mux.Vars(r)["source"], req)
	if err != nil {
		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("failed to store extract batch")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(receipt)
}

func (h *HTTPHandler) handleSources(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.SourceCounts(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to count extract rows")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type sourceEntry struct {
		Source string `json:"source"`
		SourceInfo
		Rows int64 `json:"rows"`
	}
	items := make([]sourceEntry, 0, len(models.KnownSources))
	for _, source := range models.KnownSources {
		info, _ := h.catalog.Lookup(source)
		items = append(items, sourceEntry{Source: source, SourceInfo: info, Rows: counts[source]})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sources": items})
}
