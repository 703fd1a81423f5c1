package collab

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxCommentBytes = 64 << 10

// Handler exposes alerts, comments, notifications, and the role catalog.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/alerts", h.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{alertID}/ack", h.handleAckAlert).Methods(http.MethodPost)
	r.HandleFunc("/studies/{studyID}/comments", h.handleListComments).Methods(http.MethodGet)
	r.HandleFunc("/studies/{studyID}/comments", h.handleAddComment).Methods(http.MethodPost)
	r.HandleFunc("/notifications", h.handleNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{notificationID}/read", h.handleMarkRead).Methods(http.MethodPost)
	r.HandleFunc("/team/roles", h.handleRoles).Methods(http.MethodGet)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.Alerts(r.Context(), parseFlag(r, "include_acked"), parseLimit(r, 50))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": alerts, "count": len(alerts)})
}

func (h *Handler) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["alertID"])
	if err != nil {
		http.Error(w, "invalid alert id", http.StatusBadRequest)
		return
	}
	alert, err := h.service.Acknowledge(r.Context(), id, resolveActor(r))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alert": alert})
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.Comments(r.Context(), mux.Vars(r)["studyID"], parseLimit(r, 50))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": comments, "count": len(comments)})
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Author string `json:"author"`
		Role   string `json:"role"`
		Body   string `json:"body"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCommentBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Author == "" {
		http.Error(w, "author is required", http.StatusBadRequest)
		return
	}

	comment, err := h.service.AddComment(r.Context(), mux.Vars(r)["studyID"], req.Author, req.Role, req.Body)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"comment": comment})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role != "" && !ValidRole(role) {
		http.Error(w, "unknown team role", http.StatusBadRequest)
		return
	}
	notifications, err := h.service.Notifications(r.Context(), role, parseFlag(r, "unread"), parseLimit(r, 50))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": notifications, "count": len(notifications)})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["notificationID"])
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	if err := h.service.MarkRead(r.Context(), id); err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "read"})
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles := Roles()
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": roles, "count": len(roles)})
}

func writeCollabError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlertNotFound), errors.Is(err, ErrNotificationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrEmptyComment), errors.Is(err, ErrUnknownRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Log.WithError(err).Error("collab request failed")
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

func parseFlag(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
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
