package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netwarden/internal/alerts"
	"netwarden/internal/models"
)

// AlertHandler handles alert-related API endpoints
type AlertHandler struct {
	alerts *alerts.Manager
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(am *alerts.Manager) *AlertHandler {
	return &AlertHandler{alerts: am}
}

// RegisterRoutes registers the alert routes
func (h *AlertHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/alerts", h.getAlerts).Methods("GET")
	r.HandleFunc("/api/alerts/summary", h.getSummary).Methods("GET")
	r.HandleFunc("/api/alerts/{id}/ack", h.acknowledge).Methods("POST")
	r.HandleFunc("/api/alerts/{id}/resolve", h.resolve).Methods("POST")
}

// getAlerts returns alerts newest first with optional filters
func (h *AlertHandler) getAlerts(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getAlerts").Logger()

	filter := models.AlertFilter{Limit: 50}
	q := r.URL.Query()

	if sev := q.Get("severity"); sev != "" {
		if !models.ValidSeverity(sev) {
			logger.Warn().Str("severity", sev).Msg("Invalid severity filter")
			http.Error(w, "Invalid severity filter", http.StatusBadRequest)
			return
		}
		filter.Severity = models.Severity(sev)
	}

	filter.DeviceID = q.Get("device")

	if unresolved := q.Get("unresolved"); unresolved != "" {
		filter.UnresolvedOnly = unresolved == "true" || unresolved == "1"
	}

	if limitParam := q.Get("limit"); limitParam != "" {
		if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	result, err := h.alerts.GetAlerts(filter)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve alerts")
		http.Error(w, "Failed to retrieve alerts", http.StatusInternalServerError)
		return
	}

	if result == nil {
		result = []*models.Alert{}
	}

	writeJSON(w, logger, http.StatusOK, result)
}

// getSummary returns alert counts
func (h *AlertHandler) getSummary(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getAlertSummary").Logger()

	summary, err := h.alerts.Summary()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to compute alert summary")
		http.Error(w, "Failed to compute alert summary", http.StatusInternalServerError)
		return
	}

	writeJSON(w, logger, http.StatusOK, summary)
}

// acknowledge marks an alert acknowledged; repeating it is a no-op
func (h *AlertHandler) acknowledge(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "acknowledgeAlert").Logger()

	id := mux.Vars(r)["id"]

	var body struct {
		By string `json:"by"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			logger.Error().Err(err).Msg("Failed to parse acknowledge payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
	}
	if body.By == "" {
		body.By = "operator"
	}

	if err := h.alerts.Acknowledge(id, body.By); err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("Acknowledge failed")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Alert acknowledged", "id": id})
}

// resolve marks an alert resolved; repeating it is a no-op
func (h *AlertHandler) resolve(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "resolveAlert").Logger()

	id := mux.Vars(r)["id"]
	if err := h.alerts.Resolve(id); err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("Resolve failed")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Alert resolved", "id": id})
}
