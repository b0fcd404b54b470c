package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netwarden/internal/guardrails"
	"netwarden/internal/models"
)

// ActionHandler handles guarded action submission and the
// confirm/cancel protocol
type ActionHandler struct {
	engine *guardrails.Engine
}

// NewActionHandler creates a new action handler
func NewActionHandler(engine *guardrails.Engine) *ActionHandler {
	return &ActionHandler{engine: engine}
}

// RegisterRoutes registers the action routes
func (h *ActionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/actions", h.submit).Methods("POST")
	r.HandleFunc("/api/actions", h.listPending).Methods("GET")
	r.HandleFunc("/api/actions/{id}/confirm", h.confirm).Methods("POST")
	r.HandleFunc("/api/actions/{id}/cancel", h.cancel).Methods("POST")
}

// submit classifies the action and returns the gating decision
func (h *ActionHandler) submit(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "submitAction").Logger()

	var action guardrails.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		logger.Error().Err(err).Msg("Failed to parse action payload")
		http.Error(w, "Invalid action payload", http.StatusBadRequest)
		return
	}

	if action.Command == "" {
		http.Error(w, "Action command is required", http.StatusBadRequest)
		return
	}

	decision := h.engine.Submit(action)

	status := http.StatusOK
	switch decision.Outcome {
	case guardrails.OutcomePending:
		status = http.StatusAccepted
	case guardrails.OutcomeBlocked:
		status = http.StatusForbidden
	}

	writeJSON(w, logger, status, decision)
}

// listPending returns actions still awaiting confirmation
func (h *ActionHandler) listPending(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "listPendingActions").Logger()

	pending := h.engine.ListPending()
	if pending == nil {
		pending = []*models.PendingAction{}
	}

	writeJSON(w, logger, http.StatusOK, pending)
}

// confirm executes a pending action exactly once
func (h *ActionHandler) confirm(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "confirmAction").Logger()

	id := mux.Vars(r)["id"]
	result, err := h.engine.Confirm(id)
	if err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("Confirm failed")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{
		"message": "Action executed",
		"id":      id,
		"result":  result,
	})
}

// cancel discards a pending action without executing it
func (h *ActionHandler) cancel(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "cancelAction").Logger()

	id := mux.Vars(r)["id"]
	if err := h.engine.Cancel(id); err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("Cancel failed")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Action cancelled", "id": id})
}
