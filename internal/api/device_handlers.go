package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netwarden/internal/alerts"
	"netwarden/internal/models"
	"netwarden/internal/monitor"
	"netwarden/internal/registry"
)

// DeviceHandler handles device-related API endpoints
type DeviceHandler struct {
	registry  *registry.Registry
	alerts    *alerts.Manager
	scheduler *monitor.Scheduler
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(reg *registry.Registry, am *alerts.Manager, sched *monitor.Scheduler) *DeviceHandler {
	return &DeviceHandler{
		registry:  reg,
		alerts:    am,
		scheduler: sched,
	}
}

// RegisterRoutes registers the device routes
func (h *DeviceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/devices", h.listDevices).Methods("GET")
	r.HandleFunc("/api/devices", h.addDevice).Methods("POST")
	r.HandleFunc("/api/devices/summary", h.getSummary).Methods("GET")
	r.HandleFunc("/api/devices/{id}", h.getDevice).Methods("GET")
	r.HandleFunc("/api/devices/{id}", h.updateDevice).Methods("PUT")
	r.HandleFunc("/api/devices/{id}", h.removeDevice).Methods("DELETE")
	r.HandleFunc("/api/devices/{id}/check", h.checkDevice).Methods("GET")
}

// listDevices returns all devices, optionally filtered by type/status
func (h *DeviceHandler) listDevices(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "listDevices").Logger()

	filterType := r.URL.Query().Get("type")
	filterStatus := r.URL.Query().Get("status")

	if filterStatus != "" && !models.ValidStatus(filterStatus) {
		logger.Warn().Str("status", filterStatus).Msg("Invalid status filter")
		http.Error(w, "Invalid status filter", http.StatusBadRequest)
		return
	}

	devices := h.registry.ListDevices(filterType, filterStatus)
	writeJSON(w, logger, http.StatusOK, devices)
}

// addDevice creates a new device record
func (h *DeviceHandler) addDevice(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "addDevice").Logger()

	var spec models.DeviceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		logger.Error().Err(err).Msg("Failed to parse device spec")
		http.Error(w, "Invalid device payload", http.StatusBadRequest)
		return
	}

	device, err := h.registry.AddDevice(&spec)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to add device")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusCreated, device)
}

// getDevice returns a single device by id
func (h *DeviceHandler) getDevice(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDevice").Logger()

	id := mux.Vars(r)["id"]
	device, err := h.registry.GetDevice(id)
	if err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("Device lookup failed")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, device)
}

// updateDevice merges a partial spec into an existing device
func (h *DeviceHandler) updateDevice(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "updateDevice").Logger()

	id := mux.Vars(r)["id"]

	var spec models.DeviceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		logger.Error().Err(err).Msg("Failed to parse device spec")
		http.Error(w, "Invalid device payload", http.StatusBadRequest)
		return
	}

	device, err := h.registry.UpdateDevice(id, &spec)
	if err != nil {
		logger.Error().Err(err).Str("id", id).Msg("Failed to update device")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, device)
}

// removeDevice deletes a device. Active alerts referencing it are
// resolved; the alert history itself is kept.
func (h *DeviceHandler) removeDevice(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "removeDevice").Logger()

	id := mux.Vars(r)["id"]
	if err := h.registry.RemoveDevice(id); err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("Device removal failed")
		writeError(w, logger, err)
		return
	}

	if err := h.alerts.ResolveByDevice(id); err != nil {
		logger.Error().Err(err).Str("id", id).Msg("Failed to resolve alerts for removed device")
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Device removed", "id": id})
}

// checkDevice performs an on-demand probe and returns the snapshot
func (h *DeviceHandler) checkDevice(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "checkDevice").Logger()

	id := mux.Vars(r)["id"]
	result, err := h.scheduler.CheckDevice(r.Context(), id)
	if err != nil {
		logger.Warn().Err(err).Str("id", id).Msg("On-demand check failed")
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, result)
}

// getSummary returns the fleet-wide status rollup
func (h *DeviceHandler) getSummary(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDeviceSummary").Logger()

	writeJSON(w, logger, http.StatusOK, h.registry.StatusSummary())
}
