package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"netwarden/internal/monitor"
	"netwarden/internal/registry"
)

// MonitorHandler handles scheduler control endpoints
type MonitorHandler struct {
	scheduler *monitor.Scheduler
	registry  *registry.Registry
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(sched *monitor.Scheduler, reg *registry.Registry) *MonitorHandler {
	return &MonitorHandler{
		scheduler: sched,
		registry:  reg,
	}
}

// RegisterRoutes registers the monitor routes
func (h *MonitorHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/monitor/start", h.start).Methods("POST")
	r.HandleFunc("/api/monitor/stop", h.stop).Methods("POST")
	r.HandleFunc("/api/monitor/status", h.status).Methods("GET")
	r.HandleFunc("/api/monitor/check-all", h.checkAll).Methods("POST")
}

// start launches the monitoring loop
func (h *MonitorHandler) start(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "startMonitor").Logger()

	if err := h.scheduler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Monitor start rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Monitoring started"})
}

// stop drains the monitoring loop
func (h *MonitorHandler) stop(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "stopMonitor").Logger()

	if err := h.scheduler.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Monitor stop rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Monitoring stopped"})
}

// status reports whether the loop is running plus the fleet rollup
func (h *MonitorHandler) status(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "monitorStatus").Logger()

	writeJSON(w, logger, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"devices": h.registry.StatusSummary(),
	})
}

// checkAll probes every enabled device immediately. Individual probe
// failures are recorded as device status; partial results are still a
// success response.
func (h *MonitorHandler) checkAll(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "checkAll").Logger()

	checked := h.scheduler.CheckAll(r.Context())

	writeJSON(w, logger, http.StatusOK, map[string]interface{}{
		"message": "Check complete",
		"checked": checked,
	})
}
