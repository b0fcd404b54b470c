// Package alerts derives alerts from device status transitions, tracks
// their acknowledge/resolve lifecycle, and fans created alerts out to
// the configured notification sinks. Alert persistence is the
// durability guarantee; notification delivery is best-effort.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netwarden/internal/database"
	"netwarden/internal/models"
)

// Manager is the alert manager. Alerts are append-only history; resolve
// only filters them out of active views.
type Manager struct {
	db        *database.DB
	notifiers []Notifier
	logger    zerolog.Logger

	// wg tracks in-flight notification fan-outs so shutdown and tests
	// can drain them.
	wg sync.WaitGroup
}

// NewManager creates an alert manager with zero or more notification
// sinks.
func NewManager(db *database.DB, notifiers ...Notifier) *Manager {
	return &Manager{
		db:        db,
		notifiers: notifiers,
		logger:    log.With().Str("component", "alerts").Logger(),
	}
}

// OnStatusTransition is called by the monitor scheduler after each
// probe. Repeated identical statuses never produce an alert; only the
// noteworthy transitions do.
func (m *Manager) OnStatusTransition(device *models.Device, previous, next models.DeviceStatus) (*models.Alert, error) {
	if previous == next {
		return nil, nil
	}

	var severity models.Severity
	var message string

	switch {
	case next == models.StatusOffline:
		severity = models.SeverityCritical
		message = fmt.Sprintf("Device %s (%s) is offline", device.Name, device.IP)
	case next == models.StatusDegraded:
		severity = models.SeverityWarning
		message = fmt.Sprintf("Device %s (%s) is degraded: some monitored ports closed", device.Name, device.IP)
	case next == models.StatusOnline && previous == models.StatusOffline:
		severity = models.SeverityInfo
		message = fmt.Sprintf("Device %s (%s) is back online", device.Name, device.IP)
	default:
		// unknown -> online and similar establishing transitions are
		// not noteworthy
		return nil, nil
	}

	return m.Create(device, severity, message)
}

// Create persists a new alert and dispatches it to every sink
// asynchronously. Device name and IP are snapshotted so the record
// survives the device's deletion.
func (m *Manager) Create(device *models.Device, severity models.Severity, message string) (*models.Alert, error) {
	a := &models.Alert{
		ID:         uuid.New().String(),
		DeviceID:   device.ID,
		DeviceName: device.Name,
		DeviceIP:   device.IP,
		Severity:   severity,
		Message:    message,
		CreatedAt:  time.Now(),
	}

	if err := m.db.InsertAlert(a); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("alertId", a.ID).
		Str("device", a.DeviceName).
		Str("severity", string(a.Severity)).
		Msg(a.Message)

	m.dispatch(a)
	return a, nil
}

// dispatch fans the alert out to all sinks. Each sink runs on its own
// goroutine so one unreachable channel never blocks or fails the
// others, and fan-out never blocks alert creation.
func (m *Manager) dispatch(a *models.Alert) {
	for _, n := range m.notifiers {
		m.wg.Add(1)
		go func(n Notifier) {
			defer m.wg.Done()
			if err := n.Notify(*a); err != nil {
				m.logger.Warn().Err(err).Str("sink", n.Name()).Str("alertId", a.ID).Msg("Notification delivery failed")
			}
		}(n)
	}
}

// Drain waits for in-flight notifications to finish. Used on shutdown
// and in tests; alert durability never depends on it.
func (m *Manager) Drain() {
	m.wg.Wait()
}

// Acknowledge marks the alert acknowledged. Acknowledging twice is an
// idempotent no-op, not an error.
func (m *Manager) Acknowledge(id, by string) error {
	a, err := m.db.GetAlert(id)
	if err != nil {
		return err
	}

	if a.Acknowledged {
		return nil
	}

	a.Acknowledged = true
	a.AcknowledgedBy = by
	a.AcknowledgedAt = time.Now()

	return m.db.UpdateAlertState(a)
}

// Resolve marks the alert resolved, removing it from active views.
// Resolving twice is an idempotent no-op.
func (m *Manager) Resolve(id string) error {
	a, err := m.db.GetAlert(id)
	if err != nil {
		return err
	}

	if a.Resolved {
		return nil
	}

	a.Resolved = true
	a.ResolvedAt = time.Now()

	return m.db.UpdateAlertState(a)
}

// ResolveByDevice resolves every active alert referencing the device.
// Used when a device is removed; the alert rows themselves remain as
// history.
func (m *Manager) ResolveByDevice(deviceID string) error {
	active, err := m.db.ScanAlerts(models.AlertFilter{DeviceID: deviceID, UnresolvedOnly: true})
	if err != nil {
		return err
	}

	now := time.Now()
	for _, a := range active {
		a.Resolved = true
		a.ResolvedAt = now
		if err := m.db.UpdateAlertState(a); err != nil {
			return err
		}
	}

	return nil
}

// GetAlerts returns alerts matching the filter, newest first.
func (m *Manager) GetAlerts(filter models.AlertFilter) ([]*models.Alert, error) {
	return m.db.ScanAlerts(filter)
}

// Summary returns the count breakdown over all alerts.
func (m *Manager) Summary() (*models.AlertSummary, error) {
	return m.db.AlertCounts()
}
