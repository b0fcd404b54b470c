// Package registry owns the canonical set of monitored devices. All
// mutations flow through the registry's own synchronization and are
// written through to the database before the in-memory view is
// considered authoritative, which bounds data loss on crash to in-flight
// calls.
package registry

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

// uptimeWindow bounds how many recent probe outcomes feed the rolling
// uptime percentage.
const uptimeWindow = 100

// Registry is the device registry. The scheduler is the only status
// writer; API handlers are readers plus explicit add/update/remove.
type Registry struct {
	db     *database.DB
	logger zerolog.Logger

	mu      sync.RWMutex
	devices map[string]*models.Device
	order   []string          // insertion order of device ids
	history map[string][]bool // recent outcomes per device, true = online
}

// New creates a registry backed by the given database
func New(db *database.DB) *Registry {
	return &Registry{
		db:      db,
		logger:  log.With().Str("component", "registry").Logger(),
		devices: make(map[string]*models.Device),
		order:   make([]string, 0),
		history: make(map[string][]bool),
	}
}

// Load restores the registry from the database at startup
func (r *Registry) Load() error {
	devices, err := r.db.ScanDevices()
	if err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*models.Device, len(devices))
	r.order = make([]string, 0, len(devices))
	for _, d := range devices {
		r.devices[d.ID] = d
		r.order = append(r.order, d.ID)
	}

	r.logger.Info().Int("count", len(devices)).Msg("Device registry loaded")
	return nil
}

// AddDevice validates the spec, assigns an id, persists the record, and
// returns the new device. Duplicate IPs are rejected before any
// persistence attempt.
func (r *Registry) AddDevice(spec *models.DeviceSpec) (*models.Device, error) {
	if err := spec.ValidateCreate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.devices {
		if existing.IP == *spec.IP {
			return nil, fmt.Errorf("%w: %s already registered as %q", models.ErrDuplicateIP, *spec.IP, existing.Name)
		}
	}

	devType := models.DeviceOther
	if spec.Type != nil {
		devType = models.ParseDeviceType(*spec.Type)
	}

	d := &models.Device{
		ID:             uuid.New().String(),
		Name:           *spec.Name,
		IP:             *spec.IP,
		Type:           devType,
		PortsToMonitor: models.DefaultPorts(devType),
		CheckInterval:  models.DefaultCheckInterval,
		Enabled:        true,
		Protocol:       models.ProtoNone,
		Status:         models.StatusUnknown,
		CreatedAt:      time.Now(),
	}

	applySpec(d, spec)

	// Write-through: persist before the in-memory view changes
	if err := r.db.UpsertDevice(d); err != nil {
		return nil, err
	}

	r.devices[d.ID] = d
	r.order = append(r.order, d.ID)

	r.logger.Info().Str("id", d.ID).Str("name", d.Name).Str("ip", d.IP).Msg("Device added")
	return d.Clone(), nil
}

// UpdateDevice merges only the supplied fields into the device record.
// Concurrent updates to the same device serialize on the registry lock.
func (r *Registry) UpdateDevice(id string, spec *models.DeviceSpec) (*models.Device, error) {
	if err := spec.ValidateUpdate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, models.ErrNotFound)
	}

	if spec.IP != nil && *spec.IP != d.IP {
		for _, existing := range r.devices {
			if existing.ID != id && existing.IP == *spec.IP {
				return nil, fmt.Errorf("%w: %s already registered as %q", models.ErrDuplicateIP, *spec.IP, existing.Name)
			}
		}
	}

	// Merge into a copy so a failed persist leaves the record untouched
	updated := d.Clone()
	applySpec(updated, spec)

	if err := r.db.UpsertDevice(updated); err != nil {
		return nil, err
	}

	r.devices[id] = updated

	r.logger.Info().Str("id", id).Str("name", updated.Name).Msg("Device updated")
	return updated.Clone(), nil
}

// RemoveDevice deletes the device. A second call for the same id
// returns ErrNotFound. Alert history referencing the device survives.
func (r *Registry) RemoveDevice(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return fmt.Errorf("device %s: %w", id, models.ErrNotFound)
	}

	if err := r.db.DeleteDevice(id); err != nil {
		return err
	}

	delete(r.devices, id)
	delete(r.history, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info().Str("id", id).Msg("Device removed")
	return nil
}

// GetDevice returns a copy of the device record
func (r *Registry) GetDevice(id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, models.ErrNotFound)
	}

	return d.Clone(), nil
}

// ListDevices returns devices in insertion order, optionally filtered
// by type and/or status. Empty filter strings match everything.
func (r *Registry) ListDevices(filterType, filterStatus string) []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*models.Device, 0, len(r.order))
	for _, id := range r.order {
		d := r.devices[id]
		if filterType != "" && string(d.Type) != filterType {
			continue
		}
		if filterStatus != "" && string(d.Status) != filterStatus {
			continue
		}
		devices = append(devices, d.Clone())
	}

	return devices
}

// RecordStatus is called by the monitor scheduler after each probe. It
// updates the device's status and last-check time, recomputes the
// rolling uptime over the bounded outcome window, and returns the
// status the device held before this call. Reading and replacing the
// status under one lock acquisition keeps transition detection exact
// when probes for the same device overlap. Results for devices removed
// while the probe was in flight are discarded via ErrNotFound.
func (r *Registry) RecordStatus(id string, status models.DeviceStatus, checkedAt time.Time) (models.DeviceStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return "", fmt.Errorf("device %s: %w", id, models.ErrNotFound)
	}

	previous := d.Status
	d.Status = status
	d.LastCheck = checkedAt

	window := append(r.history[id], status == models.StatusOnline)
	if len(window) > uptimeWindow {
		window = window[len(window)-uptimeWindow:]
	}
	r.history[id] = window

	online := 0
	for _, ok := range window {
		if ok {
			online++
		}
	}
	d.UptimePercent = float64(online) / float64(len(window)) * 100

	if err := r.db.UpsertDevice(d); err != nil {
		return "", err
	}

	return previous, nil
}

// StatusSummary computes the fleet-wide health rollup
func (r *Registry) StatusSummary() *models.StatusSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &models.StatusSummary{
		Total:  len(r.devices),
		ByType: make(map[string]int),
	}

	for _, d := range r.devices {
		switch d.Status {
		case models.StatusOnline:
			s.Online++
		case models.StatusOffline:
			s.Offline++
		case models.StatusDegraded:
			s.Degraded++
		default:
			s.Unknown++
		}
		s.ByType[string(d.Type)]++
	}

	switch {
	case s.Total == 0:
		s.OverallHealth = "no_devices"
	case s.Offline > 0:
		s.OverallHealth = "critical"
	case s.Degraded > 0:
		s.OverallHealth = "warning"
	case s.Unknown == s.Total:
		s.OverallHealth = "unknown"
	default:
		s.OverallHealth = "healthy"
	}

	return s
}

// applySpec merges supplied spec fields into the device record
func applySpec(d *models.Device, spec *models.DeviceSpec) {
	if spec.Name != nil {
		d.Name = *spec.Name
	}
	if spec.IP != nil {
		d.IP = *spec.IP
	}
	if spec.Type != nil {
		d.Type = models.ParseDeviceType(*spec.Type)
	}
	if spec.Description != nil {
		d.Description = *spec.Description
	}
	if spec.Location != nil {
		d.Location = *spec.Location
	}
	if spec.PortsToMonitor != nil {
		d.PortsToMonitor = append([]int(nil), spec.PortsToMonitor...)
	}
	if iv, ok := spec.Interval(); ok {
		if iv < models.MinCheckInterval {
			iv = models.MinCheckInterval
		}
		d.CheckInterval = iv
	}
	if spec.Enabled != nil {
		d.Enabled = *spec.Enabled
	}
	if spec.Protocol != nil {
		d.Protocol = models.ConnectionProtocol(*spec.Protocol)
	}
	if spec.Username != nil || spec.Secret != nil || spec.CredPort != nil {
		if d.Credentials == nil {
			d.Credentials = &models.Credentials{}
		}
		if spec.Username != nil {
			d.Credentials.Username = *spec.Username
		}
		if spec.Secret != nil {
			d.Credentials.Secret = *spec.Secret
		}
		if spec.CredPort != nil {
			d.Credentials.Port = *spec.CredPort
		}
	}
}
