// Package database provides the persistence substrate for NetWarden.
// It handles all interactions with the SQLite database including
// initialization, optimization, and the durable upsert/delete/scan
// operations over device and alert records that the registry and alert
// manager build on.
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netwarden/internal/models"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	Path   string // Exported for integration tests
	logger *zerolog.Logger
	sync.Mutex
}

// New creates a new database connection
func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	logger := log.With().Str("component", "database").Logger()

	dbInstance := &DB{
		DB:     db,
		Path:   path,
		logger: &logger,
	}

	if err := dbInstance.initializeDB(); err != nil {
		db.Close()
		return nil, err
	}

	if err := dbInstance.optimizeDB(); err != nil {
		logger.Warn().Err(err).Msg("Failed to set some database optimization parameters")
	}

	return dbInstance, nil
}

// Initialize database schema
func (db *DB) initializeDB() error {
	db.logger.Info().Msg("Initializing database schema")

	schema := `
	-- Devices table. No UNIQUE constraint on ip: uniqueness is enforced
	-- at the registry layer so concurrent duplicates resolve last-insert-wins
	-- here instead of failing the write.
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ip TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		location TEXT,
		ports_json TEXT NOT NULL DEFAULT '[]',
		check_interval_ms INTEGER NOT NULL DEFAULT 60000,
		enabled INTEGER NOT NULL DEFAULT 1,
		protocol TEXT NOT NULL DEFAULT 'none',
		username TEXT,
		secret TEXT,
		cred_port INTEGER,
		status TEXT NOT NULL DEFAULT 'unknown',
		last_check TIMESTAMP,
		uptime_percent REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_ip ON devices(ip);
	CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);

	-- Alerts table, append-only history
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL,
		device_ip TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		acknowledged_by TEXT,
		acknowledged_at TIMESTAMP,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_device ON alerts(device_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON alerts(resolved);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

// optimizeDB runs PRAGMA statements for performance
func (db *DB) optimizeDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// OptimizeDatabase performs maintenance and compaction
func (db *DB) OptimizeDatabase() error {
	db.Lock()
	defer db.Unlock()

	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if _, err := db.Exec("ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}

	return nil
}

// UpsertDevice writes a device record, replacing any existing row with
// the same id. The registry calls this before its in-memory view is
// considered authoritative.
func (db *DB) UpsertDevice(d *models.Device) error {
	db.Lock()
	defer db.Unlock()

	ports, err := json.Marshal(d.PortsToMonitor)
	if err != nil {
		return fmt.Errorf("failed to encode monitored ports: %w", err)
	}

	var username, secret sql.NullString
	var credPort sql.NullInt64
	if d.Credentials != nil {
		username = sql.NullString{String: d.Credentials.Username, Valid: true}
		secret = sql.NullString{String: d.Credentials.Secret, Valid: true}
		credPort = sql.NullInt64{Int64: int64(d.Credentials.Port), Valid: true}
	}

	var lastCheck sql.NullTime
	if !d.LastCheck.IsZero() {
		lastCheck = sql.NullTime{Time: d.LastCheck, Valid: true}
	}

	_, err = db.Exec(`
		INSERT INTO devices (
			id, name, ip, type, description, location, ports_json,
			check_interval_ms, enabled, protocol, username, secret, cred_port,
			status, last_check, uptime_percent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			ip = excluded.ip,
			type = excluded.type,
			description = excluded.description,
			location = excluded.location,
			ports_json = excluded.ports_json,
			check_interval_ms = excluded.check_interval_ms,
			enabled = excluded.enabled,
			protocol = excluded.protocol,
			username = excluded.username,
			secret = excluded.secret,
			cred_port = excluded.cred_port,
			status = excluded.status,
			last_check = excluded.last_check,
			uptime_percent = excluded.uptime_percent`,
		d.ID, d.Name, d.IP, string(d.Type), d.Description, d.Location, string(ports),
		d.CheckInterval.Milliseconds(), d.Enabled, string(d.Protocol), username, secret, credPort,
		string(d.Status), lastCheck, d.UptimePercent, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", d.ID, err)
	}

	return nil
}

// DeleteDevice removes a device row. Deleting a missing row is not an
// error at this layer; the registry decides NotFound semantics.
func (db *DB) DeleteDevice(id string) error {
	db.Lock()
	defer db.Unlock()

	if _, err := db.Exec("DELETE FROM devices WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete device %s: %w", id, err)
	}

	return nil
}

// GetDevice loads a single device row
func (db *DB) GetDevice(id string) (*models.Device, error) {
	row := db.QueryRow(`
		SELECT id, name, ip, type, description, location, ports_json,
			check_interval_ms, enabled, protocol, username, secret, cred_port,
			status, last_check, uptime_percent, created_at
		FROM devices WHERE id = ?`, id)

	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("device %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device %s: %w", id, err)
	}

	return d, nil
}

// ScanDevices returns all device rows in insertion order
func (db *DB) ScanDevices() ([]*models.Device, error) {
	rows, err := db.Query(`
		SELECT id, name, ip, type, description, location, ports_json,
			check_interval_ms, enabled, protocol, username, secret, cred_port,
			status, last_check, uptime_percent, created_at
		FROM devices ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var devType, protocol, status, portsJSON string
	var description, location, username, secret sql.NullString
	var credPort sql.NullInt64
	var intervalMS int64
	var lastCheck sql.NullTime

	err := row.Scan(
		&d.ID, &d.Name, &d.IP, &devType, &description, &location, &portsJSON,
		&intervalMS, &d.Enabled, &protocol, &username, &secret, &credPort,
		&status, &lastCheck, &d.UptimePercent, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = models.DeviceType(devType)
	d.Protocol = models.ConnectionProtocol(protocol)
	d.Status = models.DeviceStatus(status)
	d.Description = description.String
	d.Location = location.String
	d.CheckInterval = time.Duration(intervalMS) * time.Millisecond
	if lastCheck.Valid {
		d.LastCheck = lastCheck.Time
	}

	if err := json.Unmarshal([]byte(portsJSON), &d.PortsToMonitor); err != nil {
		return nil, fmt.Errorf("corrupt ports column for device %s: %w", d.ID, err)
	}

	if username.Valid || secret.Valid || credPort.Valid {
		d.Credentials = &models.Credentials{
			Username: username.String,
			Secret:   secret.String,
			Port:     int(credPort.Int64),
		}
	}

	return &d, nil
}

// InsertAlert appends a new alert row. Alerts are never deleted.
func (db *DB) InsertAlert(a *models.Alert) error {
	db.Lock()
	defer db.Unlock()

	_, err := db.Exec(`
		INSERT INTO alerts (
			id, device_id, device_name, device_ip, severity, message,
			created_at, acknowledged, acknowledged_by, acknowledged_at,
			resolved, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.DeviceName, a.DeviceIP, string(a.Severity), a.Message,
		a.CreatedAt, a.Acknowledged, nullString(a.AcknowledgedBy), nullTime(a.AcknowledgedAt),
		a.Resolved, nullTime(a.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
	}

	return nil
}

// UpdateAlertState persists acknowledge/resolve changes. Severity and
// message are immutable after creation and are deliberately absent here.
func (db *DB) UpdateAlertState(a *models.Alert) error {
	db.Lock()
	defer db.Unlock()

	res, err := db.Exec(`
		UPDATE alerts SET
			acknowledged = ?, acknowledged_by = ?, acknowledged_at = ?,
			resolved = ?, resolved_at = ?
		WHERE id = ?`,
		a.Acknowledged, nullString(a.AcknowledgedBy), nullTime(a.AcknowledgedAt),
		a.Resolved, nullTime(a.ResolvedAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", a.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("alert %s: %w", a.ID, models.ErrNotFound)
	}

	return nil
}

// GetAlert loads a single alert row
func (db *DB) GetAlert(id string) (*models.Alert, error) {
	var a models.Alert
	var severity string
	var ackBy sql.NullString
	var ackAt, resolvedAt sql.NullTime

	err := db.QueryRow(`
		SELECT id, device_id, device_name, device_ip, severity, message,
			created_at, acknowledged, acknowledged_by, acknowledged_at,
			resolved, resolved_at
		FROM alerts WHERE id = ?`, id,
	).Scan(
		&a.ID, &a.DeviceID, &a.DeviceName, &a.DeviceIP, &severity, &a.Message,
		&a.CreatedAt, &a.Acknowledged, &ackBy, &ackAt,
		&a.Resolved, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %s: %w", id, err)
	}

	a.Severity = models.Severity(severity)
	a.AcknowledgedBy = ackBy.String
	if ackAt.Valid {
		a.AcknowledgedAt = ackAt.Time
	}
	if resolvedAt.Valid {
		a.ResolvedAt = resolvedAt.Time
	}

	return &a, nil
}

// ScanAlerts returns alert rows matching the filter, newest first
func (db *DB) ScanAlerts(filter models.AlertFilter) ([]*models.Alert, error) {
	query := `
		SELECT id, device_id, device_name, device_ip, severity, message,
			created_at, acknowledged, acknowledged_by, acknowledged_at,
			resolved, resolved_at
		FROM alerts WHERE 1=1`
	var args []interface{}

	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if filter.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, filter.DeviceID)
	}
	if filter.UnresolvedOnly {
		query += " AND resolved = 0"
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var a models.Alert
		var severity string
		var ackBy sql.NullString
		var ackAt, resolvedAt sql.NullTime

		err := rows.Scan(
			&a.ID, &a.DeviceID, &a.DeviceName, &a.DeviceIP, &severity, &a.Message,
			&a.CreatedAt, &a.Acknowledged, &ackBy, &ackAt,
			&a.Resolved, &resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}

		a.Severity = models.Severity(severity)
		a.AcknowledgedBy = ackBy.String
		if ackAt.Valid {
			a.AcknowledgedAt = ackAt.Time
		}
		if resolvedAt.Valid {
			a.ResolvedAt = resolvedAt.Time
		}

		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// AlertCounts computes the summary breakdown over all alert rows
func (db *DB) AlertCounts() (*models.AlertSummary, error) {
	var s models.AlertSummary

	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN resolved = 0 AND severity = 'critical' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN resolved = 0 AND severity = 'warning' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN resolved = 0 AND severity = 'info' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN resolved = 0 AND acknowledged = 1 THEN 1 ELSE 0 END), 0)
		FROM alerts`,
	).Scan(&s.Total, &s.Active, &s.Critical, &s.Warning, &s.Info, &s.Acknowledged)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	return &s, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
