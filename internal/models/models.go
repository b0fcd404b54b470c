// Package models defines the data structures used throughout NetWarden.
// It contains the device registry records, alert records, pending actions
// awaiting confirmation, and the risk-level ordering used by the
// guardrails engine.
package models

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// DeviceType categorizes a monitored network device.
type DeviceType string

const (
	DeviceRouter      DeviceType = "router"
	DeviceSwitch      DeviceType = "switch"
	DeviceServer      DeviceType = "server"
	DevicePC          DeviceType = "pc"
	DevicePrinter     DeviceType = "printer"
	DeviceAccessPoint DeviceType = "access_point"
	DeviceFirewall    DeviceType = "firewall"
	DeviceOther       DeviceType = "other"
)

// ParseDeviceType maps a string onto a DeviceType, falling back to
// DeviceOther for anything unrecognized.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(s) {
	case DeviceRouter, DeviceSwitch, DeviceServer, DevicePC,
		DevicePrinter, DeviceAccessPoint, DeviceFirewall, DeviceOther:
		return DeviceType(s)
	}
	return DeviceOther
}

// DeviceStatus is the last-known reachability state of a device.
type DeviceStatus string

const (
	StatusOnline   DeviceStatus = "online"
	StatusOffline  DeviceStatus = "offline"
	StatusDegraded DeviceStatus = "degraded"
	StatusUnknown  DeviceStatus = "unknown"
)

// ValidStatus reports whether s names a known device status.
func ValidStatus(s string) bool {
	switch DeviceStatus(s) {
	case StatusOnline, StatusOffline, StatusDegraded, StatusUnknown:
		return true
	}
	return false
}

// ConnectionProtocol is how the executor layer reaches a device.
type ConnectionProtocol string

const (
	ProtoSSH    ConnectionProtocol = "ssh"
	ProtoTelnet ConnectionProtocol = "telnet"
	ProtoNone   ConnectionProtocol = "none"
)

// Credentials hold optional login details for a managed device.
// The secret is never included in JSON responses.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Secret   string `json:"-"`
	Port     int    `json:"port,omitempty"`
}

// Device represents a monitored network device.
type Device struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	IP             string             `json:"ip"`
	Type           DeviceType         `json:"type"`
	Description    string             `json:"description,omitempty"`
	Location       string             `json:"location,omitempty"`
	PortsToMonitor []int              `json:"portsToMonitor"`
	CheckInterval  time.Duration      `json:"-"`
	Enabled        bool               `json:"enabled"`
	Protocol       ConnectionProtocol `json:"connectionProtocol"`
	Credentials    *Credentials       `json:"credentials,omitempty"`

	Status        DeviceStatus `json:"status"`
	LastCheck     time.Time    `json:"lastCheck"`
	UptimePercent float64      `json:"uptimePercent"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// MarshalJSON emits the check interval as checkIntervalMs, the same
// name and unit the create/update payload accepts, so a fetched device
// round-trips into an update without unit guessing.
func (d Device) MarshalJSON() ([]byte, error) {
	type device Device
	return json.Marshal(struct {
		device
		CheckIntervalMS int64 `json:"checkIntervalMs"`
	}{device(d), d.CheckInterval.Milliseconds()})
}

func (d *Device) UnmarshalJSON(data []byte) error {
	type device Device
	aux := struct {
		*device
		CheckIntervalMS int64 `json:"checkIntervalMs"`
	}{device: (*device)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.CheckInterval = time.Duration(aux.CheckIntervalMS) * time.Millisecond
	return nil
}

// Clone returns a deep copy so callers never share mutable state with
// the registry's canonical record.
func (d *Device) Clone() *Device {
	c := *d
	c.PortsToMonitor = append([]int(nil), d.PortsToMonitor...)
	if d.Credentials != nil {
		creds := *d.Credentials
		c.Credentials = &creds
	}
	return &c
}

// MinCheckInterval is the floor applied to per-device check intervals so
// a misconfigured device cannot hammer the network.
const MinCheckInterval = 10 * time.Second

// DefaultCheckInterval applies when a spec does not supply one.
const DefaultCheckInterval = 60 * time.Second

// EffectiveInterval returns the device's check interval with the floor
// and default applied.
func (d *Device) EffectiveInterval() time.Duration {
	if d.CheckInterval <= 0 {
		return DefaultCheckInterval
	}
	if d.CheckInterval < MinCheckInterval {
		return MinCheckInterval
	}
	return d.CheckInterval
}

// DeviceSpec is the caller-supplied payload for creating or updating a
// device. Pointer fields distinguish "not supplied" from zero values on
// partial updates.
type DeviceSpec struct {
	Name            *string `json:"name,omitempty"`
	IP              *string `json:"ip,omitempty"`
	Type            *string `json:"type,omitempty"`
	Description     *string `json:"description,omitempty"`
	Location        *string `json:"location,omitempty"`
	PortsToMonitor  []int   `json:"portsToMonitor,omitempty"`
	CheckIntervalMS *int64  `json:"checkIntervalMs,omitempty"`
	IntervalSeconds *int    `json:"checkIntervalSeconds,omitempty"`
	Enabled         *bool   `json:"enabled,omitempty"`
	Protocol        *string `json:"connectionProtocol,omitempty"`
	Username        *string `json:"username,omitempty"`
	Secret          *string `json:"secret,omitempty"`
	CredPort        *int    `json:"credentialPort,omitempty"`
}

// Interval resolves the supplied check interval, preferring the
// millisecond field, and reports whether one was supplied at all.
func (s *DeviceSpec) Interval() (time.Duration, bool) {
	if s.CheckIntervalMS != nil {
		return time.Duration(*s.CheckIntervalMS) * time.Millisecond, true
	}
	if s.IntervalSeconds != nil {
		return time.Duration(*s.IntervalSeconds) * time.Second, true
	}
	return 0, false
}

// DefaultPorts returns the ports monitored by default for a device type.
func DefaultPorts(t DeviceType) []int {
	switch t {
	case DeviceRouter:
		return []int{22, 23, 80, 443, 161}
	case DeviceSwitch:
		return []int{22, 23, 161}
	case DeviceServer:
		return []int{22, 80, 443, 3389}
	case DevicePC:
		return []int{3389, 445}
	case DevicePrinter:
		return []int{9100, 515, 631, 80}
	case DeviceAccessPoint:
		return []int{22, 80, 443}
	case DeviceFirewall:
		return []int{22, 443, 161}
	default:
		return []int{80, 443}
	}
}

// ValidateCreate checks that the spec can produce a new device. The name
// and a parseable IP are required; everything else has defaults.
func (s *DeviceSpec) ValidateCreate() error {
	if s.Name == nil || *s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if s.IP == nil || *s.IP == "" {
		return fmt.Errorf("%w: ip is required", ErrInvalidSpec)
	}
	if net.ParseIP(*s.IP) == nil {
		return fmt.Errorf("%w: invalid ip %q", ErrInvalidSpec, *s.IP)
	}
	return s.validateCommon()
}

// ValidateUpdate checks only the fields present in a partial update.
func (s *DeviceSpec) ValidateUpdate() error {
	if s.Name != nil && *s.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidSpec)
	}
	if s.IP != nil && net.ParseIP(*s.IP) == nil {
		return fmt.Errorf("%w: invalid ip %q", ErrInvalidSpec, *s.IP)
	}
	return s.validateCommon()
}

func (s *DeviceSpec) validateCommon() error {
	if iv, ok := s.Interval(); ok && iv <= 0 {
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidSpec)
	}
	for _, p := range s.PortsToMonitor {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: invalid port %d", ErrInvalidSpec, p)
		}
	}
	if s.Protocol != nil {
		switch ConnectionProtocol(*s.Protocol) {
		case ProtoSSH, ProtoTelnet, ProtoNone:
		default:
			return fmt.Errorf("%w: unknown connection protocol %q", ErrInvalidSpec, *s.Protocol)
		}
	}
	return nil
}

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s names a known severity.
func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Alert is an append-only record of a noteworthy monitoring event.
// Device name and IP are snapshotted at creation time so history
// survives device deletion. Severity is immutable after creation.
type Alert struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"deviceId"`
	DeviceName     string    `json:"deviceName"`
	DeviceIP       string    `json:"deviceIp"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedBy string    `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledgedAt,omitempty"`
	Resolved       bool      `json:"resolved"`
	ResolvedAt     time.Time `json:"resolvedAt,omitempty"`
}

// AlertFilter narrows an alert query.
type AlertFilter struct {
	Severity       Severity
	DeviceID       string
	UnresolvedOnly bool
	Limit          int
}

// AlertSummary is the dashboard-level count breakdown of alerts.
type AlertSummary struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Critical     int `json:"critical"`
	Warning      int `json:"warning"`
	Info         int `json:"info"`
	Acknowledged int `json:"acknowledged"`
}

// ActionStatus is the lifecycle state of a pending action. An action
// leaves pending exactly once and is never mutated afterward.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionConfirmed ActionStatus = "confirmed"
	ActionCancelled ActionStatus = "cancelled"
	ActionExpired   ActionStatus = "expired"
)

// PendingAction is a state-changing operation held until a human
// confirms or cancels it, or its TTL elapses.
type PendingAction struct {
	ID          string            `json:"id"`
	ToolName    string            `json:"toolName"`
	Params      map[string]string `json:"params"`
	Description string            `json:"description"`
	RiskReason  string            `json:"riskReason"`
	CreatedAt   time.Time         `json:"createdAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	Status      ActionStatus      `json:"status"`
}

// RiskLevel orders how disruptive an action is. The numeric values give
// the total order info < low < medium < high < critical.
type RiskLevel int

const (
	RiskInfo RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{
	RiskInfo:     "info",
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if r >= RiskInfo && int(r) < len(riskNames) {
		return riskNames[r]
	}
	return "unknown"
}

// MarshalText makes RiskLevel encode as its name in JSON payloads.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a risk level name back into its RiskLevel.
func (r *RiskLevel) UnmarshalText(text []byte) error {
	level, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// ParseRiskLevel maps a name to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for level, name := range riskNames {
		if name == s {
			return RiskLevel(level), nil
		}
	}
	return RiskInfo, fmt.Errorf("unknown risk level %q", s)
}

// StatusSummary is the fleet-wide health rollup.
type StatusSummary struct {
	Total         int            `json:"total"`
	Online        int            `json:"online"`
	Offline       int            `json:"offline"`
	Degraded      int            `json:"degraded"`
	Unknown       int            `json:"unknown"`
	OverallHealth string         `json:"overallHealth"`
	ByType        map[string]int `json:"byType"`
}

// ProbeResult is the outcome of a single reachability check.
type ProbeResult struct {
	DeviceID    string       `json:"deviceId"`
	Timestamp   time.Time    `json:"timestamp"`
	PingOK      bool         `json:"pingOk"`
	LatencyMS   float64      `json:"pingLatencyMs"`
	PortsOpen   []int        `json:"portsOpen"`
	PortsClosed []int        `json:"portsClosed"`
	Status      DeviceStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
}
