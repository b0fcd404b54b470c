// internal/models/models_test.go
package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestRiskLevelOrdering tests that risk levels form the expected total order
func TestRiskLevelOrdering(t *testing.T) {
	ordered := []RiskLevel{RiskInfo, RiskLow, RiskMedium, RiskHigh, RiskCritical}

	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Errorf("Expected %s < %s", ordered[i-1], ordered[i])
		}
	}
}

// TestParseRiskLevel tests name round-trips
func TestParseRiskLevel(t *testing.T) {
	for _, level := range []RiskLevel{RiskInfo, RiskLow, RiskMedium, RiskHigh, RiskCritical} {
		parsed, err := ParseRiskLevel(level.String())
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", level.String(), err)
		}
		if parsed != level {
			t.Errorf("Round-trip mismatch: got %v, expected %v", parsed, level)
		}
	}

	if _, err := ParseRiskLevel("catastrophic"); err == nil {
		t.Error("Expected error for unknown risk level")
	}
}

// TestParseDeviceType tests device type parsing with fallback
func TestParseDeviceType(t *testing.T) {
	if got := ParseDeviceType("switch"); got != DeviceSwitch {
		t.Errorf("Expected switch, got %s", got)
	}
	if got := ParseDeviceType("toaster"); got != DeviceOther {
		t.Errorf("Expected fallback to other, got %s", got)
	}
}

// TestDefaultPorts tests that every device type has defaults
func TestDefaultPorts(t *testing.T) {
	types := []DeviceType{
		DeviceRouter, DeviceSwitch, DeviceServer, DevicePC,
		DevicePrinter, DeviceAccessPoint, DeviceFirewall, DeviceOther,
	}

	for _, devType := range types {
		ports := DefaultPorts(devType)
		if len(ports) == 0 {
			t.Errorf("Expected default ports for %s", devType)
		}
	}

	// Printers monitor their raw print port
	found := false
	for _, p := range DefaultPorts(DevicePrinter) {
		if p == 9100 {
			found = true
		}
	}
	if !found {
		t.Error("Expected port 9100 in printer defaults")
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// TestDeviceSpecValidateCreate tests creation validation rules
func TestDeviceSpecValidateCreate(t *testing.T) {
	tests := []struct {
		name    string
		spec    DeviceSpec
		wantErr bool
	}{
		{
			name:    "valid",
			spec:    DeviceSpec{Name: strPtr("core-sw1"), IP: strPtr("10.0.0.1"), Type: strPtr("switch")},
			wantErr: false,
		},
		{
			name:    "missing name",
			spec:    DeviceSpec{IP: strPtr("10.0.0.1")},
			wantErr: true,
		},
		{
			name:    "missing ip",
			spec:    DeviceSpec{Name: strPtr("core-sw1")},
			wantErr: true,
		},
		{
			name:    "bad ip",
			spec:    DeviceSpec{Name: strPtr("core-sw1"), IP: strPtr("not-an-ip")},
			wantErr: true,
		},
		{
			name:    "bad port",
			spec:    DeviceSpec{Name: strPtr("core-sw1"), IP: strPtr("10.0.0.1"), PortsToMonitor: []int{70000}},
			wantErr: true,
		},
		{
			name:    "bad protocol",
			spec:    DeviceSpec{Name: strPtr("core-sw1"), IP: strPtr("10.0.0.1"), Protocol: strPtr("carrier-pigeon")},
			wantErr: true,
		},
		{
			name:    "negative interval",
			spec:    DeviceSpec{Name: strPtr("core-sw1"), IP: strPtr("10.0.0.1"), IntervalSeconds: intPtr(-5)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.ValidateCreate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrInvalidSpec) {
				t.Errorf("Expected ErrInvalidSpec, got %v", err)
			}
		})
	}
}

// TestDeviceSpecValidateUpdate tests that partial updates only check
// supplied fields
func TestDeviceSpecValidateUpdate(t *testing.T) {
	// Empty spec is a valid no-op update
	empty := DeviceSpec{}
	if err := empty.ValidateUpdate(); err != nil {
		t.Errorf("Empty update spec should validate: %v", err)
	}

	bad := DeviceSpec{IP: strPtr("999.999.0.1")}
	if err := bad.ValidateUpdate(); err == nil {
		t.Error("Expected error for invalid ip in update")
	}
}

// TestDeviceClone tests that clones do not share mutable state
func TestDeviceClone(t *testing.T) {
	d := &Device{
		ID:             "dev-1",
		Name:           "core-sw1",
		IP:             "10.0.0.1",
		PortsToMonitor: []int{22, 161},
		Credentials:    &Credentials{Username: "admin", Port: 22},
	}

	c := d.Clone()
	c.PortsToMonitor[0] = 9999
	c.Credentials.Username = "intruder"

	if d.PortsToMonitor[0] != 22 {
		t.Error("Clone shares port slice with original")
	}
	if d.Credentials.Username != "admin" {
		t.Error("Clone shares credentials with original")
	}
}

// TestEffectiveInterval tests the interval floor and default
func TestEffectiveInterval(t *testing.T) {
	d := &Device{}
	if got := d.EffectiveInterval(); got != DefaultCheckInterval {
		t.Errorf("Expected default interval, got %v", got)
	}

	d.CheckInterval = time.Second
	if got := d.EffectiveInterval(); got != MinCheckInterval {
		t.Errorf("Expected interval floor %v, got %v", MinCheckInterval, got)
	}

	d.CheckInterval = 5 * time.Minute
	if got := d.EffectiveInterval(); got != 5*time.Minute {
		t.Errorf("Expected configured interval, got %v", got)
	}
}

// TestDeviceJSONInterval tests that the check interval goes over the
// wire in milliseconds and a fetched device feeds back into an update
func TestDeviceJSONInterval(t *testing.T) {
	d := &Device{
		ID:            "dev-1",
		Name:          "core-sw1",
		IP:            "10.0.0.1",
		CheckInterval: 45 * time.Second,
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Failed to marshal device: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal raw: %v", err)
	}
	if got, ok := raw["checkIntervalMs"].(float64); !ok || got != 45000 {
		t.Errorf("Expected checkIntervalMs 45000, got %v", raw["checkIntervalMs"])
	}
	if _, ok := raw["checkInterval"]; ok {
		t.Error("Raw duration field leaked into JSON")
	}

	var back Device
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Failed to unmarshal device: %v", err)
	}
	if back.CheckInterval != 45*time.Second {
		t.Errorf("Interval did not round-trip: %v", back.CheckInterval)
	}

	// The same body decodes as an update payload with the same interval
	var spec DeviceSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		t.Fatalf("Failed to unmarshal spec: %v", err)
	}
	if iv, ok := spec.Interval(); !ok || iv != 45*time.Second {
		t.Errorf("Expected 45s from round-tripped spec, got %v (%v)", iv, ok)
	}
}

// TestSpecInterval tests interval resolution across payload fields
func TestSpecInterval(t *testing.T) {
	var spec DeviceSpec
	if _, ok := spec.Interval(); ok {
		t.Error("Expected no interval from empty spec")
	}

	secs := 30
	spec.IntervalSeconds = &secs
	if iv, ok := spec.Interval(); !ok || iv != 30*time.Second {
		t.Errorf("Expected 30s, got %v (%v)", iv, ok)
	}

	ms := int64(1500)
	spec.CheckIntervalMS = &ms
	if iv, ok := spec.Interval(); !ok || iv != 1500*time.Millisecond {
		t.Errorf("Expected millisecond field to win, got %v (%v)", iv, ok)
	}
}
