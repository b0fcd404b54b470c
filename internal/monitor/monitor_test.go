// internal/monitor/monitor_test.go
package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"netwarden/internal/alerts"
	"netwarden/internal/database"
	"netwarden/internal/models"
	"netwarden/internal/registry"
)

// fakeProber returns scripted statuses per device IP and records calls.
type fakeProber struct {
	mu       sync.Mutex
	statuses map[string]models.DeviceStatus
	calls    map[string]int
	block    chan struct{} // when set, probes wait on it
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		statuses: make(map[string]models.DeviceStatus),
		calls:    make(map[string]int),
	}
}

func (p *fakeProber) setStatus(ip string, status models.DeviceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[ip] = status
}

func (p *fakeProber) callCount(ip string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[ip]
}

func (p *fakeProber) Probe(ctx context.Context, device *models.Device) *models.ProbeResult {
	p.mu.Lock()
	p.calls[device.IP]++
	status, ok := p.statuses[device.IP]
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	if !ok {
		status = models.StatusOnline
	}
	return &models.ProbeResult{
		DeviceID:  device.ID,
		Timestamp: time.Now(),
		PingOK:    status != models.StatusOffline,
		Status:    status,
	}
}

type testEnv struct {
	registry  *registry.Registry
	alerts    *alerts.Manager
	prober    *fakeProber
	scheduler *Scheduler
}

func setupTestScheduler(t *testing.T, opts Options) (*testEnv, func()) {
	tempDir, err := os.MkdirTemp("", "netwarden-monitor-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := database.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	reg := registry.New(db)
	if err := reg.Load(); err != nil {
		db.Close()
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to load registry: %v", err)
	}

	am := alerts.NewManager(db)
	prober := newFakeProber()
	sched := New(reg, am, prober, opts)

	cleanup := func() {
		if sched.IsRunning() {
			sched.Stop()
		}
		am.Drain()
		db.Close()
		os.RemoveAll(tempDir)
	}

	return &testEnv{registry: reg, alerts: am, prober: prober, scheduler: sched}, cleanup
}

func addDevice(t *testing.T, reg *registry.Registry, name, ip string) *models.Device {
	t.Helper()
	d, err := reg.AddDevice(&models.DeviceSpec{
		Name: &name,
		IP:   &ip,
		Type: func() *string { s := "switch"; return &s }(),
	})
	if err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}
	return d
}

// TestStartStop tests lifecycle transitions
func TestStartStop(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{})
	defer cleanup()

	s := env.scheduler
	if s.IsRunning() {
		t.Error("Fresh scheduler should not be running")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if !s.IsRunning() {
		t.Error("Scheduler should report running")
	}
	if err := s.Start(); err == nil {
		t.Error("Second start should fail")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}
	if s.IsRunning() {
		t.Error("Scheduler should report stopped")
	}
	if err := s.Stop(); err == nil {
		t.Error("Second stop should fail")
	}

	// Restart after stop works
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to restart: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop again: %v", err)
	}
}

// TestCheckAll tests the one-shot fan-out
func TestCheckAll(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{})
	defer cleanup()

	addDevice(t, env.registry, "a", "10.0.0.1")
	addDevice(t, env.registry, "b", "10.0.0.2")
	disabled := addDevice(t, env.registry, "c", "10.0.0.3")

	off := false
	if _, err := env.registry.UpdateDevice(disabled.ID, &models.DeviceSpec{Enabled: &off}); err != nil {
		t.Fatalf("Failed to disable device: %v", err)
	}

	n := env.scheduler.CheckAll(context.Background())
	if n != 2 {
		t.Errorf("Expected 2 probes launched, got %d", n)
	}
	if env.prober.callCount("10.0.0.3") != 0 {
		t.Error("Disabled device was probed")
	}

	// Statuses landed in the registry
	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		found := false
		for _, d := range env.registry.ListDevices("", "online") {
			if d.IP == ip {
				found = true
			}
		}
		if !found {
			t.Errorf("Device %s not online after CheckAll", ip)
		}
	}
}

// TestCheckDevice tests the on-demand single probe
func TestCheckDevice(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{})
	defer cleanup()

	d := addDevice(t, env.registry, "core-sw1", "10.0.0.1")
	env.prober.setStatus("10.0.0.1", models.StatusDegraded)

	result, err := env.scheduler.CheckDevice(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Failed to check device: %v", err)
	}
	if result.Status != models.StatusDegraded {
		t.Errorf("Expected degraded result, got %s", result.Status)
	}

	got, err := env.registry.GetDevice(d.ID)
	if err != nil {
		t.Fatalf("Failed to get device: %v", err)
	}
	if got.Status != models.StatusDegraded {
		t.Errorf("Status not recorded: %s", got.Status)
	}

	last, ok := env.scheduler.LastResult(d.ID)
	if !ok || last.Status != models.StatusDegraded {
		t.Errorf("LastResult mismatch: %+v", last)
	}

	if _, err := env.scheduler.CheckDevice(context.Background(), "missing"); err == nil {
		t.Error("Expected error for unknown device")
	}
}

// TestTransitionAlerts tests the probe-to-alert pipeline
func TestTransitionAlerts(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{})
	defer cleanup()

	d := addDevice(t, env.registry, "core-sw1", "10.0.0.1")
	ctx := context.Background()

	// unknown -> online: establishing, no alert
	if _, err := env.scheduler.CheckDevice(ctx, d.ID); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	// online -> offline: critical
	env.prober.setStatus("10.0.0.1", models.StatusOffline)
	if _, err := env.scheduler.CheckDevice(ctx, d.ID); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	// offline -> offline: dedup, nothing new
	if _, err := env.scheduler.CheckDevice(ctx, d.ID); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	// offline -> online: info recovery
	env.prober.setStatus("10.0.0.1", models.StatusOnline)
	if _, err := env.scheduler.CheckDevice(ctx, d.ID); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	env.alerts.Drain()

	all, err := env.alerts.GetAlerts(models.AlertFilter{})
	if err != nil {
		t.Fatalf("Failed to get alerts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected exactly 2 alerts for outage and recovery, got %d", len(all))
	}
	if all[0].Severity != models.SeverityInfo || all[1].Severity != models.SeverityCritical {
		t.Errorf("Unexpected severities: %s, %s", all[0].Severity, all[1].Severity)
	}
	if all[1].DeviceIP != "10.0.0.1" {
		t.Errorf("Alert missing device IP: %+v", all[1])
	}
}

// TestConcurrentCheckDeviceSingleAlert tests that overlapping on-demand
// checks observing one outage raise exactly one alert
func TestConcurrentCheckDeviceSingleAlert(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{})
	defer cleanup()

	d := addDevice(t, env.registry, "core-sw1", "10.0.0.9")
	env.prober.setStatus("10.0.0.9", models.StatusOffline)

	block := make(chan struct{})
	env.prober.mu.Lock()
	env.prober.block = block
	env.prober.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.scheduler.CheckDevice(context.Background(), d.ID); err != nil {
				t.Errorf("Check failed: %v", err)
			}
		}()
	}

	// Hold both probes in flight so each starts from the pre-outage
	// state, then release them together
	deadline := time.After(2 * time.Second)
	for env.prober.callCount("10.0.0.9") < 2 {
		select {
		case <-deadline:
			t.Fatal("Second overlapping check never started")
		case <-time.After(10 * time.Millisecond):
		}
	}
	close(block)
	wg.Wait()

	env.alerts.Drain()
	all, err := env.alerts.GetAlerts(models.AlertFilter{})
	if err != nil {
		t.Fatalf("Failed to get alerts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected exactly one alert for one outage, got %d", len(all))
	}
	if all[0].Severity != models.SeverityCritical {
		t.Errorf("Expected critical severity, got %s", all[0].Severity)
	}
}

// TestScheduledProbing tests that the loop probes due devices
func TestScheduledProbing(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{
		TickInterval: 10 * time.Millisecond,
	})
	defer cleanup()

	addDevice(t, env.registry, "core-sw1", "10.0.0.1")

	if err := env.scheduler.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	// The first due evaluation happens within a few ticks
	deadline := time.After(2 * time.Second)
	for env.prober.callCount("10.0.0.1") == 0 {
		select {
		case <-deadline:
			t.Fatal("Device was never probed by the loop")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := env.scheduler.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}
}

// TestInflightGuard tests that a slow probe is never overlapped by the
// scheduler for the same device
func TestInflightGuard(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{
		TickInterval: 10 * time.Millisecond,
	})
	defer cleanup()

	addDevice(t, env.registry, "core-sw1", "10.0.0.1")

	block := make(chan struct{})
	env.prober.mu.Lock()
	env.prober.block = block
	env.prober.mu.Unlock()

	if err := env.scheduler.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	// Wait for the first probe to start, then give the loop time to
	// (incorrectly) launch another
	deadline := time.After(2 * time.Second)
	for env.prober.callCount("10.0.0.1") == 0 {
		select {
		case <-deadline:
			t.Fatal("Device was never probed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	time.Sleep(100 * time.Millisecond)

	if n := env.prober.callCount("10.0.0.1"); n != 1 {
		t.Errorf("Expected a single in-flight probe, got %d", n)
	}

	close(block)
	if err := env.scheduler.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}
}

// TestRemovedDeviceResultDiscarded tests the delete-during-probe race
func TestRemovedDeviceResultDiscarded(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{})
	defer cleanup()

	d := addDevice(t, env.registry, "core-sw1", "10.0.0.1")

	// Take a snapshot as the scheduler would, then remove the device
	// before the result is applied
	snapshot, err := env.registry.GetDevice(d.ID)
	if err != nil {
		t.Fatalf("Failed to get device: %v", err)
	}
	if err := env.registry.RemoveDevice(d.ID); err != nil {
		t.Fatalf("Failed to remove device: %v", err)
	}

	result := env.prober.Probe(context.Background(), snapshot)
	env.scheduler.apply(snapshot, result)

	// No resurrection and no alert
	if _, err := env.registry.GetDevice(d.ID); err == nil {
		t.Error("Removed device came back after probe result")
	}
	env.alerts.Drain()
	all, err := env.alerts.GetAlerts(models.AlertFilter{})
	if err != nil {
		t.Fatalf("Failed to get alerts: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Discarded result still produced %d alerts", len(all))
	}
}

// TestProbeDeadline tests that the probe context honors the smaller of
// the probe timeout and the device interval
func TestProbeDeadline(t *testing.T) {
	env, cleanup := setupTestScheduler(t, Options{
		TickInterval: 10 * time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
		StopTimeout:  2 * time.Second,
	})
	defer cleanup()

	addDevice(t, env.registry, "core-sw1", "10.0.0.1")

	// A probe that never returns on its own is cut off by the deadline
	block := make(chan struct{})
	env.prober.mu.Lock()
	env.prober.block = block
	env.prober.mu.Unlock()
	defer close(block)

	if err := env.scheduler.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for env.prober.callCount("10.0.0.1") == 0 {
		select {
		case <-deadline:
			t.Fatal("Device was never probed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Stop must not hang on the blocked probe: its context expires
	if err := env.scheduler.Stop(); err != nil {
		t.Fatalf("Stop blocked on a deadlined probe: %v", err)
	}
}

// TestProbeStatusDerivation tests the offline/degraded/online rules
func TestProbeStatusDerivation(t *testing.T) {
	tests := []struct {
		name   string
		pingOK bool
		ports  []int
		open   []int
		closed []int
		want   models.DeviceStatus
	}{
		{"all reachable", true, []int{22, 80}, []int{22, 80}, nil, models.StatusOnline},
		{"nothing reachable", false, []int{22}, nil, []int{22}, models.StatusOffline},
		{"some ports closed", true, []int{22, 80}, []int{22}, []int{80}, models.StatusDegraded},
		{"ping only, no ports", true, nil, nil, nil, models.StatusOnline},
		{"no ping, no open ports", false, nil, nil, nil, models.StatusOffline},
		{"no ping but ports open", false, []int{22}, []int{22}, nil, models.StatusOnline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveStatus(tt.pingOK, tt.ports, tt.open, tt.closed)
			if got != tt.want {
				t.Errorf("deriveStatus(%v, %v, %v, %v) = %s, want %s",
					tt.pingOK, tt.ports, tt.open, tt.closed, got, tt.want)
			}
		})
	}
}
