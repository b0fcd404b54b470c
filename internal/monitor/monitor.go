package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netwarden/internal/alerts"
	"netwarden/internal/models"
	"netwarden/internal/registry"
)

// Options configure the scheduler.
type Options struct {
	// TickInterval is how often due devices are evaluated.
	TickInterval time.Duration
	// ProbeTimeout caps a single probe; the effective deadline is the
	// smaller of this and the device's check interval, so a probe never
	// blocks past the next scheduled tick.
	ProbeTimeout time.Duration
	// MaxConcurrentProbes bounds the probe worker pool independently of
	// device count.
	MaxConcurrentProbes int
	// StopTimeout bounds how long Stop waits for in-flight probes.
	StopTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.TickInterval <= 0 {
		out.TickInterval = time.Second
	}
	if out.ProbeTimeout <= 0 {
		out.ProbeTimeout = 5 * time.Second
	}
	if out.MaxConcurrentProbes <= 0 {
		out.MaxConcurrentProbes = 16
	}
	if out.StopTimeout <= 0 {
		out.StopTimeout = 10 * time.Second
	}
	return out
}

// Scheduler runs the background monitoring loop. Each enabled device is
// probed on its own check interval; results feed the registry and the
// alert manager. One device's failure never halts the others.
type Scheduler struct {
	registry *registry.Registry
	alerts   *alerts.Manager
	prober   Prober
	opts     Options
	logger   zerolog.Logger

	sem chan struct{}

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastCheck map[string]time.Time
	inflight  map[string]bool
	results   map[string]*models.ProbeResult
}

// New creates a scheduler. It owns its own lifecycle: Start returns
// once the loop is running and Stop drains it, so multiple independent
// schedulers can coexist in tests.
func New(reg *registry.Registry, am *alerts.Manager, prober Prober, opts Options) *Scheduler {
	return &Scheduler{
		registry:  reg,
		alerts:    am,
		prober:    prober,
		opts:      opts.withDefaults(),
		logger:    log.With().Str("component", "monitor").Logger(),
		sem:       make(chan struct{}, opts.withDefaults().MaxConcurrentProbes),
		lastCheck: make(map[string]time.Time),
		inflight:  make(map[string]bool),
		results:   make(map[string]*models.ProbeResult),
	}
}

// Start launches the monitoring loop. Starting a running scheduler is
// an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().
		Dur("tickInterval", s.opts.TickInterval).
		Int("maxConcurrentProbes", s.opts.MaxConcurrentProbes).
		Msg("Monitor scheduler started")

	return nil
}

// Stop cancels all pending timers and waits, bounded by StopTimeout,
// for probes already executing to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Monitor scheduler stopped")
		return nil
	case <-time.After(s.opts.StopTimeout):
		return fmt.Errorf("scheduler stop timed out after %s", s.opts.StopTimeout)
	}
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// loop evaluates due devices every tick.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick launches probes for every enabled device whose interval elapsed.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	for _, d := range s.registry.ListDevices("", "") {
		if !d.Enabled {
			continue
		}

		s.mu.Lock()
		due := now.Sub(s.lastCheck[d.ID]) >= d.EffectiveInterval()
		busy := s.inflight[d.ID]
		if due && !busy {
			s.lastCheck[d.ID] = now
			s.inflight[d.ID] = true
		}
		s.mu.Unlock()

		if due && !busy {
			s.wg.Add(1)
			go s.probeDevice(ctx, d)
		}
	}
}

// probeDevice runs one probe under the concurrency cap and applies the
// result. The device argument is a transient snapshot of this cycle,
// never a long-lived reference.
func (s *Scheduler) probeDevice(ctx context.Context, d *models.Device) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, d.ID)
		s.mu.Unlock()
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}

	deadline := s.opts.ProbeTimeout
	if iv := d.EffectiveInterval(); iv < deadline {
		deadline = iv
	}
	probeCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result := s.prober.Probe(probeCtx, d)
	s.apply(d, result)
}

// apply records the probe outcome and emits transition alerts. The
// previous status comes back from the registry's atomic record, not
// from the caller's pre-probe snapshot, so overlapping probes for the
// same device observe distinct transitions and a single outage never
// alerts twice. Results for devices removed while the probe was in
// flight are discarded.
func (s *Scheduler) apply(d *models.Device, result *models.ProbeResult) {
	previous, err := s.registry.RecordStatus(d.ID, result.Status, result.Timestamp)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Debug().Str("id", d.ID).Msg("Discarding probe result for removed device")
		} else {
			s.logger.Error().Err(err).Str("id", d.ID).Msg("Failed to record device status")
		}
		return
	}

	s.mu.Lock()
	s.results[d.ID] = result
	s.mu.Unlock()

	if _, err := s.alerts.OnStatusTransition(d, previous, result.Status); err != nil {
		s.logger.Error().Err(err).Str("id", d.ID).Msg("Failed to create transition alert")
	}
}

// CheckAll probes every enabled device immediately. The one-shot
// fan-out does not alter the per-device timer schedule. Individual
// probe failures are represented as device status, so partial results
// are still a success.
func (s *Scheduler) CheckAll(ctx context.Context) int {
	var launched int
	var wg sync.WaitGroup

	for _, d := range s.registry.ListDevices("", "") {
		if !d.Enabled {
			continue
		}

		s.mu.Lock()
		busy := s.inflight[d.ID]
		if !busy {
			s.inflight[d.ID] = true
		}
		s.mu.Unlock()
		if busy {
			continue
		}

		launched++
		wg.Add(1)
		s.wg.Add(1)
		go func(d *models.Device) {
			defer wg.Done()
			s.probeDevice(ctx, d)
		}(d)
	}

	wg.Wait()
	return launched
}

// CheckDevice probes a single device on demand and returns the fresh
// snapshot. It honors the same per-device in-flight marker as the
// scheduled loop so a scheduled probe does not pile onto an on-demand
// one; when the marker is already held the probe still runs, and the
// registry's atomic status record keeps the resulting transitions
// distinct.
func (s *Scheduler) CheckDevice(ctx context.Context, id string) (*models.ProbeResult, error) {
	d, err := s.registry.GetDevice(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	claimed := !s.inflight[d.ID]
	if claimed {
		s.inflight[d.ID] = true
	}
	s.mu.Unlock()
	if claimed {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, d.ID)
			s.mu.Unlock()
		}()
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	result := s.prober.Probe(probeCtx, d)
	s.apply(d, result)

	return result, nil
}

// LastResult returns the most recent probe result for a device, if any.
func (s *Scheduler) LastResult(id string) (*models.ProbeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	return r, ok
}
