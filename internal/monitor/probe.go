// Package monitor implements device probing and the background
// monitoring scheduler. Probes combine an ICMP liveness check with TCP
// checks of each device's monitored ports; the scheduler runs them on a
// bounded worker pool honoring every device's own check interval.
package monitor

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netwarden/internal/models"
)

// Prober performs a single reachability check against a device. A probe
// failure is expressed in the result's status, never as a hard error.
type Prober interface {
	Probe(ctx context.Context, device *models.Device) *models.ProbeResult
}

// NetProber probes devices with ICMP ping plus TCP port dials. Without
// raw-socket privileges the ping falls back to TCP connects on 80/443.
type NetProber struct {
	privileged bool
	logger     zerolog.Logger
}

// NewNetProber creates a prober, detecting whether ICMP raw sockets are
// available.
func NewNetProber() *NetProber {
	privileged := os.Geteuid() == 0 || canUseRawSocket()
	return &NetProber{
		privileged: privileged,
		logger:     log.With().Str("component", "prober").Logger(),
	}
}

// canUseRawSocket checks if we can open an ICMP raw socket
func canUseRawSocket() bool {
	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Probe checks the device and derives its status: unreachable entirely
// means offline, a subset of monitored ports closed means degraded,
// everything else online.
func (p *NetProber) Probe(ctx context.Context, device *models.Device) *models.ProbeResult {
	result := &models.ProbeResult{
		DeviceID:  device.ID,
		Timestamp: time.Now(),
	}

	timeout := 3 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		result.Status = models.StatusOffline
		result.Error = "probe deadline already elapsed"
		return result
	}

	pingOK, latency, err := p.pingHost(device.IP, timeout)
	if err != nil {
		result.Error = err.Error()
	}
	result.PingOK = pingOK
	result.LatencyMS = latency

	result.PortsOpen, result.PortsClosed = p.checkPorts(ctx, device.IP, device.PortsToMonitor, timeout)
	result.Status = deriveStatus(pingOK, device.PortsToMonitor, result.PortsOpen, result.PortsClosed)

	return result
}

// deriveStatus maps probe observations onto a device status
func deriveStatus(pingOK bool, monitored, open, closed []int) models.DeviceStatus {
	switch {
	case !pingOK && len(open) == 0:
		return models.StatusOffline
	case len(monitored) > 0 && len(closed) > 0:
		if len(open) == 0 {
			return models.StatusOffline
		}
		return models.StatusDegraded
	default:
		return models.StatusOnline
	}
}

// pingHost checks liveness via ICMP, or TCP 80/443 when unprivileged
func (p *NetProber) pingHost(ip string, timeout time.Duration) (bool, float64, error) {
	if !p.privileged {
		return p.tcpPing(ip, timeout)
	}

	pinger, err := ping.NewPinger(ip)
	if err != nil {
		return false, 0, fmt.Errorf("creating pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(true)

	if err := pinger.Run(); err != nil {
		return false, 0, fmt.Errorf("ping failed: %w", err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return false, 0, nil
	}

	return true, float64(stats.AvgRtt.Microseconds()) / 1000, nil
}

// tcpPing approximates liveness with TCP connects to 80 and 443
func (p *NetProber) tcpPing(ip string, timeout time.Duration) (bool, float64, error) {
	for _, port := range []int{80, 443} {
		start := time.Now()
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, port), timeout)
		if err == nil {
			conn.Close()
			return true, float64(time.Since(start).Microseconds()) / 1000, nil
		}
	}
	return false, 0, nil
}

// checkPorts dials every monitored port concurrently
func (p *NetProber) checkPorts(ctx context.Context, ip string, ports []int, timeout time.Duration) (open, closed []int) {
	if len(ports) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	dialer := &net.Dialer{Timeout: timeout}

	for _, port := range ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()

			conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				conn.Close()
				open = append(open, port)
			} else {
				closed = append(closed, port)
			}
		}(port)
	}

	wg.Wait()

	sort.Ints(open)
	sort.Ints(closed)
	return open, closed
}
