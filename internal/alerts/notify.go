package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netwarden/internal/models"
)

// Notifier is an outbound notification sink. Delivery is fire-and
// forget: the manager logs failures and moves on, it never awaits
// success.
type Notifier interface {
	Name() string
	Notify(alert models.Alert) error
}

// LogNotifier writes alerts to the structured log. Always configured as
// the baseline sink.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates the log sink.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(a models.Alert) error {
	n.logger.Info().
		Str("alertId", a.ID).
		Str("severity", string(a.Severity)).
		Str("device", a.DeviceName).
		Str("ip", a.DeviceIP).
		Msg(a.Message)
	return nil
}

// WebhookNotifier POSTs the alert as JSON to a webhook endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook sink for the given URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(a models.Alert) error {
	payload := map[string]interface{}{
		"text":  fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Message),
		"alert": a,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// ShoutrrrNotifier dispatches alerts to chat services via Shoutrrr
// URLs (telegram, discord, slack, smtp, ...).
type ShoutrrrNotifier struct {
	urls []string
	send func(url, message string) error
}

// NewShoutrrrNotifier creates a sink delivering to every configured
// Shoutrrr URL.
func NewShoutrrrNotifier(urls []string) *ShoutrrrNotifier {
	return &ShoutrrrNotifier{
		urls: urls,
		send: shoutrrr.Send,
	}
}

func (n *ShoutrrrNotifier) Name() string { return "shoutrrr" }

func (n *ShoutrrrNotifier) Notify(a models.Alert) error {
	message := fmt.Sprintf("[%s] %s (%s): %s",
		strings.ToUpper(string(a.Severity)), a.DeviceName, a.DeviceIP, a.Message)

	var firstErr error
	for _, url := range n.urls {
		if err := n.send(url, message); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shoutrrr delivery failed: %w", err)
		}
	}

	return firstErr
}
