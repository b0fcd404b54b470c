// internal/alerts/notify_test.go
package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"netwarden/internal/models"
)

// TestWebhookNotifier tests payload shape and error propagation
func TestWebhookNotifier(t *testing.T) {
	var received map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("Failed to decode webhook payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	a := models.Alert{
		ID:         "al-1",
		DeviceName: "core-sw1",
		DeviceIP:   "10.0.0.1",
		Severity:   models.SeverityCritical,
		Message:    "Device core-sw1 (10.0.0.1) is offline",
	}

	if err := n.Notify(a); err != nil {
		t.Fatalf("Webhook delivery failed: %v", err)
	}

	text, _ := received["text"].(string)
	if !strings.HasPrefix(text, "[CRITICAL]") {
		t.Errorf("Expected severity prefix in text, got %q", text)
	}
	if received["alert"] == nil {
		t.Error("Expected full alert in payload")
	}
}

// TestWebhookNotifierErrorStatus tests that non-2xx responses fail
func TestWebhookNotifierErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	if err := n.Notify(models.Alert{ID: "al-1"}); err == nil {
		t.Error("Expected error for 500 response")
	}
}

// TestLogNotifier tests that the baseline sink never fails
func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	if err := n.Notify(models.Alert{ID: "al-1", Severity: models.SeverityInfo, Message: "test"}); err != nil {
		t.Errorf("Log sink failed: %v", err)
	}
	if n.Name() != "log" {
		t.Errorf("Unexpected sink name %q", n.Name())
	}
}
