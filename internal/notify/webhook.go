package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event     string   `json:"event"`
	Client    string   `json:"client"`
	PeakDB    *float64 `json:"peak_db,omitempty"`
	Command   []string `json:"command,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// SendWebhook delivers an alert payload to webhookURL.
func SendWebhook(webhookURL string, alert *Alert) error {
	payload := &WebhookPayload{
		Event:     alert.Event,
		Client:    alert.Client,
		Command:   alert.Command,
		Timestamp: timestampUTC(),
	}
	if alert.HasPeak {
		peak := alert.PeakDB
		payload.PeakDB = &peak
	}
	return sendWebhook(webhookURL, payload)
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, clientName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     EventTest,
		Client:    clientName,
		Message:   "This is a test notification from " + clientName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
