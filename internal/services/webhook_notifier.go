package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fleet-api/internal/models"
	"fleet-api/pkg/logging"
)

// WebhookNotifier handles webhook notifications to collaborator backends
type WebhookNotifier struct {
	httpClient *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second, // 10 second timeout
		},
	}
}

// WebhookPayload represents the payload sent to collaborator backends
type WebhookPayload struct {
	Event             string `json:"event"`                    // e.g., "device.status_changed"
	DeviceID          uint   `json:"device_id"`                // Device ID
	SerialNumber      string `json:"serial_number"`            // Device serial number
	UserID            uint   `json:"user_id"`                  // Owner user ID
	OldStatus         string `json:"old_status,omitempty"`     // Previous device status
	NewStatus         string `json:"new_status"`               // Current device status
	Reason            string `json:"reason,omitempty"`         // Suspension reason, if any
	GracePeriodEndsAt string `json:"grace_period_ends_at,omitempty"` // ISO 8601 format
	Timestamp         string `json:"timestamp"`                // ISO 8601 format
}

// NotifyStatusChange sends a device status change webhook
// This function is called asynchronously (in goroutine) to avoid blocking
func (wn *WebhookNotifier) NotifyStatusChange(callbackURL, secret string, device *models.Device, oldStatus, newStatus models.DeviceStatus, reason string) {
	if callbackURL == "" {
		// No webhook configured, skip
		return
	}

	payload := WebhookPayload{
		Event:        "device.status_changed",
		DeviceID:     device.ID,
		SerialNumber: device.SerialNumber,
		UserID:       device.UserID,
		OldStatus:    string(oldStatus),
		NewStatus:    string(newStatus),
		Reason:       reason,
		Timestamp:    time.Now().Format(time.RFC3339),
	}
	if device.GracePeriodEndsAt != nil {
		payload.GracePeriodEndsAt = device.GracePeriodEndsAt.Format(time.RFC3339)
	}

	// Send with retry mechanism
	wn.sendWithRetry(callbackURL, secret, payload)
}

// NotifyGraceExpired sends a grace period expiry webhook
func (wn *WebhookNotifier) NotifyGraceExpired(callbackURL, secret string, device *models.Device) {
	if callbackURL == "" {
		return
	}

	payload := WebhookPayload{
		Event:        "device.grace_period_expired",
		DeviceID:     device.ID,
		SerialNumber: device.SerialNumber,
		UserID:       device.UserID,
		NewStatus:    string(device.Status),
		Timestamp:    time.Now().Format(time.RFC3339),
	}
	if device.SuspendedReason != nil {
		payload.Reason = *device.SuspendedReason
	}
	if device.GracePeriodEndsAt != nil {
		payload.GracePeriodEndsAt = device.GracePeriodEndsAt.Format(time.RFC3339)
	}

	wn.sendWithRetry(callbackURL, secret, payload)
}

// sendWithRetry sends webhook with retry mechanism
// Retry schedule: 1s, 5s, 30s (3 attempts total)
func (wn *WebhookNotifier) sendWithRetry(callbackURL string, secret string, payload WebhookPayload) {
	retryDelays := []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}
	maxRetries := len(retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := wn.sendWebhook(callbackURL, secret, payload)
		if err == nil {
			logging.Infof("Webhook notification sent successfully - url: %s, device: %d, event: %s, attempt: %d",
				callbackURL, payload.DeviceID, payload.Event, attempt+1)
			return
		}

		logging.Errorf("Webhook notification failed - url: %s, device: %d, attempt: %d, error: %v",
			callbackURL, payload.DeviceID, attempt+1, err)

		// If not the last attempt, wait before retry
		if attempt < maxRetries-1 {
			time.Sleep(retryDelays[attempt])
		}
	}

	logging.Errorf("Webhook notification failed after %d attempts - url: %s, device: %d",
		maxRetries, callbackURL, payload.DeviceID)
}

// sendWebhook sends a single webhook request
func (wn *WebhookNotifier) sendWebhook(callbackURL string, secret string, payload WebhookPayload) error {
	// Marshal payload to JSON
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Create HTTP request
	req, err := http.NewRequest("POST", callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FleetService-Webhook/1.0")

	// Add signature if secret is provided
	if secret != "" {
		signature := wn.generateSignature(jsonData, secret)
		req.Header.Set("X-Fleet-Signature", signature)
	}

	// Send request
	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// generateSignature generates HMAC-SHA256 signature for webhook payload
func (wn *WebhookNotifier) generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
