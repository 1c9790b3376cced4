package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"lab-inventory-api/internal/config"
)

// EventLevel represents the severity level of a sync event
type EventLevel string

const (
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// Notifier is an interface for delivering sync events to an external webhook
type Notifier interface {
	SendEvent(ctx context.Context, event Event) error
	IsHealthy(ctx context.Context) bool
}

// Event represents the payload delivered to the webhook when the agent
// pipeline changes the registry.
type Event struct {
	Level       EventLevel        `json:"level"`
	EquipmentID string            `json:"equipamento_id,omitempty"`
	Hostname    string            `json:"hostname,omitempty"`
	Action      string            `json:"action"`
	Message     string            `json:"message"`
	Timestamp   time.Time         `json:"timestamp,omitempty"`
	Source      string            `json:"source,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid
func (e *Event) Validate() error {
	if e.Level == "" {
		return fmt.Errorf("event level is required")
	}
	if e.Action == "" {
		return fmt.Errorf("event action is required")
	}
	if e.Message == "" {
		return fmt.Errorf("event message is required")
	}
	if len(e.Message) > 1000 {
		return fmt.Errorf("event message too long (max 1000 characters)")
	}

	switch e.Level {
	case LevelInfo, LevelWarning, LevelError:
	default:
		return fmt.Errorf("invalid event level: %s", e.Level)
	}

	return nil
}

// webhookClient is the concrete implementation of the Notifier interface
type webhookClient struct {
	config config.WebhookConfig
	client *http.Client
	logger *log.Logger
}

// NewWebhookNotifier creates a new Notifier that posts events to the
// configured webhook URL.
func NewWebhookNotifier(cfg config.WebhookConfig, logger *log.Logger) Notifier {
	if logger == nil {
		logger = log.Default()
	}

	return &webhookClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// SendEvent delivers an event with retries and backoff. Client-side
// failures (validation, payload size, 4xx) are not retried.
func (c *webhookClient) SendEvent(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Source == "" {
		event.Source = "lab-inventory-api"
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Printf("Retrying event delivery (attempt %d/%d)", attempt+1, c.config.RetryAttempts+1)
		}

		if err := c.sendAttempt(ctx, event); err != nil {
			lastErr = err
			c.logger.Printf("Event delivery attempt %d failed: %v", attempt+1, err)

			if strings.Contains(err.Error(), "status 4") ||
				strings.Contains(err.Error(), "payload too large") ||
				strings.Contains(err.Error(), "failed to marshal") {
				return err
			}
			continue
		}

		return nil
	}

	return fmt.Errorf("failed to deliver event after %d attempts: %w", c.config.RetryAttempts+1, lastErr)
}

// sendAttempt performs a single delivery attempt
func (c *webhookClient) sendAttempt(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if int64(len(payload)) > c.config.MaxPayloadSize {
		return fmt.Errorf("event payload too large: %d bytes (max %d)", len(payload), c.config.MaxPayloadSize)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.URL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lab-inventory-api/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		c.logger.Printf("Warning: unexpected status code %d from webhook", resp.StatusCode)
	}

	return nil
}

// IsHealthy checks if the webhook endpoint is reachable
func (c *webhookClient) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "HEAD", c.config.URL, nil)
	if err != nil {
		return false
	}

	req.Header.Set("User-Agent", "lab-inventory-api/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
