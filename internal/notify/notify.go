// Package notify delivers rotation events to an operator-configured webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// defaultTimeout bounds a single webhook delivery including connection setup.
const defaultTimeout = 10 * time.Second

// Event is the JSON payload posted to the webhook after a rotation.
type Event struct {
	// Client is the tunnel client that rotated.
	Client string `json:"client"`

	// OldLocation is the location tag the client vacated.
	OldLocation string `json:"old_location,omitempty"`

	// NewLocation is the location tag the client moved to.
	NewLocation string `json:"new_location"`

	// Endpoint is the newly assigned relay endpoint.
	Endpoint string `json:"endpoint"`

	// Time is when the notification was sent.
	Time time.Time `json:"time"`
}

// Nop is a notifier that discards every event. It stands in when no webhook
// is configured.
type Nop struct{}

// Notify discards the event.
func (Nop) Notify(context.Context, string, string, string, string) error { return nil }

// Webhook posts rotation events to a single URL. Delivery is best-effort;
// the caller decides what to do with failures (the coordinator logs them).
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhook creates a Webhook notifier for url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		now:    time.Now,
	}
}

// Notify posts one rotation event. Any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, client, oldLocation, newLocation, endpoint string) error {
	body, err := json.Marshal(Event{
		Client:      client,
		OldLocation: oldLocation,
		NewLocation: newLocation,
		Endpoint:    endpoint,
		Time:        w.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal rotation event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver rotation event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
