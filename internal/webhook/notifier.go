// Package webhook delivers ledger and token events to an external sink.
// Delivery is fire-and-forget: it runs off the request path and a failed
// delivery never fails the operation that produced the event.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/replyguy/backend/internal/metrics"
)

// Event names emitted by the service
const (
	EventReferralCodeCreated = "referral.code_created"
	EventReferralRedeemed    = "referral.redeemed"
	EventTrialIssued         = "trial.issued"
	EventTrialRedeemed       = "trial.redeemed"
	EventUsageLimitReached   = "usage.limit_reached"
)

// payload is the wire format posted to the sink
type payload struct {
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Notifier posts events to a configured sink URL. A Notifier with an empty
// URL is valid and drops all events.
type Notifier struct {
	url    string
	client *http.Client
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier for the given sink URL
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends an event to the sink in the background. It returns
// immediately; errors are logged and counted, never propagated.
func (n *Notifier) Notify(event string, data map[string]interface{}) {
	if n == nil || n.url == "" {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(event, data)
	}()
}

// Wait blocks until in-flight deliveries finish, bounded by ctx.
// Called during shutdown; events still pending after the deadline are lost,
// which is acceptable for a best-effort sink.
func (n *Notifier) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (n *Notifier) deliver(event string, data map[string]interface{}) {
	body, err := json.Marshal(payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		log.Printf("[webhook] Failed to encode %s event: %v", event, err)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[webhook] Failed to build request for %s event: %v", event, err)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "replyguy-webhook/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[webhook] Delivery of %s event failed: %v", event, err)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[webhook] Sink rejected %s event: status %d", event, resp.StatusCode)
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		return
	}

	metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
}
