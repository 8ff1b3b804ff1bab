package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"bnbconcierge/internal/entities"
)

// WebhookNotifier pushes handoff requests to the host's webhook.
// Delivery is best-effort: failures are logged, never surfaced to the
// guest path.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 8 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, h *entities.HandoffRequest) {
	if n == nil || n.url == "" {
		return
	}
	payload := map[string]string{
		"contact":         h.Contact,
		"guest_last_name": h.GuestLastName,
		"property_id":     h.PropertyID,
		"booking_id":      h.BookingID,
		"reason":          h.Reason,
		"message":         h.UserMessage,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", n.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[handoff] webhook notify failed: %v", err)
		return
	}
	resp.Body.Close()
}
