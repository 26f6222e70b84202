package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// HTTPNotifier posts match events to the notifications service, which owns
// push and email delivery.
type HTTPNotifier struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPNotifier(endpoint string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPNotifier) MatchAccepted(ctx context.Context, ev models.MatchEvent) error {
	return h.post(ctx, ev)
}

func (h *HTTPNotifier) MatchRejected(ctx context.Context, ev models.MatchEvent) error {
	return h.post(ctx, ev)
}

func (h *HTTPNotifier) post(ctx context.Context, ev models.MatchEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint+"/api/v1/notifications/match-events", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", ev.Type, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify %s: status %d", ev.Type, resp.StatusCode)
	}
	return nil
}
