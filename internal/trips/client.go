// Package trips fetches candidate trips from the trips service.
package trips

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// Provider returns trips with free seats heading to or from a sede. An error
// means the call failed; an empty slice means it succeeded with nothing.
type Provider interface {
	GetAvailableTrips(ctx context.Context, sedeID string, direction models.Direction) ([]models.TripCandidate, error)
}

// UpstreamStatusError is returned when the trips service answers with a non-2xx code.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("trips service returned status %d", e.StatusCode)
}

// HTTPClient queries the trips service over HTTP.
type HTTPClient struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPClient) GetAvailableTrips(ctx context.Context, sedeID string, direction models.Direction) ([]models.TripCandidate, error) {
	q := url.Values{}
	q.Set("sedeId", sedeID)
	q.Set("direction", string(direction))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Endpoint+"/api/v1/trips/available?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trips request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	var out []models.TripCandidate
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode trips: %w", err)
	}
	return out, nil
}

// Static serves a fixed candidate set. It backs local runs without a trips
// service and mirrors the upstream filter on sede, direction and free seats.
type Static []models.TripCandidate

func (s Static) GetAvailableTrips(_ context.Context, sedeID string, direction models.Direction) ([]models.TripCandidate, error) {
	out := make([]models.TripCandidate, 0, len(s))
	for _, c := range s {
		if c.DestinationSedeID == sedeID && c.Direction == direction && c.SeatsFree > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}
