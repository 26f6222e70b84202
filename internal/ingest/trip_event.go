package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/carpool-matching/internal/models"
)

// TripEvent is published by the trips service whenever a trip's availability
// changes (created, seats booked or released, cancelled).
type TripEvent struct {
	Type              string           `json:"type"`
	TripID            string           `json:"tripId"`
	DestinationSedeID string           `json:"destinationSedeId"`
	Direction         models.Direction `json:"direction"`
}

// DecodeTripEvent parses and validates a trip event message body.
func DecodeTripEvent(b []byte) (TripEvent, error) {
	var ev TripEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return TripEvent{}, fmt.Errorf("decode trip event: %w", err)
	}
	if ev.DestinationSedeID == "" {
		return TripEvent{}, errors.New("trip event without destinationSedeId")
	}
	if !ev.Direction.Valid() {
		return TripEvent{}, fmt.Errorf("trip event with unknown direction %q", ev.Direction)
	}
	return ev, nil
}
