package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidCriteria   = errors.New("invalid search criteria")
	ErrInvalidTransition = errors.New("invalid match transition")
	ErrMatchNotFound     = errors.New("match not found")
)

// Direction is the commute leg relative to a sede.
type Direction string

const (
	DirectionToSede   Direction = "TO_SEDE"
	DirectionFromSede Direction = "FROM_SEDE"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case DirectionToSede, DirectionFromSede:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidCriteria, s)
	}
}

func (d Direction) Valid() bool {
	return d == DirectionToSede || d == DirectionFromSede
}

// MatchStatus is the lifecycle state of a persisted match.
// PENDING is the only state with outgoing transitions.
type MatchStatus string

const (
	StatusPending  MatchStatus = "PENDING"
	StatusAccepted MatchStatus = "ACCEPTED"
	StatusRejected MatchStatus = "REJECTED"
)

func ParseMatchStatus(s string) (MatchStatus, error) {
	switch st := MatchStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusAccepted, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown match status %q", s)
	}
}

func (s MatchStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a match in status from may move to status to.
func CanTransition(from, to MatchStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusAccepted || to == StatusRejected
	case StatusAccepted, StatusRejected:
		return false
	default:
		return false
	}
}

type Match struct {
	ID          string      `json:"id" db:"id"`
	TripID      string      `json:"tripId" db:"trip_id"`
	PassengerID string      `json:"passengerId" db:"passenger_id"`
	DriverID    string      `json:"driverId" db:"driver_id"`
	MatchScore  float64     `json:"matchScore" db:"match_score"`
	Status      MatchStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

// TripCandidate is a trip offered by the trips service. Read-only here.
type TripCandidate struct {
	ID                string    `json:"id"`
	DriverID          string    `json:"driverId"`
	Origin            string    `json:"origin"`
	DestinationSedeID string    `json:"destinationSedeId"`
	DateTime          time.Time `json:"dateTime"`
	SeatsTotal        int       `json:"seatsTotal"`
	SeatsFree         int       `json:"seatsFree"`
	Direction         Direction `json:"direction"`
	PairedTripID      string    `json:"pairedTripId,omitempty"`
}

// SearchCriteria is what a rider searches with. SedeID is the destination sede
// for TO_SEDE searches and the origin sede for FROM_SEDE searches.
type SearchCriteria struct {
	SedeID         string
	PreferredTime  string
	OriginLocation string
	Direction      Direction
}

type MatchResult struct {
	MatchID           string    `json:"matchId,omitempty"`
	TripID            string    `json:"tripId"`
	DriverID          string    `json:"driverId"`
	Origin            string    `json:"origin"`
	DestinationSedeID string    `json:"destinationSedeId"`
	DateTime          time.Time `json:"dateTime"`
	SeatsFree         int       `json:"seatsFree"`
	Score             float64   `json:"score"`
	Direction         Direction `json:"direction"`
	PairedTripID      string    `json:"pairedTripId,omitempty"`
	Reasons           []string  `json:"reasons"`
}

// MatchEvent is the payload handed to notification gateways on lifecycle changes.
type MatchEvent struct {
	Type        string    `json:"event"`
	MatchID     string    `json:"matchId"`
	PassengerID string    `json:"passengerId"`
	DriverID    string    `json:"driverId,omitempty"`
	TripID      string    `json:"tripId"`
	OccurredAt  time.Time `json:"occurredAt"`
}

const (
	EventMatchAccepted = "match.accepted"
	EventMatchRejected = "match.rejected"
)
