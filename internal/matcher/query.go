package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// ListFilter selects persisted matches. Exactly one of PassengerID, DriverID,
// Status or MinScore drives the query; From/To narrow a passenger or driver
// listing to a creation window.
type ListFilter struct {
	PassengerID string
	DriverID    string
	Status      models.MatchStatus
	MinScore    *float64
	From, To    time.Time
}

func (f ListFilter) ranged() bool { return !f.From.IsZero() || !f.To.IsZero() }

func (s *Service) Get(ctx context.Context, matchID string) (*models.Match, error) {
	return s.Store.FindByID(ctx, matchID)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Match, error) {
	from, to := f.From, f.To
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	switch {
	case f.PassengerID != "" && f.ranged():
		return s.Store.FindByPassengerIDCreatedBetween(ctx, f.PassengerID, from, to)
	case f.PassengerID != "":
		return s.Store.FindByPassengerID(ctx, f.PassengerID)
	case f.DriverID != "" && f.ranged():
		return s.Store.FindByDriverIDCreatedBetween(ctx, f.DriverID, from, to)
	case f.DriverID != "":
		return s.Store.FindByDriverID(ctx, f.DriverID)
	case f.Status != "":
		return s.Store.FindByStatus(ctx, f.Status)
	case f.MinScore != nil:
		return s.Store.FindByScoreAtLeast(ctx, *f.MinScore)
	default:
		return nil, fmt.Errorf("%w: a passengerId, driverId, status or minScore filter is required", models.ErrInvalidCriteria)
	}
}
