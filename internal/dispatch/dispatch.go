// Package dispatch delivers match lifecycle events to riders and drivers.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/carpool-matching/internal/models"
)

// Notifier is satisfied by every gateway in this package and by ingest.KafkaPublisher.
type Notifier interface {
	MatchAccepted(ctx context.Context, ev models.MatchEvent) error
	MatchRejected(ctx context.Context, ev models.MatchEvent) error
}

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) MatchAccepted(ctx context.Context, ev models.MatchEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.MatchAccepted(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) MatchRejected(ctx context.Context, ev models.MatchEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.MatchRejected(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier only logs. Used when no delivery channel is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) MatchAccepted(_ context.Context, ev models.MatchEvent) error {
	l.log(ev)
	return nil
}

func (l LogNotifier) MatchRejected(_ context.Context, ev models.MatchEvent) error {
	l.log(ev)
	return nil
}

func (l LogNotifier) log(ev models.MatchEvent) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("match event", "event", ev.Type, "match_id", ev.MatchID, "passenger_id", ev.PassengerID, "driver_id", ev.DriverID, "trip_id", ev.TripID)
}
