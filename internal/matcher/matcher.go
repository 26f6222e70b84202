package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/scoring"
	"github.com/example/carpool-matching/internal/storage"
)

type TripsProvider interface {
	GetAvailableTrips(ctx context.Context, sedeID string, direction models.Direction) ([]models.TripCandidate, error)
}

type NotificationGateway interface {
	MatchAccepted(ctx context.Context, ev models.MatchEvent) error
	MatchRejected(ctx context.Context, ev models.MatchEvent) error
}

// Service ranks candidate trips for riders and owns the match lifecycle.
type Service struct {
	Trips         TripsProvider
	Store         storage.MatchStore
	Notify        NotificationGateway
	Logger        *slog.Logger
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// FindMatches never fails: an unavailable trips provider degrades to an empty
// list and persistence problems are logged per row. The ranked list returned
// is authoritative whether or not every row was saved.
func (s *Service) FindMatches(ctx context.Context, passengerID string, crit models.SearchCriteria) []models.MatchResult {
	start := time.Now()
	defer func() { observability.SearchLatency.Observe(time.Since(start).Seconds()) }()
	observability.SearchesTotal.Inc()
	log := logging.FromContext(ctx, s.Logger).With("passenger_id", passengerID, "sede_id", crit.SedeID, "direction", crit.Direction)

	cands, err := s.Trips.GetAvailableTrips(ctx, crit.SedeID, crit.Direction)
	if err != nil {
		observability.ProviderFailures.Inc()
		log.Warn("trips provider unavailable, returning no matches", "error", err)
		return []models.MatchResult{}
	}

	results := Rank(cands, crit)
	for i := range results {
		r := &results[i]
		m, err := s.upsert(ctx, passengerID, r)
		if err != nil {
			observability.UpsertFailures.Inc()
			log.Error("persist match failed", "trip_id", r.TripID, "error", err)
			continue
		}
		r.MatchID = m.ID
	}
	log.Debug("match search complete", "candidates", len(cands), "results", len(results))
	return results
}

// Rank filters, scores and orders candidates. Ties on score are broken by
// earlier departure, then by trip id.
func Rank(cands []models.TripCandidate, crit models.SearchCriteria) []models.MatchResult {
	results := make([]models.MatchResult, 0, len(cands))
	for _, c := range cands {
		if c.SeatsFree <= 0 {
			observability.CandidatesFiltered.WithLabelValues("no_seats").Inc()
			continue
		}
		if scoring.Excluded(c, crit) {
			observability.CandidatesFiltered.WithLabelValues("direction").Inc()
			continue
		}
		observability.CandidatesScored.Inc()
		score, reasons := scoring.Score(c, crit)
		if score <= 0 {
			observability.CandidatesFiltered.WithLabelValues("zero_score").Inc()
			continue
		}
		results = append(results, models.MatchResult{
			TripID:            c.ID,
			DriverID:          c.DriverID,
			Origin:            c.Origin,
			DestinationSedeID: c.DestinationSedeID,
			DateTime:          c.DateTime,
			SeatsFree:         c.SeatsFree,
			Score:             score,
			Direction:         c.Direction,
			PairedTripID:      c.PairedTripID,
			Reasons:           reasons,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.DateTime.Equal(b.DateTime) {
			return a.DateTime.Before(b.DateTime)
		}
		return a.TripID < b.TripID
	})
	return results
}

func (s *Service) upsert(ctx context.Context, passengerID string, r *models.MatchResult) (*models.Match, error) {
	m := &models.Match{
		TripID:      r.TripID,
		PassengerID: passengerID,
		DriverID:    r.DriverID,
		MatchScore:  scoring.Round2(r.Score),
	}
	existing, err := s.Store.FindByTripIDAndPassengerID(ctx, r.TripID, passengerID)
	switch {
	case err == nil:
		m.ID = existing.ID
	case errors.Is(err, models.ErrMatchNotFound):
		m.Status = models.StatusPending
	default:
		return nil, err
	}
	return s.Store.Save(ctx, m)
}

// Accept moves a pending match to ACCEPTED and tells the rider and driver.
func (s *Service) Accept(ctx context.Context, matchID string) (*models.Match, error) {
	m, err := s.transition(ctx, matchID, models.StatusAccepted)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, models.EventMatchAccepted, m)
	return m, nil
}

// Reject moves a pending match to REJECTED. The event still names the driver
// so gateways can route it.
func (s *Service) Reject(ctx context.Context, matchID string) (*models.Match, error) {
	m, err := s.transition(ctx, matchID, models.StatusRejected)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, models.EventMatchRejected, m)
	return m, nil
}

func (s *Service) transition(ctx context.Context, matchID string, to models.MatchStatus) (*models.Match, error) {
	m, err := s.Store.TransitionStatus(ctx, matchID, models.StatusPending, to, s.now())
	switch {
	case err == nil:
		observability.Transitions.WithLabelValues(string(to), "ok").Inc()
		return m, nil
	case errors.Is(err, models.ErrMatchNotFound):
		observability.Transitions.WithLabelValues(string(to), "not_found").Inc()
		return nil, fmt.Errorf("%w: %w: %s", models.ErrInvalidTransition, models.ErrMatchNotFound, matchID)
	case errors.Is(err, models.ErrInvalidTransition):
		observability.Transitions.WithLabelValues(string(to), "rejected").Inc()
		return nil, fmt.Errorf("%w: match %s is not %s", models.ErrInvalidTransition, matchID, models.StatusPending)
	default:
		return nil, fmt.Errorf("transition match %s to %s: %w", matchID, to, err)
	}
}

// notify is best-effort. The committed transition stands whatever happens here.
func (s *Service) notify(ctx context.Context, event string, m *models.Match) {
	if s.Notify == nil {
		return
	}
	ev := models.MatchEvent{
		Type:        event,
		MatchID:     m.ID,
		PassengerID: m.PassengerID,
		DriverID:    m.DriverID,
		TripID:      m.TripID,
		OccurredAt:  m.UpdatedAt,
	}
	send := s.Notify.MatchAccepted
	if event == models.EventMatchRejected {
		send = s.Notify.MatchRejected
	}
	if s.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.NotifyTimeout)
		defer cancel()
	}
	if err := send(ctx, ev); err != nil {
		observability.NotificationFailure.WithLabelValues(event).Inc()
		logging.FromContext(ctx, s.Logger).Warn("match notification failed", "event", event, "match_id", m.ID, "passenger_id", m.PassengerID, "error", err)
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
