package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/models"
)

// MatchStore defines persistence operations for matches.
//
// List queries return matches by descending score, newest first on ties. The
// time-range queries keep natural (creation) order. No query mutates state.
type MatchStore interface {
	// Save creates the match when ID is empty and updates it otherwise. A create
	// for an existing (trip, passenger) pair refreshes that row instead. Updates
	// only touch driver, score and updatedAt; status moves via TransitionStatus.
	Save(ctx context.Context, m *models.Match) (*models.Match, error)
	// TransitionStatus moves a match from one status to another only if it is
	// still in from.
	TransitionStatus(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) (*models.Match, error)

	FindByID(ctx context.Context, id string) (*models.Match, error)
	FindByTripIDAndPassengerID(ctx context.Context, tripID, passengerID string) (*models.Match, error)
	FindByPassengerID(ctx context.Context, passengerID string) ([]*models.Match, error)
	FindByDriverID(ctx context.Context, driverID string) ([]*models.Match, error)
	FindByStatus(ctx context.Context, status models.MatchStatus) ([]*models.Match, error)
	FindByScoreAtLeast(ctx context.Context, threshold float64) ([]*models.Match, error)
	FindByPassengerIDCreatedBetween(ctx context.Context, passengerID string, from, to time.Time) ([]*models.Match, error)
	FindByDriverIDCreatedBetween(ctx context.Context, driverID string, from, to time.Time) ([]*models.Match, error)
}

type pairKey struct{ tripID, passengerID string }

var _ MatchStore = (*MemoryStore)(nil)

type MemoryStore struct {
	mu      sync.RWMutex
	matches map[string]*models.Match
	byPair  map[pairKey]string
	order   []string // insertion order
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]*models.Match),
		byPair:  make(map[pairKey]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, m *models.Match) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := pairKey{m.TripID, m.PassengerID}

	id := m.ID
	if id == "" {
		id = s.byPair[key]
	}
	if existing, ok := s.matches[id]; ok {
		existing.DriverID = m.DriverID
		existing.MatchScore = m.MatchScore
		existing.UpdatedAt = now
		return clone(existing), nil
	}
	if m.ID != "" {
		return nil, models.ErrMatchNotFound
	}

	stored := clone(m)
	stored.ID = uuid.NewString()
	if stored.Status == "" {
		stored.Status = models.StatusPending
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.matches[stored.ID] = stored
	s.byPair[key] = stored.ID
	s.order = append(s.order, stored.ID)
	return clone(stored), nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, id string, from, to models.MatchStatus, at time.Time) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, models.ErrMatchNotFound
	}
	if m.Status != from || !models.CanTransition(from, to) {
		return nil, models.ErrInvalidTransition
	}
	m.Status = to
	m.UpdatedAt = at
	return clone(m), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, models.ErrMatchNotFound
	}
	return clone(m), nil
}

func (s *MemoryStore) FindByTripIDAndPassengerID(_ context.Context, tripID, passengerID string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{tripID, passengerID}]
	if !ok {
		return nil, models.ErrMatchNotFound
	}
	return clone(s.matches[id]), nil
}

func (s *MemoryStore) FindByPassengerID(_ context.Context, passengerID string) ([]*models.Match, error) {
	return s.ranked(func(m *models.Match) bool { return m.PassengerID == passengerID }), nil
}

func (s *MemoryStore) FindByDriverID(_ context.Context, driverID string) ([]*models.Match, error) {
	return s.ranked(func(m *models.Match) bool { return m.DriverID == driverID }), nil
}

func (s *MemoryStore) FindByStatus(_ context.Context, status models.MatchStatus) ([]*models.Match, error) {
	return s.ranked(func(m *models.Match) bool { return m.Status == status }), nil
}

func (s *MemoryStore) FindByScoreAtLeast(_ context.Context, threshold float64) ([]*models.Match, error) {
	return s.ranked(func(m *models.Match) bool { return m.MatchScore >= threshold }), nil
}

func (s *MemoryStore) FindByPassengerIDCreatedBetween(_ context.Context, passengerID string, from, to time.Time) ([]*models.Match, error) {
	return s.filter(func(m *models.Match) bool {
		return m.PassengerID == passengerID && createdBetween(m, from, to)
	}), nil
}

func (s *MemoryStore) FindByDriverIDCreatedBetween(_ context.Context, driverID string, from, to time.Time) ([]*models.Match, error) {
	return s.filter(func(m *models.Match) bool {
		return m.DriverID == driverID && createdBetween(m, from, to)
	}), nil
}

func (s *MemoryStore) filter(keep func(*models.Match) bool) []*models.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Match, 0)
	for _, id := range s.order {
		if m := s.matches[id]; keep(m) {
			out = append(out, clone(m))
		}
	}
	return out
}

func (s *MemoryStore) ranked(keep func(*models.Match) bool) []*models.Match {
	out := s.filter(keep)
	SortByScore(out)
	return out
}

// SortByScore orders matches by descending score, most recently updated first on ties.
func SortByScore(ms []*models.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].MatchScore != ms[j].MatchScore {
			return ms[i].MatchScore > ms[j].MatchScore
		}
		return ms[i].UpdatedAt.After(ms[j].UpdatedAt)
	})
}

// createdBetween is inclusive on both ends.
func createdBetween(m *models.Match, from, to time.Time) bool {
	return !m.CreatedAt.Before(from) && !m.CreatedAt.After(to)
}

func clone(m *models.Match) *models.Match {
	c := *m
	return &c
}
