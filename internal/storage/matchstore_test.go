package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// fakeClock hands out strictly increasing instants.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore() (*MemoryStore, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.now = clk.Now
	return s, clk
}

func mustSave(t *testing.T, s *MemoryStore, m *models.Match) *models.Match {
	t.Helper()
	out, err := s.Save(context.Background(), m)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return out
}

func TestSaveCreatesPendingMatch(t *testing.T) {
	s, _ := newTestStore()
	m := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", DriverID: "D1", MatchScore: 0.6})
	if m.ID == "" {
		t.Fatal("expected generated id")
	}
	if m.Status != models.StatusPending {
		t.Fatalf("expected PENDING, got %s", m.Status)
	}
	if !m.CreatedAt.Equal(m.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt on create")
	}
}

func TestSaveRefreshesExistingPair(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	first := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", DriverID: "D1", MatchScore: 0.6})
	second := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", DriverID: "D1", MatchScore: 0.9})

	if first.ID != second.ID {
		t.Fatalf("expected same row, got %s and %s", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("createdAt must not change on refresh")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatal("updatedAt must advance on refresh")
	}
	all, _ := s.FindByPassengerID(ctx, "P1")
	if len(all) != 1 || all[0].MatchScore != 0.9 {
		t.Fatalf("expected one row with score 0.9, got %+v", all)
	}
}

func TestSaveUnknownIDFails(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.Save(context.Background(), &models.Match{ID: "missing", TripID: "T1", PassengerID: "P1"})
	if !errors.Is(err, models.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestSaveDoesNotChangeStatus(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	m := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", MatchScore: 0.5})
	if _, err := s.TransitionStatus(ctx, m.ID, models.StatusPending, models.StatusAccepted, time.Now()); err != nil {
		t.Fatal(err)
	}
	mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", MatchScore: 0.7, Status: models.StatusPending})
	got, _ := s.FindByID(ctx, m.ID)
	if got.Status != models.StatusAccepted {
		t.Fatalf("refresh reverted status to %s", got.Status)
	}
}

func TestTransitionStatus(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	m := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", MatchScore: 0.5})

	at := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	out, err := s.TransitionStatus(ctx, m.ID, models.StatusPending, models.StatusRejected, at)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if out.Status != models.StatusRejected || !out.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected match after transition: %+v", out)
	}
	if _, err := s.TransitionStatus(ctx, m.ID, models.StatusPending, models.StatusAccepted, at); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.TransitionStatus(ctx, "nope", models.StatusPending, models.StatusAccepted, at); !errors.Is(err, models.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestConcurrentTransitionsOnlyOneWins(t *testing.T) {
	s, _ := newTestStore()
	m := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", MatchScore: 0.5})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		to := models.StatusAccepted
		if i%2 == 0 {
			to = models.StatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TransitionStatus(context.Background(), m.ID, models.StatusPending, to, time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestListQueriesOrdering(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	a := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", DriverID: "D1", MatchScore: 0.4})
	b := mustSave(t, s, &models.Match{TripID: "T2", PassengerID: "P1", DriverID: "D1", MatchScore: 0.9})
	c := mustSave(t, s, &models.Match{TripID: "T3", PassengerID: "P1", DriverID: "D2", MatchScore: 0.4})
	mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P2", DriverID: "D1", MatchScore: 0.7})

	got, _ := s.FindByPassengerID(ctx, "P1")
	wantIDs := []string{b.ID, c.ID, a.ID} // c is newer than a on the 0.4 tie
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d matches, got %d", len(wantIDs), len(got))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}

	byDriver, _ := s.FindByDriverID(ctx, "D1")
	if len(byDriver) != 3 || byDriver[0].MatchScore != 0.9 {
		t.Fatalf("unexpected driver listing: %+v", byDriver)
	}

	high, _ := s.FindByScoreAtLeast(ctx, 0.7)
	if len(high) != 2 || high[0].MatchScore != 0.9 || high[1].MatchScore != 0.7 {
		t.Fatalf("unexpected threshold listing: %+v", high)
	}

	pending, _ := s.FindByStatus(ctx, models.StatusPending)
	if len(pending) != 4 {
		t.Fatalf("expected 4 pending, got %d", len(pending))
	}
}

func TestTimeRangeQueriesKeepCreationOrder(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	a := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", DriverID: "D1", MatchScore: 0.2})
	b := mustSave(t, s, &models.Match{TripID: "T2", PassengerID: "P1", DriverID: "D1", MatchScore: 0.9})
	late := mustSave(t, s, &models.Match{TripID: "T3", PassengerID: "P1", DriverID: "D1", MatchScore: 0.5})

	got, _ := s.FindByPassengerIDCreatedBetween(ctx, "P1", a.CreatedAt, b.CreatedAt)
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("expected [a b] in creation order, got %+v", got)
	}

	got, _ = s.FindByDriverIDCreatedBetween(ctx, "D1", b.CreatedAt, late.CreatedAt)
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != late.ID {
		t.Fatalf("expected [b late], got %+v", got)
	}
}

func TestReturnedMatchesAreCopies(t *testing.T) {
	s, _ := newTestStore()
	m := mustSave(t, s, &models.Match{TripID: "T1", PassengerID: "P1", MatchScore: 0.5})
	m.MatchScore = 0.1
	got, _ := s.FindByID(context.Background(), m.ID)
	if got.MatchScore != 0.5 {
		t.Fatal("caller mutation leaked into the store")
	}
}
