package trips

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

func TestHTTPClientDecodesCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/trips/available" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("sedeId") != "SEDE-1" || r.URL.Query().Get("direction") != "TO_SEDE" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"T1","driverId":"D1","origin":"north","destinationSedeId":"SEDE-1",
			"dateTime":"2025-03-10T09:00:00+01:00","seatsTotal":4,"seatsFree":2,"direction":"TO_SEDE","pairedTripId":"T2"}]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	got, err := c.GetAvailableTrips(context.Background(), "SEDE-1", models.DirectionToSede)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 || got[0].ID != "T1" || got[0].PairedTripID != "T2" || got[0].SeatsFree != 2 {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if got[0].DateTime.Hour() != 9 {
		t.Fatalf("expected the offset to be preserved, got %v", got[0].DateTime)
	}
}

func TestHTTPClientNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).GetAvailableTrips(context.Background(), "S", models.DirectionFromSede)
	var se *UpstreamStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected UpstreamStatusError(502), got %v", err)
	}
}

func TestHTTPClientEmptyListIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	got, err := NewHTTPClient(srv.URL, time.Second).GetAvailableTrips(context.Background(), "S", models.DirectionToSede)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty success, got %v %v", got, err)
	}
}

type countingProvider struct {
	calls int
	trips []models.TripCandidate
	err   error
}

func (p *countingProvider) GetAvailableTrips(context.Context, string, models.Direction) ([]models.TripCandidate, error) {
	p.calls++
	return p.trips, p.err
}

func TestCachedProviderReadsThrough(t *testing.T) {
	next := &countingProvider{trips: []models.TripCandidate{{ID: "T1", SeatsFree: 1}}}
	cp := &CachedProvider{Next: next, Cache: NewMemoryCache(), TTL: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cp.GetAvailableTrips(ctx, "S", models.DirectionToSede)
		if err != nil || len(got) != 1 || got[0].ID != "T1" {
			t.Fatalf("call %d: unexpected %v %v", i, got, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}

	if err := cp.Invalidate(ctx, "S", models.DirectionToSede); err != nil {
		t.Fatal(err)
	}
	_, _ = cp.GetAvailableTrips(ctx, "S", models.DirectionToSede)
	if next.calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", next.calls)
	}
}

func TestCachedProviderKeysByDirection(t *testing.T) {
	next := &countingProvider{}
	cp := &CachedProvider{Next: next, Cache: NewMemoryCache(), TTL: time.Minute}
	_, _ = cp.GetAvailableTrips(context.Background(), "S", models.DirectionToSede)
	_, _ = cp.GetAvailableTrips(context.Background(), "S", models.DirectionFromSede)
	if next.calls != 2 {
		t.Fatalf("expected separate entries per direction, got %d calls", next.calls)
	}
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	next := &countingProvider{err: errors.New("down")}
	cp := &CachedProvider{Next: next, Cache: NewMemoryCache(), TTL: time.Minute}
	for i := 0; i < 2; i++ {
		if _, err := cp.GetAvailableTrips(context.Background(), "S", models.DirectionToSede); err == nil {
			t.Fatal("expected error to propagate")
		}
	}
	if next.calls != 2 {
		t.Fatalf("expected errors to bypass the cache, got %d calls", next.calls)
	}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errors.New("conn refused") }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("conn refused")
}
func (brokenCache) Del(context.Context, ...string) error { return errors.New("conn refused") }

func TestCachedProviderBypassesBrokenCache(t *testing.T) {
	next := &countingProvider{trips: []models.TripCandidate{{ID: "T1"}}}
	cp := &CachedProvider{Next: next, Cache: brokenCache{}, TTL: time.Minute}
	got, err := cp.GetAvailableTrips(context.Background(), "S", models.DirectionToSede)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected upstream result despite cache failure, got %v %v", got, err)
	}
}

func TestCachedProviderCorruptEntryRefetches(t *testing.T) {
	cache := NewMemoryCache()
	_ = cache.Set(context.Background(), CacheKey("S", models.DirectionToSede), []byte("{not json"), time.Minute)
	next := &countingProvider{trips: []models.TripCandidate{{ID: "T9"}}}
	cp := &CachedProvider{Next: next, Cache: cache, TTL: time.Minute}
	got, _ := cp.GetAvailableTrips(context.Background(), "S", models.DirectionToSede)
	if next.calls != 1 || len(got) != 1 || got[0].ID != "T9" {
		t.Fatalf("expected refetch, got %v after %d calls", got, next.calls)
	}
	b, _ := cache.Get(context.Background(), CacheKey("S", models.DirectionToSede))
	var stored []models.TripCandidate
	if err := json.Unmarshal(b, &stored); err != nil {
		t.Fatalf("expected corrupt entry overwritten: %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	_ = c.Set(context.Background(), "k", []byte("v"), time.Second)
	if _, err := c.Get(context.Background(), "k"); err != nil {
		t.Fatalf("expected hit, got %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestStaticFiltersLikeUpstream(t *testing.T) {
	s := Static{
		{ID: "T1", DestinationSedeID: "S1", Direction: models.DirectionToSede, SeatsFree: 2},
		{ID: "T2", DestinationSedeID: "S1", Direction: models.DirectionFromSede, SeatsFree: 2},
		{ID: "T3", DestinationSedeID: "S2", Direction: models.DirectionToSede, SeatsFree: 2},
		{ID: "T4", DestinationSedeID: "S1", Direction: models.DirectionToSede, SeatsFree: 0},
	}
	got, err := s.GetAvailableTrips(context.Background(), "S1", models.DirectionToSede)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "T1" {
		t.Fatalf("expected only T1, got %+v", got)
	}
}
