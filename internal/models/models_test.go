package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to MatchStatus
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusPending, false},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusPending, false},
		{StatusRejected, StatusAccepted, false},
		{StatusRejected, StatusPending, false},
		{MatchStatus("CANCELLED"), StatusAccepted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Fatal("PENDING must not be terminal")
	}
	if !StatusAccepted.Terminal() || !StatusRejected.Terminal() {
		t.Fatal("ACCEPTED and REJECTED must be terminal")
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" from_sede ")
	if err != nil || d != DirectionFromSede {
		t.Fatalf("got %q, %v", d, err)
	}
	if _, err := ParseDirection("SIDEWAYS"); !errors.Is(err, ErrInvalidCriteria) {
		t.Fatalf("expected ErrInvalidCriteria, got %v", err)
	}
	if _, err := ParseDirection(""); err == nil {
		t.Fatal("expected error for empty direction")
	}
}

func TestParseMatchStatus(t *testing.T) {
	st, err := ParseMatchStatus("accepted")
	if err != nil || st != StatusAccepted {
		t.Fatalf("got %q, %v", st, err)
	}
	if _, err := ParseMatchStatus("DONE"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMatchResultOmitsEmptyPairedTrip(t *testing.T) {
	b, err := json.Marshal(MatchResult{TripID: "T1", Direction: DirectionToSede, Reasons: []string{"Same destination"}})
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.Contains(s, "pairedTripId") || strings.Contains(s, "matchId") {
		t.Fatalf("expected optional fields omitted, got %s", s)
	}
	if !strings.Contains(s, `"tripId":"T1"`) || !strings.Contains(s, `"direction":"TO_SEDE"`) {
		t.Fatalf("unexpected encoding %s", s)
	}
}
