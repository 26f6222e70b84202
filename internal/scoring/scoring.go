// Package scoring ranks trip candidates against a rider's search criteria.
// Everything here is pure and safe for concurrent use.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

const (
	WeightSede         = 0.35
	WeightDirection    = 0.25
	WeightTime         = 0.25
	WeightOrigin       = 0.10
	WeightAvailability = 0.05
	WeightPaired       = 0.05

	// HighCompatibility is the score at which the summary reason is added.
	HighCompatibility = 0.8

	seatsForFullAvailability = 4.0
)

const (
	ReasonSameDestination   = "Same destination"
	ReasonPerfectTime       = "Perfect time match"
	ReasonGoodTime          = "Good time match"
	ReasonAcceptableTime    = "Acceptable time"
	ReasonFlexibleTime      = "Within two hours"
	ReasonSameOrigin        = "Same origin"
	ReasonNearbyOrigin      = "Nearby origin"
	ReasonMultipleSeats     = "Multiple seats available"
	ReasonPairedTrip        = "Paired trip available"
	ReasonHighCompatibility = "High compatibility"
)

// timeTier maps a maximum difference in minutes to a factor and its reason.
type timeTier struct {
	maxMinutes int
	factor     float64
	reason     string
}

var timeTiers = []timeTier{
	{15, 1.0, ReasonPerfectTime},
	{30, 0.8, ReasonGoodTime},
	{60, 0.5, ReasonAcceptableTime},
	{120, 0.2, ReasonFlexibleTime},
}

// proximityGroups cluster coarse location labels. Every compass zone shares
// the center, so "north" and "center" are neighbours but "north" and "south" are not.
var proximityGroups = [][]string{
	{"north", "center"},
	{"south", "center"},
	{"east", "center"},
	{"west", "center"},
}

// Excluded reports whether the direction hard filter removes the candidate.
// An empty criteria direction never excludes.
func Excluded(c models.TripCandidate, crit models.SearchCriteria) bool {
	return crit.Direction != "" && crit.Direction != c.Direction
}

// Score returns the compatibility of c with crit in [0,1] and the reasons for
// every factor that contributed, in evaluation order. Callers are expected to
// apply Excluded first; Score itself does not filter.
func Score(c models.TripCandidate, crit models.SearchCriteria) (float64, []string) {
	var score float64
	reasons := make([]string, 0, 6)

	if crit.SedeID != "" && crit.SedeID == c.DestinationSedeID {
		score += WeightSede
		reasons = append(reasons, ReasonSameDestination)
	}

	if crit.Direction != "" && crit.Direction == c.Direction {
		score += WeightDirection
		reasons = append(reasons, "Direction match: "+string(c.Direction))
	}

	if f, reason, ok := TimeFactor(c.DateTime, crit.PreferredTime); ok {
		score += WeightTime * f
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}

	if crit.OriginLocation != "" {
		f := OriginFactor(crit.OriginLocation, c.Origin)
		score += WeightOrigin * f
		switch f {
		case 1.0:
			reasons = append(reasons, ReasonSameOrigin)
		case 0.7:
			reasons = append(reasons, ReasonNearbyOrigin)
		}
	}

	score += WeightAvailability * math.Min(1.0, float64(c.SeatsFree)/seatsForFullAvailability)
	if c.SeatsFree >= 2 {
		reasons = append(reasons, ReasonMultipleSeats)
	}

	if c.PairedTripID != "" {
		score += WeightPaired
		reasons = append(reasons, ReasonPairedTrip)
	}

	score = clamp(score)
	if score >= HighCompatibility {
		reasons = append(reasons, ReasonHighCompatibility)
	}
	return score, reasons
}

// TimeFactor grades how close the trip's local wall-clock time is to the
// preferred HH:mm. ok is false when preferred is empty or unparsable.
func TimeFactor(departure time.Time, preferred string) (float64, string, bool) {
	preferred = strings.TrimSpace(preferred)
	if preferred == "" || departure.IsZero() {
		return 0, "", false
	}
	want, err := time.Parse("15:04", preferred)
	if err != nil {
		return 0, "", false
	}
	got := departure.Hour()*60 + departure.Minute()
	diff := got - (want.Hour()*60 + want.Minute())
	if diff < 0 {
		diff = -diff
	}
	for _, t := range timeTiers {
		if diff <= t.maxMinutes {
			return t.factor, t.reason, true
		}
	}
	return 0, "", true
}

// OriginFactor compares two free-form location labels: 1.0 for the same label,
// 0.7 when both fall in one proximity group, 0.3 otherwise.
func OriginFactor(wanted, actual string) float64 {
	a, b := normalize(wanted), normalize(actual)
	if a != "" && a == b {
		return 1.0
	}
	if SameProximityGroup(a, b) {
		return 0.7
	}
	return 0.3
}

// SameProximityGroup reports whether both labels mention a zone of one group.
func SameProximityGroup(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return false
	}
	for _, group := range proximityGroups {
		if inGroup(a, group) && inGroup(b, group) {
			return true
		}
	}
	return false
}

func inGroup(label string, group []string) bool {
	for _, zone := range group {
		if strings.Contains(label, zone) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

// Round2 rounds half away from zero to two decimals, the persisted precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
