package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// All is the wildcard accepted wherever a preference set is expected.
const All = "all"

// Selection is a set of accepted values. An empty selection, or one that
// contains "all", matches everything. The wildcard is resolved here and
// never reaches a query.
type Selection []string

func (s Selection) IsAll() bool {
	if len(s) == 0 {
		return true
	}
	for _, v := range s {
		if strings.EqualFold(strings.TrimSpace(v), All) {
			return true
		}
	}
	return false
}

func (s Selection) Matches(value string) bool {
	if s.IsAll() {
		return true
	}
	for _, v := range s {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts either the string "all" or an array of strings.
func (s *Selection) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if !strings.EqualFold(strings.TrimSpace(single), All) {
			return fmt.Errorf("selection: expected %q or a list, got %q", All, single)
		}
		*s = Selection{All}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	*s = many
	return nil
}

// AgeRange bounds are inclusive; zero means unbounded on that side.
type AgeRange struct {
	Min int `json:"min,omitempty" validate:"gte=0"`
	Max int `json:"max,omitempty" validate:"gte=0"`
}

func (r AgeRange) Matches(age int) bool {
	if r.Min > 0 && age < r.Min {
		return false
	}
	if r.Max > 0 && age > r.Max {
		return false
	}
	return true
}

// Preferences are the viewer's feed filters. MaxDistanceKm of zero
// disables the distance filter.
type Preferences struct {
	Age           AgeRange  `json:"age"`
	Genders       Selection `json:"genders,omitempty"`
	Orientations  Selection `json:"orientations,omitempty"`
	MaxDistanceKm float64   `json:"max_distance_km,omitempty" validate:"gte=0"`
}

// AllPreferences matches every candidate.
func AllPreferences() Preferences {
	return Preferences{Genders: Selection{All}, Orientations: Selection{All}}
}

const earthRadiusKm = 6371.0088

// DistanceKm is the haversine great-circle distance between a and b.
func DistanceKm(a, b Location) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
