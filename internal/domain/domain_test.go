package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPair_Canonical(t *testing.T) {
	p1 := NewPair("bob", "alice")
	p2 := NewPair("alice", "bob")

	assert.Equal(t, p1, p2)
	assert.Equal(t, "alice", p1.Low)
	assert.Equal(t, "bob", p1.Other("alice"))
	assert.Equal(t, "alice", p1.Other("bob"))
	assert.True(t, p1.Has("bob"))
	assert.False(t, p1.Has("carol"))
}

func TestInterestKind(t *testing.T) {
	k, ok := ParseInterestKind("SuperLike")
	require.True(t, ok)
	assert.Equal(t, KindSuperLike, k)

	_, ok = ParseInterestKind("meh")
	assert.False(t, ok)

	assert.True(t, KindSuperLike.Stronger(KindLike))
	assert.False(t, KindLike.Stronger(KindSuperLike))
	assert.False(t, KindSuperLike.Stronger(KindSuperLike))
}

func TestSelection(t *testing.T) {
	assert.True(t, Selection(nil).Matches("anything"))
	assert.True(t, Selection{"ALL"}.Matches("anything"))
	assert.True(t, Selection{"woman", "non-binary"}.Matches("Woman"))
	assert.False(t, Selection{"woman"}.Matches("man"))

	var s Selection
	require.NoError(t, json.Unmarshal([]byte(`"all"`), &s))
	assert.True(t, s.IsAll())

	require.NoError(t, json.Unmarshal([]byte(`["man","woman"]`), &s))
	assert.Equal(t, Selection{"man", "woman"}, s)

	assert.Error(t, json.Unmarshal([]byte(`"man"`), &s))
}

func TestAgeRange(t *testing.T) {
	assert.True(t, AgeRange{}.Matches(99))
	assert.True(t, AgeRange{Min: 25, Max: 30}.Matches(25))
	assert.True(t, AgeRange{Min: 25, Max: 30}.Matches(30))
	assert.False(t, AgeRange{Min: 25, Max: 30}.Matches(31))
	assert.False(t, AgeRange{Min: 25}.Matches(24))
}

func TestDistanceKm(t *testing.T) {
	london := Location{Lat: 51.5074, Lon: -0.1278}
	paris := Location{Lat: 48.8566, Lon: 2.3522}

	d := DistanceKm(london, paris)
	assert.InDelta(t, 343.5, d, 2)
	assert.InDelta(t, 0, DistanceKm(london, london), 1e-9)
}

func TestReportStatus_Monotonic(t *testing.T) {
	assert.True(t, ReportPending.CanAdvanceTo(ReportReviewed))
	assert.True(t, ReportPending.CanAdvanceTo(ReportClosed))
	assert.True(t, ReportReviewed.CanAdvanceTo(ReportReviewed))
	assert.False(t, ReportClosed.CanAdvanceTo(ReportReviewed))
	assert.False(t, ReportReviewed.CanAdvanceTo(ReportPending))
	assert.False(t, ReportPending.CanAdvanceTo("escalated"))
}
