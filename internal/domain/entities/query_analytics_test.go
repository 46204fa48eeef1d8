package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryAnalyticsRecord_Recompute(t *testing.T) {
	r := NewQueryAnalyticsRecord("id", "jazz", "Jazz", time.Now())
	r.Recompute()
	assert.Equal(t, 0.0, r.HitRate)

	r.TotalSearches = 4
	r.ZeroResultSearches = 1
	r.TotalHits = 30
	r.Recompute()

	assert.InDelta(t, 75.0, r.HitRate, 1e-9)
	assert.InDelta(t, 7.5, r.AverageResultsPerSearch, 1e-9)
}

func TestMergeRankedCounts_OrdersByCountThenID(t *testing.T) {
	existing := []RankedCount{{ID: "b", Count: 2}, {ID: "c", Count: 1}}

	merged := MergeRankedCounts(existing, []string{"a", "a", "c", ""}, 10)

	assert.Equal(t, []RankedCount{{ID: "a", Count: 2}, {ID: "b", Count: 2}, {ID: "c", Count: 2}}, merged)
}

func TestMergeRankedCounts_KeepsLimit(t *testing.T) {
	ids := []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"}

	merged := MergeRankedCounts(nil, append(ids, "e7"), MaxTopCategories)

	assert.Len(t, merged, MaxTopCategories)
	assert.Equal(t, RankedCount{ID: "e7", Count: 2}, merged[0])
	assert.Equal(t, "e1", merged[1].ID)
}

func TestStructuredFilter_Matches(t *testing.T) {
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	from := now.Add(-time.Hour)
	lagos := GeoPoint{Latitude: 6.5244, Longitude: 3.3792}
	c := &SearchCandidate{ID: "e1", EventDate: now, Status: EventStatusPublished, Location: &lagos}

	assert.True(t, StructuredFilter{}.Matches(c))
	assert.True(t, StructuredFilter{DateRange: &DateRange{From: &from}}.Matches(c))
	assert.False(t, StructuredFilter{Statuses: []EventStatus{EventStatusCancelled}}.Matches(c))
	assert.True(t, StructuredFilter{Geo: &GeoRadius{Center: GeoPoint{Latitude: 6.45, Longitude: 3.40}, RadiusKm: 20}}.Matches(c))
	assert.False(t, StructuredFilter{Geo: &GeoRadius{Center: GeoPoint{Latitude: 9.07, Longitude: 7.49}, RadiusKm: 20}}.Matches(c))

	c.Location = nil
	assert.False(t, StructuredFilter{Geo: &GeoRadius{Center: lagos, RadiusKm: 1}}.Matches(c))
}

func TestEventUpdate_RemovesFromResults(t *testing.T) {
	assert.True(t, NewEventUpdate("e1", EventUpdateTypeCancelled, nil).RemovesFromResults())
	assert.False(t, NewEventUpdate("e1", EventUpdateTypeEngagement, nil).RemovesFromResults())
	assert.True(t, NewEventUpdate("e1", EventUpdateTypeUpdated, map[string]interface{}{"title": "x"}).ChangesSearchableText())
}
