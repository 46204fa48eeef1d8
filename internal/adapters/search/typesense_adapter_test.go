package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/eventscan/internal/domain/entities"
)

func TestCandidateDocumentRoundTrip(t *testing.T) {
	candidate := &entities.SearchCandidate{
		ID:               "evt-1",
		Title:            "Jazz Night",
		Description:      "Live jazz downtown",
		EmojiDescription: "🎷🌙",
		CategoryIDs:      []string{"music"},
		CategoryNames:    []string{"Music"},
		Status:           entities.EventStatusPublished,
		EventDate:        time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
		Location:         &entities.GeoPoint{Latitude: 6.52, Longitude: 3.37},
		Embedding:        []float32{0.5, -0.25, 1},
	}

	// Documents come back from Typesense as generic JSON
	raw, err := json.Marshal(candidateDocument(candidate))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	got := documentToCandidate(doc)

	assert.Equal(t, candidate, got)
}

func TestCandidateDocument_OmitsMissingLocationAndEmbedding(t *testing.T) {
	doc := candidateDocument(&entities.SearchCandidate{ID: "evt-2", Title: "Pottery"})

	assert.NotContains(t, doc, "location")
	assert.NotContains(t, doc, "embedding")
	assert.Equal(t, []string{}, doc["category_ids"])
}

func TestDocumentToCandidate_ToleratesBadFields(t *testing.T) {
	got := documentToCandidate(map[string]interface{}{
		"id":        "evt-3",
		"location":  []interface{}{"north", 3.0},
		"embedding": []interface{}{1.0, "x"},
	})

	assert.Equal(t, "evt-3", got.ID)
	assert.Nil(t, got.Location)
	assert.False(t, got.HasEmbedding())
	assert.Empty(t, got.CategoryIDs)
}

func TestStatusFilter(t *testing.T) {
	assert.Equal(t, "status:=[published,completed]", statusFilter(entities.SearchableStatuses))
	assert.Empty(t, statusFilter(nil))
}
