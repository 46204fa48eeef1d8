package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	tsclient "github.com/zatekoja/eventscan/internal/infrastructure/clients/typesense"
)

const (
	collectionName = tsclient.EventsCollection
	maxPerPage     = 250
	queryByFields  = "title,emoji_description,category_names,description,address,location_notes"
)

// TypesenseAdapter serves search candidates from the Typesense events collection
type TypesenseAdapter struct {
	client *tsclient.Client
}

var (
	_ repositories.EventCorpusRepository = (*TypesenseAdapter)(nil)
	_ repositories.EventIndexRepository  = (*TypesenseAdapter)(nil)
)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// Index upserts an event document
func (a *TypesenseAdapter) Index(ctx context.Context, candidate *entities.SearchCandidate) error {
	_, err := a.client.Client().Collection(collectionName).Documents().Upsert(ctx, candidateDocument(candidate))
	if err != nil {
		return fmt.Errorf("failed to index event %s: %w", candidate.ID, err)
	}
	return nil
}

// Delete removes an event from the index
func (a *TypesenseAdapter) Delete(ctx context.Context, id string) error {
	_, err := a.client.Client().Collection(collectionName).Document(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete event %s from index: %w", id, err)
	}
	return nil
}

// FindCandidates runs the lexical pre-filter as a Typesense keyword search, paging until
// the candidate limit is reached.
func (a *TypesenseAdapter) FindCandidates(ctx context.Context, prefilter repositories.CandidatePrefilter) ([]*entities.SearchCandidate, error) {
	if len(prefilter.Terms) == 0 {
		return []*entities.SearchCandidate{}, nil
	}

	limit := prefilter.Limit
	if limit <= 0 {
		limit = maxPerPage
	}
	perPage := min(limit, maxPerPage)

	params := &api.SearchCollectionParams{
		Q:       pointer.String(strings.Join(prefilter.Terms, " ")),
		QueryBy: pointer.String(queryByFields),
		SortBy:  pointer.String("_text_match:desc,event_date:desc"),
		PerPage: pointer.Int(perPage),
	}
	if filter := statusFilter(prefilter.Statuses); filter != "" {
		params.FilterBy = pointer.String(filter)
	}

	candidates := make([]*entities.SearchCandidate, 0, perPage)
	for page := 1; len(candidates) < limit; page++ {
		params.Page = pointer.Int(page)

		result, err := a.client.Client().Collection(collectionName).Documents().Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to search events: %w", err)
		}
		if result.Hits == nil || len(*result.Hits) == 0 {
			break
		}

		for _, hit := range *result.Hits {
			if hit.Document == nil {
				continue
			}
			c := documentToCandidate(*hit.Document)
			if prefilter.RequireEmbedding && !c.HasEmbedding() {
				continue
			}
			candidates = append(candidates, c)
			if len(candidates) == limit {
				break
			}
		}

		if len(*result.Hits) < perPage {
			break
		}
	}

	return candidates, nil
}

func statusFilter(statuses []entities.EventStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return "status:=[" + strings.Join(values, ",") + "]"
}

func candidateDocument(c *entities.SearchCandidate) map[string]interface{} {
	doc := map[string]interface{}{
		"id":                c.ID,
		"title":             c.Title,
		"description":       c.Description,
		"address":           c.Address,
		"location_notes":    c.LocationNotes,
		"emoji_description": c.EmojiDescription,
		"category_ids":      nonNil(c.CategoryIDs),
		"category_names":    nonNil(c.CategoryNames),
		"status":            string(c.Status),
		"event_date":        c.EventDate.Unix(),
	}
	if c.Location != nil {
		doc["location"] = []float64{c.Location.Latitude, c.Location.Longitude}
	}
	if c.HasEmbedding() {
		doc["embedding"] = c.Embedding
	}
	return doc
}

// documentToCandidate reads a search hit back into a candidate. Typesense decodes numbers
// as float64 and arrays as []interface{}.
func documentToCandidate(doc map[string]interface{}) *entities.SearchCandidate {
	c := &entities.SearchCandidate{
		ID:               stringField(doc, "id"),
		Title:            stringField(doc, "title"),
		Description:      stringField(doc, "description"),
		Address:          stringField(doc, "address"),
		LocationNotes:    stringField(doc, "location_notes"),
		EmojiDescription: stringField(doc, "emoji_description"),
		CategoryIDs:      stringSlice(doc["category_ids"]),
		CategoryNames:    stringSlice(doc["category_names"]),
		Status:           entities.EventStatus(stringField(doc, "status")),
	}

	if ts, ok := doc["event_date"].(float64); ok {
		c.EventDate = time.Unix(int64(ts), 0).UTC()
	}

	if loc, ok := doc["location"].([]interface{}); ok && len(loc) == 2 {
		lat, latOK := loc[0].(float64)
		lon, lonOK := loc[1].(float64)
		if latOK && lonOK {
			c.Location = &entities.GeoPoint{Latitude: lat, Longitude: lon}
		}
	}

	if raw, ok := doc["embedding"].([]interface{}); ok && len(raw) > 0 {
		vec := make([]float32, 0, len(raw))
		for _, v := range raw {
			f, ok := v.(float64)
			if !ok {
				vec = nil
				break
			}
			vec = append(vec, float32(f))
		}
		c.Embedding = vec
	}

	return c
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)
	return s
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
