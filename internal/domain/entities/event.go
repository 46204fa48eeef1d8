package entities

import (
	"math"
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

// SearchableStatuses are the statuses the free-text search considers by default
var SearchableStatuses = []EventStatus{EventStatusPublished, EventStatusCompleted}

// GeoPoint represents geographical coordinates
type GeoPoint struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

// GeoRadius is a circle on the earth's surface
type GeoRadius struct {
	Center   GeoPoint `json:"center"`
	RadiusKm float64  `json:"radius_km"`
}

// Contains reports whether p lies within the radius
func (g GeoRadius) Contains(p GeoPoint) bool {
	return DistanceKm(g.Center, p) <= g.RadiusKm
}

// DistanceKm returns the great-circle distance between two points in kilometres
func DistanceKm(a, b GeoPoint) float64 {
	p := 0.017453292519943295
	h := 0.5 - math.Cos((b.Latitude-a.Latitude)*p)/2 +
		math.Cos(a.Latitude*p)*math.Cos(b.Latitude*p)*(1-math.Cos((b.Longitude-a.Longitude)*p))/2
	return 12742 * math.Asin(math.Sqrt(h))
}

// DateRange is an inclusive range of event dates. A nil bound is open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// SearchCandidate is an event as seen by the ranking core. It is read-only for the
// duration of a search.
type SearchCandidate struct {
	ID               string      `json:"id" db:"id"`
	Title            string      `json:"title" db:"title"`
	Description      string      `json:"description" db:"description"`
	Address          string      `json:"address" db:"address"`
	LocationNotes    string      `json:"location_notes,omitempty" db:"location_notes"`
	EmojiDescription string      `json:"emoji_description,omitempty" db:"emoji_description"`
	CategoryIDs      []string    `json:"category_ids" db:"-"`
	CategoryNames    []string    `json:"category_names" db:"-"`
	Embedding        []float32   `json:"-" db:"-"`
	EventDate        time.Time   `json:"event_date" db:"event_date"`
	Status           EventStatus `json:"status" db:"status"`
	Location         *GeoPoint   `json:"location,omitempty" db:"-"`
}

// HasEmbedding reports whether the candidate carries a precomputed embedding
func (c *SearchCandidate) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// SearchableText returns the text the candidate is indexed under, one facet per line
func (c *SearchCandidate) SearchableText() string {
	parts := []string{c.Title, c.EmojiDescription, strings.Join(c.CategoryNames, ", "), c.Description, c.Address, c.LocationNotes}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
