package entities

import (
	"time"
)

// SearchEvent is the outcome of one search, fed to the query analytics tracker.
type SearchEvent struct {
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	EventIDs    []string  `json:"event_ids,omitempty"`
	CategoryIDs []string  `json:"category_ids,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	FromCache   bool      `json:"from_cache,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
}
