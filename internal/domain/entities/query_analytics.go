package entities

import (
	"sort"
	"time"
)

// Bounds on the ranked lists kept per query
const (
	MaxTopResults    = 10
	MaxTopCategories = 5
)

// RankedCount is an id with the number of times it was seen
type RankedCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// QueryAnalyticsRecord aggregates every tracked search for one normalized query
type QueryAnalyticsRecord struct {
	ID                      string        `json:"id" db:"id"`
	NormalizedQuery         string        `json:"normalized_query" db:"normalized_query"`
	RawQuery                string        `json:"raw_query" db:"raw_query"`
	TotalSearches           int           `json:"total_searches" db:"total_searches"`
	TotalHits               int           `json:"total_hits" db:"total_hits"`
	ZeroResultSearches      int           `json:"zero_result_searches" db:"zero_result_searches"`
	AverageResultsPerSearch float64       `json:"average_results_per_search" db:"average_results_per_search"`
	HitRate                 float64       `json:"hit_rate" db:"hit_rate"`
	FirstSearchedAt         time.Time     `json:"first_searched_at" db:"first_searched_at"`
	LastSearchedAt          time.Time     `json:"last_searched_at" db:"last_searched_at"`
	TopResults              []RankedCount `json:"top_results" db:"-"`
	TopCategories           []RankedCount `json:"top_categories" db:"-"`
	IsPopular               bool          `json:"is_popular" db:"is_popular"`
	NeedsAttention          bool          `json:"needs_attention" db:"needs_attention"`
}

// NewQueryAnalyticsRecord creates an empty record for a normalized query
func NewQueryAnalyticsRecord(id, normalized, raw string, at time.Time) *QueryAnalyticsRecord {
	return &QueryAnalyticsRecord{
		ID:              id,
		NormalizedQuery: normalized,
		RawQuery:        raw,
		FirstSearchedAt: at,
		LastSearchedAt:  at,
		TopResults:      []RankedCount{},
		TopCategories:   []RankedCount{},
	}
}

// Recompute derives the average and hit rate from the counters
func (r *QueryAnalyticsRecord) Recompute() {
	if r.TotalSearches == 0 {
		r.AverageResultsPerSearch = 0
		r.HitRate = 0
		return
	}
	r.AverageResultsPerSearch = float64(r.TotalHits) / float64(r.TotalSearches)
	r.HitRate = 100 * float64(r.TotalSearches-r.ZeroResultSearches) / float64(r.TotalSearches)
}

// MergeRankedCounts adds one occurrence per id to existing and returns the top limit
// entries ordered by count desc, then id asc. Entries pushed below the limit are dropped.
func MergeRankedCounts(existing []RankedCount, ids []string, limit int) []RankedCount {
	counts := make(map[string]int, len(existing)+len(ids))
	for _, rc := range existing {
		counts[rc.ID] += rc.Count
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		counts[id]++
	}

	merged := make([]RankedCount, 0, len(counts))
	for id, c := range counts {
		merged = append(merged, RankedCount{ID: id, Count: c})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Count != merged[j].Count {
			return merged[i].Count > merged[j].Count
		}
		return merged[i].ID < merged[j].ID
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// ClusterMember is one query inside a QueryCluster
type ClusterMember struct {
	Query string `json:"query"`
	// Similarity is measured to the representative query. A member joined through a chain
	// of similar queries can sit below the clustering threshold here.
	Similarity    float64 `json:"similarity"`
	TotalSearches int     `json:"total_searches"`
	TotalHits     int     `json:"total_hits"`
	HitRate       float64 `json:"hit_rate"`
}

// QueryCluster groups near-duplicate queries under their highest-volume member
type QueryCluster struct {
	RepresentativeQuery string          `json:"representative_query"`
	Members             []ClusterMember `json:"members"`
	TotalSearches       int             `json:"total_searches"`
	AverageHitRate      float64         `json:"average_hit_rate"`
	TotalHits           int             `json:"total_hits"`
	NeedsAttention      bool            `json:"needs_attention"`
}

// FlagUpdateResult reports how many records carry each flag after a maintenance run
type FlagUpdateResult struct {
	Popular        int64 `json:"popular"`
	NeedsAttention int64 `json:"needs_attention"`
}
