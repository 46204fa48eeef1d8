package entities

import "time"

// InsightLimits bounds each list in a QueryInsights report
type InsightLimits struct {
	TopQueries     int `json:"top_queries"`
	ZeroResult     int `json:"zero_result"`
	NeedsAttention int `json:"needs_attention"`
}

// QueryAnalyticsSummary holds aggregate counters over a window
type QueryAnalyticsSummary struct {
	DistinctQueries     int     `json:"distinct_queries" db:"distinct_queries"`
	TotalSearches       int     `json:"total_searches" db:"total_searches"`
	ZeroResultSearches  int     `json:"zero_result_searches" db:"zero_result_searches"`
	OverallHitRate      float64 `json:"overall_hit_rate" db:"-"`
	AverageResultsCount float64 `json:"average_results_count" db:"-"`
	TotalHits           int     `json:"total_hits" db:"total_hits"`
}

// QueryInsights is the curator-facing report over recent searches
type QueryInsights struct {
	WindowDays        int                     `json:"window_days"`
	GeneratedAt       time.Time               `json:"generated_at"`
	Summary           QueryAnalyticsSummary   `json:"summary"`
	TopQueries        []*QueryAnalyticsRecord `json:"top_queries"`
	ZeroResultQueries []*QueryAnalyticsRecord `json:"zero_result_queries"`
	NeedsAttention    []*QueryAnalyticsRecord `json:"needs_attention"`
}

// Finalize derives the rates in the summary from its counters
func (s *QueryAnalyticsSummary) Finalize() {
	if s.TotalSearches == 0 {
		s.OverallHitRate = 0
		s.AverageResultsCount = 0
		return
	}
	s.OverallHitRate = 100 * float64(s.TotalSearches-s.ZeroResultSearches) / float64(s.TotalSearches)
	s.AverageResultsCount = float64(s.TotalHits) / float64(s.TotalSearches)
}
