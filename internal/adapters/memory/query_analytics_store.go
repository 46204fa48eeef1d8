package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

// QueryAnalyticsStore is an in-memory QueryAnalyticsRepository. Records are copied on
// read and write so callers observe the same load-modify-store semantics as a database.
type QueryAnalyticsStore struct {
	mu      sync.RWMutex
	records map[string]*entities.QueryAnalyticsRecord
}

// NewQueryAnalyticsStore creates an empty store
func NewQueryAnalyticsStore() *QueryAnalyticsStore {
	return &QueryAnalyticsStore{records: make(map[string]*entities.QueryAnalyticsRecord)}
}

// GetByNormalizedQuery returns a copy of the record for a normalized query
func (s *QueryAnalyticsStore) GetByNormalizedQuery(ctx context.Context, normalizedQuery string) (*entities.QueryAnalyticsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[normalizedQuery]
	if !ok {
		return nil, apperrors.NewNotFoundError("query analytics record not found")
	}
	return cloneRecord(r), nil
}

// Upsert stores a copy of the record keyed by its normalized query
func (s *QueryAnalyticsStore) Upsert(ctx context.Context, record *entities.QueryAnalyticsRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.NormalizedQuery] = cloneRecord(record)
	return nil
}

// ListByMinSearches returns records with at least minSearches searches, by volume desc
func (s *QueryAnalyticsStore) ListByMinSearches(ctx context.Context, minSearches int) ([]*entities.QueryAnalyticsRecord, error) {
	out := s.filter(func(r *entities.QueryAnalyticsRecord) bool { return r.TotalSearches >= minSearches })
	sortByVolume(out)
	return out, nil
}

// ListTopQueries returns the most searched queries in the window
func (s *QueryAnalyticsStore) ListTopQueries(ctx context.Context, window repositories.AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error) {
	out := s.filter(func(r *entities.QueryAnalyticsRecord) bool { return !r.LastSearchedAt.Before(window.Since) })
	sortByVolume(out)
	return limitRecords(out, window.Limit), nil
}

// ListZeroResultQueries returns queries with zero-result searches, most zero results first
func (s *QueryAnalyticsStore) ListZeroResultQueries(ctx context.Context, window repositories.AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error) {
	out := s.filter(func(r *entities.QueryAnalyticsRecord) bool {
		return r.ZeroResultSearches > 0 && !r.LastSearchedAt.Before(window.Since)
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZeroResultSearches != out[j].ZeroResultSearches {
			return out[i].ZeroResultSearches > out[j].ZeroResultSearches
		}
		return out[i].NormalizedQuery < out[j].NormalizedQuery
	})
	return limitRecords(out, window.Limit), nil
}

// ListNeedingAttention returns flagged queries by volume desc
func (s *QueryAnalyticsStore) ListNeedingAttention(ctx context.Context, window repositories.AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error) {
	out := s.filter(func(r *entities.QueryAnalyticsRecord) bool {
		return r.NeedsAttention && !r.LastSearchedAt.Before(window.Since)
	})
	sortByVolume(out)
	return limitRecords(out, window.Limit), nil
}

// ListPopular returns popular queries by volume desc
func (s *QueryAnalyticsStore) ListPopular(ctx context.Context, limit int) ([]*entities.QueryAnalyticsRecord, error) {
	out := s.filter(func(r *entities.QueryAnalyticsRecord) bool { return r.IsPopular })
	sortByVolume(out)
	return limitRecords(out, limit), nil
}

// Summarize aggregates counters over records searched since the given time
func (s *QueryAnalyticsStore) Summarize(ctx context.Context, since time.Time) (*entities.QueryAnalyticsSummary, error) {
	summary := &entities.QueryAnalyticsSummary{}
	for _, r := range s.filter(func(r *entities.QueryAnalyticsRecord) bool { return !r.LastSearchedAt.Before(since) }) {
		summary.DistinctQueries++
		summary.TotalSearches += r.TotalSearches
		summary.TotalHits += r.TotalHits
		summary.ZeroResultSearches += r.ZeroResultSearches
	}
	summary.Finalize()
	return summary, nil
}

// UpdateFlags recomputes isPopular and needsAttention on every record
func (s *QueryAnalyticsStore) UpdateFlags(ctx context.Context, t repositories.FlagThresholds) (*entities.FlagUpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &entities.FlagUpdateResult{}
	for _, r := range s.records {
		recent := !r.LastSearchedAt.Before(t.Since)
		r.IsPopular = recent && r.TotalSearches >= t.PopularMinSearches
		r.NeedsAttention = recent && r.TotalSearches >= t.AttentionMinSearches && r.HitRate < t.AttentionMaxHitRate
		if r.IsPopular {
			result.Popular++
		}
		if r.NeedsAttention {
			result.NeedsAttention++
		}
	}
	return result, nil
}

func (s *QueryAnalyticsStore) filter(keep func(*entities.QueryAnalyticsRecord) bool) []*entities.QueryAnalyticsRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.QueryAnalyticsRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	return out
}

func sortByVolume(records []*entities.QueryAnalyticsRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].TotalSearches != records[j].TotalSearches {
			return records[i].TotalSearches > records[j].TotalSearches
		}
		return records[i].NormalizedQuery < records[j].NormalizedQuery
	})
}

func limitRecords(in []*entities.QueryAnalyticsRecord, n int) []*entities.QueryAnalyticsRecord {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}

func cloneRecord(r *entities.QueryAnalyticsRecord) *entities.QueryAnalyticsRecord {
	c := *r
	c.TopResults = append([]entities.RankedCount{}, r.TopResults...)
	c.TopCategories = append([]entities.RankedCount{}, r.TopCategories...)
	return &c
}
