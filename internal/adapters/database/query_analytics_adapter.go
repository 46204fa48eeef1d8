package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

const queryAnalyticsTable = "query_analytics"

var queryAnalyticsColumns = []interface{}{
	"id", "normalized_query", "raw_query", "total_searches", "total_hits",
	"zero_result_searches", "average_results_per_search", "hit_rate",
	"first_searched_at", "last_searched_at", "top_results", "top_categories",
	"is_popular", "needs_attention",
}

// QueryAnalyticsAdapter implements the QueryAnalyticsRepository interface
type QueryAnalyticsAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewQueryAnalyticsAdapter creates a new query analytics adapter
func NewQueryAnalyticsAdapter(client *postgres.Client) *QueryAnalyticsAdapter {
	return &QueryAnalyticsAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var _ repositories.QueryAnalyticsRepository = (*QueryAnalyticsAdapter)(nil)

// GetByNormalizedQuery retrieves the record for a normalized query
func (a *QueryAnalyticsAdapter) GetByNormalizedQuery(ctx context.Context, normalizedQuery string) (*entities.QueryAnalyticsRecord, error) {
	query, args, err := a.db.From(queryAnalyticsTable).
		Select(queryAnalyticsColumns...).
		Where(goqu.Ex{"normalized_query": normalizedQuery}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	record, err := scanAnalyticsRecord(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no analytics for query %q", normalizedQuery))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get query analytics", err)
	}
	return record, nil
}

// Upsert inserts the record or overwrites the row with the same normalized query
func (a *QueryAnalyticsAdapter) Upsert(ctx context.Context, record *entities.QueryAnalyticsRecord) error {
	topResults, err := json.Marshal(nonNilCounts(record.TopResults))
	if err != nil {
		return apperrors.NewInternalError("failed to marshal top results", err)
	}
	topCategories, err := json.Marshal(nonNilCounts(record.TopCategories))
	if err != nil {
		return apperrors.NewInternalError("failed to marshal top categories", err)
	}

	row := goqu.Record{
		"id":                         record.ID,
		"normalized_query":           record.NormalizedQuery,
		"raw_query":                  record.RawQuery,
		"total_searches":             record.TotalSearches,
		"total_hits":                 record.TotalHits,
		"zero_result_searches":       record.ZeroResultSearches,
		"average_results_per_search": record.AverageResultsPerSearch,
		"hit_rate":                   record.HitRate,
		"first_searched_at":          record.FirstSearchedAt,
		"last_searched_at":           record.LastSearchedAt,
		"top_results":                string(topResults),
		"top_categories":             string(topCategories),
		"is_popular":                 record.IsPopular,
		"needs_attention":            record.NeedsAttention,
	}

	update := goqu.Record{}
	for col := range row {
		if col == "id" || col == "normalized_query" {
			continue
		}
		update[col] = goqu.L("EXCLUDED." + col)
	}

	query, args, err := a.db.Insert(queryAnalyticsTable).
		Rows(row).
		OnConflict(goqu.DoUpdate("normalized_query", update)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert query analytics", err)
	}
	return nil
}

// ListByMinSearches returns records with at least minSearches searches, by volume desc
func (a *QueryAnalyticsAdapter) ListByMinSearches(ctx context.Context, minSearches int) ([]*entities.QueryAnalyticsRecord, error) {
	return a.list(ctx, a.byVolume(goqu.C("total_searches").Gte(minSearches)), 0)
}

// ListTopQueries returns the most searched queries in the window
func (a *QueryAnalyticsAdapter) ListTopQueries(ctx context.Context, window repositories.AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error) {
	return a.list(ctx, a.byVolume(inWindow(window.Since)), window.Limit)
}

// ListZeroResultQueries returns queries with zero-result searches, most zero results first
func (a *QueryAnalyticsAdapter) ListZeroResultQueries(ctx context.Context, window repositories.AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error) {
	ds := a.db.From(queryAnalyticsTable).
		Select(queryAnalyticsColumns...).
		Where(goqu.C("zero_result_searches").Gt(0), inWindow(window.Since)).
		Order(goqu.C("zero_result_searches").Desc(), goqu.C("normalized_query").Asc())
	return a.list(ctx, ds, window.Limit)
}

// ListNeedingAttention returns flagged queries by volume desc
func (a *QueryAnalyticsAdapter) ListNeedingAttention(ctx context.Context, window repositories.AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error) {
	return a.list(ctx, a.byVolume(goqu.C("needs_attention").IsTrue(), inWindow(window.Since)), window.Limit)
}

// ListPopular returns popular queries by volume desc
func (a *QueryAnalyticsAdapter) ListPopular(ctx context.Context, limit int) ([]*entities.QueryAnalyticsRecord, error) {
	return a.list(ctx, a.byVolume(goqu.C("is_popular").IsTrue()), limit)
}

// Summarize aggregates counters over records searched since the given time
func (a *QueryAnalyticsAdapter) Summarize(ctx context.Context, since time.Time) (*entities.QueryAnalyticsSummary, error) {
	query, args, err := a.db.From(queryAnalyticsTable).
		Select(
			goqu.COUNT("*"),
			goqu.COALESCE(goqu.SUM("total_searches"), 0),
			goqu.COALESCE(goqu.SUM("zero_result_searches"), 0),
			goqu.COALESCE(goqu.SUM("total_hits"), 0),
		).
		Where(inWindow(since)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build summary query", err)
	}

	summary := &entities.QueryAnalyticsSummary{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&summary.DistinctQueries,
		&summary.TotalSearches,
		&summary.ZeroResultSearches,
		&summary.TotalHits,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to summarize query analytics", err)
	}

	summary.Finalize()
	return summary, nil
}

// UpdateFlags recomputes isPopular and needsAttention for every row in one transaction
func (a *QueryAnalyticsAdapter) UpdateFlags(ctx context.Context, t repositories.FlagThresholds) (*entities.FlagUpdateResult, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE query_analytics SET
			is_popular = (last_searched_at >= $1 AND total_searches >= $2),
			needs_attention = (last_searched_at >= $1 AND total_searches >= $3 AND hit_rate < $4)
	`, t.Since, t.PopularMinSearches, t.AttentionMinSearches, t.AttentionMaxHitRate)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to update query flags", err)
	}

	result := &entities.FlagUpdateResult{}
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_popular),
			COUNT(*) FILTER (WHERE needs_attention)
		FROM query_analytics
	`).Scan(&result.Popular, &result.NeedsAttention)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to count query flags", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewInternalError("failed to commit query flags", err)
	}
	return result, nil
}

func (a *QueryAnalyticsAdapter) byVolume(where ...exp.Expression) *goqu.SelectDataset {
	return a.db.From(queryAnalyticsTable).
		Select(queryAnalyticsColumns...).
		Where(where...).
		Order(goqu.C("total_searches").Desc(), goqu.C("normalized_query").Asc())
}

func (a *QueryAnalyticsAdapter) list(ctx context.Context, ds *goqu.SelectDataset, limit int) ([]*entities.QueryAnalyticsRecord, error) {
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list query analytics", err)
	}
	defer rows.Close()

	records := make([]*entities.QueryAnalyticsRecord, 0)
	for rows.Next() {
		r, err := scanAnalyticsRecord(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan query analytics", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list query analytics", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalyticsRecord(row rowScanner) (*entities.QueryAnalyticsRecord, error) {
	r := &entities.QueryAnalyticsRecord{}
	var topResults, topCategories []byte

	err := row.Scan(
		&r.ID,
		&r.NormalizedQuery,
		&r.RawQuery,
		&r.TotalSearches,
		&r.TotalHits,
		&r.ZeroResultSearches,
		&r.AverageResultsPerSearch,
		&r.HitRate,
		&r.FirstSearchedAt,
		&r.LastSearchedAt,
		&topResults,
		&topCategories,
		&r.IsPopular,
		&r.NeedsAttention,
	)
	if err != nil {
		return nil, err
	}

	if r.TopResults, err = decodeCounts(topResults); err != nil {
		return nil, fmt.Errorf("top_results: %w", err)
	}
	if r.TopCategories, err = decodeCounts(topCategories); err != nil {
		return nil, fmt.Errorf("top_categories: %w", err)
	}
	return r, nil
}

func decodeCounts(raw []byte) ([]entities.RankedCount, error) {
	counts := []entities.RankedCount{}
	if len(raw) == 0 {
		return counts, nil
	}
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func nonNilCounts(counts []entities.RankedCount) []entities.RankedCount {
	if counts == nil {
		return []entities.RankedCount{}
	}
	return counts
}

func inWindow(since time.Time) exp.Expression {
	return goqu.C("last_searched_at").Gte(since)
}
