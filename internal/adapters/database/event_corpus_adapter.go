package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
	"github.com/zatekoja/eventscan/pkg/utils"
)

// haversineKm is the great-circle distance from (?, ?) to the row's coordinates
const haversineKm = `12742 * asin(sqrt(0.5 - cos(radians("e"."latitude" - ?))/2 + cos(radians(?)) * cos(radians("e"."latitude")) * (1 - cos(radians("e"."longitude" - ?)))/2))`

// EventCorpusAdapter reads search candidates from PostgreSQL
type EventCorpusAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewEventCorpusAdapter creates a new event corpus adapter
func NewEventCorpusAdapter(client *postgres.Client) *EventCorpusAdapter {
	return &EventCorpusAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var (
	_ repositories.EventCorpusRepository  = (*EventCorpusAdapter)(nil)
	_ repositories.EventListingRepository = (*EventCorpusAdapter)(nil)
)

// FindCandidates returns events where any term appears in a text field or category name
func (a *EventCorpusAdapter) FindCandidates(ctx context.Context, prefilter repositories.CandidatePrefilter) ([]*entities.SearchCandidate, error) {
	if len(prefilter.Terms) == 0 {
		return []*entities.SearchCandidate{}, nil
	}

	matches := make([]exp.Expression, 0, len(prefilter.Terms)*6)
	for _, term := range prefilter.Terms {
		pattern := "%" + utils.EscapeLikePattern(term) + "%"
		matches = append(matches,
			goqu.I("e.title").ILike(pattern),
			goqu.I("e.description").ILike(pattern),
			goqu.I("e.address").ILike(pattern),
			goqu.I("e.location_notes").ILike(pattern),
			goqu.I("e.emoji_description").ILike(pattern),
			goqu.L(`EXISTS (SELECT 1 FROM "event_categories" AS "ec2" JOIN "categories" AS "c2" ON "c2"."id" = "ec2"."category_id" WHERE "ec2"."event_id" = "e"."id" AND "c2"."name" ILIKE ?)`, pattern),
		)
	}

	where := []exp.Expression{goqu.Or(matches...)}
	where = append(where, statusExpressions(prefilter.Statuses)...)
	if prefilter.RequireEmbedding {
		where = append(where, goqu.I("e.embedding").IsNotNull())
	}

	ds := a.candidateSelect().
		Where(where...).
		Order(lexicalTier(prefilter.Phrase, prefilter.Terms).Desc(), goqu.I("e.id").Asc())
	if prefilter.Limit > 0 {
		ds = ds.Limit(uint(prefilter.Limit))
	}

	return a.query(ctx, ds, "failed to find search candidates")
}

// FindByFilter returns events satisfying the structured predicates, nearest to the
// criteria embedding first when one is given, otherwise by id
func (a *EventCorpusAdapter) FindByFilter(ctx context.Context, criteria repositories.FilterCriteria) ([]*entities.SearchCandidate, error) {
	where := structuredExpressions(criteria.Structured)
	if criteria.RequireEmbedding || len(criteria.Embedding) > 0 {
		where = append(where, goqu.I("e.embedding").IsNotNull())
	}

	ds := a.candidateSelect().Where(where...)
	if len(criteria.Embedding) > 0 {
		distance := goqu.L(`"e"."embedding" <=> ?::vector`, pgvector.NewVector(criteria.Embedding).String())
		ds = ds.Order(distance.Asc(), goqu.I("e.id").Asc())
	} else {
		ds = ds.Order(goqu.I("e.id").Asc())
	}
	if criteria.Limit > 0 {
		ds = ds.Limit(uint(criteria.Limit))
	}

	return a.query(ctx, ds, "failed to find events by filter")
}

// ListByDate returns one page ordered by event_date desc, id desc
func (a *EventCorpusAdapter) ListByDate(ctx context.Context, params repositories.DateListParams) ([]*entities.SearchCandidate, error) {
	where := structuredExpressions(params.Structured)
	if params.AfterID != "" {
		where = append(where, goqu.Or(
			goqu.I("e.event_date").Lt(params.AfterDate),
			goqu.And(
				goqu.I("e.event_date").Eq(params.AfterDate),
				goqu.I("e.id").Lt(params.AfterID),
			),
		))
	}

	ds := a.candidateSelect().
		Where(where...).
		Order(goqu.I("e.event_date").Desc(), goqu.I("e.id").Desc())
	if params.Offset > 0 {
		ds = ds.Offset(uint(params.Offset))
	}
	if params.Limit > 0 {
		ds = ds.Limit(uint(params.Limit))
	}

	return a.query(ctx, ds, "failed to list events by date")
}

// CountByFilter counts events satisfying the structured predicates
func (a *EventCorpusAdapter) CountByFilter(ctx context.Context, criteria repositories.FilterCriteria) (int, error) {
	where := structuredExpressions(criteria.Structured)
	if criteria.RequireEmbedding {
		where = append(where, goqu.I("e.embedding").IsNotNull())
	}

	query, args, err := a.db.From(goqu.T("events").As("e")).
		Select(goqu.COUNT("*")).
		Where(where...).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var total int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperrors.NewInternalError("failed to count events", err)
	}
	return total, nil
}

// ListAfterID pages through every event in id order, for index rebuilds
func (a *EventCorpusAdapter) ListAfterID(ctx context.Context, afterID string, limit int) ([]*entities.SearchCandidate, error) {
	ds := a.candidateSelect().Order(goqu.I("e.id").Asc()).Limit(uint(limit))
	if afterID != "" {
		ds = ds.Where(goqu.I("e.id").Gt(afterID))
	}
	return a.query(ctx, ds, "failed to page events")
}

func (a *EventCorpusAdapter) candidateSelect() *goqu.SelectDataset {
	return a.db.From(goqu.T("events").As("e")).
		Select(
			goqu.I("e.id"),
			goqu.I("e.title"),
			goqu.I("e.description"),
			goqu.I("e.address"),
			goqu.I("e.location_notes"),
			goqu.I("e.emoji_description"),
			goqu.I("e.event_date"),
			goqu.I("e.status"),
			goqu.I("e.latitude"),
			goqu.I("e.longitude"),
			goqu.I("e.embedding"),
			goqu.L(`COALESCE(array_agg("c"."id" ORDER BY "c"."id") FILTER (WHERE "c"."id" IS NOT NULL), '{}')`).As("category_ids"),
			goqu.L(`COALESCE(array_agg("c"."name" ORDER BY "c"."id") FILTER (WHERE "c"."id" IS NOT NULL), '{}')`).As("category_names"),
		).
		LeftJoin(goqu.T("event_categories").As("ec"), goqu.On(goqu.I("ec.event_id").Eq(goqu.I("e.id")))).
		LeftJoin(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("ec.category_id")))).
		GroupBy(goqu.I("e.id"))
}

func (a *EventCorpusAdapter) query(ctx context.Context, ds *goqu.SelectDataset, failure string) ([]*entities.SearchCandidate, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError(failure, err)
	}
	defer rows.Close()

	candidates := make([]*entities.SearchCandidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan search candidate", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError(failure, err)
	}

	return candidates, nil
}

func scanCandidate(rows *sql.Rows) (*entities.SearchCandidate, error) {
	c := &entities.SearchCandidate{}
	var (
		status        string
		lat, lng      sql.NullFloat64
		embedding     nullVector
		categoryIDs   pq.StringArray
		categoryNames pq.StringArray
	)

	err := rows.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Address,
		&c.LocationNotes,
		&c.EmojiDescription,
		&c.EventDate,
		&status,
		&lat,
		&lng,
		&embedding,
		&categoryIDs,
		&categoryNames,
	)
	if err != nil {
		return nil, err
	}

	c.Status = entities.EventStatus(status)
	if lat.Valid && lng.Valid {
		c.Location = &entities.GeoPoint{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if embedding.Valid {
		c.Embedding = embedding.Vector.Slice()
	}
	c.CategoryIDs = []string(categoryIDs)
	c.CategoryNames = []string(categoryNames)

	return c, nil
}

// lexicalTier is a cheap SQL rendition of the ranking tiers: exact phrase matches on
// title (1.0), emoji (0.8) or secondary text (0.5), then term matches (0.7, 0.6, 0.3).
func lexicalTier(phrase string, terms []string) exp.LiteralExpression {
	var sb strings.Builder
	args := make([]interface{}, 0, 5+len(terms)*5)

	sb.WriteString("GREATEST(0")
	if phrase != "" {
		sb.WriteString(`, CASE WHEN lower("e"."title") = ? THEN 1.0` +
			` WHEN lower("e"."emoji_description") = ? THEN 0.8` +
			` WHEN lower("e"."description") = ? OR lower("e"."address") = ? OR lower("e"."location_notes") = ? THEN 0.5` +
			` ELSE 0 END`)
		args = append(args, phrase, phrase, phrase, phrase, phrase)
	}
	for _, term := range terms {
		pattern := "%" + utils.EscapeLikePattern(term) + "%"
		sb.WriteString(`, CASE WHEN "e"."title" ILIKE ? THEN 0.7` +
			` WHEN "e"."emoji_description" ILIKE ? THEN 0.6` +
			` WHEN "e"."description" ILIKE ? OR "e"."address" ILIKE ? OR "e"."location_notes" ILIKE ? THEN 0.3` +
			` ELSE 0 END`)
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}
	sb.WriteString(")")

	return goqu.L(sb.String(), args...)
}

func statusExpressions(statuses []entities.EventStatus) []exp.Expression {
	if len(statuses) == 0 {
		return nil
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return []exp.Expression{goqu.I("e.status").In(values)}
}

func structuredExpressions(f entities.StructuredFilter) []exp.Expression {
	where := statusExpressions(f.Statuses)
	if f.DateRange != nil {
		if f.DateRange.From != nil {
			where = append(where, goqu.I("e.event_date").Gte(*f.DateRange.From))
		}
		if f.DateRange.To != nil {
			where = append(where, goqu.I("e.event_date").Lte(*f.DateRange.To))
		}
	}
	if f.Geo != nil {
		c := f.Geo.Center
		where = append(where,
			goqu.I("e.latitude").IsNotNull(),
			goqu.I("e.longitude").IsNotNull(),
			goqu.L(haversineKm+" <= ?", c.Latitude, c.Latitude, c.Longitude, f.Geo.RadiusKm),
		)
	}
	return where
}

// nullVector scans a nullable pgvector column
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (v *nullVector) Scan(src interface{}) error {
	switch s := src.(type) {
	case nil:
		v.Valid = false
		return nil
	case string:
		src = []byte(s)
	}
	if err := v.Vector.Scan(src); err != nil {
		return fmt.Errorf("failed to scan embedding: %w", err)
	}
	v.Valid = true
	return nil
}
