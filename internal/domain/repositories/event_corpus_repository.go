package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
)

// CandidatePrefilter is the cheap lexical pre-filter applied before scoring.
// A candidate matches when any term appears in its title, description, address,
// location notes, emoji description or a category name. When Limit cuts the match
// set, the strongest lexical matches of Phrase and Terms are kept.
type CandidatePrefilter struct {
	Phrase           string
	Terms            []string
	Statuses         []entities.EventStatus
	RequireEmbedding bool
	Limit            int
}

// EventCorpusRepository supplies search candidates to the ranking core
type EventCorpusRepository interface {
	FindCandidates(ctx context.Context, prefilter CandidatePrefilter) ([]*entities.SearchCandidate, error)
}

// FilterCriteria are the hard predicates of a saved filter pushed down to storage.
// With an Embedding set, rows are ordered by cosine distance to it before Limit applies.
type FilterCriteria struct {
	Structured       entities.StructuredFilter
	Embedding        []float32
	RequireEmbedding bool
	Limit            int
}

// DateListParams selects one page of a date-ordered listing (event_date desc, id desc)
type DateListParams struct {
	Structured entities.StructuredFilter
	// AfterDate and AfterID resume strictly after the last seen row when AfterID is set.
	AfterDate time.Time
	AfterID   string
	Offset    int
	Limit     int
}

// EventListingRepository supports the filter-ranked and date-ordered listings
type EventListingRepository interface {
	FindByFilter(ctx context.Context, criteria FilterCriteria) ([]*entities.SearchCandidate, error)
	ListByDate(ctx context.Context, params DateListParams) ([]*entities.SearchCandidate, error)
	CountByFilter(ctx context.Context, criteria FilterCriteria) (int, error)
}

// EventIndexRepository keeps a secondary search index in sync with the event store
type EventIndexRepository interface {
	Index(ctx context.Context, candidate *entities.SearchCandidate) error
	Delete(ctx context.Context, id string) error
}
