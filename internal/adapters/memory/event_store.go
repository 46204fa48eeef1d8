package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/pkg/embeddings"
	"github.com/zatekoja/eventscan/pkg/utils"
)

// EventStore is an in-memory event corpus. It implements the corpus, listing and
// index repositories and is used for local development and tests.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]*entities.SearchCandidate
}

// NewEventStore creates an event store seeded with candidates
func NewEventStore(candidates ...*entities.SearchCandidate) *EventStore {
	s := &EventStore{events: make(map[string]*entities.SearchCandidate, len(candidates))}
	for _, c := range candidates {
		s.events[c.ID] = c
	}
	return s
}

// Index inserts or replaces a candidate
func (s *EventStore) Index(ctx context.Context, candidate *entities.SearchCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[candidate.ID] = candidate
	return nil
}

// Delete removes a candidate
func (s *EventStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, id)
	return nil
}

// FindCandidates applies the lexical pre-filter. Results are ordered by lexical tier,
// then id, so the candidate limit keeps the strongest matches.
func (s *EventStore) FindCandidates(ctx context.Context, prefilter repositories.CandidatePrefilter) ([]*entities.SearchCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := s.collect(func(c *entities.SearchCandidate) bool {
		if prefilter.RequireEmbedding && !c.HasEmbedding() {
			return false
		}
		if len(prefilter.Statuses) > 0 && !(entities.StructuredFilter{Statuses: prefilter.Statuses}).Matches(c) {
			return false
		}
		return matchesAnyTerm(c, prefilter.Terms)
	})

	tiers := make(map[string]float64, len(out))
	for _, c := range out {
		tiers[c.ID] = lexicalTier(c, utils.NormalizeQuery(prefilter.Phrase), prefilter.Terms)
	}
	sort.Slice(out, func(i, j int) bool {
		if tiers[out[i].ID] != tiers[out[j].ID] {
			return tiers[out[i].ID] > tiers[out[j].ID]
		}
		return out[i].ID < out[j].ID
	})
	return limit(out, prefilter.Limit), nil
}

// FindByFilter returns candidates satisfying the structured predicates, most similar to
// the criteria embedding first when one is given, otherwise by id
func (s *EventStore) FindByFilter(ctx context.Context, criteria repositories.FilterCriteria) ([]*entities.SearchCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := len(criteria.Embedding) > 0
	out := s.collect(func(c *entities.SearchCandidate) bool {
		if (criteria.RequireEmbedding || ranked) && !c.HasEmbedding() {
			return false
		}
		return criteria.Structured.Matches(c)
	})

	if !ranked {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return limit(out, criteria.Limit), nil
	}

	sims := make(map[string]float64, len(out))
	for _, c := range out {
		sims[c.ID] = embeddings.CosineSimilarity(criteria.Embedding, c.Embedding)
	}
	sort.Slice(out, func(i, j int) bool {
		if sims[out[i].ID] != sims[out[j].ID] {
			return sims[out[i].ID] > sims[out[j].ID]
		}
		return out[i].ID < out[j].ID
	})
	return limit(out, criteria.Limit), nil
}

// ListByDate returns one page ordered by event date desc, id desc
func (s *EventStore) ListByDate(ctx context.Context, params repositories.DateListParams) ([]*entities.SearchCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := s.collect(func(c *entities.SearchCandidate) bool {
		if !params.Structured.Matches(c) {
			return false
		}
		if params.AfterID == "" {
			return true
		}
		if !c.EventDate.Equal(params.AfterDate) {
			return c.EventDate.Before(params.AfterDate)
		}
		return c.ID < params.AfterID
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].EventDate.After(out[j].EventDate)
		}
		return out[i].ID > out[j].ID
	})
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return []*entities.SearchCandidate{}, nil
		}
		out = out[params.Offset:]
	}
	return limit(out, params.Limit), nil
}

// CountByFilter counts candidates satisfying the structured predicates
func (s *EventStore) CountByFilter(ctx context.Context, criteria repositories.FilterCriteria) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return len(s.collect(func(c *entities.SearchCandidate) bool {
		if criteria.RequireEmbedding && !c.HasEmbedding() {
			return false
		}
		return criteria.Structured.Matches(c)
	})), nil
}

func (s *EventStore) collect(keep func(*entities.SearchCandidate) bool) []*entities.SearchCandidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.SearchCandidate, 0, len(s.events))
	for _, c := range s.events {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func matchesAnyTerm(c *entities.SearchCandidate, terms []string) bool {
	if len(terms) == 0 {
		return true
	}

	fields := []string{c.Title, c.Description, c.Address, c.LocationNotes, c.EmojiDescription}
	fields = append(fields, c.CategoryNames...)
	for _, f := range fields {
		lf := strings.ToLower(f)
		for _, t := range terms {
			if strings.Contains(lf, strings.ToLower(t)) {
				return true
			}
		}
	}
	return false
}

// lexicalTier mirrors the ranking tiers: exact phrase on title, emoji or secondary text,
// then any term contained in those fields
func lexicalTier(c *entities.SearchCandidate, phrase string, terms []string) float64 {
	best := 0.0
	tier := func(field string, exact, partial float64) {
		f := utils.NormalizeQuery(field)
		if f == "" {
			return
		}
		if phrase != "" && f == phrase {
			best = max(best, exact)
			return
		}
		for _, t := range terms {
			if strings.Contains(f, strings.ToLower(t)) {
				best = max(best, partial)
				return
			}
		}
	}

	tier(c.Title, 1.0, 0.7)
	tier(c.EmojiDescription, 0.8, 0.6)
	tier(c.Description, 0.5, 0.3)
	tier(c.Address, 0.5, 0.3)
	tier(c.LocationNotes, 0.5, 0.3)
	return best
}

func limit(in []*entities.SearchCandidate, n int) []*entities.SearchCandidate {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}
