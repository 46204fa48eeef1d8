package services

import (
	"sort"
	"strings"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/pkg/config"
	"github.com/zatekoja/eventscan/pkg/embeddings"
	"github.com/zatekoja/eventscan/pkg/utils"
)

// Lexical tiers. Only the single highest matching tier applies.
const (
	lexTitleExact       = 1.0
	lexTitlePartial     = 0.7
	lexEmojiExact       = 0.8
	lexEmojiPartial     = 0.6
	lexSecondaryExact   = 0.5
	lexSecondaryPartial = 0.3

	categoryExact   = 0.8
	categoryPartial = 0.4
)

// Recency tiers relative to now
const (
	recencyUpcoming = 1.0
	recencyWeek     = 0.8
	recencyMonth    = 0.6
	recencyQuarter  = 0.4
	recencyStale    = 0.2
)

// SearchRankingService computes composite relevance scores and orders candidates
type SearchRankingService struct {
	weights    config.ScoringWeights
	similarity func(a, b []float32) float64
	now        func() time.Time
}

// NewSearchRankingService creates a ranking service. A nil provider falls back to clamped cosine similarity.
func NewSearchRankingService(weights config.ScoringWeights, provider providers.EmbeddingProvider) *SearchRankingService {
	sim := embeddings.Similarity
	if provider != nil {
		sim = provider.Similarity
	}

	return &SearchRankingService{
		weights:    weights,
		similarity: sim,
		now:        time.Now,
	}
}

// Rank scores every candidate that carries an embedding once and returns them ordered by
// score desc, id asc. A nil queryEmbedding ranks with renormalized non-semantic weights.
func (s *SearchRankingService) Rank(query string, queryEmbedding []float32, candidates []*entities.SearchCandidate) []entities.RankedResult {
	if len(candidates) == 0 {
		return nil
	}

	weights := s.effectiveWeights(queryEmbedding == nil)
	q := newQueryMatcher(query)
	now := s.now()

	ranked := make([]entities.RankedResult, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || !c.HasEmbedding() {
			continue
		}
		score, breakdown := s.score(q, queryEmbedding, c, weights, now)
		ranked = append(ranked, entities.RankedResult{
			Candidate:      c,
			Score:          score,
			ScoreBreakdown: breakdown,
		})
	}

	sortRanked(ranked)
	return ranked
}

// Score returns the composite score of one candidate and its weighted breakdown
func (s *SearchRankingService) Score(query string, queryEmbedding []float32, c *entities.SearchCandidate) (float64, map[string]float64) {
	return s.score(newQueryMatcher(query), queryEmbedding, c, s.effectiveWeights(queryEmbedding == nil), s.now())
}

// RankBySimilarity scores candidates purely by similarity to a filter embedding
func (s *SearchRankingService) RankBySimilarity(embedding []float32, candidates []*entities.SearchCandidate) []entities.RankedResult {
	ranked := make([]entities.RankedResult, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || !c.HasEmbedding() {
			continue
		}
		sim := embeddings.Clamp01(s.similarity(embedding, c.Embedding))
		ranked = append(ranked, entities.RankedResult{
			Candidate:      c,
			Score:          sim,
			ScoreBreakdown: map[string]float64{entities.ScoreSemantic: sim},
		})
	}

	sortRanked(ranked)
	return ranked
}

func (s *SearchRankingService) score(q queryMatcher, queryEmbedding []float32, c *entities.SearchCandidate, w config.ScoringWeights, now time.Time) (float64, map[string]float64) {
	breakdown := make(map[string]float64, 4)

	// 1. Semantic similarity
	semScore := 0.0
	if queryEmbedding != nil && c.HasEmbedding() {
		semScore = embeddings.Clamp01(s.similarity(queryEmbedding, c.Embedding))
	}
	breakdown[entities.ScoreSemantic] = semScore * w.Semantic

	// 2. Lexical match
	breakdown[entities.ScoreLexical] = q.lexical(c) * w.Lexical

	// 3. Category match
	breakdown[entities.ScoreCategory] = q.category(c.CategoryNames) * w.Category

	// 4. Recency
	breakdown[entities.ScoreRecency] = recencyScore(c.EventDate, now) * w.Recency

	total := breakdown[entities.ScoreSemantic] + breakdown[entities.ScoreLexical] +
		breakdown[entities.ScoreCategory] + breakdown[entities.ScoreRecency]
	return embeddings.Clamp01(total), breakdown
}

// effectiveWeights drops the semantic weight and rescales the rest to sum to 1.0 when degraded
func (s *SearchRankingService) effectiveWeights(degraded bool) config.ScoringWeights {
	if !degraded {
		return s.weights
	}

	rest := s.weights.Lexical + s.weights.Category + s.weights.Recency
	if rest <= 0 {
		return config.ScoringWeights{}
	}

	return config.ScoringWeights{
		Lexical:  s.weights.Lexical / rest,
		Category: s.weights.Category / rest,
		Recency:  s.weights.Recency / rest,
	}
}

func sortRanked(ranked []entities.RankedResult) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Candidate.ID < ranked[j].Candidate.ID
	})
}

func recencyScore(eventDate, now time.Time) float64 {
	if eventDate.After(now) {
		return recencyUpcoming
	}

	age := now.Sub(eventDate)
	switch {
	case age <= 7*24*time.Hour:
		return recencyWeek
	case age <= 30*24*time.Hour:
		return recencyMonth
	case age <= 90*24*time.Hour:
		return recencyQuarter
	default:
		return recencyStale
	}
}

// queryMatcher holds the normalized query and its terms for one ranking pass. Fields are
// normalized the same way, so punctuation never decides a tier.
type queryMatcher struct {
	phrase string
	terms  []string
}

func newQueryMatcher(query string) queryMatcher {
	return queryMatcher{
		phrase: utils.NormalizeQuery(query),
		terms:  utils.QueryTerms(query),
	}
}

func (q queryMatcher) lexical(c *entities.SearchCandidate) float64 {
	best := 0.0
	consider := func(field string, exact, partial float64) {
		if exact <= best && partial <= best {
			return
		}
		switch q.match(field) {
		case matchExact:
			best = max(best, exact)
		case matchPartial:
			best = max(best, partial)
		}
	}

	consider(c.Title, lexTitleExact, lexTitlePartial)
	consider(c.EmojiDescription, lexEmojiExact, lexEmojiPartial)
	consider(c.Description, lexSecondaryExact, lexSecondaryPartial)
	consider(c.Address, lexSecondaryExact, lexSecondaryPartial)
	consider(c.LocationNotes, lexSecondaryExact, lexSecondaryPartial)

	return best
}

func (q queryMatcher) category(names []string) float64 {
	if q.phrase == "" {
		return 0
	}

	best := 0.0
	for _, name := range names {
		n := utils.NormalizeQuery(name)
		if n == "" {
			continue
		}
		if n == q.phrase {
			return categoryExact
		}
		if strings.Contains(n, q.phrase) || strings.Contains(q.phrase, n) {
			best = categoryPartial
		}
	}
	return best
}

type matchKind int

const (
	matchNone matchKind = iota
	matchPartial
	matchExact
)

func (q queryMatcher) match(field string) matchKind {
	if q.phrase == "" || field == "" {
		return matchNone
	}

	f := utils.NormalizeQuery(field)
	if f == q.phrase {
		return matchExact
	}
	if strings.Contains(f, q.phrase) {
		return matchPartial
	}
	for _, term := range q.terms {
		if strings.Contains(f, term) {
			return matchPartial
		}
	}
	return matchNone
}
