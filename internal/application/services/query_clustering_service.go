package services

import (
	"context"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
	"github.com/zatekoja/eventscan/pkg/utils"
)

// SimilarityEmbedder embeds text and compares embeddings
type SimilarityEmbedder interface {
	QueryEmbedder
	Similarity(a, b []float32) float64
}

// QueryClusteringService groups near-duplicate queries by embedding similarity
type QueryClusteringService struct {
	repo     repositories.QueryAnalyticsRepository
	embedder SimilarityEmbedder
	cfg      config.AnalyticsConfig
	metrics  *observability.SearchMetrics
}

// NewQueryClusteringService creates a new query clustering service
func NewQueryClusteringService(
	repo repositories.QueryAnalyticsRepository,
	embedder SimilarityEmbedder,
	cfg config.AnalyticsConfig,
	metrics *observability.SearchMetrics,
) *QueryClusteringService {
	return &QueryClusteringService{
		repo:     repo,
		embedder: embedder,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// GetQueryClusters clusters every query with enough volume. A threshold of zero uses the
// configured default. If any embedding cannot be produced the run is abandoned and an
// empty list is returned.
func (s *QueryClusteringService) GetQueryClusters(ctx context.Context, threshold float64) ([]entities.QueryCluster, error) {
	if threshold == 0 {
		threshold = s.cfg.ClusterThreshold
	}
	if threshold <= 0 || threshold > 1 {
		return nil, apperrors.NewInputError("similarity threshold must be in (0, 1]", nil)
	}

	ctx, span := observability.StartSpan(ctx, "QueryClusteringService.GetQueryClusters")
	defer span.End()
	start := time.Now()
	logger := observability.ComponentLogger(ctx, "query_clustering")

	records, err := s.repo.ListByMinSearches(ctx, s.minSearches())
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewAnalyticsError("failed to load queries for clustering", err)
	}

	items := make([]clusterItem, 0, len(records))
	for _, r := range records {
		vec, err := s.embedder.Get(ctx, utils.MultiSlotText(r.NormalizedQuery))
		if err != nil {
			cerr := apperrors.NewClusteringError("failed to embed query "+r.NormalizedQuery, err)
			observability.RecordError(span, cerr)
			logger.Warn().Err(cerr).Int("queries", len(records)).Msg("Query clustering aborted")
			return []entities.QueryCluster{}, nil
		}
		items = append(items, clusterItem{record: r, embedding: vec})
	}

	clusters := clusterQueries(items, threshold, s.embedder.Similarity, s.attentionHitRate())

	s.metrics.RecordClusterRun(ctx, len(clusters), time.Since(start))
	logger.Info().
		Int("queries", len(items)).
		Int("clusters", len(clusters)).
		Float64("threshold", threshold).
		Msg("Query clustering completed")
	return clusters, nil
}

func (s *QueryClusteringService) minSearches() int {
	if s.cfg.ClusterMinSearches > 0 {
		return s.cfg.ClusterMinSearches
	}
	return 3
}

func (s *QueryClusteringService) attentionHitRate() float64 {
	if s.cfg.AttentionMaxHitRate > 0 {
		return s.cfg.AttentionMaxHitRate
	}
	return 30
}

type clusterItem struct {
	record    *entities.QueryAnalyticsRecord
	embedding []float32
}

type similarityFunc func(a, b []float32) float64

// clusterQueries walks items in order, which must be volume descending, and grows a cluster
// around each unprocessed query. Clusters of fewer than two queries are not emitted, but
// their seed stays processed.
func clusterQueries(items []clusterItem, threshold float64, sim similarityFunc, attentionHitRate float64) []entities.QueryCluster {
	processed := make(map[int]bool, len(items))
	clusters := make([]entities.QueryCluster, 0)

	for seed := range items {
		if processed[seed] {
			continue
		}
		processed[seed] = true

		similar := findSimilarQueries(seed, items, processed, threshold, sim)
		if len(similar) == 0 {
			continue
		}
		clusters = append(clusters, buildCluster(seed, similar, items, sim, attentionHitRate))
	}

	return clusters
}

// findSimilarQueries returns the unprocessed items reachable from seed through pairs at or
// above threshold, in discovery order, and marks them processed.
func findSimilarQueries(seed int, items []clusterItem, processed map[int]bool, threshold float64, sim similarityFunc) []int {
	var found []int
	frontier := []int{seed}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		for j := range items {
			if processed[j] {
				continue
			}
			if sim(items[cur].embedding, items[j].embedding) >= threshold {
				processed[j] = true
				found = append(found, j)
				frontier = append(frontier, j)
			}
		}
	}

	return found
}

func buildCluster(seed int, similar []int, items []clusterItem, sim similarityFunc, attentionHitRate float64) entities.QueryCluster {
	rep := items[seed]
	cluster := entities.QueryCluster{
		RepresentativeQuery: rep.record.NormalizedQuery,
		Members:             make([]entities.ClusterMember, 0, len(similar)+1),
	}

	add := func(item clusterItem, similarity float64) {
		r := item.record
		cluster.Members = append(cluster.Members, entities.ClusterMember{
			Query:         r.NormalizedQuery,
			Similarity:    similarity,
			TotalSearches: r.TotalSearches,
			TotalHits:     r.TotalHits,
			HitRate:       r.HitRate,
		})
		cluster.TotalSearches += r.TotalSearches
		cluster.TotalHits += r.TotalHits
		cluster.AverageHitRate += r.HitRate
		if r.HitRate < attentionHitRate {
			cluster.NeedsAttention = true
		}
	}

	add(rep, 1)
	for _, j := range similar {
		add(items[j], sim(rep.embedding, items[j].embedding))
	}
	cluster.AverageHitRate /= float64(len(cluster.Members))

	return cluster
}
