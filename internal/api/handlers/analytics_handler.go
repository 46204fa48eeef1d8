package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

// AnalyticsService exposes query analytics to curators
type AnalyticsService interface {
	GetQueryInsights(ctx context.Context, windowDays int, limits entities.InsightLimits) (*entities.QueryInsights, error)
	GetZeroResultQueries(ctx context.Context, limit int) ([]*entities.QueryAnalyticsRecord, error)
	GetPopularQueries(ctx context.Context, limit int) ([]*entities.QueryAnalyticsRecord, error)
	UpdateQueryFlags(ctx context.Context) (*entities.FlagUpdateResult, error)
}

// ClusteringService groups similar queries
type ClusteringService interface {
	GetQueryClusters(ctx context.Context, threshold float64) ([]entities.QueryCluster, error)
}

// AnalyticsHandler handles query analytics HTTP requests
type AnalyticsHandler struct {
	analytics  AnalyticsService
	clustering ClusteringService
}

// NewAnalyticsHandler creates a new analytics handler. clustering may be nil.
func NewAnalyticsHandler(analytics AnalyticsService, clustering ClusteringService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, clustering: clustering}
}

// GetInsights handles GET /api/analytics/insights?window_days=&limit=
func (h *AnalyticsHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	windowDays, err := intParam(r, "window_days", 0)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	insights, err := h.analytics.GetQueryInsights(r.Context(), windowDays, entities.InsightLimits{
		TopQueries:     limit,
		ZeroResult:     limit,
		NeedsAttention: limit,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, insights)
}

// GetZeroResultQueries handles GET /api/analytics/zero-result-queries
func (h *AnalyticsHandler) GetZeroResultQueries(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	records, err := h.analytics.GetZeroResultQueries(r.Context(), limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"queries": records,
		"count":   len(records),
	})
}

// GetPopularQueries handles GET /api/analytics/popular-queries
func (h *AnalyticsHandler) GetPopularQueries(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	records, err := h.analytics.GetPopularQueries(r.Context(), limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"queries": records,
		"count":   len(records),
	})
}

// GetClusters handles GET /api/analytics/clusters?threshold=
func (h *AnalyticsHandler) GetClusters(w http.ResponseWriter, r *http.Request) {
	if h.clustering == nil {
		respondWithError(w, http.StatusNotFound, "query clustering is not enabled")
		return
	}

	var threshold float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondWithAppError(w, r, apperrors.NewValidationError("threshold must be a number"))
			return
		}
		threshold = v
	}

	clusters, err := h.clustering.GetQueryClusters(r.Context(), threshold)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"clusters": clusters,
		"count":    len(clusters),
	})
}

// RefreshFlags handles POST /api/admin/analytics/refresh-flags
func (h *AnalyticsHandler) RefreshFlags(w http.ResponseWriter, r *http.Request) {
	result, err := h.analytics.UpdateQueryFlags(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
