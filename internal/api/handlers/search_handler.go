package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

// SearchService is the ranking core as seen by the HTTP layer
type SearchService interface {
	Search(ctx context.Context, query string, pageSize int, cursor string) (*entities.SearchPage, error)
	SearchByFilter(ctx context.Context, filter entities.Filter, pageSize, offset int) (*entities.FilterPage, error)
	BrowseByDate(ctx context.Context, filter entities.StructuredFilter, pageSize int, cursor string) (*entities.SearchPage, error)
}

// SearchHandler handles event search HTTP requests
type SearchHandler struct {
	service SearchService
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(service SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search handles GET /api/search?q=&page_size=&cursor=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	pageSize, err := intParam(r, "page_size", 0)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	page, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), pageSize, r.URL.Query().Get("cursor"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

type filterRequest struct {
	Type       string                    `json:"type"`
	Embedding  []float32                 `json:"embedding,omitempty"`
	Structured entities.StructuredFilter `json:"structured"`
	PageSize   int                       `json:"page_size"`
	Offset     int                       `json:"offset"`
}

func (req filterRequest) toFilter() (entities.Filter, error) {
	switch req.Type {
	case "semantic":
		if len(req.Embedding) == 0 {
			return nil, apperrors.NewValidationError("semantic filter requires an embedding")
		}
		return entities.SemanticFilter{Embedding: req.Embedding}, nil
	case "structured":
		return req.Structured, nil
	case "hybrid":
		if len(req.Embedding) == 0 {
			return nil, apperrors.NewValidationError("hybrid filter requires an embedding")
		}
		return entities.HybridFilter{Embedding: req.Embedding, Structured: req.Structured}, nil
	default:
		return nil, apperrors.NewValidationError("filter type must be semantic, structured or hybrid")
	}
}

// SearchByFilter handles POST /api/search/filter
func (h *SearchHandler) SearchByFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	filter, err := req.toFilter()
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	page, err := h.service.SearchByFilter(r.Context(), filter, req.PageSize, req.Offset)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

// BrowseEvents handles GET /api/events?from=&to=&status=&lat=&lng=&radius_km=&page_size=&cursor=
func (h *SearchHandler) BrowseEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStructuredFilter(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	pageSize, err := intParam(r, "page_size", 0)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	page, err := h.service.BrowseByDate(r.Context(), filter, pageSize, r.URL.Query().Get("cursor"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func parseStructuredFilter(r *http.Request) (entities.StructuredFilter, error) {
	q := r.URL.Query()
	var filter entities.StructuredFilter

	from, err := parseDateParam(q.Get("from"), false)
	if err != nil {
		return filter, err
	}
	to, err := parseDateParam(q.Get("to"), true)
	if err != nil {
		return filter, err
	}
	if from != nil || to != nil {
		filter.DateRange = &entities.DateRange{From: from, To: to}
	}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := entities.EventStatus(strings.TrimSpace(s))
			switch status {
			case entities.EventStatusDraft, entities.EventStatusPublished, entities.EventStatusCancelled, entities.EventStatusCompleted:
				filter.Statuses = append(filter.Statuses, status)
			default:
				return filter, apperrors.NewValidationError("unknown status " + strconv.Quote(string(status)))
			}
		}
	}

	lat, lng, radius := q.Get("lat"), q.Get("lng"), q.Get("radius_km")
	if lat != "" || lng != "" || radius != "" {
		geo, err := parseGeoRadius(lat, lng, radius)
		if err != nil {
			return filter, err
		}
		filter.Geo = geo
	}

	return filter, nil
}

// parseDateParam accepts RFC 3339 or a bare date. A bare upper bound covers the whole day.
func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperrors.NewValidationError("dates must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseGeoRadius(lat, lng, radius string) (*entities.GeoRadius, error) {
	if lat == "" || lng == "" || radius == "" {
		return nil, apperrors.NewValidationError("lat, lng and radius_km must be given together")
	}
	latV, err1 := strconv.ParseFloat(lat, 64)
	lngV, err2 := strconv.ParseFloat(lng, 64)
	radiusV, err3 := strconv.ParseFloat(radius, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, apperrors.NewValidationError("lat, lng and radius_km must be numbers")
	}
	if latV < -90 || latV > 90 || lngV < -180 || lngV > 180 || radiusV <= 0 {
		return nil, apperrors.NewValidationError("coordinates or radius out of range")
	}
	return &entities.GeoRadius{
		Center:   entities.GeoPoint{Latitude: latV, Longitude: lngV},
		RadiusKm: radiusV,
	}, nil
}
