package entities

// Filter is a saved search filter. The concrete variants are SemanticFilter,
// StructuredFilter and HybridFilter.
type Filter interface {
	filter()
}

// SemanticFilter ranks purely by cosine similarity to a stored embedding
type SemanticFilter struct {
	Embedding []float32 `json:"embedding"`
}

// StructuredFilter applies hard predicates and lists by date
type StructuredFilter struct {
	DateRange *DateRange    `json:"date_range,omitempty"`
	Statuses  []EventStatus `json:"statuses,omitempty"`
	Geo       *GeoRadius    `json:"geo,omitempty"`
}

// HybridFilter ranks by similarity within the structured predicates
type HybridFilter struct {
	Embedding  []float32        `json:"embedding"`
	Structured StructuredFilter `json:"structured"`
}

func (SemanticFilter) filter()   {}
func (StructuredFilter) filter() {}
func (HybridFilter) filter()     {}

// Matches reports whether a candidate satisfies every predicate that is set
func (f StructuredFilter) Matches(c *SearchCandidate) bool {
	if f.DateRange != nil && !f.DateRange.Contains(c.EventDate) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if f.Geo != nil {
		if c.Location == nil || !f.Geo.Contains(*c.Location) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no predicate is set
func (f StructuredFilter) IsEmpty() bool {
	return f.DateRange == nil && len(f.Statuses) == 0 && f.Geo == nil
}

func containsStatus(statuses []EventStatus, s EventStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
