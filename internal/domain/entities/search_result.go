package entities

// Score breakdown keys
const (
	ScoreSemantic = "semantic"
	ScoreLexical  = "lexical"
	ScoreCategory = "category"
	ScoreRecency  = "recency"
)

// RankedResult is a candidate with its composite score. Never persisted.
type RankedResult struct {
	Candidate      *SearchCandidate   `json:"event"`
	Score          float64            `json:"score"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown,omitempty"`
}

// SearchPage is one page of free-text or date-ordered results
type SearchPage struct {
	Results    []RankedResult `json:"results"`
	NextCursor string         `json:"next_cursor,omitempty"`
	// Degraded is set when the page was ranked without semantic similarity.
	Degraded  bool `json:"degraded,omitempty"`
	FromCache bool `json:"-"`
}

// FilterPage is one offset page of filter-ranked results
type FilterPage struct {
	Results []RankedResult `json:"results"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// EventIDs returns the ids of the ranked candidates in order
func (p *SearchPage) EventIDs() []string {
	ids := make([]string, len(p.Results))
	for i, r := range p.Results {
		ids[i] = r.Candidate.ID
	}
	return ids
}

// CategoryIDs returns every category id on the page, in result order, with repeats
func (p *SearchPage) CategoryIDs() []string {
	var ids []string
	for _, r := range p.Results {
		ids = append(ids, r.Candidate.CategoryIDs...)
	}
	return ids
}
