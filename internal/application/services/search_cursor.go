package services

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
)

// ErrInvalidCursor is returned when the cursor parameter is malformed or tampered with.
// Callers treat the request as a first page.
var ErrInvalidCursor = errors.New("invalid cursor")

// ErrUnsupportedCursor is returned for a well-formed cursor from an ordering scheme this
// build does not know. It cannot be answered by falling back to the first page.
var ErrUnsupportedCursor = errors.New("unsupported cursor")

const cursorVersion = 1

// CursorKind is the ordering a cursor resumes
type CursorKind string

const (
	// CursorKindScore resumes a score desc, id asc ordering
	CursorKindScore CursorKind = "score"
	// CursorKindDate resumes an event_date desc, id desc ordering
	CursorKindDate CursorKind = "date"
)

// Cursor is a decoded pagination position: the sort key and id of the last item served
type Cursor struct {
	Kind       CursorKind
	Score      float64
	Timestamp  time.Time
	TieBreakID string
	// Degraded marks a score taken from ranking without semantic similarity. Later pages
	// must be ranked the same way for the score to be comparable.
	Degraded bool
}

type cursorPayload struct {
	V int        `json:"v"`
	K CursorKind `json:"k"`
	S float64    `json:"s,omitempty"` // composite score of last row
	T int64      `json:"t,omitempty"` // event date of last row, unix nanos
	I string     `json:"i"`           // id of last row
	D bool       `json:"d,omitempty"` // score is from degraded ranking
}

// EncodeSearchCursor returns an opaque cursor positioned after the given ranked result
func EncodeSearchCursor(last entities.RankedResult) string {
	return encodeCursor(cursorPayload{V: cursorVersion, K: CursorKindScore, S: last.Score, I: last.Candidate.ID})
}

// EncodeDegradedSearchCursor is EncodeSearchCursor for a page ranked without semantic similarity
func EncodeDegradedSearchCursor(last entities.RankedResult) string {
	return encodeCursor(cursorPayload{V: cursorVersion, K: CursorKindScore, S: last.Score, I: last.Candidate.ID, D: true})
}

// EncodeDateCursor returns an opaque cursor positioned after the given candidate in date order
func EncodeDateCursor(last *entities.SearchCandidate) string {
	return encodeCursor(cursorPayload{V: cursorVersion, K: CursorKindDate, T: last.EventDate.UnixNano(), I: last.ID})
}

func encodeCursor(p cursorPayload) string {
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}

	return base64.URLEncoding.EncodeToString(b)
}

// DecodeSearchCursor parses an opaque cursor. It never panics: any input yields either a
// Cursor, ErrInvalidCursor or ErrUnsupportedCursor.
func DecodeSearchCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, ErrInvalidCursor
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	if p.V <= 0 || p.I == "" {
		return Cursor{}, ErrInvalidCursor
	}
	if p.V != cursorVersion {
		return Cursor{}, ErrUnsupportedCursor
	}

	switch p.K {
	case CursorKindScore:
		if math.IsNaN(p.S) || p.S < 0 || p.S > 1 {
			return Cursor{}, ErrInvalidCursor
		}
		return Cursor{Kind: CursorKindScore, Score: p.S, TieBreakID: p.I, Degraded: p.D}, nil
	case CursorKindDate:
		if p.T == 0 {
			return Cursor{}, ErrInvalidCursor
		}
		return Cursor{Kind: CursorKindDate, Timestamp: time.Unix(0, p.T).UTC(), TieBreakID: p.I}, nil
	case "":
		return Cursor{}, ErrInvalidCursor
	default:
		return Cursor{}, ErrUnsupportedCursor
	}
}

// FollowsScore reports whether (score, id) sorts strictly after the cursor under score desc, id asc.
func (c Cursor) FollowsScore(score float64, id string) bool {
	if score != c.Score {
		return score < c.Score
	}
	return id > c.TieBreakID
}

// FollowsDate reports whether (date, id) sorts strictly after the cursor under date desc, id desc.
func (c Cursor) FollowsDate(date time.Time, id string) bool {
	if !date.Equal(c.Timestamp) {
		return date.Before(c.Timestamp)
	}
	return id < c.TieBreakID
}
