package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinQueryRunes is the shortest trimmed query that is searched at all
const MinQueryRunes = 2

// NormalizeQuery returns the aggregation key for a free-text query:
// lowercased, punctuation replaced by spaces and whitespace collapsed.
func NormalizeQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))

	for _, r := range strings.ToLower(query) {
		switch {
		case unicode.IsPunct(r) || (unicode.IsSymbol(r) && !isEmoji(r)):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// IsSearchable reports whether the trimmed query is long enough to be searched
func IsSearchable(query string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(query)) >= MinQueryRunes
}

// QueryTerms splits a query into lowercase terms of at least MinQueryRunes runes, deduplicated in order.
func QueryTerms(query string) []string {
	fields := strings.Fields(NormalizeQuery(query))
	terms := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))

	for _, f := range fields {
		if utf8.RuneCountInString(f) < MinQueryRunes {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}

	return terms
}

// searchSlots are the searchable facets the query text is projected into before embedding
var searchSlots = []string{"title", "emoji", "categories", "description", "location"}

// MultiSlotText builds the embedding input for a query by repeating it in every searchable slot,
// so one vector approximates relevance across all textual facets of an event.
func MultiSlotText(query string) string {
	q := strings.Join(strings.Fields(strings.TrimSpace(query)), " ")

	parts := make([]string, len(searchSlots))
	for i, slot := range searchSlots {
		parts[i] = slot + ": " + q
	}

	return strings.Join(parts, "\n")
}

// EscapeLikePattern escapes LIKE/ILIKE wildcards in a user-supplied fragment
func EscapeLikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isEmoji(r rune) bool {
	return r >= 0x1F000 || (r >= 0x2600 && r <= 0x27BF)
}
