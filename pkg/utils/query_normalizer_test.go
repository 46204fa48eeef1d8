package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Jazz Night", "jazz night"},
		{"collapses whitespace", "  taco    truck \t ", "taco truck"},
		{"strips punctuation", "Taco-Truck!!", "taco truck"},
		{"keeps digits", "Top 10 bars?", "top 10 bars"},
		{"keeps emoji", "🎷 jazz", "🎷 jazz"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.input))
		})
	}
}

func TestNormalizeQuery_VariantsShareKey(t *testing.T) {
	assert.Equal(t, NormalizeQuery("taco truck"), NormalizeQuery("  TACO, truck. "))
}

func TestIsSearchable(t *testing.T) {
	assert.False(t, IsSearchable(""))
	assert.False(t, IsSearchable("  a  "))
	assert.False(t, IsSearchable("é"))
	assert.True(t, IsSearchable("ab"))
	assert.True(t, IsSearchable(" 🎷🎺 "))
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"jazz", "night"}, QueryTerms("Jazz a night JAZZ"))
	assert.Empty(t, QueryTerms("a b c"))
}

func TestMultiSlotText(t *testing.T) {
	text := MultiSlotText("  jazz   night ")

	assert.Equal(t, 5, strings.Count(text, "jazz night"))
	assert.True(t, strings.HasPrefix(text, "title: jazz night"))
	assert.Equal(t, text, MultiSlotText("jazz night"))
}

func TestEscapeLikePattern(t *testing.T) {
	assert.Equal(t, `100\% fun\_run`, EscapeLikePattern("100% fun_run"))
}
