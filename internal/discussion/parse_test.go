package discussion

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooseInt(t *testing.T) {
	tests := []struct {
		raw   string
		want  int
		valid bool
	}{
		{`3`, 3, true},
		{`"12"`, 12, true},
		{`4.0`, 4, true},
		{`0`, 0, false},
		{`-2`, 0, false},
		{`2.5`, 0, false},
		{`1e300`, 0, false},
		{`"many"`, 0, false},
		{`null`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var n looseInt
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &n))
			assert.Equal(t, tt.valid, n.Valid)
			assert.Equal(t, tt.want, n.Value)
		})
	}
}

func TestParseSummaryIgnoresBadWordCounts(t *testing.T) {
	text := `{"summary": {"participants": ["Socrates"], "rounds": [{"contributions": [
		{"philosopherName": "Socrates", "response": "I know nothing.", "wordCount": -5},
		{"philosopherName": "Socrates", "response": "Nothing at all.", "wordCount": 1.5}
	]}]}}`

	s, err := ParseSummary(text, "What is knowledge?", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Rounds[0].Contributions[0].WordCount)
	assert.Equal(t, 3, s.Rounds[0].Contributions[1].WordCount)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	s := "ab" + strings.Repeat("é", 4)
	got := truncate(s, 5)
	assert.Equal(t, "abé...", got)
	assert.True(t, utf8.ValidString(got))

	got = truncate(strings.Repeat("智", 200), 500)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 503)
}
