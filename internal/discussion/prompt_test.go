package discussion

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnPromptOpening(t *testing.T) {
	m := NewMachine()
	ip := m.StartConversation(config(t, 2, "socrates", "kant")).(*InProgress)

	p := TurnPrompt(ip)
	assert.Contains(t, p, `Topic for discussion: "What is justice?"`)
	assert.Contains(t, p, "You are opening the discussion")
	assert.Contains(t, p, "around 100 words")
	assert.NotContains(t, p, "Round")
}

func TestTurnContextGroupsByRound(t *testing.T) {
	cfg := config(t, 2, "socrates", "kant")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rounds := []Round{
		{Number: 1, Complete: true, Contributions: []Contribution{
			NewContribution(cfg.Participants[0], "First.", 1, base),
			NewContribution(cfg.Participants[1], "Second.", 1, base.Add(time.Second)),
		}},
		{Number: 2},
	}

	got := TurnContext(cfg.Topic, rounds, 2)
	want := `Previous contributions to this philosophical discussion on "What is justice?":

=== Round 1 ===
Socrates: First.
Immanuel Kant: Second.

Now beginning Round 2.`
	assert.Equal(t, want, got)

	assert.NotContains(t, TurnContext(cfg.Topic, rounds[:1], 1), "Now beginning")
}

func TestSummaryText(t *testing.T) {
	text := SummaryText(testSummary())
	lines := strings.Split(text, "\n")
	require.GreaterOrEqual(t, len(lines), 8)
	assert.Equal(t, "PHILOSOPHICAL DISCUSSION SUMMARY", lines[0])
	assert.Equal(t, "Original Topic: What is justice?", lines[1])
	assert.Equal(t, "Condensed Topic: Justice", lines[2])
	assert.Equal(t, "Participants: Socrates, Immanuel Kant", lines[3])
	assert.Equal(t, "Total Word Count: 10", lines[4])
	assert.Contains(t, text, "--- Round 1 (10 words) ---")
	assert.True(t, strings.HasSuffix(text, "Immanuel Kant: To act from duty."))
}

func TestSummarizationPromptParticipants(t *testing.T) {
	cfg := DefaultSummarizationConfig()
	assert.Contains(t, SummarizationPrompt("t", "x", cfg), "Keep every original participant")

	cfg.PreserveOriginalParticipants = false
	assert.Contains(t, SummarizationPrompt("t", "x", cfg), "never invent new ones")
}

func TestNewConversationConfig(t *testing.T) {
	ps := participants(t, "socrates")
	tests := []struct {
		name   string
		topic  string
		ps     int
		rounds int
		words  int
		field  string
	}{
		{"blank topic", "  ", 1, 3, 150, "topic"},
		{"no participants", "x", 0, 3, 150, "participants"},
		{"zero rounds", "x", 1, 0, 150, "maxRounds"},
		{"negative words", "x", 1, 3, -1, "maxWordsPerResponse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConversationConfig(tt.topic, ps[:tt.ps], tt.rounds, tt.words)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	cfg, err := NewConversationConfig("  Is virtue teachable? ", ps, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "Is virtue teachable?", cfg.Topic)
}

func TestNewSummarizationConfig(t *testing.T) {
	_, err := NewSummarizationConfig(0, 50, true)
	assert.Error(t, err)
	_, err = NewSummarizationConfig(3, 0, true)
	assert.Error(t, err)

	cfg, err := NewSummarizationConfig(2, 40, false)
	require.NoError(t, err)
	assert.Equal(t, SummarizationConfig{TargetRounds: 2, MaxWordsPerResponse: 40}, cfg)
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount("   "))
	assert.Equal(t, 3, WordCount(" one\ttwo\n three "))
}

func TestParseSceneType(t *testing.T) {
	tests := []struct {
		in    string
		want  SceneType
		known bool
	}{
		{"OPENING", SceneOpening, true},
		{"closing", SceneClosing, true},
		{" Transition ", SceneTransition, true},
		{"dialogue", SceneDialogue, true},
		{"UNKNOWN", SceneDialogue, false},
		{"", SceneDialogue, false},
	}
	for _, tt := range tests {
		got, known := ParseSceneType(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.known, known, tt.in)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "in_progress", KindInProgress.String())
	assert.Equal(t, "video_script_complete", KindVideoScriptComplete.String())
	assert.Equal(t, "error", (&Failed{}).Kind().String())
}
