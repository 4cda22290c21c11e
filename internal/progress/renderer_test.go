package progress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[##########..........]", renderBar(0.5, 20))
	assert.Equal(t, "[....]", renderBar(-1, 4))
	assert.Equal(t, "[####]", renderBar(2, 4))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", formatElapsed(0))
	assert.Equal(t, "2:05", formatElapsed(125e9))
}

func TestTurnPercent(t *testing.T) {
	assert.Zero(t, TurnPercent(1, 0))
	assert.InDelta(t, 0.35, TurnPercent(3, 6), 1e-9)
	assert.InDelta(t, 0.7, TurnPercent(6, 6), 1e-9)
}

func TestPlainRendererFinish(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false, 80)

	r.Handle(Event{Stage: StageDiscuss, Message: "Socrates is speaking (round 1)"})
	r.Handle(Event{
		Stage:          StageComplete,
		Message:        "Video script ready",
		Percent:        0.2,
		ConversationID: "conv_1",
		VideoScriptID:  "vid_1",
	})
	r.Finish()

	out := buf.String()
	assert.Contains(t, out, "] Socrates is speaking (round 1)\n")
	assert.Contains(t, out, "Video script ready (")
	assert.Contains(t, out, "Conversation: conv_1")
	assert.Contains(t, out, "Video script: vid_1")
	assert.NotContains(t, out, "Summary:")
	assert.Equal(t, 1.0, r.lastEvent.Percent)
}

func TestFinishReportsError(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true, 100)
	r.Handle(Event{Stage: StageDiscuss, Message: "Kant is speaking", Percent: 0.1})
	r.Handle(Event{Stage: StageDiscuss, Error: errors.New("rate limited"), ConversationID: "conv_2"})
	r.Finish()

	assert.Contains(t, buf.String(), "Error: rate limited")
	assert.Contains(t, buf.String(), "Conversation: conv_2")
	assert.Zero(t, r.lines)
}
