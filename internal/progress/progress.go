package progress

import "time"

// Stage identifies which pipeline stage is active.
type Stage string

const (
	StageDiscuss   Stage = "discuss"
	StageSummarize Stage = "summarize"
	StageDirect    Stage = "direct"
	StageExport    Stage = "export"
	StageComplete  Stage = "complete"
)

// Event carries progress information from the pipeline to the renderer.
type Event struct {
	Stage   Stage
	Message string
	Percent float64 // 0.0–1.0
	Elapsed time.Duration
	Error   error

	// Turn and TotalTurns count contributions during StageDiscuss.
	Turn       int
	TotalTurns int
	Round      int
	Speaker    string

	// Record IDs produced so far, set as each stage finishes.
	ConversationID string
	SummaryID      string
	VideoScriptID  string
	ExportURL      string
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// NewEvent creates an Event with common fields populated.
func NewEvent(stage Stage, msg string, pct float64, start time.Time) Event {
	return Event{
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Elapsed: time.Since(start),
	}
}

// TurnPercent places a discussion turn within the overall pipeline. The discussion
// owns the first 70%, summarizing and directing split the remainder.
func TurnPercent(turn, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 0.7 * float64(turn) / float64(total)
}
