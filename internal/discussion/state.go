package discussion

import (
	"slices"
	"sort"

	"github.com/apresai/symposium/internal/philosopher"
)

// Kind tags the variant held by a State.
type Kind int

const (
	KindNotStarted Kind = iota
	KindInProgress
	KindCompleted
	KindSummarizing
	KindSummarizationComplete
	KindCreatingVideoScript
	KindVideoScriptComplete
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNotStarted:
		return "not_started"
	case KindInProgress:
		return "in_progress"
	case KindCompleted:
		return "completed"
	case KindSummarizing:
		return "summarizing"
	case KindSummarizationComplete:
		return "summarization_complete"
	case KindCreatingVideoScript:
		return "creating_video_script"
	case KindVideoScriptComplete:
		return "video_script_complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the conversation state. The set of implementations is closed: every
// variant is declared in this file. Values are never mutated once committed.
type State interface {
	Kind() Kind
	sealed()
}

type NotStarted struct{}

type InProgress struct {
	Config                  ConversationConfig
	Rounds                  []Round
	CurrentRound            int
	CurrentPhilosopherIndex int
}

// CurrentPhilosopher returns the participant due to speak, if the index is in range.
func (s *InProgress) CurrentPhilosopher() (philosopher.Philosopher, bool) {
	if s.CurrentPhilosopherIndex < 0 || s.CurrentPhilosopherIndex >= len(s.Config.Participants) {
		return philosopher.Philosopher{}, false
	}
	return s.Config.Participants[s.CurrentPhilosopherIndex], true
}

func (s *InProgress) IsComplete() bool {
	return s.CurrentRound > s.Config.MaxRounds
}

// Contributions flattens rounds in round-then-speaking order.
func (s *InProgress) Contributions() []Contribution {
	return flatten(s.Rounds)
}

type Completed struct {
	Config             ConversationConfig
	Rounds             []Round
	FinalContributions []Contribution // all contributions, ascending by timestamp
}

type Summarizing struct {
	Original *Completed
	Config   SummarizationConfig
}

type SummarizationComplete struct {
	Original *Completed
	Summary  *ConversationSummary
}

type CreatingVideoScript struct {
	Summary *ConversationSummary
	Config  DirectorConfig
}

type VideoScriptComplete struct {
	Summary *ConversationSummary
	Script  *VideoScript
}

// Failed is the error variant. Cause may be nil.
type Failed struct {
	Message string
	Cause   error
}

func (*NotStarted) Kind() Kind            { return KindNotStarted }
func (*InProgress) Kind() Kind            { return KindInProgress }
func (*Completed) Kind() Kind             { return KindCompleted }
func (*Summarizing) Kind() Kind           { return KindSummarizing }
func (*SummarizationComplete) Kind() Kind { return KindSummarizationComplete }
func (*CreatingVideoScript) Kind() Kind   { return KindCreatingVideoScript }
func (*VideoScriptComplete) Kind() Kind   { return KindVideoScriptComplete }
func (*Failed) Kind() Kind                { return KindError }

func (*NotStarted) sealed()            {}
func (*InProgress) sealed()            {}
func (*Completed) sealed()             {}
func (*Summarizing) sealed()           {}
func (*SummarizationComplete) sealed() {}
func (*CreatingVideoScript) sealed()   {}
func (*VideoScriptComplete) sealed()   {}
func (*Failed) sealed()                {}

// NewCompleted builds a Completed value from rounds, deriving FinalContributions.
func NewCompleted(cfg ConversationConfig, rounds []Round) *Completed {
	rounds = cloneRounds(rounds)
	return &Completed{
		Config:             cfg,
		Rounds:             rounds,
		FinalContributions: sortByTimestamp(flatten(rounds)),
	}
}

func flatten(rounds []Round) []Contribution {
	var out []Contribution
	for _, r := range rounds {
		out = append(out, r.Contributions...)
	}
	return out
}

func sortByTimestamp(cs []Contribution) []Contribution {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Timestamp.Before(cs[j].Timestamp)
	})
	return cs
}

func cloneRounds(rounds []Round) []Round {
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		r.Contributions = slices.Clip(slices.Clone(r.Contributions))
		out[i] = r
	}
	return out
}
