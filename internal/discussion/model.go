package discussion

import (
	"fmt"
	"strings"
	"time"

	"github.com/apresai/symposium/internal/philosopher"
)

// Conversation defaults.
const (
	DefaultMaxRounds           = 3
	DefaultMaxWordsPerResponse = 150

	DefaultTargetRounds         = 3
	DefaultSummaryMaxWords      = 50
	DefaultSceneTransitionStyle = "philosophical_atmosphere"
)

// ConfigError reports an invalid configuration. It is returned at construction
// and never reaches the state machine.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Contribution is one philosopher's turn within a round.
type Contribution struct {
	Philosopher philosopher.Philosopher `json:"philosopher"`
	Response    string                  `json:"response"`
	Timestamp   time.Time               `json:"timestamp"`
	RoundNumber int                     `json:"roundNumber"`
	WordCount   int                     `json:"wordCount"`
}

func NewContribution(p philosopher.Philosopher, response string, round int, at time.Time) Contribution {
	return Contribution{
		Philosopher: p,
		Response:    response,
		Timestamp:   at,
		RoundNumber: round,
		WordCount:   WordCount(response),
	}
}

type Round struct {
	Number        int            `json:"number"`
	Contributions []Contribution `json:"contributions"`
	Complete      bool           `json:"complete"`
}

// ConversationConfig is validated by NewConversationConfig; the zero value is not usable.
type ConversationConfig struct {
	Topic               string                    `json:"topic"`
	Participants        []philosopher.Philosopher `json:"participants"`
	MaxRounds           int                       `json:"maxRounds"`
	MaxWordsPerResponse int                       `json:"maxWordsPerResponse"`
}

func NewConversationConfig(topic string, participants []philosopher.Philosopher, maxRounds, maxWords int) (ConversationConfig, error) {
	topic = strings.TrimSpace(topic)
	switch {
	case topic == "":
		return ConversationConfig{}, &ConfigError{Field: "topic", Message: "must not be blank"}
	case len(participants) == 0:
		return ConversationConfig{}, &ConfigError{Field: "participants", Message: "at least one philosopher is required"}
	case maxRounds <= 0:
		return ConversationConfig{}, &ConfigError{Field: "maxRounds", Message: fmt.Sprintf("must be positive, got %d", maxRounds)}
	case maxWords <= 0:
		return ConversationConfig{}, &ConfigError{Field: "maxWordsPerResponse", Message: fmt.Sprintf("must be positive, got %d", maxWords)}
	}
	ps := make([]philosopher.Philosopher, len(participants))
	copy(ps, participants)
	return ConversationConfig{
		Topic:               topic,
		Participants:        ps,
		MaxRounds:           maxRounds,
		MaxWordsPerResponse: maxWords,
	}, nil
}

type SummarizationConfig struct {
	TargetRounds                 int  `json:"targetRounds"`
	MaxWordsPerResponse          int  `json:"maxWordsPerResponse"`
	PreserveOriginalParticipants bool `json:"preserveOriginalParticipants"`
}

func NewSummarizationConfig(targetRounds, maxWords int, preserve bool) (SummarizationConfig, error) {
	if targetRounds <= 0 {
		return SummarizationConfig{}, &ConfigError{Field: "targetRounds", Message: fmt.Sprintf("must be positive, got %d", targetRounds)}
	}
	if maxWords <= 0 {
		return SummarizationConfig{}, &ConfigError{Field: "maxWordsPerResponse", Message: fmt.Sprintf("must be positive, got %d", maxWords)}
	}
	return SummarizationConfig{
		TargetRounds:                 targetRounds,
		MaxWordsPerResponse:          maxWords,
		PreserveOriginalParticipants: preserve,
	}, nil
}

func DefaultSummarizationConfig() SummarizationConfig {
	return SummarizationConfig{
		TargetRounds:                 DefaultTargetRounds,
		MaxWordsPerResponse:          DefaultSummaryMaxWords,
		PreserveOriginalParticipants: true,
	}
}

type DirectorConfig struct {
	IncludeOpeningShot   bool   `json:"includeOpeningShot"`
	IncludeClosingShot   bool   `json:"includeClosingShot"`
	SceneTransitionStyle string `json:"sceneTransitionStyle"`
}

func DefaultDirectorConfig() DirectorConfig {
	return DirectorConfig{
		IncludeOpeningShot:   true,
		IncludeClosingShot:   true,
		SceneTransitionStyle: DefaultSceneTransitionStyle,
	}
}

func (c DirectorConfig) transitionStyle() string {
	if s := strings.TrimSpace(c.SceneTransitionStyle); s != "" {
		return s
	}
	return DefaultSceneTransitionStyle
}

type SummaryContribution struct {
	PhilosopherName string `json:"philosopherName"`
	Response        string `json:"response"`
	WordCount       int    `json:"wordCount"`
}

type SummaryRound struct {
	RoundNumber   int                   `json:"roundNumber"`
	Contributions []SummaryContribution `json:"contributions"`
}

func (r SummaryRound) WordCount() int {
	n := 0
	for _, c := range r.Contributions {
		n += c.WordCount
	}
	return n
}

// ConversationSummary is the condensed form of a completed conversation.
type ConversationSummary struct {
	OriginalTopic  string         `json:"originalTopic"`
	CondensedTopic string         `json:"condensedTopic"`
	Participants   []string       `json:"participants"`
	Rounds         []SummaryRound `json:"rounds"`
	VideoNotes     string         `json:"videoNotes"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func (s *ConversationSummary) TotalWordCount() int {
	n := 0
	for _, r := range s.Rounds {
		n += r.WordCount()
	}
	return n
}

// ConversationConfig rebuilds a config that would replay the summary as a new
// conversation: participants resolved by name, one round per summary round.
func (s *ConversationSummary) ConversationConfig(catalog *philosopher.Catalog) (ConversationConfig, error) {
	participants := make([]philosopher.Philosopher, 0, len(s.Participants))
	for _, name := range s.Participants {
		p, err := catalog.FindByName(name)
		if err != nil {
			return ConversationConfig{}, err
		}
		participants = append(participants, p)
	}
	maxWords := 0
	for _, r := range s.Rounds {
		for _, c := range r.Contributions {
			maxWords = max(maxWords, c.WordCount)
		}
	}
	if maxWords == 0 {
		maxWords = DefaultSummaryMaxWords
	}
	return NewConversationConfig(s.CondensedTopic, participants, len(s.Rounds), maxWords)
}

// SceneType is the closed set of storyboard scene kinds.
type SceneType string

const (
	SceneOpening    SceneType = "OPENING"
	SceneDialogue   SceneType = "DIALOGUE"
	SceneTransition SceneType = "TRANSITION"
	SceneClosing    SceneType = "CLOSING"
)

// ParseSceneType maps s case-insensitively. Unknown values yield SceneDialogue and false.
func ParseSceneType(s string) (SceneType, bool) {
	switch t := SceneType(strings.ToUpper(strings.TrimSpace(s))); t {
	case SceneOpening, SceneDialogue, SceneTransition, SceneClosing:
		return t, true
	}
	return SceneDialogue, false
}

type Scene struct {
	SceneNumber     int       `json:"sceneNumber"`
	Type            SceneType `json:"type"`
	Duration        string    `json:"duration"`
	ImagePrompt     string    `json:"imagePrompt"`
	Dialogue        string    `json:"dialogue,omitempty"`
	PhilosopherName string    `json:"philosopherName,omitempty"`
	DirectorNotes   string    `json:"directorNotes,omitempty"`
}

func (s Scene) IsDialogueScene() bool {
	return s.Type == SceneDialogue && s.Dialogue != ""
}

type VideoScript struct {
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	EstimatedDuration string    `json:"estimatedDuration"`
	Scenes            []Scene   `json:"scenes"`
	ProductionNotes   []string  `json:"productionNotes"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (v *VideoScript) TotalScenes() int {
	return len(v.Scenes)
}

func (v *VideoScript) HasDialogueScenes() bool {
	for _, s := range v.Scenes {
		if s.IsDialogueScene() {
			return true
		}
	}
	return false
}
