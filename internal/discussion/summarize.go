package discussion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/symposium/internal/llm"
)

const (
	SummarizationTemperature = 0.3
	SummarizationMaxTokens   = 1000

	defaultVideoNotes = "Condensed philosophical discussion suitable for short-form video content"
)

type summaryEnvelope struct {
	Summary *summaryWire `json:"summary" jsonschema:"required"`
}

type summaryWire struct {
	OriginalTopic  *string            `json:"originalTopic,omitempty"`
	CondensedTopic *string            `json:"condensedTopic,omitempty"`
	Participants   []string           `json:"participants" jsonschema:"required"`
	Rounds         []summaryRoundWire `json:"rounds" jsonschema:"required"`
	VideoNotes     *string            `json:"videoNotes,omitempty"`
}

type summaryRoundWire struct {
	RoundNumber   looseInt                  `json:"roundNumber,omitempty"`
	Contributions []summaryContributionWire `json:"contributions" jsonschema:"required"`
}

type summaryContributionWire struct {
	PhilosopherName *string  `json:"philosopherName" jsonschema:"required"`
	Response        *string  `json:"response" jsonschema:"required"`
	WordCount       looseInt `json:"wordCount,omitempty"`
}

var summarySchema = responseSchema[summaryEnvelope]()

// Summarizer condenses a completed conversation with one LLM call. It does not
// touch the state machine.
type Summarizer struct {
	client llm.Client
	opts   options
}

func NewSummarizer(client llm.Client, opts ...Option) *Summarizer {
	return &Summarizer{client: client, opts: buildOptions(opts)}
}

func (s *Summarizer) Summarize(ctx context.Context, c *Completed, cfg SummarizationConfig) (*ConversationSummary, error) {
	if c == nil {
		return nil, fmt.Errorf("summarize conversation: no completed conversation")
	}

	ctx, span := tracer.Start(ctx, "discussion.summarize", trace.WithAttributes(
		attribute.String("topic", c.Config.Topic),
		attribute.Int("contributions", len(c.FinalContributions)),
		attribute.Int("target_rounds", cfg.TargetRounds),
	))
	defer span.End()

	resp, err := s.client.ChatCompletion(ctx, llm.Request{
		Model:        s.opts.model,
		SystemPrompt: SummarizationSystemPrompt,
		UserContext:  SummarizationPrompt(c.Config.Topic, SummaryTranscript(c), cfg),
		MaxTokens:    SummarizationMaxTokens,
		Temperature:  SummarizationTemperature,
		Schema:       summarySchema,
		SchemaName:   "ConversationSummary",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("summarize conversation: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, fmt.Errorf("summarize conversation: %w", ErrEmptyResponse)
	}

	summary, err := ParseSummary(resp.Text, c.Config.Topic, s.opts.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.opts.log.ErrorContext(ctx, "Summary response unusable", "error", err)
		return nil, fmt.Errorf("summarize conversation: %w", err)
	}

	span.SetAttributes(attribute.Int("summary_words", summary.TotalWordCount()))
	s.opts.log.InfoContext(ctx, "Conversation summarized",
		"rounds", len(summary.Rounds),
		"words", summary.TotalWordCount(),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
	)
	return summary, nil
}

// ParseSummary decodes a summarization response. The summary object and its
// participants and rounds arrays are mandatory, as are each contribution's speaker and
// text. Other fields fall back to defaults. Rounds are numbered by array position.
func ParseSummary(text, originalTopic string, now time.Time) (*ConversationSummary, error) {
	var env summaryEnvelope
	if err := decodeModelJSON("summary", text, &env); err != nil {
		return nil, err
	}
	fail := func(reason string) error {
		return &ParseError{What: "summary", Reason: reason, Raw: truncate(text, 500)}
	}

	w := env.Summary
	switch {
	case w == nil:
		return nil, fail(`missing "summary" object`)
	case w.Participants == nil:
		return nil, fail(`missing "participants" array`)
	case w.Rounds == nil:
		return nil, fail(`missing "rounds" array`)
	}

	rounds := make([]SummaryRound, 0, len(w.Rounds))
	for i, r := range w.Rounds {
		if r.Contributions == nil {
			return nil, fail(fmt.Sprintf(`round %d: missing "contributions" array`, i+1))
		}
		contribs := make([]SummaryContribution, 0, len(r.Contributions))
		for j, c := range r.Contributions {
			if c.PhilosopherName == nil {
				return nil, fail(fmt.Sprintf(`round %d contribution %d: missing "philosopherName"`, i+1, j+1))
			}
			if c.Response == nil {
				return nil, fail(fmt.Sprintf(`round %d contribution %d: missing "response"`, i+1, j+1))
			}
			response := str(c.Response)
			words := WordCount(response)
			if c.WordCount.Valid {
				words = c.WordCount.Value
			}
			contribs = append(contribs, SummaryContribution{
				PhilosopherName: str(c.PhilosopherName),
				Response:        response,
				WordCount:       words,
			})
		}
		rounds = append(rounds, SummaryRound{RoundNumber: i + 1, Contributions: contribs})
	}

	participants := make([]string, 0, len(w.Participants))
	for _, p := range w.Participants {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}

	return &ConversationSummary{
		OriginalTopic:  originalTopic,
		CondensedTopic: orDefault(w.CondensedTopic, originalTopic),
		Participants:   participants,
		Rounds:         rounds,
		VideoNotes:     orDefault(w.VideoNotes, defaultVideoNotes),
		CreatedAt:      now,
	}, nil
}
