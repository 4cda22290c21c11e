package discussion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/symposium/internal/llm"
)

const (
	DirectorTemperature = SummarizationTemperature
	DirectorMaxTokens   = SummarizationMaxTokens * 2

	defaultSceneDuration = "10 seconds"
)

type videoScriptEnvelope struct {
	VideoScript *videoScriptWire `json:"videoScript" jsonschema:"required"`
}

type videoScriptWire struct {
	Title             *string     `json:"title,omitempty"`
	Description       *string     `json:"description,omitempty"`
	EstimatedDuration *string     `json:"estimatedDuration,omitempty"`
	Scenes            []sceneWire `json:"scenes" jsonschema:"required"`
	ProductionNotes   []string    `json:"productionNotes,omitempty"`
}

type sceneWire struct {
	SceneNumber     looseInt `json:"sceneNumber,omitempty"`
	Type            *string  `json:"type,omitempty" jsonschema:"enum=OPENING,enum=DIALOGUE,enum=TRANSITION,enum=CLOSING"`
	Duration        *string  `json:"duration,omitempty"`
	ImagePrompt     *string  `json:"imagePrompt" jsonschema:"required"`
	Dialogue        *string  `json:"dialogue,omitempty"`
	PhilosopherName *string  `json:"philosopherName,omitempty"`
	DirectorNotes   *string  `json:"directorNotes,omitempty"`
}

var videoScriptSchema = responseSchema[videoScriptEnvelope]()

// Director turns a summary into a scene-by-scene video script with one LLM call.
type Director struct {
	client llm.Client
	opts   options
}

func NewDirector(client llm.Client, opts ...Option) *Director {
	return &Director{client: client, opts: buildOptions(opts)}
}

func (d *Director) CreateVideoScript(ctx context.Context, summary *ConversationSummary, cfg DirectorConfig) (*VideoScript, error) {
	if summary == nil {
		return nil, fmt.Errorf("create video script: no summary")
	}

	ctx, span := tracer.Start(ctx, "discussion.direct", trace.WithAttributes(
		attribute.String("topic", summary.CondensedTopic),
		attribute.Int("rounds", len(summary.Rounds)),
		attribute.String("transition_style", cfg.transitionStyle()),
	))
	defer span.End()

	resp, err := d.client.ChatCompletion(ctx, llm.Request{
		Model:        d.opts.model,
		SystemPrompt: DirectorSystemPrompt,
		UserContext:  DirectorPrompt(SummaryText(summary), cfg),
		MaxTokens:    DirectorMaxTokens,
		Temperature:  DirectorTemperature,
		Schema:       videoScriptSchema,
		SchemaName:   "VideoScript",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create video script: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, fmt.Errorf("create video script: %w", ErrEmptyResponse)
	}

	script, err := ParseVideoScript(resp.Text, summary, d.opts.now(), d.opts.log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.opts.log.ErrorContext(ctx, "Video script response unusable", "error", err)
		return nil, fmt.Errorf("create video script: %w", err)
	}

	span.SetAttributes(attribute.Int("scenes", script.TotalScenes()))
	d.opts.log.InfoContext(ctx, "Video script created",
		"title", script.Title,
		"scenes", script.TotalScenes(),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
	)
	return script, nil
}

// ParseVideoScript decodes a director response. The videoScript object, its scenes
// array and every scene's imagePrompt are mandatory; everything else has a default.
// Unrecognized scene types become DIALOGUE and are logged at warn level.
func ParseVideoScript(text string, summary *ConversationSummary, now time.Time, logger *slog.Logger) (*VideoScript, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var env videoScriptEnvelope
	if err := decodeModelJSON("video script", text, &env); err != nil {
		return nil, err
	}
	fail := func(reason string) error {
		return &ParseError{What: "video script", Reason: reason, Raw: truncate(text, 500)}
	}

	w := env.VideoScript
	switch {
	case w == nil:
		return nil, fail(`missing "videoScript" object`)
	case w.Scenes == nil:
		return nil, fail(`missing "scenes" array`)
	}

	scenes := make([]Scene, 0, len(w.Scenes))
	for i, sw := range w.Scenes {
		prompt := str(sw.ImagePrompt)
		if prompt == "" {
			return nil, fail(fmt.Sprintf(`scene %d: missing "imagePrompt"`, i+1))
		}

		number := i + 1
		if sw.SceneNumber.Valid {
			number = sw.SceneNumber.Value
		}

		st, known := ParseSceneType(str(sw.Type))
		if !known && sw.Type != nil {
			logger.Warn("Unrecognized scene type, using DIALOGUE", "scene", number, "type", *sw.Type)
		}

		scenes = append(scenes, Scene{
			SceneNumber:     number,
			Type:            st,
			Duration:        orDefault(sw.Duration, defaultSceneDuration),
			ImagePrompt:     prompt,
			Dialogue:        str(sw.Dialogue),
			PhilosopherName: str(sw.PhilosopherName),
			DirectorNotes:   str(sw.DirectorNotes),
		})
	}

	var notes []string
	for _, n := range w.ProductionNotes {
		if n = strings.TrimSpace(n); n != "" {
			notes = append(notes, n)
		}
	}
	if notes == nil {
		notes = []string{}
	}

	var condensed string
	var names []string
	if summary != nil {
		condensed = summary.CondensedTopic
		names = summary.Participants
	}

	return &VideoScript{
		Title:             orDefault(w.Title, "Philosophical Discussion: "+condensed),
		Description:       orDefault(w.Description, "A philosophical discussion between "+strings.Join(names, ", ")),
		EstimatedDuration: orDefault(w.EstimatedDuration, videoDurationTarget),
		Scenes:            scenes,
		ProductionNotes:   notes,
		CreatedAt:         now,
	}, nil
}
