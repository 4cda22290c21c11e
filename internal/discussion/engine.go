package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/symposium/internal/llm"
	"github.com/apresai/symposium/internal/philosopher"
)

const (
	CreativeTemperature = 0.8
	DefaultTurnDelay    = 500 * time.Millisecond
	DefaultModel        = "gpt-4.1-nano"

	tokensPerWord = 2
	// Reasoning models spend output tokens before any visible text.
	reasoningOverheadTokens = 1024
)

// ErrEmptyResponse is the cause recorded when a call succeeds with no usable text.
var ErrEmptyResponse = errors.New("language model returned an empty response")

var tracer = otel.Tracer("symposium/discussion")

type options struct {
	model string
	delay time.Duration
	now   func() time.Time
	log   *slog.Logger
}

// Option configures an Engine, Summarizer or Director.
type Option func(*options)

func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTurnDelay sets the pause between successful turns. Only the Engine uses it.
func WithTurnDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		model: DefaultModel,
		delay: DefaultTurnDelay,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Engine drives the round-robin turn loop against a Machine.
type Engine struct {
	client  llm.Client
	machine *Machine
	opts    options
}

func NewEngine(client llm.Client, machine *Machine, opts ...Option) *Engine {
	return &Engine{client: client, machine: machine, opts: buildOptions(opts)}
}

func (e *Engine) Machine() *Machine {
	return e.machine
}

// Start begins a conversation and runs turns until it completes, fails or is reset.
// Failures are recorded in the Machine; the final state is returned.
func (e *Engine) Start(ctx context.Context, cfg ConversationConfig) State {
	if len(cfg.Participants) == 0 || cfg.MaxRounds <= 0 || cfg.MaxWordsPerResponse <= 0 {
		return e.machine.SetError("Invalid conversation configuration",
			&ConfigError{Field: "config", Message: "participants, rounds and words must all be positive"})
	}
	e.machine.StartConversation(cfg)
	e.opts.log.InfoContext(ctx, "Conversation started",
		"topic", cfg.Topic,
		"participants", len(cfg.Participants),
		"max_rounds", cfg.MaxRounds,
		"model", e.opts.model,
	)
	return e.run(ctx)
}

// Resume continues the turn loop from the current state. It returns immediately
// unless a conversation is in progress.
func (e *Engine) Resume(ctx context.Context) State {
	return e.run(ctx)
}

func (e *Engine) Reset() State {
	return e.machine.Reset()
}

func (e *Engine) run(ctx context.Context) State {
	for {
		ip, ok := e.machine.State().(*InProgress)
		if !ok || ip.IsComplete() {
			return e.machine.State()
		}
		p, ok := ip.CurrentPhilosopher()
		if !ok {
			return ip
		}

		next, owned := e.turn(ctx, ip, p)
		if !owned {
			// Reset or restarted underneath us; the new conversation has its own loop.
			e.opts.log.InfoContext(ctx, "Turn discarded", "philosopher", p.ID, "round", ip.CurrentRound)
			return next
		}
		nip, ok := next.(*InProgress)
		if !ok {
			if c, done := next.(*Completed); done {
				e.opts.log.InfoContext(ctx, "Conversation completed",
					"topic", c.Config.Topic,
					"contributions", len(c.FinalContributions),
				)
			}
			return next
		}

		if err := sleepCtx(ctx, e.opts.delay); err != nil {
			s, _ := e.machine.failIf(nip, "Conversation cancelled", err)
			return s
		}
	}
}

// turn performs one speaker's contribution. It reports false when the machine
// moved on while the call was in flight and the result was discarded.
func (e *Engine) turn(ctx context.Context, ip *InProgress, p philosopher.Philosopher) (State, bool) {
	ctx, span := tracer.Start(ctx, "discussion.turn", trace.WithAttributes(
		attribute.String("philosopher", p.ID),
		attribute.Int("round", ip.CurrentRound),
		attribute.Int("turn", ip.CurrentPhilosopherIndex+1),
	))
	defer span.End()

	failMsg := fmt.Sprintf("Failed to generate response for %s", p.Name)
	resp, err := e.client.ChatCompletion(ctx, llm.Request{
		Model:        e.opts.model,
		SystemPrompt: p.SystemPrompt,
		UserContext:  TurnPrompt(ip),
		MaxTokens:    tokenBudget(e.opts.model, ip.Config.MaxWordsPerResponse),
		Temperature:  CreativeTemperature,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.opts.log.ErrorContext(ctx, "Turn failed", "philosopher", p.ID, "round", ip.CurrentRound, "error", err)
		return e.machine.failIf(ip, failMsg, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		e.opts.log.ErrorContext(ctx, "Turn returned no text", "philosopher", p.ID, "round", ip.CurrentRound)
		return e.machine.failIf(ip, failMsg, ErrEmptyResponse)
	}

	c := NewContribution(p, text, ip.CurrentRound, e.opts.now())
	span.SetAttributes(
		attribute.Int("words", c.WordCount),
		attribute.Int("prompt_tokens", resp.PromptTokens),
		attribute.Int("completion_tokens", resp.CompletionTokens),
	)
	next, ok := e.machine.advance(ip, c)
	if !ok {
		span.SetAttributes(attribute.Bool("discarded", true))
		return next, false
	}
	e.opts.log.InfoContext(ctx, "Contribution added",
		"philosopher", p.ID,
		"round", c.RoundNumber,
		"words", c.WordCount,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
	)
	return next, true
}

// tokenBudget converts a word limit to a max-token value for model.
func tokenBudget(model string, maxWords int) int {
	budget := maxWords * tokensPerWord
	if m, err := llm.Lookup(model); err == nil && m.Reasoning {
		budget += reasoningOverheadTokens
	}
	return budget
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
