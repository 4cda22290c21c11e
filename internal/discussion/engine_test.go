package discussion

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/symposium/internal/llm"
)

func newTestEngine(client llm.Client, opts ...Option) *Engine {
	opts = append([]Option{WithTurnDelay(0), WithClock(tickingClock())}, opts...)
	return NewEngine(client, NewMachine(), opts...)
}

func TestEngineRunsEveryTurn(t *testing.T) {
	client := &scriptedClient{}
	e := newTestEngine(client)

	cfg := config(t, 3, "socrates", "kant", "nietzsche")
	s := e.Start(context.Background(), cfg)

	c, ok := s.(*Completed)
	require.True(t, ok, "expected Completed, got %s", s.Kind())
	assert.Len(t, c.FinalContributions, 9)
	assert.Len(t, client.requests, 9)
	require.Len(t, c.Rounds, 3)
	for i, r := range c.Rounds {
		assert.Equal(t, i+1, r.Number)
		require.Len(t, r.Contributions, 3)
		for j, con := range r.Contributions {
			assert.Equal(t, cfg.Participants[j].ID, con.Philosopher.ID)
			assert.Equal(t, i+1, con.RoundNumber)
		}
	}
}

func TestEngineSocratesKant(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{text: "Justice is knowing what one does not know."},
		{text: "Justice is acting on a maxim you could will universal."},
		{text: "  Then is the universal maxim itself known?  "},
		{text: "It is known through reason alone."},
	}}
	e := newTestEngine(client)

	cfg := config(t, 2, "socrates", "kant")
	s := e.Start(context.Background(), cfg)
	c, ok := s.(*Completed)
	require.True(t, ok)

	var speakers []string
	for _, con := range c.FinalContributions {
		speakers = append(speakers, con.Philosopher.ID)
	}
	assert.Equal(t, []string{"socrates", "kant", "socrates", "kant"}, speakers)
	assert.Equal(t, "Then is the universal maxim itself known?", c.FinalContributions[2].Response)
	assert.Equal(t, 7, c.FinalContributions[2].WordCount)

	first := client.requests[0]
	assert.Equal(t, cfg.Participants[0].SystemPrompt, first.SystemPrompt)
	assert.Contains(t, first.UserContext, "You are opening the discussion")
	assert.Equal(t, CreativeTemperature, first.Temperature)
	assert.Equal(t, 200, first.MaxTokens)
	assert.Equal(t, DefaultModel, first.Model)

	third := client.requests[2]
	assert.Contains(t, third.UserContext, "=== Round 1 ===")
	assert.Contains(t, third.UserContext, "Immanuel Kant: Justice is acting on a maxim")
	assert.Contains(t, third.UserContext, "Now beginning Round 2.")
}

func TestEngineFirstCallFails(t *testing.T) {
	boom := errors.New("connection refused")
	client := &scriptedClient{replies: []reply{{err: boom}}}
	e := newTestEngine(client)

	var observed []Kind
	e.Machine().Observe(func(s State) { observed = append(observed, s.Kind()) })

	s := e.Start(context.Background(), config(t, 2, "socrates", "kant"))
	f, ok := s.(*Failed)
	require.True(t, ok)
	assert.Equal(t, "Failed to generate response for Socrates", f.Message)
	assert.Same(t, boom, f.Cause)
	assert.Len(t, client.requests, 1)
	assert.Equal(t, []Kind{KindInProgress, KindError}, observed)
}

func TestEngineBlankResponseFails(t *testing.T) {
	client := &scriptedClient{replies: []reply{{text: "fine"}, {text: "   \n"}}}
	e := newTestEngine(client)

	s := e.Start(context.Background(), config(t, 1, "socrates", "kant"))
	f, ok := s.(*Failed)
	require.True(t, ok)
	assert.Equal(t, "Failed to generate response for Immanuel Kant", f.Message)
	assert.ErrorIs(t, f.Cause, ErrEmptyResponse)
}

func TestEngineResetStopsLoop(t *testing.T) {
	m := NewMachine()
	calls := 0
	client := llm.ClientFunc(func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		calls++
		if calls == 2 {
			m.Reset()
		}
		return &llm.Response{Text: "words"}, nil
	})
	e := NewEngine(client, m, WithTurnDelay(0))

	s := e.Start(context.Background(), config(t, 3, "socrates", "kant"))
	assert.Equal(t, KindNotStarted, s.Kind())
	assert.Equal(t, KindNotStarted, m.State().Kind())
	assert.Equal(t, 2, calls)
}

func TestEngineRestartLeavesOneLoop(t *testing.T) {
	var (
		mu       sync.Mutex
		calls    int
		started  = make(chan struct{})
		release  = make(chan struct{})
		oldDone  = make(chan struct{})
		oldState State
	)
	client := llm.ClientFunc(func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			// First conversation: hold its opening turn until the restart is under way.
			close(started)
			<-release
		case 3:
			// Second conversation has one contribution; let the stale turn land now.
			close(release)
			<-oldDone
		}
		return &llm.Response{Text: "words"}, nil
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	e := NewEngine(client, NewMachine(), WithTurnDelay(0), WithLogger(logger))
	cfg := config(t, 3, "socrates", "kant")

	go func() {
		defer close(oldDone)
		oldState = e.Start(context.Background(), cfg)
	}()
	<-started

	e.Reset()
	s := e.Start(context.Background(), cfg)
	<-oldDone

	c, ok := s.(*Completed)
	require.True(t, ok, "expected Completed, got %s", s.Kind())
	assert.Len(t, c.FinalContributions, 6)
	assert.Equal(t, 2*3+1, calls)
	assert.Equal(t, KindInProgress, oldState.Kind())

	out := logs.String()
	assert.Equal(t, 6, strings.Count(out, "Contribution added"))
	assert.Equal(t, 1, strings.Count(out, "Turn discarded"))
	assert.Equal(t, 1, strings.Count(out, "Conversation completed"))
}

func TestEngineCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := llm.ClientFunc(func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		cancel()
		return &llm.Response{Text: "words"}, nil
	})
	e := newTestEngine(client)

	s := e.Start(ctx, config(t, 2, "socrates"))
	f, ok := s.(*Failed)
	require.True(t, ok)
	assert.Equal(t, "Conversation cancelled", f.Message)
	assert.ErrorIs(t, f.Cause, context.Canceled)
}

func TestEngineInvalidConfig(t *testing.T) {
	client := &scriptedClient{}
	e := newTestEngine(client)

	s := e.Start(context.Background(), ConversationConfig{Topic: "x"})
	f, ok := s.(*Failed)
	require.True(t, ok)
	assert.Equal(t, "Invalid conversation configuration", f.Message)
	var cfgErr *ConfigError
	assert.ErrorAs(t, f.Cause, &cfgErr)
	assert.Empty(t, client.requests)
}

func TestEngineResumeIdle(t *testing.T) {
	client := &scriptedClient{}
	e := newTestEngine(client)
	assert.Equal(t, KindNotStarted, e.Resume(context.Background()).Kind())
	assert.Empty(t, client.requests)
}

func TestTokenBudget(t *testing.T) {
	assert.Equal(t, 300, tokenBudget("gpt-4.1-nano", 150))
	assert.Equal(t, 300+reasoningOverheadTokens, tokenBudget("gpt-5-mini", 150))
	assert.Equal(t, 100, tokenBudget("some-unknown-model", 50))
}

func TestEngineUsesModelOption(t *testing.T) {
	client := &scriptedClient{}
	e := newTestEngine(client, WithModel("gpt-5-nano"))
	e.Start(context.Background(), config(t, 1, "sartre"))
	require.Len(t, client.requests, 1)
	assert.Equal(t, "gpt-5-nano", client.requests[0].Model)
	assert.Equal(t, 200+reasoningOverheadTokens, client.requests[0].MaxTokens)
	assert.True(t, strings.HasPrefix(client.requests[0].UserContext, "Topic for discussion:"))
}
