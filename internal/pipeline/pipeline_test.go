package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/symposium/internal/llm"
	"github.com/apresai/symposium/internal/philosopher"
	"github.com/apresai/symposium/internal/progress"
	"github.com/apresai/symposium/internal/storage"
)

const (
	summaryJSON = `{"summary": {
		"condensedTopic": "Justice",
		"participants": ["Socrates", "Immanuel Kant"],
		"rounds": [{"contributions": [
			{"philosopherName": "Socrates", "response": "What is it to be just?"},
			{"philosopherName": "Immanuel Kant", "response": "To act from duty."}
		]}]
	}}`
	scriptJSON = `{"videoScript": {
		"title": "The Just Life",
		"scenes": [
			{"sceneNumber": 1, "type": "OPENING", "imagePrompt": "An agora at dawn"},
			{"sceneNumber": 2, "type": "DIALOGUE", "imagePrompt": "Socrates gestures", "dialogue": "What is it to be just?", "philosopherName": "Socrates"}
		]
	}}`
)

// stageClient answers each request according to the schema it asks for.
type stageClient struct {
	mu       sync.Mutex
	turns    int
	turnErr  error
	onTurn   func(n int)
	requests []llm.Request
}

func (c *stageClient) ChatCompletion(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	var n int
	if req.SchemaName == "" {
		c.turns++
		n = c.turns
	}
	c.mu.Unlock()

	switch req.SchemaName {
	case "ConversationSummary":
		return &llm.Response{Text: summaryJSON}, nil
	case "VideoScript":
		return &llm.Response{Text: scriptJSON}, nil
	}
	if c.onTurn != nil {
		c.onTurn(n)
	}
	if c.turnErr != nil {
		return nil, c.turnErr
	}
	return &llm.Response{Text: fmt.Sprintf("Turn %d speaks of justice.", n)}, nil
}

type fakeExporter struct {
	exported []string
	err      error
}

func (e *fakeExporter) Export(_ context.Context, v *storage.VideoScript) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.exported = append(e.exported, v.ID)
	return "https://cdn.example.com/scripts/" + v.ID + ".md", nil
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newRunner(t *testing.T, client llm.Client, opts ...Option) (*Runner, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	base := []Option{
		WithTurnDelay(0),
		WithClock(tickingClock()),
		WithIDs(
			func() (string, error) { return "conv_test", nil },
			func() (string, error) { return "sum_test", nil },
			func() (string, error) { return "vid_test", nil },
		),
	}
	return New(client, store, philosopher.DefaultCatalog(), llm.ProfileDebug, append(base, opts...)...), store
}

func justiceOptions() DiscussOptions {
	return DiscussOptions{
		Topic:          "What is justice?",
		PhilosopherIDs: []string{"socrates", "kant"},
		MaxRounds:      2,
		MaxWords:       80,
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) add(e progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func TestRunAllStages(t *testing.T) {
	client := &stageClient{}
	exporter := &fakeExporter{}
	r, store := newRunner(t, client, WithExporter(exporter))
	var log eventLog

	res, err := r.Run(context.Background(), RunOptions{
		Discuss:   justiceOptions(),
		Summarize: DefaultSummarizeOptions(),
	}, log.add)
	require.NoError(t, err)

	require.NotNil(t, res.Conversation)
	assert.Equal(t, storage.StatusCompleted, res.Conversation.Status)
	assert.Len(t, res.Conversation.Contributions, 4)
	assert.Equal(t, "gpt-4.1-nano", res.Conversation.Model)

	require.NotNil(t, res.Summary)
	assert.Equal(t, "conv_test", res.Summary.ConversationID)
	assert.Equal(t, "Justice", res.Summary.Summary.CondensedTopic)

	require.NotNil(t, res.VideoScript)
	assert.Equal(t, "sum_test", res.VideoScript.SummaryID)
	assert.Equal(t, "https://cdn.example.com/scripts/vid_test.md", res.VideoScript.ExportURL)
	assert.Equal(t, []string{"vid_test"}, exporter.exported)

	stored, err := store.GetVideoScript(context.Background(), "vid_test")
	require.NoError(t, err)
	assert.Equal(t, res.VideoScript.ExportURL, stored.ExportURL)
	assert.Equal(t, "The Just Life", stored.Script.Title)

	conv, err := store.GetConversation(context.Background(), "conv_test")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, conv.Status)
	assert.NotNil(t, conv.CompletedAt)

	assert.Equal(t, 4, client.turns)
	assert.Len(t, client.requests, 6)

	last := log.events[len(log.events)-1]
	assert.Equal(t, progress.StageComplete, last.Stage)
	assert.Equal(t, "vid_test", last.VideoScriptID)
	assert.Equal(t, "sum_test", last.SummaryID)

	var speakers []string
	for _, e := range log.events {
		if e.Stage == progress.StageDiscuss && e.Speaker != "" {
			speakers = append(speakers, e.Speaker)
		}
	}
	assert.Equal(t, []string{"Socrates", "Immanuel Kant", "Socrates", "Immanuel Kant"}, speakers)
}

func TestRunSkipsStages(t *testing.T) {
	client := &stageClient{}
	r, _ := newRunner(t, client)

	res, err := r.Run(context.Background(), RunOptions{Discuss: justiceOptions(), SkipSummary: true}, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Conversation)
	assert.Nil(t, res.Summary)
	assert.Nil(t, res.VideoScript)
	assert.Len(t, client.requests, 4)
}

func TestDiscussFailureIsStored(t *testing.T) {
	client := &stageClient{turnErr: errors.New("rate limited")}
	r, store := newRunner(t, client)
	var log eventLog

	conv, err := r.Discuss(context.Background(), justiceOptions(), log.add)
	require.Error(t, err)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, progress.StageDiscuss, perr.Stage)
	assert.Equal(t, "Failed to generate response for Socrates", perr.Message)
	assert.ErrorIs(t, err, client.turnErr)

	require.NotNil(t, conv)
	assert.Equal(t, storage.StatusError, conv.Status)

	stored, err := store.GetConversation(context.Background(), "conv_test")
	require.NoError(t, err)
	assert.Equal(t, "Failed to generate response for Socrates: rate limited", stored.ErrorMessage)
	assert.Equal(t, "What is justice?", stored.Topic)

	last := log.events[len(log.events)-1]
	assert.Error(t, last.Error)
	assert.Equal(t, "conv_test", last.ConversationID)
}

func TestDiscussRejectsBadOptions(t *testing.T) {
	r, _ := newRunner(t, &stageClient{})

	opts := justiceOptions()
	opts.PhilosopherIDs = []string{"socrates", "plato"}
	_, err := r.Discuss(context.Background(), opts, nil)
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "unknown philosopher", perr.Message)

	opts = justiceOptions()
	opts.MaxRounds = 0
	_, err = r.Discuss(context.Background(), opts, nil)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "invalid conversation", perr.Message)
}

func TestCancelStopsDiscussion(t *testing.T) {
	client := &stageClient{}
	r, store := newRunner(t, client)
	client.onTurn = func(n int) {
		if n == 2 {
			assert.True(t, r.Cancel("conv_test"))
		}
	}

	_, err := r.Discuss(context.Background(), justiceOptions(), nil)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 2, client.turns)
	assert.False(t, r.Cancel("conv_test"))

	stored, err := store.GetConversation(context.Background(), "conv_test")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusError, stored.Status)
	assert.Equal(t, "Conversation cancelled", stored.ErrorMessage)
	assert.Len(t, stored.Contributions, 1)
}

func TestSummarizeAndDirectFromStore(t *testing.T) {
	client := &stageClient{}
	r, store := newRunner(t, client)
	ctx := context.Background()

	_, err := r.Discuss(ctx, justiceOptions(), nil)
	require.NoError(t, err)

	sum, err := r.Summarize(ctx, "conv_test", DefaultSummarizeOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sum_test", sum.ID)

	sums, err := store.ListSummaries(ctx, "conv_test")
	require.NoError(t, err)
	assert.Len(t, sums, 1)

	v, err := r.Direct(ctx, "sum_test", DirectOptions{TransitionStyle: "ink wash"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "conv_test", v.ConversationID)
	assert.Empty(t, v.ExportURL)

	last := client.requests[len(client.requests)-1]
	assert.Equal(t, "VideoScript", last.SchemaName)
	assert.Contains(t, last.UserContext, "ink wash")
}

func TestSummarizeRequiresCompletedConversation(t *testing.T) {
	r, _ := newRunner(t, &stageClient{turnErr: errors.New("down")})
	ctx := context.Background()

	_, err := r.Discuss(ctx, justiceOptions(), nil)
	require.Error(t, err)

	_, err = r.Summarize(ctx, "conv_test", DefaultSummarizeOptions(), nil)
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, progress.StageSummarize, perr.Stage)

	_, err = r.Summarize(ctx, "conv_missing", DefaultSummarizeOptions(), nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = r.Direct(ctx, "sum_missing", DirectOptions{}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExportFailureKeepsScript(t *testing.T) {
	r, store := newRunner(t, &stageClient{}, WithExporter(&fakeExporter{err: errors.New("no bucket")}))

	res, err := r.Run(context.Background(), RunOptions{Discuss: justiceOptions(), Summarize: DefaultSummarizeOptions()}, nil)
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, progress.StageExport, perr.Stage)
	require.NotNil(t, res.VideoScript)

	_, err = store.GetVideoScript(context.Background(), "vid_test")
	assert.NoError(t, err)
}
