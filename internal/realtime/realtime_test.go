package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/philosopher"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []StateEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev StateEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func conversationConfig(t *testing.T) discussion.ConversationConfig {
	t.Helper()
	ps, err := philosopher.DefaultCatalog().Resolve([]string{"socrates", "confucius"})
	require.NoError(t, err)
	cfg, err := discussion.NewConversationConfig("What is virtue?", ps, 1, 50)
	require.NoError(t, err)
	return cfg
}

func TestNewStateEvent(t *testing.T) {
	cfg := conversationConfig(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := discussion.NewMachine()

	ev := NewStateEvent("conv_1", m.StartConversation(cfg), now)
	assert.Equal(t, "in_progress", ev.Kind)
	assert.Equal(t, "What is virtue?", ev.Topic)
	assert.Equal(t, 1, ev.Round)
	assert.Equal(t, "Socrates", ev.Speaker)
	assert.Zero(t, ev.Contributions)
	assert.Nil(t, ev.LastContribution)

	s := m.AddContribution(discussion.NewContribution(cfg.Participants[0], "Virtue is knowledge.", 1, now))
	ev = NewStateEvent("conv_1", s, now)
	assert.Equal(t, "Confucius", ev.Speaker)
	assert.Equal(t, 1, ev.Contributions)
	require.NotNil(t, ev.LastContribution)
	assert.Equal(t, "Socrates", ev.LastContribution.Philosopher)
	assert.Equal(t, 3, ev.LastContribution.WordCount)

	ev = NewStateEvent("conv_1", &discussion.Failed{Message: "Failed", Cause: errors.New("timeout")}, now)
	assert.Equal(t, "error", ev.Kind)
	assert.Equal(t, "Failed: timeout", ev.Error)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"conversationId":"conv_1"`)
}

func TestAttachPublishesInOrder(t *testing.T) {
	cfg := conversationConfig(t)
	m := discussion.NewMachine()
	pub := &recordingPublisher{err: errors.New("redis down")}

	stop := Attach(context.Background(), m, "conv_9", pub, nil)
	m.StartConversation(cfg)
	m.AddContribution(discussion.NewContribution(cfg.Participants[0], "a", 1, time.Now()))
	m.AddContribution(discussion.NewContribution(cfg.Participants[1], "b", 1, time.Now()))
	stop()
	stop()
	m.Reset()

	var kinds []string
	for _, ev := range pub.events {
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, "conv_9", ev.ConversationID)
	}
	assert.Equal(t, []string{"in_progress", "in_progress", "completed"}, kinds)
}

func TestConversationChannel(t *testing.T) {
	assert.Equal(t, "symposium:conv_1", ConversationChannel("conv_1"))
}
