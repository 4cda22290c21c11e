package discussion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apresai/symposium/internal/llm"
	"github.com/apresai/symposium/internal/philosopher"
)

// scriptedClient returns canned replies in order and records every request.
type scriptedClient struct {
	mu       sync.Mutex
	replies  []reply
	requests []llm.Request
}

type reply struct {
	text string
	err  error
}

func (c *scriptedClient) ChatCompletion(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		return &llm.Response{Text: fmt.Sprintf("reply %d", len(c.requests))}, nil
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Text: r.text, PromptTokens: 10, CompletionTokens: 5}, nil
}

// tickingClock returns strictly increasing times one second apart.
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

func participants(t *testing.T, ids ...string) []philosopher.Philosopher {
	t.Helper()
	ps, err := philosopher.DefaultCatalog().Resolve(ids)
	require.NoError(t, err)
	return ps
}

func config(t *testing.T, rounds int, ids ...string) ConversationConfig {
	t.Helper()
	cfg, err := NewConversationConfig("What is justice?", participants(t, ids...), rounds, 100)
	require.NoError(t, err)
	return cfg
}
