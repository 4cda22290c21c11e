package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name      string
		wantID    string
		provider  Provider
		reasoning bool
	}{
		{"gpt-4.1-nano", "gpt-4.1-nano", ProviderOpenAI, false},
		{"nano", "gpt-4.1-nano", ProviderOpenAI, false},
		{"haiku", "claude-haiku-4-5-20251001", ProviderAnthropic, false},
		{"gemini-flash", "gemini-2.5-flash", ProviderGemini, false},
		{"nova-lite", "us.amazon.nova-2-lite-v1:0", ProviderBedrock, false},
		{"gpt-5-mini", "gpt-5-mini", ProviderOpenAI, true},
		{"o3-mini", "o3-mini", ProviderOpenAI, true},
		{"gpt-4o", "gpt-4o", ProviderOpenAI, false},
		{"claude-opus-4-1", "claude-opus-4-1", ProviderAnthropic, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, m.ID)
			assert.Equal(t, tt.provider, m.Provider)
			assert.Equal(t, tt.reasoning, m.Reasoning)
		})
	}

	_, err := Lookup("llama-3")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestModelCost(t *testing.T) {
	m := Model{InputPer1M: 2, OutputPer1M: 8}
	assert.InDelta(t, 0.000002*1000+0.000008*500, m.Cost(1000, 500), 1e-12)
}

func TestProfileByName(t *testing.T) {
	assert.Equal(t, ProfileProduction, ProfileByName("prod", nil))
	assert.Equal(t, ProfileBalanced, ProfileByName("Balanced", nil))
	assert.Equal(t, ProfileDebug, ProfileByName("test", nil))
	assert.Equal(t, ProfileDebug, ProfileByName("nonsense", nil))

	p := ProfileDebug.WithModel("haiku")
	assert.Equal(t, "haiku", p.Philosophical)
	assert.Equal(t, "haiku", p.Director)
	assert.Equal(t, ProfileDebug, ProfileDebug.WithModel(""))
}

func TestWithRetry(t *testing.T) {
	initialBackoff = time.Millisecond
	t.Cleanup(func() { initialBackoff = time.Second })

	t.Run("retries retryable errors", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &RetryableError{StatusCode: 503}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{StatusCode: 429}
		})
		var re *RetryableError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, defaultMaxAttempts, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("bad request")
		err := WithRetry(context.Background(), func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}

func TestRouterDispatch(t *testing.T) {
	var got Request
	fake := ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		return &Response{Text: "ok", PromptTokens: 10, CompletionTokens: 5}, nil
	})

	r := NewRouter(Keys{}, nil)
	r.Register(ProviderAnthropic, fake)

	resp, err := r.ChatCompletion(context.Background(), Request{Model: "haiku", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "claude-haiku-4-5-20251001", got.Model)
}

func TestRouterErrors(t *testing.T) {
	r := NewRouter(Keys{}, nil)

	_, err := r.ChatCompletion(context.Background(), Request{Model: "llama-3"})
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = r.ChatCompletion(context.Background(), Request{Model: "gpt-4.1-nano"})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ProviderOpenAI, ce.Provider)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestGeminiClient(t *testing.T) {
	var body geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "Know "}, {"text": "thyself."}]}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 3}
		}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key")
	c.endpoint = srv.URL + "/models/%s:generateContent"

	resp, err := c.ChatCompletion(context.Background(), Request{
		Model:        "gemini-2.5-flash",
		SystemPrompt: "You are Socrates.",
		UserContext:  "What is virtue?",
		MaxTokens:    200,
		Temperature:  0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, "Know thyself.", resp.Text)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 3, resp.CompletionTokens)
	assert.Equal(t, "You are Socrates.", body.SystemInstruction.Parts[0].Text)
	assert.Equal(t, 200, body.GenerationConfig.MaxOutputTokens)
}

func TestGeminiClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key")
	c.endpoint = srv.URL + "/models/%s:generateContent"

	_, err := c.ChatCompletion(context.Background(), Request{Model: "gemini-2.5-flash"})
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "401")
}
