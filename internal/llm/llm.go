package llm

import (
	"context"
	"fmt"
)

// Provider identifies the backend that serves a model.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderBedrock   Provider = "bedrock"
)

// Request is a single chat completion: one system prompt and one user turn.
type Request struct {
	Model        string
	SystemPrompt string
	UserContext  string
	MaxTokens    int
	Temperature  float64

	// Schema optionally describes the expected JSON response. Providers that support
	// structured output pass it through; the rest rely on the prompt.
	Schema     map[string]any
	SchemaName string
}

type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client is the capability every engine depends on.
type Client interface {
	ChatCompletion(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// CallError wraps any failure from a provider: transport, auth, status or a body
// that could not be decoded.
type CallError struct {
	Provider Provider
	Model    string
	Err      error
}

func (e *CallError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("llm call (%s): %v", e.Model, e.Err)
	}
	return fmt.Sprintf("llm call %s (%s): %v", e.Provider, e.Model, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}
