package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("symposium/llm")

// Keys carries provider credentials. AWSConfig is only consulted for Bedrock models.
type Keys struct {
	OpenAI    string
	Anthropic string
	Gemini    string
	AWSConfig func(ctx context.Context) (aws.Config, error)
}

// Router is a Client that dispatches each request to the provider owning its model.
// Provider clients are built on first use.
type Router struct {
	keys Keys
	log  *slog.Logger

	mu      sync.Mutex
	clients map[Provider]Client
}

func NewRouter(keys Keys, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{keys: keys, log: logger, clients: make(map[Provider]Client)}
}

// Register installs a client for a provider, replacing any lazily built one.
func (r *Router) Register(p Provider, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[p] = c
}

func (r *Router) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	m, err := Lookup(req.Model)
	if err != nil {
		return nil, &CallError{Model: req.Model, Err: err}
	}
	req.Model = m.ID

	ctx, span := tracer.Start(ctx, "llm.chat_completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(m.Provider)),
		attribute.String("llm.model", m.ID),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	)

	c, err := r.client(ctx, m.Provider)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &CallError{Provider: m.Provider, Model: m.ID, Err: err}
	}

	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cost := m.Cost(resp.PromptTokens, resp.CompletionTokens)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.CompletionTokens),
		attribute.Float64("llm.cost_usd", cost),
	)
	r.log.DebugContext(ctx, "LLM call complete",
		"provider", m.Provider,
		"model", m.ID,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"cost_usd", cost,
	)
	return resp, nil
}

func (r *Router) client(ctx context.Context, p Provider) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[p]; ok {
		return c, nil
	}

	var c Client
	switch p {
	case ProviderOpenAI:
		if r.keys.OpenAI == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		c = NewOpenAIClient(r.keys.OpenAI)
	case ProviderAnthropic:
		if r.keys.Anthropic == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		c = NewClaudeClient(r.keys.Anthropic)
	case ProviderGemini:
		c = NewGeminiClient(r.keys.Gemini)
	case ProviderBedrock:
		if r.keys.AWSConfig == nil {
			return nil, fmt.Errorf("no AWS configuration for bedrock")
		}
		cfg, err := r.keys.AWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		c = NewNovaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", p)
	}
	r.clients[p] = c
	return c, nil
}
