package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type ClaudeClient struct {
	client anthropic.Client
}

// NewClaudeClient creates a client. An empty apiKey falls back to ANTHROPIC_API_KEY.
func NewClaudeClient(apiKey string) *ClaudeClient {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &ClaudeClient{client: anthropic.NewClient(opts...)}
}

func (c *ClaudeClient) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserContext)),
		},
	}

	var msg *anthropic.Message
	err := WithRetry(ctx, func() error {
		m, err := c.client.Messages.New(ctx, params)
		if err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) && retryableStatus(apiErr.StatusCode) {
				return &RetryableError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
			}
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, &CallError{Provider: ProviderAnthropic, Model: req.Model, Err: err}
	}

	return &Response{
		Text:             extractText(msg),
		Model:            req.Model,
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
