package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient calls the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string, opts ...option.RequestOption) *OpenAIClient {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	// The SDK retries on its own; WithRetry owns that policy here.
	opts = append(opts, option.WithMaxRetries(0))
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

func (c *OpenAIClient) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	m, _ := Lookup(req.Model)

	params := responses.ResponseNewParams{
		Model:           req.Model,
		Instructions:    openai.String(req.SystemPrompt),
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.UserContext, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if !m.Reasoning {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   name,
					Schema: req.Schema,
					Strict: openai.Bool(false),
					Type:   "json_schema",
				},
			},
		}
	}

	var resp *responses.Response
	err := WithRetry(ctx, func() error {
		r, err := c.client.Responses.New(ctx, params)
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && retryableStatus(apiErr.StatusCode) {
				return &RetryableError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &CallError{Provider: ProviderOpenAI, Model: req.Model, Err: err}
	}
	if resp.Status == "failed" {
		return nil, &CallError{Provider: ProviderOpenAI, Model: req.Model, Err: fmt.Errorf("response failed: %s", resp.Error.Message)}
	}

	return &Response{
		Text:             resp.OutputText(),
		Model:            req.Model,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}
