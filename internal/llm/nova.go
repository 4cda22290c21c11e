package llm

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// NovaClient calls Amazon Nova models through the Bedrock Converse API.
type NovaClient struct {
	client *bedrockruntime.Client
}

func NewNovaClient(cfg aws.Config) *NovaClient {
	return &NovaClient{client: bedrockruntime.NewFromConfig(cfg)}
}

func (c *NovaClient) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.SystemPrompt},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.UserContext},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}

	var out *bedrockruntime.ConverseOutput
	err := WithRetry(ctx, func() error {
		o, err := c.client.Converse(ctx, input)
		if err != nil {
			if isThrottle(err) {
				return &RetryableError{StatusCode: 429, Body: err.Error()}
			}
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, &CallError{Provider: ProviderBedrock, Model: req.Model, Err: err}
	}

	resp := &Response{Text: extractNovaText(out), Model: req.Model}
	if out.Usage != nil {
		resp.PromptTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.CompletionTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return resp, nil
}

func extractNovaText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}
