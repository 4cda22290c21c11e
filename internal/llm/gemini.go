package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const geminiGenerateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

type GeminiClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:     apiKey,
		endpoint:   geminiGenerateEndpoint,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// geminiRequest is the request body for Gemini text generation.
type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenCfg struct {
	Temperature      float64        `json:"temperature"`
	MaxOutputTokens  int            `json:"maxOutputTokens"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseJsonSchema,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

func (c *GeminiClient) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, &CallError{Provider: ProviderGemini, Model: req.Model, Err: fmt.Errorf("GEMINI_API_KEY is not set")}
	}

	body := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.UserContext}}},
		},
		GenerationConfig: &geminiGenCfg{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.Schema != nil {
		body.GenerationConfig.ResponseMimeType = "application/json"
		body.GenerationConfig.ResponseSchema = req.Schema
	}

	var resp *geminiResponse
	err := WithRetry(ctx, func() error {
		r, err := c.doRequest(ctx, req.Model, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &CallError{Provider: ProviderGemini, Model: req.Model, Err: err}
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	return &Response{
		Text:             text.String(),
		Model:            req.Model,
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (c *GeminiClient) doRequest(ctx context.Context, modelID string, reqBody geminiRequest) (*geminiResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(c.endpoint, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if retryableStatus(res.StatusCode) {
		return nil, &RetryableError{StatusCode: res.StatusCode, Body: string(respBody)}
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gemini API error (status %d): %s", res.StatusCode, string(respBody))
	}

	var out geminiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}
