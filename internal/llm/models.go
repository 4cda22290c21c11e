package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnknownModel is returned when a model name cannot be mapped to any provider.
var ErrUnknownModel = errors.New("unknown model")

// Model describes a model and its price per million tokens in USD.
type Model struct {
	ID          string
	Alias       string
	Provider    Provider
	InputPer1M  float64
	OutputPer1M float64
	Reasoning   bool // reasoning families spend hidden tokens, so word-derived budgets are too small
}

// Cost estimates the USD cost of a call.
func (m Model) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1_000_000*m.InputPer1M +
		float64(completionTokens)/1_000_000*m.OutputPer1M
}

var models = []Model{
	{ID: "gpt-4.1-nano", Alias: "nano", Provider: ProviderOpenAI, InputPer1M: 0.10, OutputPer1M: 0.40},
	{ID: "gpt-4.1-mini", Alias: "mini", Provider: ProviderOpenAI, InputPer1M: 0.40, OutputPer1M: 1.60},
	{ID: "gpt-4.1", Provider: ProviderOpenAI, InputPer1M: 2.00, OutputPer1M: 8.00},
	{ID: "gpt-4o-mini", Provider: ProviderOpenAI, InputPer1M: 0.15, OutputPer1M: 0.60},
	{ID: "gpt-5-nano", Provider: ProviderOpenAI, InputPer1M: 0.05, OutputPer1M: 0.40, Reasoning: true},
	{ID: "gpt-5-mini", Provider: ProviderOpenAI, InputPer1M: 0.25, OutputPer1M: 2.00, Reasoning: true},
	{ID: "gpt-5", Provider: ProviderOpenAI, InputPer1M: 1.25, OutputPer1M: 10.00, Reasoning: true},
	{ID: "claude-haiku-4-5-20251001", Alias: "haiku", Provider: ProviderAnthropic, InputPer1M: 1.00, OutputPer1M: 5.00},
	{ID: "claude-sonnet-4-5-20250929", Alias: "sonnet", Provider: ProviderAnthropic, InputPer1M: 3.00, OutputPer1M: 15.00},
	{ID: "gemini-2.5-flash", Alias: "gemini-flash", Provider: ProviderGemini, InputPer1M: 0.30, OutputPer1M: 2.50},
	{ID: "gemini-2.5-pro", Alias: "gemini-pro", Provider: ProviderGemini, InputPer1M: 1.25, OutputPer1M: 10.00},
	{ID: "us.amazon.nova-2-lite-v1:0", Alias: "nova-lite", Provider: ProviderBedrock, InputPer1M: 0.30, OutputPer1M: 2.50},
}

// Models returns the known model table.
func Models() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// Lookup resolves an id or alias. Unlisted ids are accepted when the provider can be
// inferred from the name; their prices are zero.
func Lookup(name string) (Model, error) {
	name = strings.TrimSpace(name)
	for _, m := range models {
		if m.ID == name || (m.Alias != "" && m.Alias == name) {
			return m, nil
		}
	}

	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "gpt-5"), strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return Model{ID: name, Provider: ProviderOpenAI, Reasoning: true}, nil
	case strings.HasPrefix(lower, "gpt-"):
		return Model{ID: name, Provider: ProviderOpenAI}, nil
	case strings.HasPrefix(lower, "claude-"):
		return Model{ID: name, Provider: ProviderAnthropic}, nil
	case strings.HasPrefix(lower, "gemini-"):
		return Model{ID: name, Provider: ProviderGemini}, nil
	case strings.Contains(lower, "amazon.nova"):
		return Model{ID: name, Provider: ProviderBedrock}, nil
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Profile selects a model per pipeline stage.
type Profile struct {
	Name          string
	Philosophical string
	Summarization string
	Director      string
}

var (
	ProfileProduction = Profile{Name: "production", Philosophical: "gpt-4.1-mini", Summarization: "gpt-4.1", Director: "gpt-4.1"}
	ProfileBalanced   = Profile{Name: "balanced", Philosophical: "gpt-4.1-nano", Summarization: "gpt-4.1-mini", Director: "gpt-4.1-mini"}
	ProfileDebug      = Profile{Name: "debug", Philosophical: "gpt-4.1-nano", Summarization: "gpt-4.1-nano", Director: "gpt-4.1-nano"}
)

// ProfileByName maps a profile name or alias. Unknown names fall back to debug with a warning.
func ProfileByName(name string, logger *slog.Logger) Profile {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "production", "prod":
		return ProfileProduction
	case "balanced", "bal":
		return ProfileBalanced
	case "debug", "dev", "test", "":
		return ProfileDebug
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("Unknown LLM profile, using debug", "profile", name)
	return ProfileDebug
}

// WithModel returns a copy of p with every stage set to model.
func (p Profile) WithModel(model string) Profile {
	if model == "" {
		return p
	}
	p.Philosophical, p.Summarization, p.Director = model, model, model
	return p
}
