package llm

import (
	"context"
	"fmt"

	"conductor/internal/types"
)

// Provider names accepted by the factory.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Options selects and configures a provider.
type Options struct {
	Provider string
	APIKey   string
	Model    string

	// Temperature and TopP apply to providers that expose them; zero values
	// leave the provider default in place.
	Temperature float32
	TopP        float32

	// ThinkingBudget enables thinking mode on capable Gemini models.
	ThinkingBudget int32
}

// New builds the configured LLM client.
func New(ctx context.Context, opts Options) (types.LLMClient, error) {
	switch opts.Provider {
	case ProviderGemini, "":
		var geminiOpts []GeminiOption
		if opts.Temperature != 0 {
			geminiOpts = append(geminiOpts, WithTemperature(opts.Temperature))
		}
		if opts.TopP != 0 {
			geminiOpts = append(geminiOpts, WithTopP(opts.TopP))
		}
		if opts.ThinkingBudget > 0 {
			geminiOpts = append(geminiOpts, WithThinkingBudget(opts.ThinkingBudget))
		}
		return NewGeminiClient(ctx, opts.APIKey, opts.Model, geminiOpts...)

	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey, opts.Model)

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}
