// Package fallback implements the generative second pass: invoked when
// deterministic evidence is insufficient, informed by the Pass-1 evidence it
// is backstopping, and never allowed to abort a categorization.
package fallback

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tallyfin/tally/internal/common"
)

// Generator is the narrow contract against the generative model service.
// It is treated as unreliable: callers handle timeouts and non-JSON output.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator implements Generator against the Chat Completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// GeneratorConfig holds configuration for the generator.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// NewOpenAIGenerator creates a generator client.
func NewOpenAIGenerator(cfg GeneratorConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: generative model API key is required", common.ErrMissingConfig)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Generate sends the prompt and returns the raw completion text.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a bookkeeping assistant that categorizes financial transactions. Respond with a single JSON object and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generative model request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion", common.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
