// Package embedding provides the semantic nearest-neighbor matcher over
// previously-confirmed vendor-to-category assignments, plus the stability
// tracking that makes semantic drift observable.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tallyfin/tally/internal/common"
	"github.com/tallyfin/tally/internal/model"
)

// Client produces embedding vectors for vendor names.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// APIError wraps an HTTP-status-level failure from the embedding service,
// distinct from a malformed-payload failure.
type APIError struct {
	Err        error
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding service returned status %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// OpenAIClient implements Client against the OpenAI Embeddings API.
type OpenAIClient struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIClient creates an embedding client. The model is fixed to a
// 1536-dimension embedding model; a different dimensionality coming back is
// a contract break, not a per-request condition.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is required", common.ErrMissingConfig)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SmallEmbedding3,
	}, nil
}

// Embed returns the 1536-dimension vector for the text. Failures are
// distinguishable: auth/rate-limit/server problems surface as *APIError,
// an empty or truncated payload as ErrMalformedResponse, and a wrong
// dimensionality as ErrDimensionMismatch. It never silently returns zeros.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.HTTPStatusCode, Err: err}
		}
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding data in response", common.ErrMalformedResponse)
	}

	vec := resp.Data[0].Embedding
	if len(vec) != model.EmbeddingDimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d",
			common.ErrDimensionMismatch, len(vec), model.EmbeddingDimensions)
	}

	return vec, nil
}
