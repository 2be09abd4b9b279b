// Package embeddings generates the vector embeddings the discovery layer
// ranks against (spec §4.2, §4.9). Grounded on
// original_source/backend/aci/common/embeddings.py's
// generate_app_embedding/generate_function_embedding: the embeddable
// fields are JSON-serialized and sent as a single input string to an
// embeddings model, using github.com/sashabaranov/go-openai as the Go
// client for the same OpenAI embeddings API the original calls directly.
package embeddings

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	appdomain "github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
)

// Client generates embeddings via an OpenAI-compatible embeddings API.
type Client struct {
	api        *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// New constructs a Client. model and dimensions are read from
// pkg/config's EmbeddingsConfig.
func New(apiKey string, model openai.EmbeddingModel, dimensions int) *Client {
	return &Client{api: openai.NewClient(apiKey), model: model, dimensions: dimensions}
}

// AppEmbedding generates the embedding for an App's embeddable fields.
func (c *Client) AppEmbedding(ctx context.Context, fields appdomain.EmbeddingFields) ([]float32, error) {
	text, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("embeddings: marshal app fields: %w", err)
	}
	return c.embed(ctx, string(text))
}

// FunctionEmbedding generates the embedding for a Function's embeddable
// fields.
func (c *Client) FunctionEmbedding(ctx context.Context, fields function.EmbeddingFields) ([]float32, error) {
	text, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("embeddings: marshal function fields: %w", err)
	}
	return c.embed(ctx, string(text))
}

// Embed generates the embedding for arbitrary query text, used by the
// discovery layer's search_apps/search_functions (spec §4.9: queries and
// catalogue entries share one embedding space).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text)
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      c.model,
		Dimensions: c.dimensions,
	}
	resp, err := c.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embeddings: create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}
