package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// OpenAIEmbedder uses any OpenAI-compatible embedding API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder. An empty baseURL targets api.openai.com.
func NewOpenAIEmbedder(baseURL, apiKey, modelName string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
	}
	dims := 0
	switch openai.EmbeddingModel(modelName) {
	case openai.SmallEmbedding3, openai.AdaEmbeddingV2:
		dims = 1536
	case openai.LargeEmbedding3:
		dims = 3072
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
		dims:   dims,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai embeddings: %w", model.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: openai returned no embedding", model.ErrEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dims() int { return e.dims }
