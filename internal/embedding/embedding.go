// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/rcliao/hybrid-memory/internal/config"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	// Dims is the known output dimension, or 0 if it must be probed.
	Dims() int
}

// Probe returns the embedder's dimension, calling it once when Dims is unknown.
func Probe(ctx context.Context, e Embedder) (int, error) {
	if d := e.Dims(); d > 0 {
		return d, nil
	}
	v, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("probe returned an empty vector")
	}
	return len(v), nil
}

// NewFromConfig builds the configured embedder, wrapped with rate limiting,
// chunking and caching when enabled. It returns nil, nil when embeddings are disabled.
func NewFromConfig(cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "":
		return nil, nil
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		url := cfg.URL
		if url == "" {
			url = os.Getenv("OLLAMA_HOST")
		}
		e = NewOllamaEmbedder(url, model)
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		e = NewOpenAIEmbedder(cfg.URL, key, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.RPS > 0 {
		e = NewLimited(e, cfg.RPS)
	}
	if cfg.MaxChars > 0 {
		e = NewChunked(e, cfg.MaxChars)
	}
	if cfg.CacheTTL > 0 {
		e = NewCached(e, cfg.CacheTTL)
	}
	return e, nil
}
