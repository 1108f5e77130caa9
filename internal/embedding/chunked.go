package embedding

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/rcliao/hybrid-memory/internal/chunker"
	"github.com/rcliao/hybrid-memory/internal/model"
)

// Chunked embeds text longer than the provider limit piece by piece and
// returns the length-weighted mean of the piece vectors, L2-normalized.
type Chunked struct {
	inner Embedder
	opts  chunker.Options
}

// NewChunked splits inputs longer than maxChars runes before embedding.
func NewChunked(e Embedder, maxChars int) *Chunked {
	return &Chunked{inner: e, opts: chunker.Options{MaxChars: maxChars}}
}

func (c *Chunked) Embed(ctx context.Context, text string) (Vector, error) {
	pieces := chunker.Split(text, c.opts)
	if len(pieces) <= 1 {
		return c.inner.Embed(ctx, text)
	}

	var sum []float64
	var total float64
	for i, p := range pieces {
		v, err := c.inner.Embed(ctx, p)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			return nil, fmt.Errorf("%w: piece %d has dimension %d, want %d", model.ErrEmbedding, i, len(v), len(sum))
		}
		w := float64(utf8.RuneCountInString(p))
		for j, x := range v {
			sum[j] += w * float64(x)
		}
		total += w
	}

	var norm float64
	for j := range sum {
		sum[j] /= total
		norm += sum[j] * sum[j]
	}
	norm = math.Sqrt(norm)
	out := make(Vector, len(sum))
	for j, x := range sum {
		if norm > 0 {
			x /= norm
		}
		out[j] = float32(x)
	}
	return out, nil
}

func (c *Chunked) Dims() int { return c.inner.Dims() }
