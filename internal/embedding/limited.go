package embedding

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// Limited throttles calls to the wrapped embedder.
type Limited struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewLimited allows rps calls per second with a burst of ceil(rps).
func NewLimited(e Embedder, rps float64) *Limited {
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return &Limited{inner: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *Limited) Embed(ctx context.Context, text string) (Vector, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %w", model.ErrEmbedding, err)
	}
	return l.inner.Embed(ctx, text)
}

func (l *Limited) Dims() int { return l.inner.Dims() }
