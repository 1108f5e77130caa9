package embedding

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached memoizes embeddings by exact text, so repeated queries and
// re-indexing of unchanged content skip the provider.
type Cached struct {
	inner Embedder
	cache *gocache.Cache
}

// NewCached wraps e with a TTL cache.
func NewCached(e Embedder, ttl time.Duration) *Cached {
	return &Cached{inner: e, cache: gocache.New(ttl, 2*ttl)}
}

func (c *Cached) Embed(ctx context.Context, text string) (Vector, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.(Vector), nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(text, v)
	return v, nil
}

func (c *Cached) Dims() int { return c.inner.Dims() }

// Len returns the number of cached entries.
func (c *Cached) Len() int { return c.cache.ItemCount() }
