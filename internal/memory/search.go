package memory

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/retrieval"
	"github.com/rcliao/hybrid-memory/internal/store"
)

// SearchOptions narrows a search.
type SearchOptions struct {
	K         int    // 0 means the configured top-k
	SessionID string // restrict hits to one session
}

// Search runs a hybrid search and hydrates the hits from the record store.
// It degrades instead of failing: without an embedder or on embedding failure
// it is lexical-only. Hydration counts as an access.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]model.LongTermMemory, error) {
	start := time.Now()
	k := opts.K
	if k <= 0 {
		k = e.opts.TopK
	}
	fetch := k
	if opts.SessionID != "" {
		// Other sessions' hits are filtered out after fusion.
		fetch = k * 4
	}

	queryVec := e.embed(ctx, query)
	mode := "lexical"
	if queryVec != nil && e.opts.Retrieval.UseHybrid {
		mode = "hybrid"
	} else if queryVec != nil {
		mode = "vector"
	}

	e.mu.Lock()
	if queryVec != nil && len(queryVec) != e.vec.Dimension() {
		queryVec = nil
		mode = "lexical"
	}
	retriever := e.retriever
	e.mu.Unlock()

	hits := retriever.Search(ctx, query, queryVec, fetch)
	memories, err := e.hydrate(ctx, hits, opts.SessionID, k)
	e.rec.ObserveSearch(mode, time.Since(start), len(memories))
	return memories, err
}

func (e *Engine) hydrate(ctx context.Context, hits []retrieval.Result, sessionID string, k int) ([]model.LongTermMemory, error) {
	memories := make([]model.LongTermMemory, 0, len(hits))
	for _, h := range hits {
		if len(memories) >= k {
			break
		}
		if sessionID != "" {
			peek, err := e.store.PeekLongTerm(ctx, h.ID, false)
			if err != nil || peek.SessionID != sessionID {
				continue
			}
		}
		m, err := e.store.GetLongTerm(ctx, h.ID)
		if errors.Is(err, model.ErrNotFound) {
			// Index still holds an archived id; a rebuild will drop it.
			e.markDirty("hydrate", err, logrus.Fields{"memory_id": h.ID})
			continue
		}
		if err != nil {
			return memories, err
		}
		m.Score = h.Score
		memories = append(memories, *m)
	}
	return memories, nil
}

// List returns active memories filtered by session or persona.
func (e *Engine) List(ctx context.Context, p store.ListParams) ([]model.LongTermMemory, error) {
	return e.store.ListLongTerm(ctx, p)
}

// Stats combines record store and index statistics.
type Stats struct {
	Store     *store.Stats    `json:"store"`
	Retrieval retrieval.Stats `json:"retrieval"`
	Dirty     bool            `json:"dirty"`
	Sessions  int             `json:"sessions"`
}

// Stats returns store and index statistics.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	rs := e.retriever.Stats()
	e.mu.Unlock()
	return &Stats{Store: st, Retrieval: rs, Dirty: e.dirty.Load()}, nil
}
