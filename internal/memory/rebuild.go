package memory

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RebuildResult summarizes a rebuild.
type RebuildResult struct {
	Memories      int    `json:"memories"`
	Vectors       int    `json:"vectors"`
	Reembedded    int    `json:"reembedded"`
	EmbedFailures int    `json:"embed_failures"`
	BuildID       string `json:"build_id"`
	Duration      string `json:"duration"`
}

// Rebuild re-derives both indexes from the record store. With reembed and an
// embedder, every active memory is embedded again and the vectors written back.
// A successful rebuild clears the dirty marker.
func (e *Engine) Rebuild(ctx context.Context, reembed bool) (*RebuildResult, error) {
	start := time.Now()
	res := &RebuildResult{}

	fresh := map[int64]embedded{}
	if reembed && e.embedder != nil {
		memories, err := e.store.ActiveLongTerm(ctx)
		if err != nil {
			return nil, err
		}
		// Embedding calls are slow; run them before taking the lock.
		for _, m := range memories {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v := e.embed(ctx, m.Content)
			if v == nil {
				res.EmbedFailures++
				continue
			}
			fresh[m.ID] = embedded{content: m.Content, vec: v}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	dim := e.vec.Dimension()
	memories, err := e.store.ActiveLongTerm(ctx)
	if err != nil {
		return nil, err
	}
	for i := range memories {
		m := &memories[i]
		f, ok := fresh[m.ID]
		// Skip vectors computed for content edited since.
		if !ok || f.content != m.Content || len(f.vec) != dim {
			continue
		}
		if err := e.store.SetEmbedding(ctx, m.ID, f.vec); err != nil {
			return nil, err
		}
		m.Embedding = f.vec
		res.Reembedded++
	}

	ids, texts, vectors := corpus(memories)
	if err := e.retriever.Rebuild(ids, texts, vectors); err != nil {
		e.markDirty("rebuild", err, nil)
		return nil, err
	}
	e.dirty.Store(false)
	e.persistLocked(ctx)
	e.reportSizes()

	st := e.retriever.Stats()
	res.Memories = len(memories)
	res.Vectors = st.VectorCount
	res.BuildID = st.BuildID
	res.Duration = time.Since(start).String()

	e.log.WithFields(logrus.Fields{
		"memories":   res.Memories,
		"vectors":    res.Vectors,
		"reembedded": res.Reembedded,
		"build_id":   res.BuildID,
	}).Info("indexes rebuilt")
	return res, nil
}

type embedded struct {
	content string
	vec     []float32
}

// RepairIfDirty rebuilds when a previous fan-out failed. Returns whether it ran.
func (e *Engine) RepairIfDirty(ctx context.Context) (bool, error) {
	if !e.dirty.Load() {
		return false, nil
	}
	_, err := e.Rebuild(ctx, false)
	return err == nil, err
}

// CompactIfNeeded rebuilds when the orphaned-slot fraction exceeds the compact ratio.
func (e *Engine) CompactIfNeeded(ctx context.Context) (bool, error) {
	e.mu.Lock()
	ratio := e.vec.OrphanRatio()
	e.mu.Unlock()
	if ratio <= e.opts.CompactRatio {
		return false, nil
	}
	e.log.WithField("orphan_ratio", ratio).Info("compacting vector index")
	_, err := e.Rebuild(ctx, false)
	return err == nil, err
}
