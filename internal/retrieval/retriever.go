// Package retrieval fuses lexical and vector rankings into one result list
// and keeps both indexes in step on add, remove and rebuild.
package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/lexical"
	"github.com/rcliao/hybrid-memory/internal/vector"
)

// Options selects the fusion strategy.
type Options struct {
	UseHybrid    bool
	UseRRF       bool
	RRFK         float64
	BM25Weight   float64
	VectorWeight float64
}

// DefaultOptions returns hybrid RRF with κ=60 and equal weights.
func DefaultOptions() Options {
	return Options{UseHybrid: true, UseRRF: true, RRFK: 60, BM25Weight: 0.5, VectorWeight: 0.5}
}

// Result is one fused hit.
type Result struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Stats reports index sizes.
type Stats struct {
	LexicalCount int     `json:"lexical_count"`
	VectorCount  int     `json:"vector_count"`
	VectorSlots  int     `json:"vector_slots"`
	OrphanRatio  float64 `json:"orphan_ratio"`
	Dimension    int     `json:"dimension"`
	BuildID      string  `json:"build_id"`
}

// Retriever queries both indexes and fuses their rankings.
// Mutations go through one mutex so a single id's add and remove apply in call order.
type Retriever struct {
	mu      sync.Mutex
	lexical *lexical.Index
	vector  *vector.Index
	opts    Options
	log     logrus.FieldLogger
}

// New creates a retriever over the given indexes.
func New(lex *lexical.Index, vec *vector.Index, opts Options, log logrus.FieldLogger) *Retriever {
	if opts.RRFK <= 0 {
		opts.RRFK = 60
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Retriever{lexical: lex, vector: vec, opts: opts, log: log}
}

// Options returns the active fusion options.
func (r *Retriever) Options() Options {
	return r.opts
}

// Search returns up to k fused results. It never fails: a sub-index that
// errors or has no input is skipped and the other signal is used alone.
func (r *Retriever) Search(ctx context.Context, text string, queryVec []float32, k int) []Result {
	if k <= 0 || ctx.Err() != nil {
		return nil
	}
	hasVec := len(queryVec) > 0

	if !r.opts.UseHybrid {
		if hasVec {
			if res, ok := r.searchVector(queryVec, k); ok {
				return res
			}
		}
		return r.searchLexical(text, k)
	}
	if !hasVec {
		return r.searchLexical(text, k)
	}

	fetch := 2 * k
	var lexRes []lexical.Result
	var vecRes []vector.Result
	var vecErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexRes = r.lexical.Search(text, fetch)
	}()
	go func() {
		defer wg.Done()
		vecRes, vecErr = r.vector.Search(queryVec, fetch)
	}()
	wg.Wait()

	if vecErr != nil {
		r.log.WithError(vecErr).Warn("vector search failed, using lexical results only")
		vecRes = nil
	}

	lexCands := make([]Candidate, len(lexRes))
	for i, h := range lexRes {
		lexCands[i] = Candidate{ID: h.ID, Score: h.Score}
	}
	vecCands := make([]Candidate, len(vecRes))
	for i, h := range vecRes {
		vecCands[i] = Candidate{ID: h.ID, Score: h.Score}
	}

	var fusedRes []Result
	if r.opts.UseRRF {
		fusedRes = FuseRRF(lexCands, vecCands, r.opts.RRFK)
	} else {
		fusedRes = FuseWeighted(lexCands, vecCands, r.opts.BM25Weight, r.opts.VectorWeight)
	}
	if k < len(fusedRes) {
		fusedRes = fusedRes[:k]
	}
	return fusedRes
}

func (r *Retriever) searchLexical(text string, k int) []Result {
	hits := r.lexical.Search(text, k)
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{ID: h.ID, Score: h.Score}
	}
	return out
}

func (r *Retriever) searchVector(queryVec []float32, k int) ([]Result, bool) {
	hits, err := r.vector.Search(queryVec, k)
	if err != nil {
		r.log.WithError(err).Warn("vector search failed")
		return nil, false
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{ID: h.ID, Score: h.Score}
	}
	return out, true
}

// Add indexes one memory. The lexical side is always updated. With a nil vector
// any previous vector for id is dropped; a vector error leaves the lexical side in place.
func (r *Retriever) Add(id int64, text string, vec []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lexical.Add([]int64{id}, []string{text})
	if vec == nil {
		r.vector.Remove([]int64{id})
		return nil
	}
	if err := r.vector.Add([]int64{id}, [][]float32{vec}); err != nil {
		r.vector.Remove([]int64{id})
		return fmt.Errorf("vector add %d: %w", id, err)
	}
	return nil
}

// Remove drops id from both indexes.
func (r *Retriever) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lexical.Remove([]int64{id})
	r.vector.Remove([]int64{id})
}

// Rebuild replaces both indexes. vectors may be nil or hold nil entries for
// memories without an embedding; those, and vectors of the wrong dimension,
// are indexed lexically only.
func (r *Retriever) Rebuild(ids []int64, texts []string, vectors [][]float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lexical.Rebuild(ids, texts)

	dim := r.vector.Dimension()
	var vecIDs []int64
	var vecs [][]float32
	for i, id := range ids {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		if len(vectors[i]) != dim {
			r.log.WithFields(logrus.Fields{"memory_id": id, "dim": len(vectors[i]), "want": dim}).
				Warn("skipping vector of wrong dimension in rebuild")
			continue
		}
		vecIDs = append(vecIDs, id)
		vecs = append(vecs, vectors[i])
	}
	if err := r.vector.Rebuild(vecIDs, vecs); err != nil {
		return fmt.Errorf("vector rebuild: %w", err)
	}
	return nil
}

// Stats returns the current index sizes.
func (r *Retriever) Stats() Stats {
	return Stats{
		LexicalCount: r.lexical.Count(),
		VectorCount:  r.vector.Count(),
		VectorSlots:  r.vector.Slots(),
		OrphanRatio:  r.vector.OrphanRatio(),
		Dimension:    r.vector.Dimension(),
		BuildID:      r.vector.BuildID(),
	}
}

// RebuildLexical replaces only the lexical corpus. Used when the vector side
// was restored from its persisted artifact.
func (r *Retriever) RebuildLexical(ids []int64, texts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lexical.Rebuild(ids, texts)
}
