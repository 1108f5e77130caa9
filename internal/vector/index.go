// Package vector implements a flat inner-product nearest-neighbor index over
// L2-normalized embeddings, persisted as a vector file plus an id-map file.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// DefaultDimension is used when the embedder cannot be probed.
const DefaultDimension = 768

// Result is one scored hit; Score is cosine similarity.
type Result struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Index stores vectors in append-only slots. Removal only drops the
// slot's id mapping; the orphaned slot is skipped at search time until
// the next Rebuild.
type Index struct {
	mu sync.RWMutex

	dim   int
	slots [][]float32

	slotToID map[int]int64
	idToSlot map[int64]int

	buildID    string
	generation int64
}

// New creates an empty index of the given dimension.
func New(dim int) *Index {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Index{
		dim:      dim,
		slotToID: make(map[int]int64),
		idToSlot: make(map[int64]int),
		buildID:  ulid.Make().String(),
	}
}

// Dimension returns the fixed vector dimension.
func (x *Index) Dimension() int {
	return x.dim
}

// Add inserts vectors. All vectors are checked before any is inserted, so a
// dimension mismatch leaves the index unchanged. Re-adding an id orphans its old slot.
func (x *Index) Add(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids for %d vectors", model.ErrIndex, len(ids), len(vectors))
	}
	if err := x.checkDims(vectors); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i, id := range ids {
		x.addLocked(id, vectors[i])
	}
	return nil
}

// Remove drops the id mappings. Unknown ids are ignored.
func (x *Index) Remove(ids []int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, id := range ids {
		if slot, ok := x.idToSlot[id]; ok {
			delete(x.idToSlot, id)
			delete(x.slotToID, slot)
		}
	}
}

// Rebuild discards every slot and re-inserts the given vectors under a new build id.
func (x *Index) Rebuild(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids for %d vectors", model.ErrIndex, len(ids), len(vectors))
	}
	if err := x.checkDims(vectors); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.slots = make([][]float32, 0, len(ids))
	x.slotToID = make(map[int]int64, len(ids))
	x.idToSlot = make(map[int64]int, len(ids))
	for i, id := range ids {
		x.addLocked(id, vectors[i])
	}
	x.buildID = ulid.Make().String()
	return nil
}

// Search returns up to k ids by descending cosine similarity to query.
func (x *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", model.ErrDimensionMismatch, x.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	q := normalize(query)

	x.mu.RLock()
	defer x.mu.RUnlock()

	results := make([]Result, 0, len(x.slotToID))
	for slot, vec := range x.slots {
		id, ok := x.slotToID[slot]
		if !ok {
			continue
		}
		results = append(results, Result{ID: id, Score: dot(q, vec)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of live (mapped) vectors.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idToSlot)
}

// Slots returns the number of stored slots, including orphaned ones.
func (x *Index) Slots() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.slots)
}

// OrphanRatio is the fraction of slots no longer mapped to an id.
func (x *Index) OrphanRatio() float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.slots) == 0 {
		return 0
	}
	return float64(len(x.slots)-len(x.idToSlot)) / float64(len(x.slots))
}

// Contains reports whether id has a live slot.
func (x *Index) Contains(id int64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.idToSlot[id]
	return ok
}

// BuildID identifies the last rebuild.
func (x *Index) BuildID() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.buildID
}

// Generation is the record store generation the index last reflected.
func (x *Index) Generation() int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.generation
}

func (x *Index) checkDims(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: expected %d, got %d", model.ErrDimensionMismatch, x.dim, len(v))
		}
	}
	return nil
}

func (x *Index) addLocked(id int64, vec []float32) {
	if old, ok := x.idToSlot[id]; ok {
		delete(x.slotToID, old)
	}
	slot := len(x.slots)
	x.slots = append(x.slots, normalize(vec))
	x.slotToID[slot] = id
	x.idToSlot[id] = slot
}

// normalize returns a unit-length copy of v. A zero vector stays zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
