// Package lexical implements the BM25 keyword index over long-term memories.
package lexical

import (
	"math"
	"sort"
	"sync"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Result is one scored hit.
type Result struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

type document struct {
	id     int64
	freqs  map[string]int
	length int
}

// Index is a BM25 ranker. Corpus statistics are re-derived from the full
// document set after every mutation, so scores always reflect the current corpus.
type Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	// docs keeps insertion order; position maps id -> index into docs.
	docs     []document
	position map[int64]int

	// Derived corpus statistics.
	docFreq map[string]int
	avgLen  float64
}

// New creates an empty index with the given BM25 parameters.
func New(k1, b float64) *Index {
	return &Index{
		k1:       k1,
		b:        b,
		position: make(map[int64]int),
		docFreq:  make(map[string]int),
	}
}

// NewDefault creates an index with k1=1.5, b=0.75.
func NewDefault() *Index {
	return New(DefaultK1, DefaultB)
}

// Add indexes documents. An id already present is replaced and moves to the end of insertion order.
func (idx *Index) Add(ids []int64, texts []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	replaced := make(map[int64]struct{})
	for _, id := range ids {
		if _, ok := idx.position[id]; ok {
			replaced[id] = struct{}{}
		}
	}
	if len(replaced) > 0 {
		idx.dropLocked(replaced)
	}

	for i, id := range ids {
		if i >= len(texts) {
			break
		}
		if pos, ok := idx.position[id]; ok {
			// Duplicate id within the same batch: last text wins.
			idx.docs[pos] = newDocument(id, texts[i])
			continue
		}
		idx.position[id] = len(idx.docs)
		idx.docs = append(idx.docs, newDocument(id, texts[i]))
	}
	idx.deriveLocked()
}

// Remove drops documents. Unknown ids are ignored.
func (idx *Index) Remove(ids []int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := idx.position[id]; ok {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return
	}
	idx.dropLocked(drop)
	idx.deriveLocked()
}

// Rebuild replaces the whole corpus.
func (idx *Index) Rebuild(ids []int64, texts []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.docs = idx.docs[:0]
	idx.position = make(map[int64]int, len(ids))
	for i, id := range ids {
		if i >= len(texts) {
			break
		}
		if pos, ok := idx.position[id]; ok {
			idx.docs[pos] = newDocument(id, texts[i])
			continue
		}
		idx.position[id] = len(idx.docs)
		idx.docs = append(idx.docs, newDocument(id, texts[i]))
	}
	idx.deriveLocked()
}

// Search returns up to k documents with a positive score, best first.
// Equal scores keep insertion order.
func (idx *Index) Search(query string, k int) []Result {
	if k <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docs) == 0 {
		return nil
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	results := make([]Result, 0, len(idx.docs))
	for i := range idx.docs {
		score := idx.scoreLocked(&idx.docs[i], terms)
		if score > 0 {
			results = append(results, Result{ID: idx.docs[i].id, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Contains reports whether id is indexed.
func (idx *Index) Contains(id int64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.position[id]
	return ok
}

func newDocument(id int64, text string) document {
	tokens := Tokenize(text)
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return document{id: id, freqs: freqs, length: len(tokens)}
}

// dropLocked removes docs and compacts positions. Must hold the write lock.
func (idx *Index) dropLocked(drop map[int64]struct{}) {
	kept := idx.docs[:0]
	for _, d := range idx.docs {
		if _, ok := drop[d.id]; ok {
			continue
		}
		kept = append(kept, d)
	}
	// Zero the tail so dropped docs can be collected.
	for i := len(kept); i < len(idx.docs); i++ {
		idx.docs[i] = document{}
	}
	idx.docs = kept

	idx.position = make(map[int64]int, len(kept))
	for i, d := range kept {
		idx.position[d.id] = i
	}
}

// deriveLocked recomputes document frequencies and average length from scratch.
func (idx *Index) deriveLocked() {
	idx.docFreq = make(map[string]int)
	total := 0
	for _, d := range idx.docs {
		total += d.length
		for term := range d.freqs {
			idx.docFreq[term]++
		}
	}
	idx.avgLen = 0
	if len(idx.docs) > 0 {
		idx.avgLen = float64(total) / float64(len(idx.docs))
	}
}

func (idx *Index) scoreLocked(d *document, terms []string) float64 {
	if d.length == 0 {
		return 0
	}
	n := float64(len(idx.docs))
	docLen := float64(d.length)
	score := 0.0

	for _, term := range terms {
		tf := float64(d.freqs[term])
		if tf == 0 {
			continue
		}

		// IDF: ln((N - n + 0.5) / (n + 0.5) + 1), positive for every n <= N
		df := float64(idx.docFreq[term])
		idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)

		numerator := tf * (idx.k1 + 1)
		denominator := tf + idx.k1*(1-idx.b+idx.b*docLen/idx.avgLen)
		score += idf * numerator / denominator
	}
	return score
}
