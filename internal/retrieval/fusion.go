package retrieval

import "sort"

// Candidate is an (id, score) pair from one sub-index, in rank order.
type Candidate struct {
	ID    int64
	Score float64
}

type fused struct {
	order []int64
	score map[int64]float64
}

func newFused(capacity int) *fused {
	return &fused{score: make(map[int64]float64, capacity)}
}

func (f *fused) add(id int64, s float64) {
	if _, seen := f.score[id]; !seen {
		f.order = append(f.order, id)
	}
	f.score[id] += s
}

// ranked sorts by score descending; equal scores keep first-seen order.
func (f *fused) ranked() []Result {
	out := make([]Result, len(f.order))
	for i, id := range f.order {
		out[i] = Result{ID: id, Score: f.score[id]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// FuseRRF applies Reciprocal Rank Fusion: each list contributes 1/(k + rank + 1)
// per id with 0-based rank. Ids present in one list only still score.
func FuseRRF(lexical, vector []Candidate, k float64) []Result {
	f := newFused(len(lexical) + len(vector))
	for rank, c := range lexical {
		f.add(c.ID, 1.0/(k+float64(rank)+1))
	}
	for rank, c := range vector {
		f.add(c.ID, 1.0/(k+float64(rank)+1))
	}
	return f.ranked()
}

// FuseWeighted normalizes each list by its own maximum score (left raw when the
// maximum is not positive) and sums weight * normalized score per id.
// A list with zero weight contributes nothing, so (1,0) is the lexical order and (0,1) the vector order.
func FuseWeighted(lexical, vector []Candidate, lexicalWeight, vectorWeight float64) []Result {
	f := newFused(len(lexical) + len(vector))
	addList := func(list []Candidate, weight float64) {
		if weight == 0 || len(list) == 0 {
			return
		}
		top := list[0].Score
		for _, c := range list[1:] {
			if c.Score > top {
				top = c.Score
			}
		}
		for _, c := range list {
			s := c.Score
			if top > 0 {
				s /= top
			}
			f.add(c.ID, weight*s)
		}
	}
	addList(lexical, lexicalWeight)
	addList(vector, vectorWeight)
	return f.ranked()
}
