package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hybrid-memory/internal/lexical"
	"github.com/rcliao/hybrid-memory/internal/vector"
)

func ids(results []Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestFuseRRF(t *testing.T) {
	lex := []Candidate{{ID: 1, Score: 9}, {ID: 2, Score: 5}, {ID: 3, Score: 1}}
	vec := []Candidate{{ID: 1, Score: 0.9}, {ID: 4, Score: 0.8}}

	got := FuseRRF(lex, vec, 60)
	require.Len(t, got, 4)
	assert.Equal(t, int64(1), got[0].ID, "first in both lists ranks first")
	assert.InDelta(t, 2.0/61, got[0].Score, 1e-12)

	// Id 2 (lexical rank 1) and id 4 (vector rank 1) tie; lexical is seen first.
	assert.Equal(t, []int64{1, 2, 4, 3}, ids(got))
	assert.InDelta(t, 1.0/63, got[3].Score, 1e-12)
}

func TestFuseRRF_Monotonic(t *testing.T) {
	for _, tc := range []struct {
		lex, vec []Candidate
	}{
		{[]Candidate{{ID: 7}}, []Candidate{{ID: 7}, {ID: 8}, {ID: 9}}},
		{[]Candidate{{ID: 7}, {ID: 1}, {ID: 2}}, []Candidate{{ID: 7}, {ID: 2}, {ID: 1}}},
		{[]Candidate{{ID: 7}, {ID: 3}}, []Candidate{{ID: 7}}},
	} {
		got := FuseRRF(tc.lex, tc.vec, 60)
		assert.Equal(t, int64(7), got[0].ID)
	}
}

func TestFuseWeighted(t *testing.T) {
	lex := []Candidate{{ID: 1, Score: 10}, {ID: 2, Score: 5}, {ID: 3, Score: 2}}
	vec := []Candidate{{ID: 3, Score: 0.9}, {ID: 4, Score: 0.6}, {ID: 1, Score: 0.1}}

	assert.Equal(t, []int64{1, 2, 3}, ids(FuseWeighted(lex, vec, 1, 0)))
	assert.Equal(t, []int64{3, 4, 1}, ids(FuseWeighted(lex, vec, 0, 1)))

	got := FuseWeighted(lex, vec, 0.5, 0.5)
	require.Len(t, got, 4)
	byID := map[int64]float64{}
	for _, r := range got {
		byID[r.ID] = r.Score
	}
	assert.InDelta(t, 0.5*1.0+0.5*(0.1/0.9), byID[1], 1e-9)
	assert.InDelta(t, 0.5*0.2+0.5*1.0, byID[3], 1e-9)
	assert.InDelta(t, 0.5*(0.6/0.9), byID[4], 1e-9)
}

func TestFuseWeighted_NonPositiveMaxLeftRaw(t *testing.T) {
	vec := []Candidate{{ID: 1, Score: -0.1}, {ID: 2, Score: -0.5}}
	got := FuseWeighted(nil, vec, 0.5, 1)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 2}, ids(got))
	assert.InDelta(t, -0.1, got[0].Score, 1e-12)
}

func newRetriever(t *testing.T, opts Options) *Retriever {
	t.Helper()
	return New(lexical.NewDefault(), vector.New(2), opts, nil)
}

func seed(t *testing.T, r *Retriever) {
	t.Helper()
	require.NoError(t, r.Add(1, "red apples and green pears", []float32{1, 0}))
	require.NoError(t, r.Add(2, "green tea in the morning", []float32{0, 1}))
	require.NoError(t, r.Add(3, "apples apples apples", nil))
}

func TestRetriever_Hybrid(t *testing.T) {
	r := newRetriever(t, DefaultOptions())
	seed(t, r)

	got := r.Search(context.Background(), "apples", []float32{1, 0.1}, 2)
	require.Len(t, got, 2)
	// Id 1 is in both lists.
	assert.Equal(t, int64(1), got[0].ID)
}

func TestRetriever_Degradation(t *testing.T) {
	ctx := context.Background()

	t.Run("no query vector uses lexical", func(t *testing.T) {
		r := newRetriever(t, DefaultOptions())
		seed(t, r)
		got := r.Search(ctx, "apples", nil, 5)
		assert.ElementsMatch(t, []int64{1, 3}, ids(got))
	})

	t.Run("hybrid disabled prefers vector", func(t *testing.T) {
		opts := DefaultOptions()
		opts.UseHybrid = false
		r := newRetriever(t, opts)
		seed(t, r)
		got := r.Search(ctx, "apples", []float32{0, 1}, 5)
		require.NotEmpty(t, got)
		assert.Equal(t, int64(2), got[0].ID)
		assert.NotContains(t, ids(got), int64(3))
	})

	t.Run("vector failure falls back to lexical", func(t *testing.T) {
		r := newRetriever(t, DefaultOptions())
		seed(t, r)
		got := r.Search(ctx, "tea", []float32{1, 2, 3}, 5)
		assert.Equal(t, []int64{2}, ids(got))
	})

	t.Run("nothing available", func(t *testing.T) {
		r := newRetriever(t, DefaultOptions())
		assert.Empty(t, r.Search(ctx, "", nil, 5))
	})
}

func TestRetriever_Truncates(t *testing.T) {
	r := newRetriever(t, DefaultOptions())
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, r.Add(i, "shared token", []float32{float32(i), 1}))
	}
	assert.Len(t, r.Search(context.Background(), "shared", []float32{1, 1}, 3), 3)
}

func TestRetriever_AddRemoveFanOut(t *testing.T) {
	r := newRetriever(t, DefaultOptions())
	seed(t, r)

	st := r.Stats()
	assert.Equal(t, 3, st.LexicalCount)
	assert.Equal(t, 2, st.VectorCount)

	r.Remove(1)
	st = r.Stats()
	assert.Equal(t, 2, st.LexicalCount)
	assert.Equal(t, 1, st.VectorCount)
	assert.InDelta(t, 0.5, st.OrphanRatio, 1e-9)
	assert.NotContains(t, ids(r.Search(context.Background(), "pears", []float32{1, 0}, 5)), int64(1))

	// Wrong dimension: lexical side still lands.
	err := r.Add(9, "kiwi", []float32{1, 2, 3})
	assert.Error(t, err)
	assert.Equal(t, []int64{9}, ids(r.Search(context.Background(), "kiwi", nil, 5)))

	// Re-adding without a vector drops the stale vector.
	require.NoError(t, r.Add(2, "green tea", nil))
	assert.Equal(t, 0, r.Stats().VectorCount)
}

func TestRetriever_RebuildIdempotent(t *testing.T) {
	r := newRetriever(t, DefaultOptions())
	seed(t, r)

	rebuildIDs := []int64{10, 11, 12}
	texts := []string{"alpha beta", "beta gamma", "gamma delta"}
	vecs := [][]float32{{1, 0}, nil, {0.5, 0.5}}

	require.NoError(t, r.Rebuild(rebuildIDs, texts, vecs))
	first := r.Search(context.Background(), "beta gamma", []float32{1, 0.3}, 3)

	require.NoError(t, r.Rebuild(rebuildIDs, texts, vecs))
	second := r.Search(context.Background(), "beta gamma", []float32{1, 0.3}, 3)

	assert.Equal(t, first, second)
	st := r.Stats()
	assert.Equal(t, 3, st.LexicalCount)
	assert.Equal(t, 2, st.VectorCount)
}
