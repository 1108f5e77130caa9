package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AddAndSearch(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{1, 2, 3}, []string{
		"the quick brown fox jumps over the lazy dog",
		"machine learning and artificial intelligence",
		"the fox is quick and brown",
	})

	results := idx.Search("quick fox", 10)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, int64(2), r.ID)
		assert.Greater(t, r.Score, 0.0)
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestIndex_UniqueTokenPositive(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{10}, []string{"zebra crossing"})

	// Single-document corpus still scores positive.
	results := idx.Search("zebra", 5)
	require.Len(t, results, 1)
	assert.Equal(t, int64(10), results[0].ID)
	assert.Greater(t, results[0].Score, 0.0)

	idx.Add([]int64{11, 12}, []string{"pedestrian crossing", "traffic light"})
	results = idx.Search("zebra", 5)
	require.Len(t, results, 1)
	assert.Equal(t, int64(10), results[0].ID)

	idx.Remove([]int64{10})
	assert.Empty(t, idx.Search("zebra", 5))
	assert.Equal(t, 2, idx.Count())
}

func TestIndex_RemoveUnknownIsNoop(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{1}, []string{"hello world"})
	idx.Remove([]int64{99})
	assert.Equal(t, 1, idx.Count())
	assert.Len(t, idx.Search("hello", 5), 1)
}

func TestIndex_ReplaceExisting(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{1}, []string{"hello world"})
	idx.Add([]int64{1}, []string{"goodbye universe"})

	assert.Equal(t, 1, idx.Count())
	assert.Empty(t, idx.Search("hello", 5))
	assert.Len(t, idx.Search("universe", 5), 1)
}

func TestIndex_StatsRederived(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{1, 2}, []string{"apple banana", "apple cherry"})
	before := idx.Search("banana", 1)[0].Score

	// Adding more docs without "banana" raises its IDF.
	idx.Add([]int64{3, 4}, []string{"kiwi", "mango"})
	after := idx.Search("banana", 1)[0].Score
	assert.Greater(t, after, before)

	idx.Remove([]int64{3, 4})
	restored := idx.Search("banana", 1)[0].Score
	assert.InDelta(t, before, restored, 1e-12)
}

func TestIndex_TiesKeepInsertionOrder(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{5, 3, 9}, []string{"same words", "same words", "same words"})

	results := idx.Search("same", 10)
	require.Len(t, results, 3)
	assert.Equal(t, []int64{5, 3, 9}, []int64{results[0].ID, results[1].ID, results[2].ID})
}

func TestIndex_TopK(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{1, 2, 3}, []string{"go go go", "go", "go lang"})
	assert.Len(t, idx.Search("go", 2), 2)
	assert.Empty(t, idx.Search("go", 0))
	assert.Empty(t, idx.Search("!!!", 5))
}

func TestIndex_Rebuild(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{1}, []string{"stale"})

	ids := []int64{7, 8}
	texts := []string{"fresh memory", "another memory"}
	idx.Rebuild(ids, texts)
	first := idx.Search("memory fresh", 10)

	idx.Rebuild(ids, texts)
	second := idx.Search("memory fresh", 10)

	assert.Equal(t, first, second)
	assert.False(t, idx.Contains(1))
	assert.Empty(t, idx.Search("stale", 5))
}

func TestIndex_CJK(t *testing.T) {
	idx := NewDefault()
	idx.Add([]int64{1, 2}, []string{"我喜欢猫", "今天天气很好"})

	results := idx.Search("猫", 5)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"  multiple   spaces\tand\nlines ", []string{"multiple", "spaces", "and", "lines"}},
		{"I'm 42", []string{"i", "m", "42"}},
		{"我爱Go语言", []string{"我", "爱", "go", "语", "言"}},
		{"カタカナ", []string{"カ", "タ", "カ", "ナ"}},
		{"...", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.in), "input %q", tt.in)
	}
}
