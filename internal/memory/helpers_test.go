package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hybrid-memory/internal/lexical"
	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/retrieval"
	"github.com/rcliao/hybrid-memory/internal/store"
	"github.com/rcliao/hybrid-memory/internal/summarizer"
)

const testDim = 16

// hashEmbedder maps each token to a bucket, giving a deterministic bag-of-words vector.
type hashEmbedder struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.calls.Add(1)
	if h.fail.Load() {
		return nil, fmt.Errorf("%w: provider down", model.ErrEmbedding)
	}
	v := make([]float32, testDim)
	for _, tok := range lexical.Tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		v[f.Sum32()%testDim]++
	}
	return v, nil
}

func (h *hashEmbedder) Dims() int { return testDim }

// fakeSummarizer echoes the transcript and scores importance from a fixed value.
// The hang switches make a call block until its context is done.
type fakeSummarizer struct {
	mu         sync.Mutex
	failNext   int
	calls      int
	importance float64

	hangSummarize atomic.Bool
	hangScore     atomic.Bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, turns []model.Turn) (summarizer.Summary, error) {
	if f.hangSummarize.Load() {
		<-ctx.Done()
		return summarizer.Summary{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return summarizer.Summary{}, fmt.Errorf("%w: model unavailable", model.ErrSummarization)
	}
	var parts []string
	for _, t := range turns {
		parts = append(parts, t.Content)
	}
	return summarizer.Summary{
		Canonical: "User said: " + strings.Join(parts, "; "),
		Persona:   "I remember our chat.",
	}, nil
}

func (f *fakeSummarizer) ScoreImportance(ctx context.Context, _ string) (float64, error) {
	if f.hangScore.Load() {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.importance == 0 {
		return model.DefaultImportance, nil
	}
	return f.importance, nil
}

// flakyStore fails selected operations.
type flakyStore struct {
	*store.SQLiteStore
	archiveLimit  int // ArchiveLongTerm fails after this many calls; <0 never
	archives      int
	failShortTerm bool
}

func (f *flakyStore) ArchiveLongTerm(ctx context.Context, id int64) error {
	f.archives++
	if f.archiveLimit >= 0 && f.archives > f.archiveLimit {
		return fmt.Errorf("%w: disk full", model.ErrStore)
	}
	return f.SQLiteStore.ArchiveLongTerm(ctx, id)
}

func (f *flakyStore) AddShortTerm(ctx context.Context, sessionID, personaID, content string) (*model.ShortTermMemory, error) {
	if f.failShortTerm {
		return nil, fmt.Errorf("%w: disk full", model.ErrStore)
	}
	return f.SQLiteStore.AddShortTerm(ctx, sessionID, personaID, content)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEngineOptions(dir string) EngineOptions {
	return EngineOptions{
		IndexDir:         dir,
		DefaultDimension: testDim,
		CompactRatio:     0.3,
		TopK:             5,
		Retrieval:        retrieval.DefaultOptions(),
	}
}

// newTestEngine returns an initialized engine over a fresh store.
func newTestEngine(t *testing.T, st RecordStore, emb *hashEmbedder, sum summarizer.Summarizer) *Engine {
	t.Helper()
	var e *Engine
	if emb == nil {
		e = NewEngine(st, nil, sum, testEngineOptions(t.TempDir()), quietLogger())
	} else {
		e = NewEngine(st, emb, sum, testEngineOptions(t.TempDir()), quietLogger())
	}
	require.NoError(t, e.Init(context.Background()))
	return e
}

func contents(ms []model.LongTermMemory) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Content
	}
	return out
}

func ptr[T any](v T) *T { return &v }
