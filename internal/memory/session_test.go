package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hybrid-memory/internal/model"
)

func newTestManager(t *testing.T, st RecordStore, sum *fakeSummarizer, opts SessionOptions) *Manager {
	t.Helper()
	e := newTestEngine(t, st, &hashEmbedder{}, sum)
	return NewManager(e, sum, opts, quietLogger())
}

func ingestN(t *testing.T, m *Manager, sessionID string, from, n int) []*IngestResult {
	t.Helper()
	var out []*IngestResult
	for i := from; i < from+n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		res, err := m.Ingest(context.Background(), TurnInput{
			SessionID: sessionID,
			Role:      role,
			Content:   fmt.Sprintf("turn %d about the xylophone recital", i),
		})
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func TestManager_DistillsAtThreshold(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sum := &fakeSummarizer{}
	m := newTestManager(t, st, sum, DefaultSessionOptions())

	results := ingestN(t, m, "s1", 0, 9)
	for _, r := range results {
		assert.False(t, r.Distilled)
	}
	assert.Equal(t, 9, results[8].BufferLen)
	assert.Equal(t, 9, results[8].Counter)

	res := ingestN(t, m, "s1", 9, 1)[0]
	require.True(t, res.Distilled, res.DistillErr)
	assert.NotZero(t, res.MemoryID)
	assert.Equal(t, 2, res.BufferLen)
	assert.Equal(t, 2, res.Counter)

	buf, ok := m.Buffer("s1")
	require.True(t, ok)
	require.Len(t, buf, 2)
	assert.Equal(t, "turn 8 about the xylophone recital", buf[0].Content)
	assert.Equal(t, "turn 9 about the xylophone recital", buf[1].Content)

	// Consumed short-term rows are archived; the retained ones stay active.
	rows, err := st.ListShortTerm(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	mem, err := st.PeekLongTerm(ctx, res.MemoryID, false)
	require.NoError(t, err)
	assert.Equal(t, "s1", mem.SessionID)
	assert.Contains(t, mem.CanonicalSummary, "turn 0 about the xylophone recital")
	assert.Equal(t, "I remember our chat.", mem.PersonaSummary)
	assert.True(t, mem.HasEmbedding())

	// The counter restarts from the retained turns.
	results = ingestN(t, m, "s1", 10, 7)
	for _, r := range results {
		assert.False(t, r.Distilled)
	}
	res = ingestN(t, m, "s1", 17, 1)[0]
	assert.True(t, res.Distilled)
}

func TestManager_DistillationFailureKeepsBuffer(t *testing.T) {
	sum := &fakeSummarizer{failNext: 1}
	m := newTestManager(t, newTestStore(t), sum, DefaultSessionOptions())

	ingestN(t, m, "s1", 0, 9)
	res := ingestN(t, m, "s1", 9, 1)[0]
	assert.False(t, res.Distilled)
	assert.Contains(t, res.DistillErr, "model unavailable")
	assert.Equal(t, 10, res.BufferLen)
	assert.Equal(t, 10, res.Counter)

	// Next turn retries.
	res = ingestN(t, m, "s1", 10, 1)[0]
	assert.True(t, res.Distilled, res.DistillErr)
	assert.Equal(t, 2, res.BufferLen)
	assert.Equal(t, 2, sum.calls)
}

func TestManager_DisabledNeverDistills(t *testing.T) {
	sum := &fakeSummarizer{}
	opts := DefaultSessionOptions()
	opts.Enabled = false
	m := newTestManager(t, newTestStore(t), sum, opts)

	results := ingestN(t, m, "s1", 0, 12)
	assert.False(t, results[11].Distilled)
	assert.Equal(t, 12, results[11].BufferLen)
	assert.Zero(t, sum.calls)
}

func TestManager_BufferCappedAtMaxMessages(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.Enabled = false
	opts.MaxMessages = 5
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, opts)

	ingestN(t, m, "s1", 0, 8)
	buf, ok := m.Buffer("s1")
	require.True(t, ok)
	require.Len(t, buf, 5)
	assert.Equal(t, "turn 3 about the xylophone recital", buf[0].Content)

	// Rows for turns pushed out of the buffer are archived with them.
	rows, err := m.Engine().store.ListShortTerm(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "turn 3 about the xylophone recital", rows[len(rows)-1].Content)
}

func TestManager_IngestValidation(t *testing.T) {
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, DefaultSessionOptions())
	ctx := context.Background()

	_, err := m.Ingest(ctx, TurnInput{Content: "hi"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = m.Ingest(ctx, TurnInput{SessionID: "s1"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = m.Ingest(ctx, TurnInput{SessionID: "s1", Role: "robot", Content: "hi"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	res, err := m.Ingest(ctx, TurnInput{SessionID: "s1", Content: "hi"})
	require.NoError(t, err)
	buf, _ := m.Buffer("s1")
	require.Len(t, buf, 1)
	assert.Equal(t, "user", buf[0].Role)
	assert.Equal(t, res.ShortTermID, buf[0].ShortTermID)
}

func TestManager_StoreFailureNotBuffered(t *testing.T) {
	fs := &flakyStore{SQLiteStore: newTestStore(t), archiveLimit: -1, failShortTerm: true}
	m := newTestManager(t, fs, &fakeSummarizer{}, DefaultSessionOptions())

	_, err := m.Ingest(context.Background(), TurnInput{SessionID: "s1", Content: "lost turn"})
	require.ErrorIs(t, err, model.ErrStore)

	buf, ok := m.Buffer("s1")
	if ok {
		assert.Empty(t, buf)
	}
}

func TestManager_ForcedDistill(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, DefaultSessionOptions())

	_, err := m.Distill(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	ingestN(t, m, "s1", 0, 1)
	_, err = m.Distill(ctx, "s1")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	ingestN(t, m, "s1", 1, 2)
	id, err := m.Distill(ctx, "s1")
	require.NoError(t, err)
	assert.NotZero(t, id)
	buf, _ := m.Buffer("s1")
	assert.Len(t, buf, 2)
}

func TestManager_DistillUnknownSessionWithRestore(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.RestoreFromStore = true
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, opts)

	_, err := m.Distill(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, m.Sessions(), "an empty restore leaves no session behind")
}

func TestManager_DistillTimeoutKeepsBuffer(t *testing.T) {
	sum := &fakeSummarizer{}
	sum.hangSummarize.Store(true)
	opts := DefaultSessionOptions()
	opts.SummaryTimeout = 20 * time.Millisecond
	m := newTestManager(t, newTestStore(t), sum, opts)

	results := ingestN(t, m, "s1", 0, 10)
	last := results[9]
	assert.False(t, last.Distilled)
	assert.Contains(t, last.DistillErr, "deadline exceeded")
	assert.Equal(t, 10, last.BufferLen)

	_, err := m.Distill(context.Background(), "s1")
	assert.ErrorIs(t, err, model.ErrSummarization)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	buf, _ := m.Buffer("s1")
	assert.Len(t, buf, 10)
}

func TestManager_ScoringBoundByDistillTimeout(t *testing.T) {
	sum := &fakeSummarizer{}
	sum.hangScore.Store(true)
	opts := DefaultSessionOptions()
	opts.SummaryTimeout = 50 * time.Millisecond
	m := newTestManager(t, newTestStore(t), sum, opts)

	ingestN(t, m, "s1", 0, 9)
	done := make(chan *IngestResult, 1)
	go func() {
		res, err := m.Ingest(context.Background(), TurnInput{SessionID: "s1", Content: "the tenth turn"})
		assert.NoError(t, err)
		done <- res
	}()

	var res *IngestResult
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingest blocked past the distillation timeout")
	}
	require.NotNil(t, res)
	assert.False(t, res.Distilled)
	assert.Contains(t, res.DistillErr, model.ErrSummarization.Error())
	assert.Equal(t, 10, res.BufferLen)

	stats, err := m.Engine().Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Store.LongTermCount)

	// Once scoring recovers the next turn distills.
	sum.hangScore.Store(false)
	res = ingestN(t, m, "s1", 10, 1)[0]
	assert.True(t, res.Distilled, res.DistillErr)
}

func TestManager_EvictIdle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	opts := DefaultSessionOptions()
	opts.IdleTimeout = time.Hour
	m := newTestManager(t, st, &fakeSummarizer{}, opts)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	ingestN(t, m, "old", 0, 2)
	m.now = func() time.Time { return base.Add(50 * time.Minute) }
	ingestN(t, m, "fresh", 0, 2)

	n := m.EvictIdle(base.Add(90 * time.Minute))
	assert.Equal(t, 1, n)

	_, ok := m.Buffer("old")
	assert.False(t, ok)
	_, ok = m.Buffer("fresh")
	assert.True(t, ok)

	// Durable rows survive eviction.
	rows, err := st.ListShortTerm(ctx, "old", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// A later turn starts a fresh buffer.
	res := ingestN(t, m, "old", 2, 1)[0]
	assert.Equal(t, 1, res.BufferLen)
}

func TestManager_ClearSession(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := newTestManager(t, st, &fakeSummarizer{}, DefaultSessionOptions())

	ingestN(t, m, "s1", 0, 3)
	n, err := m.ClearSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, ok := m.Buffer("s1")
	assert.False(t, ok)
	rows, err := st.ListShortTerm(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err = m.ClearSession(ctx, "never-seen")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_RegistryBounded(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.MaxSessions = 2
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, opts)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		m.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		ingestN(t, m, id, 0, 1)
	}

	sessions := m.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "c", sessions[0].ID, "most recently active first")
	assert.Equal(t, "b", sessions[1].ID)
	_, ok := m.Buffer("a")
	assert.False(t, ok)
}

func TestManager_RegistryOverflowsWhenAllBusy(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.MaxSessions = 1
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, opts)

	busy := m.acquire("a")
	ingestN(t, m, "b", 0, 1)
	busy.mu.Unlock()

	assert.Len(t, m.Sessions(), 2)
}

func TestManager_ConcurrentIngestKeepsOrder(t *testing.T) {
	opts := DefaultSessionOptions()
	opts.Enabled = false
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, opts)

	const sessions, turns = 4, 10
	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", s)
			for i := 0; i < turns; i++ {
				_, err := m.Ingest(context.Background(), TurnInput{SessionID: id, Content: fmt.Sprintf("%d", i)})
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	for s := 0; s < sessions; s++ {
		buf, ok := m.Buffer(fmt.Sprintf("s%d", s))
		require.True(t, ok)
		require.Len(t, buf, turns)
		for i, turn := range buf {
			assert.Equal(t, fmt.Sprintf("%d", i), turn.Content)
		}
	}
}

func TestManager_DistillThenDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newTestStore(t), &fakeSummarizer{}, DefaultSessionOptions())
	e := m.Engine()

	res := ingestN(t, m, "s1", 0, 10)[9]
	require.True(t, res.Distilled, res.DistillErr)

	got, err := e.Search(ctx, "xylophone recital", SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, res.MemoryID, got[0].ID)

	before, err := e.Stats(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, res.MemoryID))

	got, err = e.Search(ctx, "xylophone recital", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)

	after, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Store.LongTermCount-1, after.Store.LongTermCount)
}

func TestManager_SessionsFallbackContext(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := newTestManager(t, st, &fakeSummarizer{}, DefaultSessionOptions())

	// Rows written by another process are still offered as context.
	_, err := st.AddShortTerm(ctx, "cold", "", "remind me about the passport")
	require.NoError(t, err)
	_, err = m.Engine().AddLongTerm(ctx, NewMemory{SessionID: "cold", Content: "passport expires in June"})
	require.NoError(t, err)

	sc, err := m.Context(ctx, "cold", "")
	require.NoError(t, err)
	require.Len(t, sc.Items, 2)
	assert.Equal(t, "turn", sc.Items[0].Kind)
	assert.Equal(t, "long_term", sc.Items[1].Kind)
	assert.Contains(t, sc.Text, "passport expires in June")
	assert.Contains(t, sc.Text, "user: remind me about the passport")

}

func TestManager_RestoreFromStore(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sum := &fakeSummarizer{}
	opts := DefaultSessionOptions()
	opts.RestoreFromStore = true

	// A previous process buffered nine turns.
	first := newTestManager(t, st, sum, opts)
	ingestN(t, first, "s1", 0, 9)

	second := NewManager(first.Engine(), sum, opts, quietLogger())
	res := ingestN(t, second, "s1", 9, 1)[0]
	require.True(t, res.Distilled, res.DistillErr)
	assert.Equal(t, 2, res.BufferLen)

	rows, err := st.ListShortTerm(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
