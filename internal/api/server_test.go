package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hybrid-memory/internal/memory"
	"github.com/rcliao/hybrid-memory/internal/metrics"
	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
	"github.com/rcliao/hybrid-memory/internal/summarizer"
)

type echoSummarizer struct{}

func (echoSummarizer) Summarize(_ context.Context, turns []model.Turn) (summarizer.Summary, error) {
	var parts []string
	for _, t := range turns {
		parts = append(parts, t.Content)
	}
	return summarizer.Summary{Canonical: strings.Join(parts, " "), Persona: "noted"}, nil
}

func (echoSummarizer) ScoreImportance(context.Context, string) (float64, error) {
	return 0.5, nil
}

type testEnv struct {
	handler http.Handler
	manager *memory.Manager
	store   *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	e := memory.NewEngine(st, nil, echoSummarizer{}, memory.EngineOptions{IndexDir: t.TempDir()}, log)
	require.NoError(t, e.Init(context.Background()))
	opts := memory.DefaultSessionOptions()
	opts.SummaryThreshold = 4
	m := memory.NewManager(e, echoSummarizer{}, opts, log)

	srv := NewServer(m, metrics.NewManager(true), Options{
		MetricsPath: "/metrics",
		Reclaim:     memory.ReclaimOptions{OlderThan: 30 * 24 * time.Hour},
	}, log)
	return &testEnv{handler: srv.Router(), manager: m, store: st}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestMemoryCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/memories/", `{"session_id":"s1","content":"likes hiking in the Cascades","importance":0.7}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[model.LongTermMemory](t, w)
	assert.InDelta(t, 0.7, created.Importance, 1e-9)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/memories/%d", created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[model.LongTermMemory](t, w)
	assert.Equal(t, 1, got.AccessCount)

	w = env.do(t, http.MethodPatch, fmt.Sprintf("/api/memories/%d", created.ID), `{"content":"likes hiking in the Olympics"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "likes hiking in the Olympics", decode[model.LongTermMemory](t, w).Content)

	w = env.do(t, http.MethodGet, "/api/memories/?session_id=s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Memories []model.LongTermMemory `json:"memories"`
	}](t, w)
	assert.Len(t, list.Memories, 1)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/memories/%d", created.ID), "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/memories/%d", created.ID), "")
	require.Equal(t, http.StatusNotFound, w.Code)
	errBody := decode[ErrorResponse](t, w)
	assert.Equal(t, ErrCodeNotFound, errBody.Error.Code)
	assert.NotEmpty(t, errBody.Error.RequestID)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad id", http.MethodGet, "/api/memories/abc", "", http.StatusBadRequest},
		{"missing memory", http.MethodDelete, "/api/memories/42", "", http.StatusNotFound},
		{"empty content", http.MethodPost, "/api/memories/", `{"session_id":"s1"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/memories/", `{"session_id":"s1","content":"x","color":"red"}`, http.StatusBadRequest},
		{"search without query", http.MethodGet, "/api/search", "", http.StatusBadRequest},
		{"bad k", http.MethodGet, "/api/search?q=x&k=-1", "", http.StatusBadRequest},
		{"unknown session turns", http.MethodGet, "/api/sessions/nope/turns", "", http.StatusNotFound},
		{"bad role", http.MethodPost, "/api/sessions/s1/turns", `{"role":"robot","content":"hi"}`, http.StatusBadRequest},
		{"distill unknown session", http.MethodPost, "/api/sessions/nope/distill", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t)

	var last memory.IngestResult
	for i := 0; i < 4; i++ {
		w := env.do(t, http.MethodPost, "/api/sessions/s1/turns", fmt.Sprintf(`{"role":"user","content":"banjo lesson %d"}`, i))
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		last = decode[memory.IngestResult](t, w)
	}
	assert.True(t, last.Distilled, last.DistillErr)
	assert.Equal(t, 2, last.BufferLen)

	w := env.do(t, http.MethodGet, "/api/sessions/s1/turns", "")
	require.Equal(t, http.StatusOK, w.Code)
	turns := decode[struct {
		Turns []model.Turn `json:"turns"`
	}](t, w)
	assert.Len(t, turns.Turns, 2)

	w = env.do(t, http.MethodGet, "/api/search?q=banjo", "")
	require.Equal(t, http.StatusOK, w.Code)
	search := decode[struct {
		Results []model.LongTermMemory `json:"results"`
	}](t, w)
	require.Len(t, search.Results, 1)
	assert.Equal(t, last.MemoryID, search.Results[0].ID)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/context?q=banjo", "")
	require.Equal(t, http.StatusOK, w.Code)
	sc := decode[memory.SessionContext](t, w)
	assert.Contains(t, sc.Text, "banjo lesson 3")

	w = env.do(t, http.MethodGet, "/api/sessions/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"s1"`)

	w = env.do(t, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[struct {
		Conversation model.Conversation `json:"conversation"`
		Buffered     int                `json:"buffered"`
	}](t, w)
	assert.Equal(t, 4, info.Conversation.MessageCount)
	assert.Equal(t, 2, info.Buffered)

	w = env.do(t, http.MethodGet, "/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"archived":2`)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/turns", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReclaimDefaultsToDryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.AddLongTerm(ctx, store.LongTermParams{
		SessionID: "s1",
		Content:   "ancient history",
		CreatedAt: time.Now().Add(-60 * 24 * time.Hour),
	})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/reclaim", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[memory.ReclaimResult](t, w)
	assert.True(t, res.DryRun)
	assert.Len(t, res.Candidates, 1)
	assert.Empty(t, res.Deleted)

	w = env.do(t, http.MethodPost, "/api/reclaim", `{"dry_run":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decode[memory.ReclaimResult](t, w)
	assert.Len(t, res.Deleted, 1)

	w = env.do(t, http.MethodPost, "/api/reclaim", `{"older_than_days":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsRebuildAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/memories/", `{"session_id":"s1","content":"owns a sailboat"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/rebuild", "")
	require.Equal(t, http.StatusOK, w.Code)
	rebuilt := decode[memory.RebuildResult](t, w)
	assert.Equal(t, 1, rebuilt.Memories)
	assert.NotEmpty(t, rebuilt.BuildID)

	w = env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats, "store")
	assert.Contains(t, stats, "retrieval")
	assert.Contains(t, stats, "dimension")

	w = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/stats"`)

	w = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
