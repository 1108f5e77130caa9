package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/hybrid-memory/internal/memory"
	"github.com/rcliao/hybrid-memory/internal/metrics"
)

var _ memory.Recorder = (*metrics.Manager)(nil)

func scrape(t *testing.T, m *metrics.Manager) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Code, w.Body.String()
}

func TestManager_Disabled(t *testing.T) {
	m := metrics.NewManager(false)
	if m.Enabled() {
		t.Fatal("expected disabled manager")
	}

	// Every recorder call must be safe on a disabled manager.
	m.ObserveSearch("hybrid", time.Millisecond, 3)
	m.ObserveDistillation("ok", time.Second)
	m.AddReclaimed(2)
	m.IncIndexFailure("add")
	m.SetIndexSizes(1, 1, 0)
	m.SetSessions(1)
	m.RecordHTTPRequest("GET", "/api/stats", "200", time.Millisecond)

	if code, _ := scrape(t, m); code != http.StatusNotFound {
		t.Errorf("disabled handler status = %d, want 404", code)
	}
}

func TestManager_Exposition(t *testing.T) {
	m := metrics.NewManager(true)

	m.ObserveSearch("hybrid", 20*time.Millisecond, 3)
	m.ObserveSearch("lexical", time.Millisecond, 0)
	m.ObserveDistillation("ok", 2*time.Second)
	m.ObserveDistillation("error", time.Second)
	m.AddReclaimed(4)
	m.AddReclaimed(0)
	m.IncIndexFailure("persist")
	m.SetIndexSizes(10, 8, 0.25)
	m.SetSessions(3)
	m.RecordHTTPRequest("GET", "/api/search", "200", 5*time.Millisecond)

	code, body := scrape(t, m)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	for _, want := range []string{
		`hybrid_memory_searches_total{mode="hybrid"} 1`,
		`hybrid_memory_searches_total{mode="lexical"} 1`,
		`hybrid_memory_distillations_total{result="error"} 1`,
		`hybrid_memory_reclaimed_total 4`,
		`hybrid_memory_index_failures_total{op="persist"} 1`,
		`hybrid_memory_lexical_documents 10`,
		`hybrid_memory_vector_entries 8`,
		`hybrid_memory_vector_orphan_ratio 0.25`,
		`hybrid_memory_sessions 3`,
		`hybrid_memory_http_requests_total{method="GET",route="/api/search",status="200"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
