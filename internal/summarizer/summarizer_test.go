package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hybrid-memory/internal/config"
	"github.com/rcliao/hybrid-memory/internal/model"
)

func TestParseImportance(t *testing.T) {
	tests := []struct {
		reply string
		want  float64
		ok    bool
	}{
		{"0.8", 0.8, true},
		{"Score: 0.35 because it's a preference", 0.35, true},
		{".9", 0.9, true},
		{"7", 1, true},
		{"-0.4", 0.4, true},
		{"no idea", 0.5, false},
		{"", 0.5, false},
	}
	for _, tt := range tests {
		got, ok := ParseImportance(tt.reply)
		assert.InDelta(t, tt.want, got, 1e-9, "reply %q", tt.reply)
		assert.Equal(t, tt.ok, ok, "reply %q", tt.reply)
	}
}

func TestSummaryContent(t *testing.T) {
	s := Summary{Canonical: "facts", Persona: "I remember"}
	assert.Equal(t, "facts\n\nI remember", s.Content())
}

func TestFormatTranscript(t *testing.T) {
	out := FormatTranscript([]model.Turn{
		{Role: "user", Content: "hi"},
		{Content: "no role"},
		{Role: "assistant", Content: "hello"},
	})
	assert.Equal(t, "user: hi\nuser: no role\nassistant: hello\n", out)
}

func TestNewFromConfig(t *testing.T) {
	s, err := NewFromConfig(config.SummarizerConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewFromConfig(config.SummarizerConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, s)

	_, err = NewFromConfig(config.SummarizerConfig{Provider: "other"})
	assert.Error(t, err)
}

// chatServer replies to each completion with the next canned answer.
func chatServer(t *testing.T, replies ...string) (*httptest.Server, *[]string) {
	t.Helper()
	var n atomic.Int32
	var mu sync.Mutex
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			mu.Lock()
			prompts = append(prompts, req.Messages[0].Content)
			mu.Unlock()
		}

		i := int(n.Add(1)) - 1
		if i >= len(replies) {
			http.Error(w, `{"error":{"message":"unexpected call"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "c",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": replies[i]}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func TestOpenAI_Summarize(t *testing.T) {
	srv, prompts := chatServer(t, "User likes green tea.", "I remember you like green tea.")
	s := NewOpenAI(OpenAIOptions{BaseURL: srv.URL, APIKey: "k", Model: "m"})

	sum, err := s.Summarize(context.Background(), []model.Turn{
		{Role: "user", Content: "I love green tea"},
		{Role: "assistant", Content: "Noted!"},
	})
	require.NoError(t, err)
	assert.Equal(t, "User likes green tea.", sum.Canonical)
	assert.Equal(t, "I remember you like green tea.", sum.Persona)

	require.Len(t, *prompts, 2)
	assert.Contains(t, (*prompts)[0], "user: I love green tea")
	assert.True(t, strings.Contains((*prompts)[1], "User likes green tea."), "persona prompt builds on the canonical digest")
}

func TestOpenAI_SummarizeFailure(t *testing.T) {
	srv, _ := chatServer(t, "only one reply")
	s := NewOpenAI(OpenAIOptions{BaseURL: srv.URL, APIKey: "k"})

	_, err := s.Summarize(context.Background(), []model.Turn{{Role: "user", Content: "x"}})
	assert.ErrorIs(t, err, model.ErrSummarization)

	_, err = s.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrSummarization)
}

func TestOpenAI_ScoreImportance(t *testing.T) {
	srv, _ := chatServer(t, "0.72", "not a number")
	s := NewOpenAI(OpenAIOptions{BaseURL: srv.URL, APIKey: "k"})

	score, err := s.ScoreImportance(context.Background(), "user is allergic to peanuts")
	require.NoError(t, err)
	assert.InDelta(t, 0.72, score, 1e-9)

	score, err = s.ScoreImportance(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultImportance, score)
}
