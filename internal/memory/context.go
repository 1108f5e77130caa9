package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

// ContextItem is one packed piece of session context.
type ContextItem struct {
	Kind     string  `json:"kind"` // "long_term" or "turn"
	MemoryID int64   `json:"memory_id,omitempty"`
	Role     string  `json:"role,omitempty"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Excerpt  bool    `json:"excerpt,omitempty"`
}

// SessionContext is what a host injects into its next prompt.
type SessionContext struct {
	SessionID string        `json:"session_id"`
	Budget    int           `json:"budget"`
	Used      int           `json:"used"`
	Items     []ContextItem `json:"items"`
	Text      string        `json:"text"`
}

// Context assembles recent turns and relevant long-term memories for a session,
// greedily packed into the character budget. With an empty query the session's
// newest long-term memories are used instead of a search.
func (m *Manager) Context(ctx context.Context, sessionID, query string) (*SessionContext, error) {
	turns, ok := m.Buffer(sessionID)
	if !ok {
		rows, err := m.engine.store.ListShortTerm(ctx, sessionID, m.opts.MaxMessages)
		if err != nil {
			return nil, err
		}
		// Rows come newest first.
		for i := len(rows) - 1; i >= 0; i-- {
			turns = append(turns, model.Turn{Content: rows[i].Content, Timestamp: rows[i].CreatedAt, ShortTermID: rows[i].ID})
		}
	}

	var memories []model.LongTermMemory
	var err error
	if query != "" {
		memories, err = m.engine.Search(ctx, query, SearchOptions{K: m.opts.TopK})
	} else {
		memories, err = m.engine.List(ctx, store.ListParams{SessionID: sessionID, Limit: m.opts.TopK})
	}
	if err != nil {
		return nil, err
	}

	return packContext(sessionID, turns, memories, m.opts.ContextBudget, m.now()), nil
}

type contextCandidate struct {
	item  ContextItem
	score float64
}

func packContext(sessionID string, turns []model.Turn, memories []model.LongTermMemory, budget int, now time.Time) *SessionContext {
	var candidates []contextCandidate

	for i, mem := range memories {
		// Relevance: position in the ranked result list.
		relevance := 1.0 / float64(i+1)

		// Recency: exponential decay by age in days.
		age := now.Sub(mem.CreatedAt).Hours() / 24.0
		recency := math.Exp(-0.1 * age)

		accessFreq := 0.0
		if mem.AccessCount > 0 {
			accessFreq = math.Min(1, math.Log(float64(mem.AccessCount)+1)/math.Log(100))
		}

		score := relevance*0.4 + recency*0.2 + mem.Importance*0.2 + accessFreq*0.2
		content := mem.PersonaSummary
		if content == "" {
			content = mem.Content
		}
		candidates = append(candidates, contextCandidate{
			item:  ContextItem{Kind: "long_term", MemoryID: mem.ID, Content: content, Score: math.Round(score*100) / 100},
			score: score,
		})
	}

	// Turns outrank memories; the newest turn first.
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		candidates = append(candidates, contextCandidate{
			item:  ContextItem{Kind: "turn", Role: t.Role, Content: t.Content, Score: 1},
			score: 2 + float64(i)/float64(len(turns)+1),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	res := &SessionContext{SessionID: sessionID, Budget: budget, Items: []ContextItem{}}
	used := 0
	for _, c := range candidates {
		n := len(c.item.Content)
		if used+n <= budget {
			res.Items = append(res.Items, c.item)
			used += n
			continue
		}
		if remaining := budget - used; remaining >= 100 {
			item := c.item
			item.Content = truncateRunes(item.Content, remaining-3) + "..."
			item.Excerpt = true
			res.Items = append(res.Items, item)
			used += len(item.Content)
		}
		break
	}
	res.Used = used
	res.Text = renderContext(res.Items)
	return res
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// renderContext lists memories first, then the turns in chronological order.
func renderContext(items []ContextItem) string {
	var mems, turns []string
	for _, it := range items {
		if it.Kind == "long_term" {
			mems = append(mems, "- "+it.Content)
			continue
		}
		role := it.Role
		if role == "" {
			role = "user"
		}
		turns = append([]string{role + ": " + it.Content}, turns...)
	}

	var b strings.Builder
	if len(mems) > 0 {
		b.WriteString("Relevant memories:\n")
		b.WriteString(strings.Join(mems, "\n"))
		b.WriteString("\n")
	}
	if len(turns) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Recent conversation:\n")
		b.WriteString(strings.Join(turns, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
