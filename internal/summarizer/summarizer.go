// Package summarizer distills conversation turns into long-term memory text
// and scores how important a memory is.
package summarizer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rcliao/hybrid-memory/internal/config"
	"github.com/rcliao/hybrid-memory/internal/model"
)

// Summary is the two-part digest of a batch of turns.
type Summary struct {
	Canonical string `json:"canonical_summary"`
	Persona   string `json:"persona_summary"`
}

// Content joins both digests into the stored memory content.
func (s Summary) Content() string {
	return s.Canonical + "\n\n" + s.Persona
}

// Summarizer is the completion collaborator used during distillation.
type Summarizer interface {
	Summarize(ctx context.Context, turns []model.Turn) (Summary, error)
	ScoreImportance(ctx context.Context, content string) (float64, error)
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)

// ParseImportance takes the first number in a model reply, clamped to [0,1].
// ok is false when the reply holds no number.
func ParseImportance(reply string) (score float64, ok bool) {
	m := numberRe.FindString(reply)
	if m == "" {
		return model.DefaultImportance, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return model.DefaultImportance, false
	}
	return model.ClampImportance(v), true
}

// FormatTranscript renders turns as "role: content" lines.
func FormatTranscript(turns []model.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = "user"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// NewFromConfig builds the configured summarizer. It returns nil, nil when distillation is disabled.
func NewFromConfig(cfg config.SummarizerConfig) (Summarizer, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAI(OpenAIOptions{
			BaseURL: cfg.URL,
			APIKey:  key,
			Model:   cfg.Model,
			RPS:     cfg.RPS,
		}), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}
