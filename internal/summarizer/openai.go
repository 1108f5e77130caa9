package summarizer

import (
	"context"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// OpenAIOptions configures the OpenAI-compatible summarizer.
type OpenAIOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	RPS     float64 // 0 disables throttling
}

// OpenAI summarizes through any OpenAI-compatible chat completion API.
type OpenAI struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAI creates a summarizer.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	s := &OpenAI{client: openai.NewClientWithConfig(cfg), model: opts.Model}
	if opts.RPS > 0 {
		burst := int(math.Ceil(opts.RPS))
		s.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return s
}

// Summarize produces the factual digest first, then the persona digest from it.
func (s *OpenAI) Summarize(ctx context.Context, turns []model.Turn) (Summary, error) {
	if len(turns) == 0 {
		return Summary{}, fmt.Errorf("%w: no turns to summarize", model.ErrSummarization)
	}
	canonical, err := s.complete(ctx, fmt.Sprintf(canonicalPrompt, FormatTranscript(turns)))
	if err != nil {
		return Summary{}, err
	}
	persona, err := s.complete(ctx, fmt.Sprintf(personaPrompt, canonical))
	if err != nil {
		return Summary{}, err
	}
	return Summary{Canonical: canonical, Persona: persona}, nil
}

// ScoreImportance asks the model for a score. A reply without a number yields the default.
func (s *OpenAI) ScoreImportance(ctx context.Context, content string) (float64, error) {
	reply, err := s.complete(ctx, fmt.Sprintf(importancePrompt, content))
	if err != nil {
		return model.DefaultImportance, err
	}
	score, _ := ParseImportance(reply)
	return score, nil
}

func (s *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limit: %w", model.ErrSummarization, err)
		}
	}
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: completion: %w", model.ErrSummarization, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion returned", model.ErrSummarization)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", model.ErrSummarization)
	}
	return text, nil
}
