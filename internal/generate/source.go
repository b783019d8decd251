// Package generate produces podcast transcripts from a concept.
//
// A [Source] is one way of obtaining a transcript: the backend over plain
// HTTP, the backend over the realtime WebSocket channel, or a locally
// configured language model. [Group] tries sources in order behind
// per-source circuit breakers and reports which one answered.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/pkg/podcast"
	"github.com/MrWong99/podwright/pkg/provider/llm"
)

// ErrEmptyTranscript is returned when a source answers with no text.
var ErrEmptyTranscript = errors.New("generate: empty transcript")

// Source produces a transcript for a concept.
type Source interface {
	Generate(ctx context.Context, c podcast.Concept) (string, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context, c podcast.Concept) (string, error)

// Generate calls f.
func (f SourceFunc) Generate(ctx context.Context, c podcast.Concept) (string, error) {
	return f(ctx, c)
}

// HTTPGenerator is implemented by *backend.Client.
type HTTPGenerator interface {
	GenerateTranscript(ctx context.Context, c podcast.Concept) (string, error)
}

// BackendSource asks the backend over POST /api/generate-transcript.
type BackendSource struct {
	Client HTTPGenerator
}

// Generate implements [Source].
func (s BackendSource) Generate(ctx context.Context, c podcast.Concept) (string, error) {
	text, err := s.Client.GenerateTranscript(ctx, c)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// RealtimeChannel is implemented by *realtime.Client.
type RealtimeChannel interface {
	Connected() bool
	Connect(ctx context.Context) error
	AwaitTranscript(ctx context.Context, c podcast.Concept) (string, error)
}

// RealtimeSource asks the backend over the WebSocket channel, connecting
// first if the channel is down.
type RealtimeSource struct {
	Channel RealtimeChannel
}

// Generate implements [Source].
func (s RealtimeSource) Generate(ctx context.Context, c podcast.Concept) (string, error) {
	if !s.Channel.Connected() {
		if err := s.Channel.Connect(ctx); err != nil {
			return "", err
		}
	}
	text, err := s.Channel.AwaitTranscript(ctx, c)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// DefaultMaxTokens matches the backend generator's output budget.
const DefaultMaxTokens = 8192

// LLMSource writes the transcript with a local language model using the
// backend's prompt, then validates it the way the backend does.
type LLMSource struct {
	provider    llm.Provider
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

// LLMOption configures an [LLMSource].
type LLMOption func(*LLMSource)

// WithMaxTokens overrides [DefaultMaxTokens]. The value is clamped to the
// model's output limit.
func WithMaxTokens(n int) LLMOption {
	return func(s *LLMSource) { s.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) LLMOption {
	return func(s *LLMSource) { s.temperature = t }
}

// WithLLMLogger sets the logger.
func WithLLMLogger(l *slog.Logger) LLMOption {
	return func(s *LLMSource) { s.log = l }
}

// NewLLMSource creates an LLMSource backed by p.
func NewLLMSource(p llm.Provider, opts ...LLMOption) *LLMSource {
	s := &LLMSource{provider: p, maxTokens: DefaultMaxTokens}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Generate implements [Source].
func (s *LLMSource) Generate(ctx context.Context, c podcast.Concept) (string, error) {
	if len(c.CharacterNames) != c.NumSpeakers {
		return "", fmt.Errorf("generate: number of speakers must match number of character names")
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: Prompt(c)}},
		MaxTokens:   llm.ClampMaxTokens(s.provider, s.maxTokens),
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate: llm: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyTranscript
	}
	if resp.FinishReason == llm.FinishLength {
		s.log.Warn("llm transcript hit the token limit and may be truncated",
			"max_tokens", s.maxTokens, "completion_tokens", resp.Usage.CompletionTokens)
	}

	text := cleanOutput(resp.Content)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	if err := transcript.Validate(text, c.CharacterNames); err != nil {
		return "", fmt.Errorf("generate: llm transcript rejected: %w", err)
	}
	return text, nil
}

// cleanOutput removes a surrounding Markdown code fence and blank lines
// between turns.
func cleanOutput(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
