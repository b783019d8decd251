// Package llm defines the Provider interface for the language models that
// can write a transcript locally when the backend's generator is unavailable.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Gemini,
// a local Ollama or llama.cpp server, ...) behind a single blocking
// completion call. Transcripts are produced in one shot; nothing in
// Podwright consumes partial output, so there is no streaming variant.
//
// Implementations must be safe for concurrent use and must return promptly
// when the supplied context is cancelled.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons reported in [CompletionResponse.FinishReason].
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Message is one entry of the prompt conversation.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text of the message.
	Content string
}

// Usage holds token accounting returned by the model API. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is usually from
	// the user role.
	Messages []Message

	// SystemPrompt is an optional instruction placed before Messages.
	// Providers without a dedicated system field prepend it as a
	// system-role message.
	SystemPrompt string

	// Temperature controls randomness in [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// FinishReason is why generation stopped. [FinishLength] means the reply
	// was cut off at MaxTokens.
	FinishReason string

	// Usage is the token accounting for this request.
	Usage Usage
}

// Capabilities describes static limits of the configured model.
type Capabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens is the most the model can generate in one completion.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response. It
	// returns an error if the request fails, the model returns no choices,
	// or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns limits of the underlying model. The result is
	// constant for the lifetime of the Provider.
	Capabilities() Capabilities
}

// ClampMaxTokens returns want limited to the model's output budget. A zero
// MaxOutputTokens means unknown and leaves want unchanged.
func ClampMaxTokens(p Provider, want int) int {
	if limit := p.Capabilities().MaxOutputTokens; limit > 0 && want > limit {
		return limit
	}
	return want
}
