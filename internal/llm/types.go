// Package llm relays chat completion requests to hosted and local model
// providers. The wire types follow the OpenAI chat completion shapes so
// frontends built against that API work against the gateway unchanged.
package llm

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrValidation indicates a malformed completion request. Handlers map
	// this to 400.
	ErrValidation = errors.New("invalid completion request")

	// ErrNoProvider indicates no completion provider is configured for the
	// request. Handlers map this to 503.
	ErrNoProvider = errors.New("no provider configured")

	// ErrUpstream indicates the provider call failed. Handlers map this
	// to 502.
	ErrUpstream = errors.New("upstream provider error")
)

// Message roles accepted on requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request limits.
const (
	MaxTokensLimit = 4000
	MaxTemperature = 2.0
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is an OpenAI-shaped chat completion request.
type Request struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Validate checks request shape before any provider call.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrValidation)
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: message %d has invalid role %q", ErrValidation, i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("%w: message %d has empty content", ErrValidation, i)
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > MaxTemperature) {
		return fmt.Errorf("%w: temperature must be between 0 and %.1f, got %.2f",
			ErrValidation, MaxTemperature, *r.Temperature)
	}
	if r.MaxTokens != nil && (*r.MaxTokens < 1 || *r.MaxTokens > MaxTokensLimit) {
		return fmt.Errorf("%w: max_tokens must be between 1 and %d, got %d",
			ErrValidation, MaxTokensLimit, *r.MaxTokens)
	}
	return nil
}

// Usage reports token consumption as returned by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is a completion alternative. The gateway always relays a single
// choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Response is an OpenAI-shaped chat completion response.
type Response struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Model    string   `json:"model"`
	Provider string   `json:"provider,omitempty"`
	Choices  []Choice `json:"choices"`
	Usage    Usage    `json:"usage"`
}

// Delta carries incremental content inside a streamed chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is a choice inside a streamed chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Chunk is an OpenAI-shaped streaming chunk.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ModelInfo describes a model advertised by a configured provider.
type ModelInfo struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// newCompletionID generates an OpenAI-style completion identifier.
func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// newChunk builds a content chunk for the given completion.
func newChunk(id, model, content string) Chunk {
	return Chunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Delta: Delta{Content: content}}},
	}
}

// newFinalChunk builds the terminating chunk carrying the finish reason.
func newFinalChunk(id, model, finishReason string) Chunk {
	return Chunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Delta: Delta{}, FinishReason: &finishReason}},
	}
}
