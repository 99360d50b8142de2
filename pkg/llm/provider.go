// Package llm defines the Provider interface for answer-generation backends.
//
// A provider wraps a remote API (Anthropic) or a local inference server
// (Ollama) behind a uniform completion contract, selected once from
// configuration. The assistant streams tokens from StreamCompletion so
// answers render incrementally while the model is still generating.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Message is one turn of conversation history.
type Message struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce an answer.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is the
	// question driving the response.
	Messages []Message

	// SystemPrompt is a high-priority instruction injected before the
	// conversation history.
	SystemPrompt string

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. May be empty on the final chunk.
	// On an "error" chunk it carries the backend's error message, not answer
	// content.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or "error".
	// Empty on non-final chunks.
	FinishReason string
}

// Drain reads from ch until the channel is closed, discarding all chunks.
// Use this to release the producing goroutine when abandoning a stream
// mid-generation.
func Drain(ch <-chan Chunk) {
	for range ch {
	}
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the answer.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any answer-generation backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled.
	//
	// Callers must drain the channel. Errors after the stream opens surface
	// as a Chunk with FinishReason "error"; the error return is non-nil only
	// for failures that prevent the stream from starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response. A convenience for
	// callers that do not need incremental output.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns a short backend label for logging and metrics
	// (e.g., "anthropic", "ollama").
	Name() string
}
