package provider

import (
	"encoding/json"

	"github.com/rhuss/toolloop/pkg/api"
)

// Capabilities declares what features the backend supports.
// Used for early request validation.
type Capabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int

	// SupportedModels lists models this provider can serve.
	// Empty means "ask ListModels()".
	SupportedModels []string
}

// Tool choice modes. Any other non-empty value names a single tool the
// model is forced to call.
const (
	ToolChoiceNone     = "none"
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
)

// Tool is a capability advertised to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// CompletionRequest is the backend-facing request. Build it with
// RequestBuilder or BuildRequest so that it is validated and owns its
// slices.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []api.Message `json:"messages"`
	Tools       []Tool        `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// Finish reasons reported by OpenAI-compatible backends.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
	FinishReasonLength    = "length"
)

// Completion is the single result shape of one provider turn, whether it
// came from Complete or from folding a stream.
type Completion struct {
	Content      string         `json:"content"`
	ToolCalls    []api.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        api.Usage      `json:"usage"`
	Model        string         `json:"model,omitempty"`
}

// HasToolCalls reports whether the model requested at least one invocation.
func (c *Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}

// ChunkType classifies a streaming event from the backend.
type ChunkType int

const (
	ChunkTextDelta     ChunkType = iota // Incremental text content
	ChunkToolCallDelta                  // Incremental tool call arguments
	ChunkToolCallDone                   // Tool call fully reassembled
	ChunkRestart                        // Request replayed, drop partial state
	ChunkDone                           // Stream finished
	ChunkError                          // Stream error, always last
)

// String returns a readable name for logs.
func (t ChunkType) String() string {
	switch t {
	case ChunkTextDelta:
		return "text_delta"
	case ChunkToolCallDelta:
		return "tool_call_delta"
	case ChunkToolCallDone:
		return "tool_call_done"
	case ChunkRestart:
		return "restart"
	case ChunkDone:
		return "done"
	case ChunkError:
		return "error"
	}
	return "unknown"
}

// Chunk is a single streaming event from the backend.
type Chunk struct {
	// Type indicates what kind of event this is.
	Type ChunkType

	// Delta contains incremental text or argument data.
	Delta string

	// ToolCallIndex identifies which tool call a delta relates to.
	ToolCallIndex int

	// ToolCall is populated on ChunkToolCallDone.
	ToolCall *api.ToolCall

	// FinishReason and Usage are populated on ChunkDone.
	FinishReason string
	Usage        *api.Usage

	// Model is the model that served the stream, when reported.
	Model string

	// Err is populated on ChunkError.
	Err error
}

// ModelInfo holds information about a model served by the provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
