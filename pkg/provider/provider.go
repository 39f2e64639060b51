package provider

import "context"

// Provider abstracts an LLM inference backend. Adapters translate
// CompletionRequest into their own wire protocol.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-compat").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Complete performs one blocking request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Stream performs a streaming request. The returned channel receives
	// Chunk values in arrival order and is closed by the provider after a
	// ChunkDone or ChunkError chunk. A ChunkRestart chunk tells the consumer
	// to discard everything received so far because the request is being
	// replayed. Providers stop sending once ctx ends, so a consumer that
	// abandons the channel must cancel ctx.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan Chunk, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
