// Package provider defines the contract between the orchestration loop and
// an LLM chat-completion backend.
//
// The package holds the protocol-agnostic request and response shapes
// ([CompletionRequest], [Completion], [Chunk]), the [RequestBuilder] that
// assembles and validates requests, and the [Accumulator] that folds a
// streamed chunk sequence into the same [Completion] a synchronous call
// returns. Wire encoding lives in the adapters (see openaicompat).
package provider
