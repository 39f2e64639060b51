package litellm

import "github.com/rhuss/toolloop/pkg/provider/openaicompat"

// Config holds configuration for the LiteLLM provider adapter.
type Config struct {
	// Transport settings shared with every OpenAI-compatible backend.
	openaicompat.Config

	// ModelMapping maps requested model names to LiteLLM model identifiers.
	// For example: {"gpt-4": "openai/gpt-4", "qwen": "ollama/qwen2.5"}.
	// If a model is not in the map, it is passed through unchanged.
	ModelMapping map[string]string
}
