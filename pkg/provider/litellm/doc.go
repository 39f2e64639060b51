// Package litellm implements the Provider interface for LiteLLM proxy servers.
// LiteLLM exposes an OpenAI-compatible Chat Completions API, so this adapter
// delegates all HTTP communication to openaicompat.Client and adds model
// name mapping for multi-provider routing.
package litellm
