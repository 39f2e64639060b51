// Package openaicompat implements provider.Provider for any backend that
// speaks the OpenAI Chat Completions protocol (vLLM, LiteLLM, Ollama,
// llama.cpp server, OpenAI itself).
//
// It handles request serialization, response parsing, SSE chunk streaming
// with tool call argument reassembly, error mapping, and the retry policy:
// one retry with exponential backoff for network failures, and one replay
// of a stream that closes before its terminal frame.
package openaicompat
