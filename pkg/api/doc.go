// Package api defines the core data types for the toolloop orchestration engine.
//
// This package provides the conversation model shared by every other package:
// messages and tool call directives, conversations, token usage, the run state
// machine, the error taxonomy, and ID generation.
//
// Core types:
//   - [Message]: One entry of a conversation transcript (user, system, assistant, tool)
//   - [ToolCall]: A model-issued directive naming a capability and its raw arguments
//   - [Conversation]: An ordered, append-only transcript with an ID
//   - [RunState]: The orchestration loop state and its transition table
//   - [APIError]: Structured error with type, param, status, and message
//
// The package performs no I/O. JSON tags on the types describe the persisted
// form used by history stores; the provider wire format lives in the
// provider adapters.
package api
