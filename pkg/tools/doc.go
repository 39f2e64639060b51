// Package tools defines capabilities (locally callable tools), the sets
// that contribute them, and the Dispatcher that executes model-issued tool
// calls against a Resolver.
//
// A Capability pairs a Descriptor (name, description, ordered parameters)
// with a Handler. Sets group capabilities: a StaticSet is declared in code,
// other sets discover theirs at startup (see the mcp package). The registry
// package turns sets into an immutable Resolver.
//
// The Dispatcher never fails a call with an error return. Unknown tools,
// unparseable arguments, handler errors and panics all become ToolResults
// with IsError set, so the model sees a diagnostic and can correct itself.
package tools
