// Package auth provides bearer and header API key authentication for the
// HTTP servers that ship with toolloop (the mock chat backend and the MCP
// weather server).
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default decides when
// all authenticators abstain.
//
// The middleware injects the identity, and its tenant for storage scoping,
// into the request context.
package auth
