// Package mcp exposes the tools of remote MCP (Model Context Protocol)
// servers as capability sets.
//
// Each configured server is connected once at startup. Its tools are listed
// a single time and become capabilities whose handlers forward the call to
// the server with tools/call. The server's input schema is advertised to the
// model verbatim. Connections use the official MCP Go SDK over
// streamable-http or SSE, optionally with static headers and OAuth 2.0
// client-credentials tokens.
package mcp
