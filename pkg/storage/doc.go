// Package storage defines the conversation history store used to reload
// transcripts across runs and to record run outcomes, together with the
// sentinel errors and tenant context helpers shared by its implementations
// (memory, postgres, sqlite).
package storage
