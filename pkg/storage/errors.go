package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a conversation or run does not exist,
	// or belongs to another tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a run with the given ID already exists.
	ErrConflict = errors.New("already exists")
)
