package storage

import "errors"

// Common storage errors
var (
	// ErrStateNotFound indicates that no state document has been persisted yet
	ErrStateNotFound = errors.New("state document not found")
)
