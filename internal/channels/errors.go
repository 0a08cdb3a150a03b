package channels

import "errors"

// Store errors.
var (
	ErrNotFound = errors.New("channel record not found")
)

// Handler errors.
var (
	ErrSessionRequired = errors.New("session parameter is required")
)
