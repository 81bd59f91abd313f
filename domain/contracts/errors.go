package contracts

import "errors"

// Common errors for domain contracts
var (
	// ErrRunNotFound occurs when no run is recorded for the requested ID or state key
	ErrRunNotFound = errors.New("extraction run not found")
)
