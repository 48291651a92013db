package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification indicates a row-lock or serialization
	// conflict; callers retry the whole operation, never resume it.
	ErrConcurrentModification = errors.New("concurrent modification, retry operation")
)
