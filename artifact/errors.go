package artifact

import "errors"

var (
	// ErrNotFound is returned when an artifact for the given run / id pair
	// does not exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")
	// ErrTooLarge is returned when a save would exceed the per-run quota.
	ErrTooLarge = errors.New("artifact quota exceeded")
)
