package memory

import "errors"

var (
	// ErrNotFound is returned when a memory id does not exist.
	ErrNotFound = errors.New("memory not found")
	// ErrEmptyContent is returned by Store for blank content.
	ErrEmptyContent = errors.New("memory content is empty")
)
