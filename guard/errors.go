package guard

import "errors"

var (
	// ErrPathRequired is returned for an empty path argument.
	ErrPathRequired = errors.New("path is required")
	// ErrProtectedPath is returned when a write targets a protected prefix.
	ErrProtectedPath = errors.New("protected path violation")
	// ErrOutsideWritableRoot is returned when a write targets a path outside
	// the writable root.
	ErrOutsideWritableRoot = errors.New("path is outside the writable root")
	// ErrPathEscapesRoot is returned when a path resolves outside the project root.
	ErrPathEscapesRoot = errors.New("path escapes project root")

	// ErrEmptyCommand is returned for a blank command string.
	ErrEmptyCommand = errors.New("command is empty")
	// ErrCommandNotAllowed is returned when a command is not on the allow-list.
	ErrCommandNotAllowed = errors.New("command not allowed")
	// ErrDangerousCommand is returned when a command is on the deny-list or
	// matches a destructive pattern. Errors carrying it also match
	// ErrCommandNotAllowed.
	ErrDangerousCommand = errors.New("dangerous command")
	// ErrTimeout is returned when a command exceeds its time budget.
	ErrTimeout = errors.New("command timed out")
	// ErrOutputTooLarge is returned when a command exceeds its output budget.
	ErrOutputTooLarge = errors.New("command output too large")
)
