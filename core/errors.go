package core

import "errors"

var (
	// ErrProtocolViolation is returned when an append would break the
	// user/assistant/tool_result alternation or the call/result pairing.
	ErrProtocolViolation = errors.New("conversation protocol violation")

	// ErrIterationLimit is returned by IterationLimiter once the ceiling is hit.
	ErrIterationLimit = errors.New("iteration limit reached")

	// ErrStoreNotConfigured is returned by ToolContext helpers whose backing
	// store was not wired.
	ErrStoreNotConfigured = errors.New("store not configured")
)
