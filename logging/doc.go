// Package logging provides the minimal logging interface used across toolmesh
// and adapters over log/slog.
//
// The Logger interface defines the four leveled methods (Debug, Info, Warn,
// Error) that the loop, executor, guardrails and HTTP server use. This package
// includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping *slog.Logger
//   - NewLogger building a json, text or colored console handler
//   - NoOpLogger for silent operation (tests, library embedding)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "console"})
//	orch := toolmesh.New(m, func(o *toolmesh.Options) { o.Logger = logger })
//
// Event names are dotted (loop.iteration.start, tool.call.end) so they can be
// filtered without parsing the message text.
package logging
