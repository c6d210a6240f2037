// Package core provides the foundational domain types shared by every layer
// of toolmesh:
//
//   - Messages and their polymorphic Parts (text, tool calls, tool results)
//   - Conversation, the append-only transcript threaded through one run
//   - RunContext, the per-invocation execution scope (iteration counter,
//     usage telemetry, final text, logger)
//   - ToolContext, the constrained surface handed to tool handlers
//   - Store interfaces (artifacts, memory) implemented by sibling packages
//
// The package keeps implementation concerns (model providers, tool handlers,
// persistence) out of scope and exposes small types so the orchestration loop
// and its collaborators stay decoupled.
package core
