// Package flow drives an orchestration run: the Loop state machine alternates
// model calls with tool phases, and the Executor dispatches each requested
// tool call through the registry, normalizing every outcome into a
// core.ToolResult.
//
// A run is strictly sequential at the model level: one model call, then its
// tool phase, repeat. Sibling tool calls within one phase run concurrently and
// are joined before the next model call.
package flow

import "github.com/hupe1980/toolmesh/core"

// ToolExecutor runs one batch of tool calls requested in a single assistant
// turn. Implementations must:
//   - Return exactly one result per call, in request order
//   - Never panic (recover internally and report an error result)
//   - Respect runCtx cancellation
type ToolExecutor interface {
	ExecuteBatch(runCtx *core.RunContext, calls []core.ToolCall) []core.ToolResult
}
