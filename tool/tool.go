// Package tool implements the tool declaration and registry subsystem: every
// capability offered to the model (file I/O, commands, search, memory,
// browser debugging, media, documents, tasks, secrets) is a Tool with a unique
// name, a description and a JSON-schema input contract that is validated
// before the handler runs.
package tool

import (
	"fmt"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
)

// Tool defines the uniform calling convention every handler is dispatched
// through.
//
// Tool implementations should:
//   - Provide clear, descriptive snake_case names
//   - Define a JSON schema (type object) for their input
//   - Return a plain string result or an error; never panic on bad input
//   - Be safe for concurrent use: sibling calls in one turn run in parallel
type Tool interface {
	// Name returns the unique dispatch key for this tool.
	Name() string

	// Description returns the natural language description shown to the model.
	Description() string

	// Parameters returns the JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (string, error)
}

// PathKeyer is implemented by tools that write to a filesystem path. The
// executor serializes calls within one batch that report the same key.
type PathKeyer interface {
	PathKey(args map[string]any) string
}

// Spec is the model-facing declaration of a tool.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// SpecOf returns the declaration of t.
func SpecOf(t Tool) Spec {
	return Spec{Name: t.Name(), Description: t.Description(), InputSchema: t.Parameters()}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodeGuardrail   = "GUARDRAIL"
	CodeInvalidJSON = "INVALID_INPUT"
	CodePanic       = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`                 // Underlying cause, if any
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying cause so callers can match guardrail sentinels.
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
