package core

import "encoding/json"

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ToolCall is a tool invocation request emitted by the model. ID correlates
// the request to exactly one ToolResult.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"` // JSON object supplied by the model
}

// ToolCallPart wraps a ToolCall as a content part.
type ToolCallPart struct {
	ToolCall ToolCall `json:"tool_call"`
}

// isPart implements the Part interface for ToolCallPart.
func (ToolCallPart) isPart() {}

// ToolResult is the outcome of one tool call, reported back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`   // Matches the originating ToolCall ID
	Name       string `json:"name,omitempty"` // Tool name, informational
	Content    string `json:"content"`        // Handler output or error text
	IsError    bool   `json:"is_error"`       // Set when the call failed
}

// ToolResultPart wraps a ToolResult as a content part.
type ToolResultPart struct {
	ToolResult ToolResult `json:"tool_result"`
}

// isPart implements the Part interface for ToolResultPart.
func (ToolResultPart) isPart() {}
