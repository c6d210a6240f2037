package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role identifies the author of a Message.
type Role string

const (
	// RoleUser marks caller supplied input and synthetic loop instructions.
	RoleUser Role = "user"
	// RoleAssistant marks model output (text and/or tool calls).
	RoleAssistant Role = "assistant"
	// RoleToolResult marks the batch of results answering an assistant turn.
	RoleToolResult Role = "tool_result"
)

// Message is one turn of the transcript. Ordering is significant; messages are
// treated as immutable once appended to a Conversation.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// NewAssistantMessage creates an assistant message from arbitrary parts.
func NewAssistantMessage(parts ...Part) Message {
	return Message{Role: RoleAssistant, Parts: parts}
}

// NewToolResultMessage packs results into a single tool_result message
// preserving the given order.
func NewToolResultMessage(results []ToolResult) Message {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, ToolResultPart{ToolResult: r})
	}
	return Message{Role: RoleToolResult, Parts: parts}
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool call requests contained in the message in their
// original order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.ToolCall)
		}
	}
	return calls
}

// ToolResults returns the tool results contained in the message in their
// original order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.ToolResult)
		}
	}
	return results
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if _, ok := p.(ToolCallPart); ok {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes a message whose parts were encoded by json.Marshal.
// The part type is recognized by its single top-level key.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  Role              `json:"role"`
		Parts []json.RawMessage `json:"parts"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parts := make([]Part, 0, len(raw.Parts))

	for i, rp := range raw.Parts {
		var shape map[string]json.RawMessage
		if err := json.Unmarshal(rp, &shape); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}

		var (
			part Part
			err  error
		)

		switch {
		case shape["tool_call"] != nil:
			var p ToolCallPart
			err = json.Unmarshal(rp, &p)
			part = p
		case shape["tool_result"] != nil:
			var p ToolResultPart
			err = json.Unmarshal(rp, &p)
			part = p
		case shape["text"] != nil:
			var p TextPart
			err = json.Unmarshal(rp, &p)
			part = p
		default:
			return fmt.Errorf("part %d: unknown part type", i)
		}

		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}

		parts = append(parts, part)
	}

	m.Role = raw.Role
	m.Parts = parts

	return nil
}

// NewID generates a new unique identifier (UUID v4).
func NewID() string { return uuid.NewString() }
