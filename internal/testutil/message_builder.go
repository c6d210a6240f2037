package testutil

import (
	"encoding/json"

	"github.com/hupe1980/toolmesh/core"
)

// MessageBuilder provides a fluent helper for constructing a well-formed
// message sequence in tests.
// Example:
//
//	msgs := NewMessageBuilder().
//		User("list files").
//		AssistantText("Looking.").ToolCall("c1", "list_directory", `{"path":"."}`).
//		ToolResult("c1", "list_directory", "a.txt", false).
//		AssistantText("One file.").
//		Build()
//
// Consecutive assistant parts (text and tool calls) and consecutive tool
// results are merged into one message each.
type MessageBuilder struct {
	msgs    []core.Message
	parts   []core.Part
	results []core.ToolResult
}

// NewMessageBuilder creates an empty builder.
func NewMessageBuilder() *MessageBuilder { return &MessageBuilder{} }

// User appends a user text message (chainable).
func (b *MessageBuilder) User(text string) *MessageBuilder {
	b.flush()
	b.msgs = append(b.msgs, core.NewUserMessage(text))

	return b
}

// AssistantText appends a text part to the current assistant turn (chainable).
func (b *MessageBuilder) AssistantText(text string) *MessageBuilder {
	b.flushResults()
	b.parts = append(b.parts, core.TextPart{Text: text})

	return b
}

// ToolCall appends a tool call with raw JSON input to the current assistant
// turn (chainable). An empty input becomes {}.
func (b *MessageBuilder) ToolCall(id, name, input string) *MessageBuilder {
	b.flushResults()

	if input == "" {
		input = "{}"
	}

	b.parts = append(b.parts, core.ToolCallPart{ToolCall: core.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}})

	return b
}

// ToolResult appends a result to the current tool_result message (chainable).
func (b *MessageBuilder) ToolResult(id, name, content string, isError bool) *MessageBuilder {
	b.flushParts()
	b.results = append(b.results, core.ToolResult{ToolCallID: id, Name: name, Content: content, IsError: isError})

	return b
}

// Build returns the accumulated messages.
func (b *MessageBuilder) Build() []core.Message {
	b.flush()

	out := make([]core.Message, len(b.msgs))
	copy(out, b.msgs)

	return out
}

func (b *MessageBuilder) flush() {
	b.flushParts()
	b.flushResults()
}

func (b *MessageBuilder) flushParts() {
	if len(b.parts) == 0 {
		return
	}

	b.msgs = append(b.msgs, core.NewAssistantMessage(b.parts...))
	b.parts = nil
}

func (b *MessageBuilder) flushResults() {
	if len(b.results) == 0 {
		return
	}

	b.msgs = append(b.msgs, core.NewToolResultMessage(b.results))
	b.results = nil
}
