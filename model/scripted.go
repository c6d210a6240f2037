package model

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hupe1980/toolmesh/core"
)

// ErrScriptExhausted is returned once a ScriptedModel has no turns left.
var ErrScriptExhausted = errors.New("scripted model: no responses left")

// Turn is one scripted model reply. When Err is set it is returned instead
// of a response.
type Turn struct {
	Response *Response
	Err      error
}

// ScriptedModel is an in-memory Model replaying a fixed sequence of turns.
// It records every request it receives and is safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	turns    []Turn
	next     int
	requests []Request
	// Repeat, when set, is returned for every call after the script ran out.
	repeat *Turn
}

// NewScriptedModel constructs a ScriptedModel replaying turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "test", SupportsTools: true},
		turns: turns,
	}
}

// RepeatForever makes the model answer with turn once the script is exhausted.
func (m *ScriptedModel) RepeatForever(turn Turn) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.repeat = &turn

	return m
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = append([]core.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)

	var turn Turn

	switch {
	case m.next < len(m.turns):
		turn = m.turns[m.next]
		m.next++
	case m.repeat != nil:
		turn = *m.repeat
	default:
		return nil, ErrScriptExhausted
	}

	if turn.Err != nil {
		return nil, turn.Err
	}

	resp := *turn.Response
	resp.Message.Role = core.RoleAssistant

	return &resp, nil
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Requests returns a copy of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Calls returns how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// TextTurn builds a turn answering with text and the given stop reason.
func TextTurn(text string, stop StopReason) Turn {
	return Turn{Response: &Response{
		Message:    core.NewAssistantMessage(core.TextPart{Text: text}),
		StopReason: stop,
		Usage:      core.Usage{InputTokens: 10, OutputTokens: 5},
	}}
}

// ToolCallTurn builds a tool_use turn requesting calls, with optional leading text.
func ToolCallTurn(text string, calls ...core.ToolCall) Turn {
	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}

	for _, c := range calls {
		parts = append(parts, core.ToolCallPart{ToolCall: c})
	}

	return Turn{Response: &Response{
		Message:    core.NewAssistantMessage(parts...),
		StopReason: StopToolUse,
		Usage:      core.Usage{InputTokens: 10, OutputTokens: 5},
	}}
}

// Call is a convenience constructor for a tool call with JSON-encoded input.
func Call(id, name string, input map[string]any) core.ToolCall {
	raw, err := json.Marshal(input)
	if err != nil {
		panic(err)
	}

	return core.ToolCall{ID: id, Name: name, Input: raw}
}
