package model

import (
	"context"
	"errors"

	"github.com/hupe1980/toolmesh/core"
)

// ErrMalformedToolCall is returned by Generate when the provider turn carries
// a tool call that cannot be decoded. The turn is unusable as a whole.
var ErrMalformedToolCall = errors.New("malformed tool call")

// StopReason is the normalized reason a model ended its turn.
type StopReason string

const (
	// StopEndTurn means the model finished its answer.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse means the model requests tool execution.
	StopToolUse StopReason = "tool_use"
	// StopMaxTokens means the output token budget was exhausted.
	StopMaxTokens StopReason = "max_tokens"
	// StopOther covers every unrecognized provider reason.
	StopOther StopReason = "other"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input for one iteration.
type Request struct {
	System   string           `json:"system"`
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// Response is one complete model turn.
type Response struct {
	ID      string       `json:"id"`
	Message core.Message `json:"message"`
	// StopReason is the normalized reason; RawStopReason keeps the provider value.
	StopReason    StopReason `json:"stop_reason"`
	RawStopReason string     `json:"raw_stop_reason,omitempty"`
	Usage         core.Usage `json:"usage"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the loop to drive generation.
// Transport and provider failures are returned as errors.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}
