package testutil

import (
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/flow"
)

// ResultBuilder helps construct run results with fluent chaining for tests.
// Example:
//
//	res := NewResultBuilder("run-1").Text("done").Messages(msgs...).Build()
type ResultBuilder struct {
	res flow.Result
}

// NewResultBuilder creates a builder for a finished run with the given id.
// Iterations defaults to 1 and the stop reason to end_turn.
func NewResultBuilder(runID string) *ResultBuilder {
	return &ResultBuilder{res: flow.Result{RunID: runID, Iterations: 1, StopReason: "end_turn"}}
}

// Text sets the final text (chainable).
func (b *ResultBuilder) Text(t string) *ResultBuilder { b.res.Text = t; return b }

// Iterations sets the iteration count (chainable).
func (b *ResultBuilder) Iterations(n int) *ResultBuilder { b.res.Iterations = n; return b }

// Usage sets the token usage and derives the cost from the default pricing (chainable).
func (b *ResultBuilder) Usage(u core.Usage) *ResultBuilder {
	b.res.Usage = u
	b.res.Cost = core.DefaultPricing.Cost(u)

	return b
}

// Truncated marks the run as cut off by the iteration ceiling (chainable).
func (b *ResultBuilder) Truncated() *ResultBuilder { b.res.Truncated = true; return b }

// Messages appends messages to the transcript (chainable).
func (b *ResultBuilder) Messages(msgs ...core.Message) *ResultBuilder {
	b.res.Messages = append(b.res.Messages, msgs...)
	return b
}

// Build returns a copy of the accumulated result.
func (b *ResultBuilder) Build() *flow.Result {
	res := b.res
	res.Messages = append([]core.Message(nil), b.res.Messages...)

	return &res
}
