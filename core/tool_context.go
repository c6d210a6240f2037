package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/toolmesh/logging"
)

// ToolContext provides a constrained surface for tool handlers invoked by the
// executor. It exposes the cancellation context, correlation identifiers, a
// logger and the run-scoped artifact store, without giving handlers access to
// the transcript itself.
type ToolContext struct {
	ctx        context.Context
	runID      string
	toolCallID string
	toolName   string
	artifacts  ArtifactStore

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext and a
// single tool call.
func NewToolContext(runCtx *RunContext, call ToolCall) *ToolContext {
	return &ToolContext{
		ctx:           runCtx.Context,
		runID:         runCtx.RunID,
		toolCallID:    call.ID,
		toolName:      call.Name,
		artifacts:     runCtx.ArtifactStore,
		loggerAdapter: newLoggerAdapter(runCtx.Logger()),
	}
}

// NewStandaloneToolContext builds a ToolContext outside of a run, useful for
// tests and direct tool invocation.
func NewStandaloneToolContext(ctx context.Context, toolCallID string, logger logging.Logger) *ToolContext {
	return &ToolContext{
		ctx:           ctx,
		runID:         "standalone",
		toolCallID:    toolCallID,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// WithContext returns a shallow copy bound to ctx.
func (tc *ToolContext) WithContext(ctx context.Context) *ToolContext {
	c := *tc
	c.ctx = ctx
	return &c
}

// WithArtifactStore returns a shallow copy using store for artifacts.
func (tc *ToolContext) WithArtifactStore(store ArtifactStore) *ToolContext {
	c := *tc
	c.artifacts = store
	return &c
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run the tool call belongs to.
func (tc *ToolContext) RunID() string { return tc.runID }

// ToolCallID returns the id of the tool call being served.
func (tc *ToolContext) ToolCallID() string { return tc.toolCallID }

// ToolName returns the name of the tool being invoked.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// SaveArtifact persists bytes under the run scope and returns a reference
// string suitable for tool output.
func (tc *ToolContext) SaveArtifact(id string, data []byte) (string, error) {
	if tc.artifacts == nil {
		return "", fmt.Errorf("artifact %w", ErrStoreNotConfigured)
	}

	if err := tc.artifacts.Save(tc.runID, id, data); err != nil {
		return "", err
	}

	return fmt.Sprintf("artifact://%s/%s", tc.runID, id), nil
}

// LoadArtifact retrieves an artifact saved during this run.
func (tc *ToolContext) LoadArtifact(id string) ([]byte, error) {
	if tc.artifacts == nil {
		return nil, fmt.Errorf("artifact %w", ErrStoreNotConfigured)
	}

	return tc.artifacts.Get(tc.runID, id)
}
