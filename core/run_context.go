package core

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/toolmesh/logging"
)

// RunContext carries the per-invocation state of one orchestration run. It
// aggregates:
//   - The ambient cancellation Context
//   - The run identifier
//   - The Conversation transcript
//   - The iteration limiter
//   - Accumulated usage telemetry and final response text
//   - Backing stores tools may use (artifacts)
//
// A RunContext is created at the start of a run and discarded at its end;
// nothing is shared between runs.
type RunContext struct {
	Context       context.Context
	RunID         string
	Conversation  *Conversation
	Limiter       *IterationLimiter
	ArtifactStore ArtifactStore

	mu        sync.Mutex
	usage     Usage
	finalText strings.Builder

	*loggerAdapter
}

// NewRunContext constructs a RunContext seeded with the user's message.
func NewRunContext(
	ctx context.Context,
	runID string,
	userMessage string,
	maxIterations int,
	artifactStore ArtifactStore,
	logger logging.Logger,
) *RunContext {
	if runID == "" {
		runID = NewID()
	}

	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		Conversation:  NewConversation(userMessage),
		Limiter:       NewIterationLimiter(maxIterations),
		ArtifactStore: artifactStore,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Iteration returns the number of model calls made so far.
func (rc *RunContext) Iteration() int { return rc.Limiter.Count() }

// MaxIterations returns the iteration ceiling.
func (rc *RunContext) MaxIterations() int { return rc.Limiter.Max() }

// AddUsage accumulates usage telemetry.
func (rc *RunContext) AddUsage(u Usage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.usage = rc.usage.Add(u)
}

// Usage returns the accumulated usage.
func (rc *RunContext) Usage() Usage {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.usage
}

// AppendText appends model text to the final response being assembled.
func (rc *RunContext) AppendText(text string) {
	if text == "" {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.finalText.WriteString(text)
}

// FinalText returns the response text accumulated so far.
func (rc *RunContext) FinalText() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.finalText.String()
}

// SetFinalText replaces the accumulated response text.
func (rc *RunContext) SetFinalText(text string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.finalText.Reset()
	rc.finalText.WriteString(text)
}
