package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
)

// DefaultMaxResultChars bounds a single tool result sent back to the model.
const DefaultMaxResultChars = 50_000

// ExecutorOptions configures the parallel executor.
type ExecutorOptions struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(calls))
	MaxResultChars int  // 0 => DefaultMaxResultChars, <0 => unlimited
	LogStartEvents bool // log a start line per tool call
}

// Executor dispatches tool calls through a registry.
type Executor struct {
	registry *tool.Registry
	opts     ExecutorOptions
}

// NewExecutor constructs an executor over registry.
func NewExecutor(registry *tool.Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{MaxResultChars: DefaultMaxResultChars}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxResultChars == 0 {
		opts.MaxResultChars = DefaultMaxResultChars
	}

	return &Executor{registry: registry, opts: opts}
}

// Execute runs a single tool call. It never fails: unknown tools, bad input,
// handler errors and panics all become error-flagged results.
func (e *Executor) Execute(runCtx *core.RunContext, call core.ToolCall) core.ToolResult {
	t, args, res, ok := e.prepare(call)
	if !ok {
		e.logFailure(runCtx, call, res)
		return res
	}

	return e.run(runCtx, call, t, args)
}

// ExecuteBatch runs every call of one assistant turn, concurrently where
// possible, and returns results in request order. Calls whose tools report the
// same PathKey run one after another in request order.
func (e *Executor) ExecuteBatch(runCtx *core.RunContext, calls []core.ToolCall) []core.ToolResult {
	n := len(calls)
	results := make([]core.ToolResult, n)

	if n == 0 {
		return results
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.Execute(runCtx, calls[0])
		return results
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	sem := make(chan struct{}, maxPar)
	lastForPath := make(map[string]chan struct{})

	var wg sync.WaitGroup

	batchStart := time.Now()

	for i, call := range calls {
		t, args, res, ok := e.prepare(call)
		if !ok {
			e.logFailure(runCtx, call, res)
			results[i] = res
			continue
		}

		if err := runCtx.Err(); err != nil {
			results[i] = errorResult(call, fmt.Sprintf("Error executing %s: %v", call.Name, err))
			continue
		}

		var wait chan struct{}

		done := make(chan struct{})

		if pk, ok := t.(tool.PathKeyer); ok {
			if key := pk.PathKey(args); key != "" {
				wait = lastForPath[key]
				lastForPath[key] = done
			}
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, call core.ToolCall, t tool.Tool, args map[string]any, wait, done chan struct{}) {
			defer wg.Done()
			defer close(done)
			defer func() { <-sem }()

			if wait != nil {
				<-wait
			}

			results[idx] = e.run(runCtx, call, t, args)
		}(i, call, t, args, wait, done)
	}

	wg.Wait()

	runCtx.LogDebug(
		"tool.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// prepare resolves the tool and decodes its input. When ok is false res
// holds the error result to report.
func (e *Executor) prepare(call core.ToolCall) (tool.Tool, map[string]any, core.ToolResult, bool) {
	t, err := e.registry.Get(call.Name)
	if err != nil {
		return nil, nil, errorResult(call, fmt.Sprintf("Unknown tool: %s", call.Name)), false
	}

	args := map[string]any{}
	if len(call.Input) > 0 && string(call.Input) != "null" {
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return nil, nil, errorResult(call, fmt.Sprintf("Error executing %s: invalid input: %v", call.Name, err)), false
		}
	}

	return t, args, core.ToolResult{}, true
}

func (e *Executor) run(runCtx *core.RunContext, call core.ToolCall, t tool.Tool, args map[string]any) core.ToolResult {
	toolCtx := core.NewToolContext(runCtx, call)

	if e.opts.LogStartEvents {
		runCtx.LogInfo("tool.call.dispatch", "tool", call.Name, "call_id", call.ID)
	}

	start := time.Now()

	var (
		output string
		err    error
	)

	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = &tool.ToolError{Tool: call.Name, Code: tool.CodePanic, Message: fmt.Sprintf("panic: %v", r)}
				runCtx.LogError("tool.call.panic", "tool", call.Name, "recover", r, "stack", string(debug.Stack()))
			}
		}()
		output, err = t.Call(toolCtx, args)
	}()

	dur := time.Since(start)

	if err != nil {
		res := errorResult(call, fmt.Sprintf("Error executing %s: %s", call.Name, errorMessage(err)))

		runCtx.LogWarn(
			"tool.call.executed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration_ms", dur.Milliseconds(),
			"error", res.Content,
		)

		return res
	}

	truncated := false
	if e.opts.MaxResultChars > 0 {
		output, truncated = truncateHeadTail(output, e.opts.MaxResultChars)
	}

	runCtx.LogInfo(
		"tool.call.executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"bytes", len(output),
		"truncated", truncated,
	)

	return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: output}
}

func (e *Executor) logFailure(runCtx *core.RunContext, call core.ToolCall, res core.ToolResult) {
	runCtx.LogWarn("tool.call.rejected", "tool", call.Name, "call_id", call.ID, "error", res.Content)
}

func errorResult(call core.ToolCall, content string) core.ToolResult {
	return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: content, IsError: true}
}

func errorMessage(err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}

	return err.Error()
}
