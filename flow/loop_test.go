package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDirectoryTool(t *testing.T, dir string) tool.Tool {
	t.Helper()

	return tool.NewFunctionTool("list_directory", "List a directory",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		func(tc *core.ToolContext, args map[string]any) (string, error) {
			entries, err := os.ReadDir(filepath.Join(dir, args["path"].(string)))
			if err != nil {
				return "", err
			}

			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}

			return strings.Join(names, "\n"), nil
		})
}

// guardedWriteTool consults the path policy before touching the filesystem
// and records the order of both steps.
type guardedWriteTool struct {
	policy *guard.PathPolicy

	mu     sync.Mutex
	events []string
}

func (w *guardedWriteTool) Name() string        { return "write_file" }
func (w *guardedWriteTool) Description() string { return "Write a file" }
func (w *guardedWriteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (w *guardedWriteTool) record(ev string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
}

func (w *guardedWriteTool) Call(tc *core.ToolContext, args map[string]any) (string, error) {
	w.record("guard")

	abs, err := w.policy.CheckWrite(args["path"].(string))
	if err != nil {
		return "", tool.NewToolError(w.Name(), err.Error(), tool.CodeGuardrail)
	}

	w.record("write")

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(abs, []byte(args["content"].(string)), 0o644); err != nil {
		return "", err
	}

	return "ok", nil
}

func newLoopRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	r, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	return r
}

func assertCallsAnswered(t *testing.T, msgs []core.Message) {
	t.Helper()

	for i, m := range msgs {
		if !m.HasToolCalls() {
			continue
		}

		require.Less(t, i+1, len(msgs), "tool calls at %d left unanswered", i)

		next := msgs[i+1]
		require.Equal(t, core.RoleToolResult, next.Role)

		calls := m.ToolCalls()
		results := next.ToolResults()
		require.Len(t, results, len(calls))

		for j := range calls {
			assert.Equal(t, calls[j].ID, results[j].ToolCallID)
		}
	}
}

func TestLoop_PlainAnswer(t *testing.T) {
	m := model.NewScriptedModel(model.TextTurn("Hello there", model.StopEndTurn))
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello there", res.Text)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "end_turn", res.StopReason)
	assert.False(t, res.Truncated)
	assert.Equal(t, int64(10), res.Usage.InputTokens)
	assert.Greater(t, res.Cost, 0.0)
	assert.NotEmpty(t, res.RunID)
}

func TestLoop_ListDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644))

	m := model.NewScriptedModel(
		model.ToolCallTurn("Let me look.", model.Call("call_1", "list_directory", map[string]any{"path": "."})),
		model.TextTurn("There are two files: a.txt and b.txt.", model.StopEndTurn),
	)
	loop := NewLoop(m, newLoopRegistry(t, listDirectoryTool(t, dir)))

	res, err := loop.Orchestrate(context.Background(), "List files in the current directory")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, "There are two files: a.txt and b.txt.", res.Text)
	require.Len(t, res.Messages, 4)
	assertCallsAnswered(t, res.Messages)

	results := res.Messages[2].ToolResults()
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Equal(t, "a.txt\nb.txt", results[0].Content)

	// the second request carries the tool result back to the model
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "list_directory", reqs[0].Tools[0].Name)
}

func TestLoop_ProtectedWriteRejectedBeforeFilesystem(t *testing.T) {
	root := t.TempDir()
	policy, err := guard.NewPathPolicy(root)
	require.NoError(t, err)

	writer := &guardedWriteTool{policy: policy}

	m := model.NewScriptedModel(
		model.ToolCallTurn("", model.Call("call_1", "write_file", map[string]any{"path": "src/main.ts", "content": "x"})),
		model.TextTurn("I cannot write to src/, it is protected.", model.StopEndTurn),
	)
	loop := NewLoop(m, newLoopRegistry(t, writer))

	res, err := loop.Orchestrate(context.Background(), "Write a file to src/main.ts")
	require.NoError(t, err)

	results := res.Messages[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "protected")
	assert.Equal(t, []string{"guard"}, writer.events)

	_, statErr := os.Stat(filepath.Join(root, "src", "main.ts"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, "I cannot write to src/, it is protected.", res.Text)
}

func TestLoop_AllowedWriteChecksGuardFirst(t *testing.T) {
	root := t.TempDir()
	policy, err := guard.NewPathPolicy(root)
	require.NoError(t, err)

	writer := &guardedWriteTool{policy: policy}

	m := model.NewScriptedModel(
		model.ToolCallTurn("", model.Call("call_1", "write_file", map[string]any{"path": "workspace/notes.md", "content": "hi"})),
		model.TextTurn("Saved.", model.StopEndTurn),
	)
	loop := NewLoop(m, newLoopRegistry(t, writer))

	_, err = loop.Orchestrate(context.Background(), "save a note")
	require.NoError(t, err)

	assert.Equal(t, []string{"guard", "write"}, writer.events)

	data, err := os.ReadFile(filepath.Join(root, "workspace", "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestLoop_UnknownToolDoesNotAbort(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallTurn("", model.Call("call_1", "delete_everything", map[string]any{})),
		model.TextTurn("That tool does not exist.", model.StopEndTurn),
	)
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "wipe it")
	require.NoError(t, err)

	results := res.Messages[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "Unknown tool")
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, "That tool does not exist.", res.Text)
}

func TestLoop_IterationCeiling(t *testing.T) {
	dir := t.TempDir()

	m := model.NewScriptedModel().RepeatForever(
		model.ToolCallTurn("", model.Call("call_1", "list_directory", map[string]any{"path": "."})),
	)
	loop := NewLoop(m, newLoopRegistry(t, listDirectoryTool(t, dir)), func(o *LoopOptions) {
		o.MaxIterations = 3
	})

	res, err := loop.Orchestrate(context.Background(), "loop forever")
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, m.Calls())
	assert.True(t, strings.HasSuffix(res.Text, TruncationNotice))
	assertCallsAnswered(t, res.Messages)
}

func TestLoop_IterationsNeverExceedMax(t *testing.T) {
	for _, max := range []int{1, 2, 5} {
		m := model.NewScriptedModel().RepeatForever(
			model.ToolCallTurn("", model.Call("c", "missing", map[string]any{})),
		)
		loop := NewLoop(m, newLoopRegistry(t), func(o *LoopOptions) { o.MaxIterations = max })

		res, err := loop.Orchestrate(context.Background(), "q")
		require.NoError(t, err)
		assert.LessOrEqual(t, m.Calls(), max)
		assert.Equal(t, max, res.Iterations)
	}
}

func TestLoop_MaxTokensContinuation(t *testing.T) {
	m := model.NewScriptedModel(
		model.TextTurn("The first half, ", model.StopMaxTokens),
		model.TextTurn("and the second half.", model.StopEndTurn),
	)
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "write an essay")
	require.NoError(t, err)

	assert.Equal(t, "The first half, and the second half.", res.Text)
	assert.Equal(t, 2, res.Iterations)

	reqs := m.Requests()
	require.Len(t, reqs, 2)

	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleUser, last.Role)
	assert.Equal(t, ContinuePrompt, last.Text())
}

func TestLoop_EmptyMaxTokensTurnEndsRun(t *testing.T) {
	m := model.NewScriptedModel(
		model.TextTurn("", model.StopMaxTokens),
		model.TextTurn("never requested", model.StopEndTurn),
	)
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, UnexpectedStopMessage, res.Text)
	assert.Equal(t, "max_tokens", res.StopReason)
	assert.Equal(t, 1, m.Calls())
	require.Len(t, res.Messages, 1)
	assert.Equal(t, core.RoleUser, res.Messages[0].Role)
}

func TestLoop_EmptyMaxTokensAfterFragmentKeepsText(t *testing.T) {
	m := model.NewScriptedModel(
		model.TextTurn("Partial answer", model.StopMaxTokens),
		model.TextTurn("", model.StopMaxTokens),
	)
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, "Partial answer", res.Text)
	assert.Equal(t, 2, m.Calls())

	// user, assistant fragment, continue prompt
	require.Len(t, res.Messages, 3)
	assert.Equal(t, core.RoleUser, res.Messages[2].Role)
}

func TestLoop_MaxTokensWithToolCallsExecutesThem(t *testing.T) {
	dir := t.TempDir()

	turn := model.ToolCallTurn("", model.Call("call_1", "list_directory", map[string]any{"path": "."}))
	turn.Response.StopReason = model.StopMaxTokens

	m := model.NewScriptedModel(turn, model.TextTurn("done", model.StopEndTurn))
	loop := NewLoop(m, newLoopRegistry(t, listDirectoryTool(t, dir)))

	res, err := loop.Orchestrate(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, "done", res.Text)
	assertCallsAnswered(t, res.Messages)
	assert.Equal(t, core.RoleToolResult, res.Messages[2].Role)
}

func TestLoop_UnexpectedStopReason(t *testing.T) {
	turn := model.TextTurn("???", model.StopOther)
	turn.Response.RawStopReason = "refusal"

	m := model.NewScriptedModel(turn)
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, UnexpectedStopMessage, res.Text)
	assert.Equal(t, 1, m.Calls())
}

func TestLoop_DuplicateCallIDsEndRun(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallTurn("",
			model.Call("dup", "missing", map[string]any{}),
			model.Call("dup", "missing", map[string]any{}),
		),
	)
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, ProtocolErrorMessage, res.Text)
	assert.Equal(t, "protocol_error", res.StopReason)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoop_ToolUseWithoutCallsEndsRun(t *testing.T) {
	m := model.NewScriptedModel(model.TextTurn("hmm", model.StopToolUse))
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, ProtocolErrorMessage, res.Text)
}

func TestLoop_MalformedToolCallEndsRun(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Err: fmt.Errorf("tool_use block t1: %w", model.ErrMalformedToolCall)})
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, ProtocolErrorMessage, res.Text)
	assert.Equal(t, "protocol_error", res.StopReason)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoop_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("rate limited")
	m := model.NewScriptedModel(model.Turn{Err: boom})
	loop := NewLoop(m, newLoopRegistry(t))

	res, err := loop.Orchestrate(context.Background(), "q")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestLoop_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := model.NewScriptedModel(model.TextTurn("never", model.StopEndTurn))
	loop := NewLoop(m, newLoopRegistry(t))

	_, err := loop.Orchestrate(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Calls())
}

func TestLoop_SystemPromptAndRunID(t *testing.T) {
	m := model.NewScriptedModel(model.TextTurn("ok", model.StopEndTurn))
	loop := NewLoop(m, newLoopRegistry(t), func(o *LoopOptions) {
		o.SystemPrompt = "You are helpful."
	})

	res, err := loop.OrchestrateRun(context.Background(), "run-42", "q")
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)
	assert.Equal(t, "You are helpful.", m.Requests()[0].System)
}

func TestLoop_ConcurrentRunsAreIsolated(t *testing.T) {
	m := model.NewScriptedModel().RepeatForever(model.TextTurn("same", model.StopEndTurn))
	loop := NewLoop(m, newLoopRegistry(t))

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			res, err := loop.Orchestrate(context.Background(), "q")
			assert.NoError(t, err)
			assert.Equal(t, "same", res.Text)
			assert.Len(t, res.Messages, 2)
		}()
	}

	wg.Wait()
}
