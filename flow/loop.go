package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/tool"
)

const (
	// DefaultMaxIterations is the iteration ceiling used when none is configured.
	DefaultMaxIterations = 20

	// ContinuePrompt is sent when the model ran out of output tokens mid-text.
	ContinuePrompt = "Please continue where you left off."

	// UnexpectedStopMessage is returned when the model ends its turn for an
	// unrecognized reason.
	UnexpectedStopMessage = "I encountered an unexpected response format. Please try again."

	// ProtocolErrorMessage is returned when the model's turn cannot be
	// recorded (malformed or duplicated tool calls).
	ProtocolErrorMessage = "I received a malformed tool request and had to stop. Please try again."

	// TruncationNotice is appended when the iteration ceiling is reached.
	TruncationNotice = "\n\nNote: Operation completed but may be incomplete due to complexity. You may need to continue manually."
)

// LoopOptions configures a Loop.
type LoopOptions struct {
	MaxIterations int
	SystemPrompt  string
	Pricing       core.Pricing
	Executor      ToolExecutor
	ArtifactStore core.ArtifactStore
	Logger        logging.Logger
}

// Result is the outcome of one orchestration run.
type Result struct {
	RunID      string         `json:"run_id"`
	Text       string         `json:"text"`
	Iterations int            `json:"iterations"`
	Usage      core.Usage     `json:"usage"`
	Cost       float64        `json:"cost"`
	Truncated  bool           `json:"truncated"`
	StopReason string         `json:"stop_reason"`
	Messages   []core.Message `json:"-"`
	Duration   time.Duration  `json:"duration"`
}

// Loop is the orchestration state machine. A Loop holds no per-run state and
// may serve concurrent runs.
type Loop struct {
	model    model.Model
	registry *tool.Registry
	opts     LoopOptions
}

// NewLoop creates a loop driving m with the tools in registry.
func NewLoop(m model.Model, registry *tool.Registry, optFns ...func(o *LoopOptions)) *Loop {
	opts := LoopOptions{
		MaxIterations: DefaultMaxIterations,
		Pricing:       core.DefaultPricing,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	if opts.Executor == nil {
		opts.Executor = NewExecutor(registry)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Loop{model: m, registry: registry, opts: opts}
}

// MaxIterations returns the configured ceiling.
func (l *Loop) MaxIterations() int { return l.opts.MaxIterations }

// Orchestrate runs the conversation seeded with userMessage until the model
// finishes, a protocol error ends the run, or the iteration ceiling is
// reached. Only provider failures and cancellation are returned as errors.
func (l *Loop) Orchestrate(ctx context.Context, userMessage string) (*Result, error) {
	return l.OrchestrateRun(ctx, "", userMessage)
}

// OrchestrateRun is Orchestrate with a caller supplied run id.
func (l *Loop) OrchestrateRun(ctx context.Context, runID, userMessage string) (*Result, error) {
	runCtx := core.NewRunContext(ctx, runID, userMessage, l.opts.MaxIterations, l.opts.ArtifactStore, l.opts.Logger)
	start := time.Now()

	tools := l.toolDefinitions()

	runCtx.LogInfo("loop.run.start", "run_id", runCtx.RunID, "max_iterations", runCtx.MaxIterations(), "tools", len(tools))

	stop, truncated, err := l.drive(runCtx, tools)
	if err != nil {
		runCtx.LogError("loop.run.failed", "run_id", runCtx.RunID, "iteration", runCtx.Iteration(), "error", err.Error())
		return nil, err
	}

	if truncated {
		runCtx.LogWarn("loop.ceiling.reached", "run_id", runCtx.RunID, "max_iterations", runCtx.MaxIterations())
		runCtx.SetFinalText(runCtx.FinalText() + TruncationNotice)
	}

	usage := runCtx.Usage()
	res := &Result{
		RunID:      runCtx.RunID,
		Text:       runCtx.FinalText(),
		Iterations: runCtx.Iteration(),
		Usage:      usage,
		Cost:       l.opts.Pricing.Cost(usage),
		Truncated:  truncated,
		StopReason: stop,
		Messages:   runCtx.Conversation.Messages(),
		Duration:   time.Since(start),
	}

	runCtx.LogInfo(
		"loop.run.end",
		"run_id", res.RunID,
		"iterations", res.Iterations,
		"stop_reason", res.StopReason,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cached_tokens", usage.CachedTokens,
		"cost_usd", fmt.Sprintf("%.4f", res.Cost),
		"duration_ms", res.Duration.Milliseconds(),
	)

	return res, nil
}

// drive runs iterations until a terminal transition. It reports the last stop
// reason and whether the ceiling cut the run short.
func (l *Loop) drive(runCtx *core.RunContext, tools []model.ToolDefinition) (string, bool, error) {
	for {
		if err := runCtx.Err(); err != nil {
			return "", false, err
		}

		if err := runCtx.Limiter.Increment(); err != nil {
			return "", true, nil
		}

		iteration := runCtx.Iteration()
		runCtx.LogDebug("loop.iteration.start", "run_id", runCtx.RunID, "iteration", iteration)

		resp, err := l.model.Generate(runCtx.Context, model.Request{
			System:   l.opts.SystemPrompt,
			Messages: runCtx.Conversation.Messages(),
			Tools:    tools,
		})
		if err != nil {
			if errors.Is(err, model.ErrMalformedToolCall) {
				return protocolStop(runCtx, iteration, err), false, nil
			}

			return "", false, fmt.Errorf("model call (iteration %d): %w", iteration, err)
		}

		runCtx.AddUsage(resp.Usage)

		calls := resp.Message.ToolCalls()

		runCtx.LogInfo(
			"loop.model.response",
			"run_id", runCtx.RunID,
			"iteration", iteration,
			"stop_reason", string(resp.StopReason),
			"tool_calls", len(calls),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"cached_tokens", resp.Usage.CachedTokens,
			"cache_creation_tokens", resp.Usage.CacheCreationTokens,
			"cost_usd", fmt.Sprintf("%.4f", l.opts.Pricing.Cost(resp.Usage)),
		)

		switch {
		case resp.StopReason == model.StopEndTurn:
			if err := runCtx.Conversation.AppendAssistant(resp.Message); err != nil {
				runCtx.LogWarn("loop.protocol.violation", "run_id", runCtx.RunID, "error", err.Error())
			}

			runCtx.AppendText(resp.Message.Text())

			return string(resp.StopReason), false, nil

		case resp.StopReason == model.StopToolUse, resp.StopReason == model.StopMaxTokens && len(calls) > 0:
			if err := l.toolPhase(runCtx, resp.Message, calls); err != nil {
				if errors.Is(err, core.ErrProtocolViolation) {
					return protocolStop(runCtx, iteration, err), false, nil
				}

				return "", false, err
			}

		case resp.StopReason == model.StopMaxTokens:
			partial := resp.Message.Text()
			if partial == "" {
				// an empty fragment ends the run
				runCtx.LogWarn("loop.continuation.empty", "run_id", runCtx.RunID, "iteration", iteration)

				if runCtx.FinalText() == "" {
					runCtx.SetFinalText(UnexpectedStopMessage)
				}

				return string(resp.StopReason), false, nil
			}

			runCtx.AppendText(partial)

			if err := runCtx.Conversation.AppendAssistant(resp.Message); err != nil {
				return "", false, err
			}

			if err := runCtx.Conversation.AppendUser(ContinuePrompt); err != nil {
				return "", false, err
			}

			runCtx.LogDebug("loop.continuation", "run_id", runCtx.RunID, "iteration", iteration, "partial_chars", len(partial))

		default:
			runCtx.LogWarn("loop.stop.unexpected", "run_id", runCtx.RunID, "iteration", iteration, "stop_reason", resp.RawStopReason)
			runCtx.SetFinalText(UnexpectedStopMessage)

			return string(resp.StopReason), false, nil
		}
	}
}

// protocolStop ends the run on a turn that cannot be recorded.
func protocolStop(runCtx *core.RunContext, iteration int, err error) string {
	runCtx.LogWarn("loop.protocol.violation", "run_id", runCtx.RunID, "iteration", iteration, "error", err.Error())
	runCtx.SetFinalText(ProtocolErrorMessage)

	return "protocol_error"
}

// toolPhase records the assistant turn, executes every requested call and
// records one tool_result message answering them in request order.
func (l *Loop) toolPhase(runCtx *core.RunContext, msg core.Message, calls []core.ToolCall) error {
	if err := validateCalls(calls); err != nil {
		return err
	}

	if err := runCtx.Conversation.AppendAssistant(msg); err != nil {
		return err
	}

	runCtx.LogDebug("loop.tools.dispatch", "run_id", runCtx.RunID, "count", len(calls), "tools", callNames(calls))

	results := l.opts.Executor.ExecuteBatch(runCtx, calls)

	if err := runCtx.Conversation.AppendToolResults(results); err != nil {
		return fmt.Errorf("record tool results: %w", err)
	}

	// a cancelled batch still answered every call; stop before the next model call
	return runCtx.Err()
}

func validateCalls(calls []core.ToolCall) error {
	if len(calls) == 0 {
		return fmt.Errorf("%w: tool_use turn without tool calls", core.ErrProtocolViolation)
	}

	seen := make(map[string]struct{}, len(calls))
	for i, c := range calls {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("%w: tool call %d lacks an id or name", core.ErrProtocolViolation, i)
		}

		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate tool call id %q", core.ErrProtocolViolation, c.ID)
		}

		seen[c.ID] = struct{}{}
	}

	return nil
}

func (l *Loop) toolDefinitions() []model.ToolDefinition {
	if l.registry == nil {
		return nil
	}

	specs := l.registry.List()

	defs := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, model.ToolDefinition{Name: s.Name, Description: s.Description, Parameters: s.InputSchema})
	}

	return defs
}

func callNames(calls []core.ToolCall) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}

	return strings.Join(names, ",")
}
