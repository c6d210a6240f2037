package guard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/logging"
)

const (
	// DefaultCommandTimeout bounds a single command.
	DefaultCommandTimeout = 30 * time.Second
	// DefaultMaxOutputBytes caps combined stdout and stderr.
	DefaultMaxOutputBytes = 10 << 20
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Timeout        time.Duration
	MaxOutputBytes int
	// Shell is the interpreter invocation; the command is appended as the
	// last argument.
	Shell  []string
	Env    []string
	Logger logging.Logger
}

// Output is the captured result of a command.
type Output struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Runner executes policy-checked commands in a fixed working directory.
type Runner struct {
	policy *CommandPolicy
	dir    string
	opts   RunnerOptions
}

// NewRunner creates a runner confined to dir.
func NewRunner(policy *CommandPolicy, dir string, optFns ...func(o *RunnerOptions)) *Runner {
	opts := RunnerOptions{
		Timeout:        DefaultCommandTimeout,
		MaxOutputBytes: DefaultMaxOutputBytes,
		Shell:          []string{"sh", "-c"},
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCommandTimeout
	}

	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = DefaultMaxOutputBytes
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{policy: policy, dir: dir, opts: opts}
}

// Dir returns the working directory commands run in.
func (r *Runner) Dir() string { return r.dir }

// Policy returns the command policy enforced by the runner.
func (r *Runner) Policy() *CommandPolicy { return r.policy }

// Run checks command against the policy and executes it. A non-zero exit
// status is returned as an error alongside the captured output.
func (r *Runner) Run(ctx context.Context, command string) (*Output, error) {
	return r.RunIn(ctx, "", command)
}

// RunIn is Run with a working directory relative to the runner's directory.
// sub must stay inside it.
func (r *Runner) RunIn(ctx context.Context, sub, command string) (*Output, error) {
	if err := r.policy.Check(command); err != nil {
		r.opts.Logger.Warn("guard.command.denied", "command", command, "error", err.Error())
		return nil, err
	}

	dir, err := r.workDir(sub)
	if err != nil {
		r.opts.Logger.Warn("guard.command.denied", "command", command, "cwd", sub, "error", err.Error())
		return nil, err
	}

	if err := r.confineArgs(dir, command); err != nil {
		r.opts.Logger.Warn("guard.command.denied", "command", command, "error", err.Error())
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare working directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	args := append(append([]string{}, r.opts.Shell[1:]...), command)

	cmd := exec.CommandContext(runCtx, r.opts.Shell[0], args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	if len(r.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), r.opts.Env...)
	}

	budget := &outputBudget{max: r.opts.MaxOutputBytes, exceeded: cancel}
	stdout := &cappedWriter{budget: budget}
	stderr := &cappedWriter{budget: budget}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()

	r.opts.Logger.Debug("guard.command.start", "command", command, "dir", dir)

	err = cmd.Run()

	out := &Output{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	switch {
	case budget.tripped():
		r.opts.Logger.Warn("guard.command.output_exceeded", "command", command, "max_bytes", r.opts.MaxOutputBytes)
		return out, fmt.Errorf("%w: more than %d bytes", ErrOutputTooLarge, r.opts.MaxOutputBytes)
	case ctx.Err() != nil:
		return out, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r.opts.Logger.Warn("guard.command.timeout", "command", command, "timeout", r.opts.Timeout)
		return out, fmt.Errorf("%w after %s", ErrTimeout, r.opts.Timeout)
	case err != nil:
		return out, fmt.Errorf("command %q failed: %w", command, err)
	}

	r.opts.Logger.Debug("guard.command.end", "command", command, "duration_ms", out.Duration.Milliseconds())

	return out, nil
}

func (r *Runner) workDir(sub string) (string, error) {
	if strings.TrimSpace(sub) == "" || sub == "." {
		return r.dir, nil
	}

	if filepath.IsAbs(sub) {
		return "", fmt.Errorf("%w: working directory %q must be relative", ErrPathEscapesRoot, sub)
	}

	dir := filepath.Join(r.dir, sub)
	if !hasPathPrefix(r.dir, dir) {
		return "", fmt.Errorf("%w: working directory %q", ErrPathEscapesRoot, sub)
	}

	return dir, nil
}

// shellVariable matches parameter expansion such as $HOME or ${PWD}.
var shellVariable = regexp.MustCompile(`\$[A-Za-z_{]`)

// confineArgs rejects arguments and redirection targets that could reach a
// file outside the runner's directory. Arguments are resolved against dir.
func (r *Runner) confineArgs(dir, command string) error {
	// redirection operators become plain separators so their targets are
	// checked like any other argument
	flat := strings.NewReplacer("<", " ", ">", " ").Replace(redirections.Replace(command))

	for _, seg := range shellSeparators.Split(flat, -1) {
		fields := strings.Fields(seg)
		if len(fields) < 2 {
			continue
		}

		for _, field := range fields[1:] {
			arg := strings.Trim(field, `"'`)

			candidates := []string{arg}
			if _, value, ok := strings.Cut(arg, "="); ok {
				candidates = append(candidates, value)
			}

			for _, c := range candidates {
				if err := r.checkArg(dir, c); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (r *Runner) checkArg(dir, arg string) error {
	switch {
	case arg == "" || arg == os.DevNull:
		return nil
	case strings.HasPrefix(arg, "~") || shellVariable.MatchString(arg):
		return fmt.Errorf("%w: %w: argument %q expands outside the workspace", ErrCommandNotAllowed, ErrPathEscapesRoot, arg)
	case filepath.IsAbs(arg):
		return fmt.Errorf("%w: %w: absolute path %q", ErrCommandNotAllowed, ErrPathEscapesRoot, arg)
	case !hasPathPrefix(r.dir, filepath.Join(dir, arg)):
		return fmt.Errorf("%w: %w: path %q", ErrCommandNotAllowed, ErrPathEscapesRoot, arg)
	}

	return nil
}

// outputBudget is shared by the stdout and stderr writers of one command.
type outputBudget struct {
	mu       sync.Mutex
	max      int
	used     int
	over     bool
	exceeded func()
}

func (b *outputBudget) take(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - b.used
	if n <= remaining {
		b.used += n
		return n
	}

	if !b.over {
		b.over = true
		b.exceeded()
	}

	b.used = b.max

	return max(remaining, 0)
}

func (b *outputBudget) tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.over
}

type cappedWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	budget *outputBudget
}

// Write keeps what fits in the budget and discards the rest while reporting
// full consumption so the producing process is not stalled.
func (w *cappedWriter) Write(p []byte) (int, error) {
	n := w.budget.take(len(p))

	w.mu.Lock()
	w.buf.Write(p[:n])
	w.mu.Unlock()

	return len(p), nil
}

func (w *cappedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.buf.String()
}
