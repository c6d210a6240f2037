package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/flow"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/session"
)

var (
	// ErrEmptyMessage is returned when Run is called with a blank message.
	ErrEmptyMessage = errors.New("message is required")
	// ErrRunNotFound is returned by Cancel for an unknown or finished run.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a run id is already executing.
	ErrRunExists = errors.New("run already active")
)

// Orchestrator is the part of flow.Loop the runner drives.
type Orchestrator interface {
	OrchestrateRun(ctx context.Context, runID, userMessage string) (*flow.Result, error)
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits concurrent runs. 0 means unlimited.
	MaxConcurrentRuns int
	// Transcripts stores finished runs. Nil disables persistence.
	Transcripts session.TranscriptStore
	// Logger for lifecycle events.
	Logger logging.Logger
}

// Runner coordinates run execution: admission, cancellation and transcript
// persistence. Public methods are safe for concurrent use.
type Runner struct {
	loop        Orchestrator
	sem         chan struct{}
	transcripts session.TranscriptStore
	logger      logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner with optional overrides.
func New(loop Orchestrator, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Runner{
		loop:        loop,
		transcripts: opts.Transcripts,
		logger:      opts.Logger,
		activeRuns:  make(map[string]context.CancelFunc),
	}

	if opts.MaxConcurrentRuns > 0 {
		r.sem = make(chan struct{}, opts.MaxConcurrentRuns)
	}

	return r
}

// Run executes one orchestration run to completion. It blocks while the
// concurrency limit is saturated, until ctx is done.
func (r *Runner) Run(ctx context.Context, message string) (*flow.Result, error) {
	return r.RunWithID(ctx, core.NewID(), message)
}

// RunWithID is Run with a caller supplied run id, which lets the caller
// cancel the run while it executes. An empty runID gets a generated one.
func (r *Runner) RunWithID(ctx context.Context, runID, message string) (*flow.Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	if runID == "" {
		runID = core.NewID()
	}

	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if _, exists := r.activeRuns[runID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
	}()

	res, err := r.loop.OrchestrateRun(ctx, runID, message)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	if r.transcripts != nil {
		// A finished run is still a success when its transcript cannot be saved.
		if err := r.transcripts.Save(context.WithoutCancel(ctx), session.NewTranscript(message, res)); err != nil {
			r.logger.Warn("runner.transcript.save_failed", "run_id", runID, "error", err.Error())
		}
	}

	return res, nil
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	r.logger.Info("runner.run.cancel", "run_id", runID)
	cancel()

	return nil
}

// Active returns the ids of the runs currently executing, sorted.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Transcripts returns the configured transcript store, or nil.
func (r *Runner) Transcripts() session.TranscriptStore { return r.transcripts }

func (r *Runner) acquire(ctx context.Context) error {
	if r.sem == nil {
		return ctx.Err()
	}

	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	if r.sem != nil {
		<-r.sem
	}
}
