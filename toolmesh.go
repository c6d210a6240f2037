// Package toolmesh provides a high-level façade over the orchestration loop,
// the tool catalog and the supporting stores (artifacts, transcripts and
// logging). Most applications interact with this package by:
//  1. Building the service dependencies of the tool groups (toolset.Deps)
//  2. Creating a ToolMesh via New() with a model.Model
//  3. Calling Run for each user message
//
// Unset services default to in-memory implementations suitable for local
// development and tests.
package toolmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/toolmesh/artifact"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/flow"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/runner"
	"github.com/hupe1980/toolmesh/session"
	"github.com/hupe1980/toolmesh/toolset"
)

// DefaultName is the assistant name used in the rendered system prompt.
const DefaultName = "toolmesh"

// Options configures the ToolMesh instance.
type Options struct {
	// Name of the assistant in the default system prompt.
	Name string
	// SystemPrompt overrides the prompt rendered from the catalog.
	SystemPrompt string

	MaxIterations     int
	MaxParallel       int
	MaxResultChars    int
	MaxConcurrentRuns int
	Pricing           core.Pricing

	// Stores (defaults to in-memory implementations if not provided)
	ArtifactStore core.ArtifactStore
	Transcripts   session.TranscriptStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ToolMesh is the high-level façade aggregating the loop, catalog and stores.
type ToolMesh struct {
	opts    Options
	model   model.Model
	catalog *toolset.Catalog
	loop    *flow.Loop
	runner  *runner.Runner
}

// New assembles the tool catalog from deps and wires the loop around m.
func New(m model.Model, deps toolset.Deps, optFns ...func(o *Options)) (*ToolMesh, error) {
	opts := Options{
		Name:              DefaultName,
		MaxIterations:     flow.DefaultMaxIterations,
		MaxResultChars:    flow.DefaultMaxResultChars,
		MaxConcurrentRuns: 10,
		Pricing:           core.DefaultPricing,
		ArtifactStore:     artifact.NewInMemoryStore(),
		Transcripts:       session.NewInMemoryStore(100),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	catalog, err := toolset.Build(deps)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt, err = catalog.SystemPrompt(opts.Name, deps.Paths.WritableRoot())
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}
	}

	executor := flow.NewExecutor(catalog.Registry, func(o *flow.ExecutorOptions) {
		o.MaxParallel = opts.MaxParallel
		o.MaxResultChars = opts.MaxResultChars
	})

	loop := flow.NewLoop(m, catalog.Registry, func(o *flow.LoopOptions) {
		o.MaxIterations = opts.MaxIterations
		o.SystemPrompt = prompt
		o.Pricing = opts.Pricing
		o.Executor = executor
		o.ArtifactStore = opts.ArtifactStore
		o.Logger = opts.Logger
	})

	r := runner.New(loop, func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.Transcripts = opts.Transcripts
		o.Logger = opts.Logger
	})

	opts.SystemPrompt = prompt

	return &ToolMesh{opts: opts, model: m, catalog: catalog, loop: loop, runner: r}, nil
}

// Run executes one orchestration run for message and blocks until it ends.
func (t *ToolMesh) Run(ctx context.Context, message string) (*flow.Result, error) {
	return t.runner.Run(ctx, message)
}

// RunWithID is Run under a caller chosen run id, so the run can be cancelled
// with Cancel while it executes.
func (t *ToolMesh) RunWithID(ctx context.Context, runID, message string) (*flow.Result, error) {
	return t.runner.RunWithID(ctx, runID, message)
}

// Active returns the ids of the runs currently executing.
func (t *ToolMesh) Active() []string { return t.runner.Active() }

// Cancel stops an active run.
func (t *ToolMesh) Cancel(runID string) error { return t.runner.Cancel(runID) }

// Catalog returns the frozen tool catalog.
func (t *ToolMesh) Catalog() *toolset.Catalog { return t.catalog }

// Model returns the provider the loop drives.
func (t *ToolMesh) Model() model.Model { return t.model }

// SystemPrompt returns the prompt sent with every model call.
func (t *ToolMesh) SystemPrompt() string { return t.opts.SystemPrompt }

// Artifacts returns the artifact store tools write into.
func (t *ToolMesh) Artifacts() core.ArtifactStore { return t.opts.ArtifactStore }

// Transcripts returns the store holding finished runs.
func (t *ToolMesh) Transcripts() session.TranscriptStore { return t.opts.Transcripts }
