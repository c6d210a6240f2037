package main

import (
	"database/sql"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/model/anthropic"
	"github.com/hupe1980/toolmesh/model/openai"
	"github.com/hupe1980/toolmesh/secret"
	"github.com/hupe1980/toolmesh/session"
	"github.com/hupe1980/toolmesh/task"
	"github.com/hupe1980/toolmesh/toolset"
	"github.com/hupe1980/toolmesh/toolset/database"
	"github.com/hupe1980/toolmesh/toolset/debugging"
	"github.com/hupe1980/toolmesh/toolset/media"
)

// app owns the long-lived services behind the tool catalog.
type app struct {
	model       model.Model
	deps        toolset.Deps
	transcripts session.TranscriptStore

	closers []func() error
}

func newApp(cfg *config.Config, logger logging.Logger) (a *app, err error) {
	a = &app{}

	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.model, err = newModel(cfg)
	if err != nil {
		return nil, err
	}

	paths, err := guard.NewPathPolicy(cfg.ProjectRoot, func(o *guard.PathPolicyOptions) {
		o.WritableRoot = cfg.WritableRoot
		if len(cfg.ProtectedPaths) > 0 {
			o.Protected = cfg.ProtectedPaths
		}
	})
	if err != nil {
		return nil, fmt.Errorf("path policy: %w", err)
	}

	commands, err := guard.NewCommandPolicy(func(o *guard.CommandPolicyOptions) {
		if len(cfg.AllowedCommands) > 0 {
			o.Allow = cfg.AllowedCommands
		}
	})
	if err != nil {
		return nil, fmt.Errorf("command policy: %w", err)
	}

	a.deps = toolset.Deps{
		Paths: paths,
		Runner: guard.NewRunner(commands, paths.WritableDir(), func(o *guard.RunnerOptions) {
			o.Timeout = cfg.CommandTimeout
			o.Logger = logger
		}),
		Tasks: task.NewTracker(),
	}

	if cfg.DatabasePath != "" {
		var db *sql.DB

		db, err = database.Open(cfg.DatabasePath, cfg.DatabaseReadOnly)
		if err != nil {
			return nil, err
		}

		a.deps.DB = db
		a.closers = append(a.closers, db.Close)
	}

	a.deps.Memory, err = newMemory(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.EnableBrowser {
		browser := debugging.NewSession(debugging.LaunchChrome)
		a.deps.Browser = browser
		a.closers = append(a.closers, browser.Close)
	}

	if cfg.MediaEnabled() {
		a.deps.Media = media.NewOpenAIClient(func(o *media.OpenAIOptions) { o.APIKey = cfg.OpenAIAPIKey })
	} else {
		logger.Warn("toolmesh.media.disabled", "reason", "OPENAI_API_KEY not set")
	}

	a.deps.Secrets, err = secret.NewFileStore(func(o *secret.Options) {
		o.Path = cfg.SecretsFile
		o.Password = cfg.SecretsPassword
	})
	if err != nil {
		return nil, fmt.Errorf("secret store: %w", err)
	}

	if cfg.TranscriptDBPath != "" {
		store, err := session.OpenSQLiteStore(cfg.TranscriptDBPath)
		if err != nil {
			return nil, err
		}

		a.transcripts = store
		a.closers = append(a.closers, store.Close)
	} else {
		a.transcripts = session.NewInMemoryStore(100)
	}

	return a, nil
}

// Close releases services in reverse order of creation.
func (a *app) Close() error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}

	a.closers = nil

	return errors.Join(errs...)
}

func newModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			o.Model = anthropicsdk.Model(cfg.AnthropicModel)
			o.MaxTokens = cfg.MaxTokens
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			o.Model = cfg.OpenAIModel
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
}

func newMemory(cfg *config.Config) (core.MemoryStore, error) {
	if !cfg.MediaEnabled() {
		return memory.NewInMemoryStore(), nil
	}

	store, err := memory.NewVectorStore(memory.NewOpenAIEmbeddingFunc(cfg.OpenAIAPIKey, cfg.EmbeddingModel))
	if err != nil {
		return nil, fmt.Errorf("vector memory: %w", err)
	}

	return store, nil
}
