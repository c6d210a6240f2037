// Command toolmesh serves the tool-calling orchestrator over HTTP.
//
// Configuration is read from the environment; see the config package.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "toolmesh: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Output:    os.Stderr,
		Component: "toolmesh",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	mesh, err := toolmesh.New(svc.model, svc.deps, func(o *toolmesh.Options) {
		o.MaxIterations = cfg.MaxIterations
		o.MaxParallel = cfg.MaxParallel
		o.MaxResultChars = cfg.MaxResultChars
		o.Transcripts = svc.transcripts
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	for _, c := range mesh.Catalog().Categories {
		logger.Info("toolmesh.tools.category", "name", c.Name, "tools", len(c.Tools))
	}

	logger.Info("toolmesh.start",
		"provider", cfg.Provider,
		"model", mesh.Model().Info().Name,
		"tools", mesh.Catalog().Len(),
		"writable_root", svc.deps.Paths.WritableRoot(),
		"allowed_commands", len(svc.deps.Runner.Policy().Allowed()),
	)

	srv := server.New(mesh, func(o *server.Options) {
		o.RequestTimeout = cfg.RequestTimeout
		o.Logger = logger
	})

	return srv.ListenAndServe(ctx, cfg.Addr())
}
