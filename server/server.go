// Package server exposes a ToolMesh over HTTP.
//
// Routes:
//
//	POST /api/chat                    run one orchestration for {message}
//	POST /api/runs/{run_id}/cancel    cancel an active run
//	GET  /api/tools                   tool catalog grouped by category
//	GET  /api/conversations           recent transcripts
//	GET  /api/conversations/{run_id}  one transcript
//	GET  /api/artifacts/{run_id}/{id} raw artifact bytes
//	GET  /health                      liveness and tool count
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/logging"
)

const (
	// DefaultMaxRequestBodyBytes bounds the JSON body of /api/chat.
	DefaultMaxRequestBodyBytes int64 = 1 << 20
	// DefaultRequestTimeout bounds one chat run.
	DefaultRequestTimeout = 10 * time.Minute
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// Options configures a Server.
type Options struct {
	MaxRequestBodyBytes int64
	RequestTimeout      time.Duration
	ShutdownTimeout     time.Duration
	Logger              logging.Logger
	// Now is the clock used for response timestamps.
	Now func() time.Time
}

// Server serves the HTTP API of one ToolMesh.
type Server struct {
	mesh *toolmesh.ToolMesh
	opts Options
}

// New creates a server for mesh.
func New(mesh *toolmesh.ToolMesh, optFns ...func(o *Options)) *Server {
	opts := Options{
		MaxRequestBodyBytes: DefaultMaxRequestBodyBytes,
		RequestTimeout:      DefaultRequestTimeout,
		ShutdownTimeout:     DefaultShutdownTimeout,
		Logger:              logging.NoOpLogger{},
		Now:                 time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxRequestBodyBytes <= 0 {
		opts.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Server{mesh: mesh, opts: opts}
}

// Handler returns the routed handler wrapped in the CORS and logging
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("POST /api/runs/{run_id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/conversations/{run_id}", s.handleConversation)
	mux.HandleFunc("GET /api/artifacts/{run_id}/{id}", s.handleArtifact)
	mux.HandleFunc("GET /health", s.handleHealth)

	return chain(s.withCORS, s.withLogging)(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.opts.Logger.Info("server.listen", "addr", addr, "tools", s.mesh.Catalog().Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	s.opts.Logger.Info("server.shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

type middleware func(http.Handler) http.Handler

func chain(middlewares ...middleware) middleware {
	return func(next http.Handler) http.Handler {
		wrapped := next
		for i := len(middlewares) - 1; i >= 0; i-- {
			wrapped = middlewares[i](wrapped)
		}

		return wrapped
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "authorization, content-type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.opts.Logger.Debug("server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
