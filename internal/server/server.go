// Package server exposes the memory store over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

// Options wires the server to its collaborators. Index and Merger are optional.
type Options struct {
	Name    string
	Version string
	Token   string

	Store   *memory.Store
	Loader  *memory.Loader
	Index   *index.Index
	Merger  *memory.ExecMerger
	Bus     *event.Bus
	Metrics *telemetry.Metrics
	Logger  *telemetry.Logger
}

// Server is the agentmem HTTP API server.
type Server struct {
	opts   Options
	broker *Broker
	logger *telemetry.Logger
}

// New creates a new server instance.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = telemetry.NopLogger()
	}
	broker := NewBroker(opts.Logger)
	// Register the broker so store events reach SSE clients.
	opts.Bus.Register(broker)

	return &Server{
		opts:   opts,
		broker: broker,
		logger: opts.Logger,
	}
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(cors)
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(s.opts.Token))

		r.Get("/memories", s.handleListRefs)
		r.Route("/memories/{scope}", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleUpdate)
			r.Delete("/", s.handleClear)
			r.Post("/prune", s.handlePrune)
			r.Post("/consolidate", s.handleConsolidate)
			r.Get("/status", s.handleStatus)
		})
		r.Get("/context/{agent}", s.handleContext)
		r.Get("/search", s.handleSearch)
		r.Get("/history/{scope}", s.handleHistory)
		r.Get("/events", s.handleEvents)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting agentmem API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.broker.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
