package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/app"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc/runner"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/store"
)

// Server hosts the pipeline RPC endpoints, the watch feed, run history and
// health/metrics.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
	hub    *Hub
	runner runner.Runner
}

// NewServer constructs a daemon instance.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...app.Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}
	hub := NewHub(logger)
	r := runner.New(a, cfg.Pipeline.Concurrency, runner.WithPublisher(hub.Publish), runner.WithLogger(logger))
	return &Server{cfg: cfg, logger: logger, app: a, hub: hub, runner: r}, nil
}

// Hub exposes the watch hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	metrics := s.app.Metrics()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/pipeline/watch", s.hub)
	mux.HandleFunc("GET /runs", s.listRunsHandler)
	mux.HandleFunc("GET /runs/{id}", s.getRunHandler)

	transport := strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
	mux.Handle("/pipeline/run", runner.NewHandler(s.runner, metrics))
	if transport == "ndjson" {
		return mux
	}
	path, handler := runner.NewConnectHandler(s.runner, metrics)
	mux.Handle(path, handler)
	return h2c.NewHandler(mux, &http2.Server{})
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	defer s.app.Close()

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("starting animai daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down animai daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.app.Metrics().Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	st := s.app.Store()
	if st == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	opts := store.ListOptions{Concept: q.Get("concept"), OnlyDone: q.Get("done") == "true"}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	runs, err := st.List(r.Context(), opts)
	if err != nil {
		s.logger.Warn("list runs", zap.Error(err))
		http.Error(w, "list runs failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	st := s.app.Store()
	if st == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}
	rec, err := st.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Warn("get run", zap.Error(err))
		http.Error(w, "get run failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
