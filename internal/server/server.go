// Package server implements the HTTP API of the PDF RAG pipeline: document
// upload and stats, RAG queries, an echo smoke test, health and readiness
// probes, and Prometheus metrics.
// The server is started by the `pdfrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pdfrag/internal/ingestion"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/provider"
	"github.com/54b3r/pdfrag/internal/rag"
)

// Defaults applied by New.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8000
	DefaultRawDir         = "data/raw"
	DefaultMaxUploadBytes = 50 << 20
)

// New constructs a Server from the pipeline components and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Querier == nil || deps.Ingester == nil || deps.Index == nil {
		return nil, fmt.Errorf("server: querier, ingester and index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Uploads embed every chunk before responding.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.RawDir == "" {
		cfg.RawDir = DefaultRawDir
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	echo, err := provider.NewEcho(context.Background())
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		querier:  deps.Querier,
		ingester: deps.Ingester,
		index:    deps.Index,
		uploads:  deps.Uploads,
		echo:     echo,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	// Pipelines report every ingested file, including ones picked up by
	// the directory watcher, through the server's counters.
	if o, ok := deps.Ingester.(interface{ SetObserver(ingestion.Observer) }); ok {
		o.SetObserver(s)
	}

	lim, stopRL := newLimiter(cfg.RateLimit, cfg.RateBurst)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: API key not set, /v1 routes are unauthenticated")
	}
	auth := requireBearer(cfg.APIKey)
	v1 := func(h http.HandlerFunc) http.Handler { return auth(h) }
	limited := func(route string, h http.HandlerFunc) http.Handler { return auth(lim.wrap(route, h)) }

	mux := http.NewServeMux()
	mux.Handle("POST /v1/documents", limited(routeUpload, s.handleUpload))
	mux.Handle("GET /v1/documents", v1(s.handleStats))
	mux.Handle("GET /v1/documents/uploads", v1(s.handleUploads))
	mux.Handle("POST /v1/rag/query", limited(routeQuery, s.handleQuery))
	mux.Handle("POST /v1/echo", v1(s.handleEcho))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.handler = requestLogger(log, s.instrument(recoverPanics(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Ingested records one ingested file in the ingest counters.
func (s *Server) Ingested(res ingestion.Result) {
	s.metrics.ingestDocumentsTotal.Add(float64(res.NumDocs))
	s.metrics.ingestChunksTotal.Add(float64(res.NumChunks))
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error category to an HTTP status. Timeouts are checked
// before backend failures because they wrap both.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and replies with its mapped status and a JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

// writeJSON encodes body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
