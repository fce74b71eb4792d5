package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfrag/internal/ingestion"
	"github.com/54b3r/pdfrag/internal/provider"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// It must cover ingestion of a large upload and a generation call.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all /v1/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// RawDir is where uploaded PDFs are written (default: data/raw).
	RawDir string
	// MaxUploadBytes caps the multipart upload body (default: 50 MiB).
	MaxUploadBytes int64
	// MetricsRegistry is where server metrics are registered.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Querier answers RAG queries. *rag.Engine satisfies it.
type Querier interface {
	Execute(ctx context.Context, req rag.Request) (rag.Result, error)
}

// Ingester loads, splits and indexes a file on disk.
// *ingestion.Pipeline satisfies it.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (ingestion.Result, error)
}

// Index describes the collection queries run against.
// *vectorstore.Collection satisfies it.
type Index interface {
	Name() string
	Stats(ctx context.Context) (rag.Stats, error)
}

// Deps are the pipeline components the handlers delegate to.
type Deps struct {
	// Querier serves POST /v1/rag/query. Required.
	Querier Querier
	// Ingester serves POST /v1/documents. Required.
	Ingester Ingester
	// Index serves GET /v1/documents. Required.
	Index Index
	// Uploads records accepted uploads. Nil disables the upload log.
	Uploads store.UploadLog
}

// Server is the HTTP front end of the RAG pipeline.
type Server struct {
	// querier answers questions.
	querier Querier
	// ingester indexes uploaded files.
	ingester Ingester
	// index reports collection stats.
	index Index
	// uploads is the upload log. May be nil.
	uploads store.UploadLog
	// echo answers the smoke-test endpoint.
	echo *provider.Echo
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped mux, exposed to tests via Handler.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
}

// queryRequest is the JSON body for POST /v1/rag/query.
type queryRequest struct {
	// Question is the user question.
	Question string `json:"question"`
	// Generate requests an LLM answer in addition to the hits.
	Generate bool `json:"generate"`
	// K overrides the number of hits for this call.
	K *int `json:"k,omitempty"`
	// SearchType overrides the retrieval strategy for this call.
	SearchType *string `json:"search_type,omitempty"`
}

// echoRequest is the JSON body for POST /v1/echo.
type echoRequest struct {
	Question string `json:"question"`
}

// uploadsResponse is the JSON response for GET /v1/documents/uploads.
type uploadsResponse struct {
	Uploads []store.Upload `json:"uploads"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}
