package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag/internal/embedder"
	"github.com/54b3r/pdfrag/internal/ingestion"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/provider"
	"github.com/54b3r/pdfrag/internal/server"
	"github.com/54b3r/pdfrag/internal/store"
	"github.com/54b3r/pdfrag/internal/tracing"
)

// startupProbeTimeout bounds the dependency check run before listening.
const startupProbeTimeout = 10 * time.Second

// NewServeCmd constructs the `pdfrag serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var watchDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pdfrag HTTP API",
		Long: `Start the pdfrag HTTP API.

Endpoints:
  POST /v1/documents          upload and index a PDF (multipart field "file")
  GET  /v1/documents          collection statistics
  GET  /v1/documents/uploads  recent uploads from the upload log
  POST /v1/rag/query          retrieve hits and optionally generate an answer
  POST /v1/echo               pipeline smoke test
  GET  /api/health, /api/ready, /metrics

Set PDFRAG_API_KEY to require a Bearer token on /v1 routes. With --watch,
PDFs dropped into the directory are indexed automatically.

Examples:
  pdfrag serve
  pdfrag serve --port 9090 --watch ./inbox
  MODEL_PROVIDER=ollama EMBEDDING_PROVIDER=ollama pdfrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			flush := tracing.Install(tracing.SettingsFromEnv(), log)
			defer flush()

			a, err := openApp(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", exitHint(err))
			}
			defer a.Close()

			var uploads store.UploadLog
			uploadStore := openUploadLog(log)
			if uploadStore != nil {
				uploads = uploadStore
				defer func() { _ = uploadStore.Close() }()
			}

			pingers := buildPingers(a, uploadStore)
			probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
			if err := server.NewMultiPinger(pingers...).Ping(probeCtx); err != nil {
				log.Warn("serve: dependency not ready at startup", slog.Any("error", err))
			}
			cancel()

			srv, err := server.New(server.Deps{
				Querier:  a.engine,
				Ingester: a.pipeline,
				Index:    a.coll,
				Uploads:  uploads,
			}, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("PDFRAG_API_KEY"),
				RawDir:  os.Getenv("RAW_DIR"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			if watchDir != "" {
				go func() {
					err := a.pipeline.Watch(ctx, watchDir, ingestion.WatchOptions{
						OnResult: func(res ingestion.Result, err error) {
							if err == nil {
								recordIngest(ctx, log, uploads, a.coll.Name(), res)
							}
						},
					})
					if err != nil {
						log.Error("serve: watch stopped", slog.String("dir", watchDir), slog.Any("error", err))
					}
				}()
			}

			return srv.Start(ctx)
		},
	}

	defaultPort, err := envInt("PDFRAG_PORT", server.DefaultPort)
	if err != nil {
		defaultPort = server.DefaultPort
	}
	cmd.Flags().StringVar(&host, "host", envOr("PDFRAG_HOST", server.DefaultHost), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", defaultPort, "TCP port to listen on")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Directory to watch for new PDFs to index")

	return cmd
}

// buildPingers returns the readiness probes for the configured backends.
func buildPingers(a *app, uploads *store.SQLiteStore) []server.Pinger {
	pingers := []server.Pinger{server.NewFuncPinger("index", a.coll.Ping)}
	if uploads != nil {
		pingers = append(pingers, server.NewFuncPinger("uploads", uploads.Ping))
	}

	var ollamaURL string
	switch {
	case a.embCfg.Backend == embedder.BackendOllama:
		ollamaURL = a.embCfg.Endpoint
	case a.provCfg.Backend == provider.BackendOllama:
		ollamaURL = a.provCfg.BaseURL
	}
	if ollamaURL != "" {
		pingers = append(pingers, server.NewOllamaPinger(ollamaURL, nil))
	}
	return pingers
}
