package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/54b3r/pdfrag/internal/embedder"
	"github.com/54b3r/pdfrag/internal/ingestion"
	"github.com/54b3r/pdfrag/internal/loader"
	"github.com/54b3r/pdfrag/internal/provider"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/splitter"
	"github.com/54b3r/pdfrag/internal/store"
	"github.com/54b3r/pdfrag/internal/vectorstore"
)

// app is the wired pipeline shared by the serve, ingest, query, stats,
// reset and mcp commands. Every backend is selected from the environment.
type app struct {
	log      *slog.Logger
	embCfg   embedder.Config
	provCfg  provider.Config
	coll     *vectorstore.Collection
	pipeline *ingestion.Pipeline
	engine   *rag.Engine
}

// openApp resolves the configured backends and opens the collection.
// Generation is bound lazily: a broken model config only fails requests
// that ask for an answer.
func openApp(ctx context.Context, log *slog.Logger) (*app, error) {
	embCfg, err := embedder.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	embedder.WarnIfChatModel(log, embCfg)
	emb, err := embedder.NewResolver(log).Resolve(embCfg)
	if err != nil {
		return nil, err
	}

	storeCfg, err := vectorstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	coll, err := vectorstore.Open(ctx, storeCfg, emb)
	if err != nil {
		return nil, err
	}

	a, err := wire(log, coll, embCfg)
	if err != nil {
		_ = coll.Close()
		return nil, err
	}
	log.Info("pipeline ready",
		slog.String("embedding", embCfg.ModelID()),
		slog.String("generation", string(a.provCfg.Backend)),
		slog.String("collection", coll.Name()),
		slog.String("location", coll.Location()),
	)
	return a, nil
}

// wire builds the splitter, pipeline and engine around an open collection.
func wire(log *slog.Logger, coll *vectorstore.Collection, embCfg embedder.Config) (*app, error) {
	sp, err := splitter.NewFromEnv()
	if err != nil {
		return nil, err
	}
	pipeline, err := ingestion.NewPipeline(loader.PDFLoader{}, sp, coll)
	if err != nil {
		return nil, err
	}
	defaults, err := rag.DefaultsFromEnv()
	if err != nil {
		return nil, err
	}
	provCfg, err := provider.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	engine, err := rag.NewEngine(coll, provider.NewResolver().Bind(provCfg), defaults)
	if err != nil {
		return nil, err
	}
	return &app{log: log, embCfg: embCfg, provCfg: provCfg, coll: coll, pipeline: pipeline, engine: engine}, nil
}

// Close releases the collection.
func (a *app) Close() {
	if err := a.coll.Close(); err != nil {
		a.log.Warn("close collection", slog.Any("error", err))
	}
}

// openUploadLog opens the upload log at UPLOAD_LOG_DB (default
// data/uploads.db). It returns nil when the log is disabled or cannot be
// opened; the log is optional and never blocks ingestion.
func openUploadLog(log *slog.Logger) *store.SQLiteStore {
	path := os.Getenv("UPLOAD_LOG_DB")
	if path == store.Disabled {
		log.Info("upload log: disabled via UPLOAD_LOG_DB=disabled")
		return nil
	}
	if path == "" {
		path = store.DefaultPath
	}
	s, err := store.Open(path)
	if err != nil {
		log.Warn("upload log: failed to open store, disabling", slog.String("path", path), slog.Any("error", err))
		return nil
	}
	log.Info("upload log: store opened", slog.String("path", path))
	return s
}

// recordIngest writes res to the upload log when one is open.
func recordIngest(ctx context.Context, log *slog.Logger, uploads store.UploadLog, collection string, res ingestion.Result) {
	if uploads == nil {
		return
	}
	err := uploads.Record(ctx, store.Upload{
		Filename:   filepath.Base(res.Path),
		Collection: collection,
		NumDocs:    res.NumDocs,
		NumChunks:  res.NumChunks,
	})
	if err != nil {
		log.Warn("upload log: record failed", slog.String("file", res.Path), slog.Any("error", err))
	}
}

// envOr returns the env value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer env value for key, or fallback when unset.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q: %w", key, v, rag.ErrConfiguration)
	}
	return n, nil
}

// exitHint decorates configuration errors with a pointer to the docs.
func exitHint(err error) error {
	if errors.Is(err, rag.ErrConfiguration) {
		return fmt.Errorf("%w (check MODEL_*, EMBEDDING_* and VECTOR_STORE_* settings)", err)
	}
	return err
}
