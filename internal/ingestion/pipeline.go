// Package ingestion implements the document ingestion pipeline.
// It loads PDF pages, splits them into chunks, assigns chunk ids, and adds
// the chunks to a vector collection, which embeds them. This pipeline backs
// the upload endpoint, the `pdfrag ingest` command, and directory watching.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/splitter"
)

// Loader extracts page documents from a file.
// *loader.PDFLoader satisfies it.
type Loader interface {
	Load(ctx context.Context, path string) ([]rag.Document, error)
}

// Indexer stores the chunks of one document, embedding the ones lacking
// vectors and dropping whatever was stored for that document before.
// *vectorstore.Collection satisfies it.
type Indexer interface {
	ReplaceDocument(ctx context.Context, docID string, chunks []rag.Chunk) (int, error)
}

// Result summarises one ingested file.
type Result struct {
	// Path is the ingested file.
	Path string `json:"path"`
	// NumDocs is the number of pages loaded.
	NumDocs int `json:"num_docs"`
	// NumChunks is the number of chunks stored.
	NumChunks int `json:"num_chunks"`
}

// Observer receives per-file ingestion outcomes, e.g. for metrics.
type Observer interface {
	Ingested(res Result)
}

// Pipeline orchestrates the load → split → index flow.
type Pipeline struct {
	// loader extracts pages.
	loader Loader
	// splitter chunks pages.
	splitter *splitter.Splitter
	// index stores the chunks.
	index Indexer
	// observer is notified after each successful file. May be nil.
	observer Observer
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(loader Loader, sp *splitter.Splitter, index Indexer) (*Pipeline, error) {
	if loader == nil {
		return nil, fmt.Errorf("ingestion: loader must not be nil")
	}
	if sp == nil {
		return nil, fmt.Errorf("ingestion: splitter must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	return &Pipeline{loader: loader, splitter: sp, index: index}, nil
}

// SetObserver registers o for ingestion outcomes. Call before use.
func (p *Pipeline) SetObserver(o Observer) { p.observer = o }

// IngestFile loads, splits, and indexes one file. The file's doc_id is its
// base name, and re-ingesting it replaces every chunk stored under that
// doc_id, including ones the new version no longer produces.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (Result, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	docs, err := p.loader.Load(ctx, path)
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: load %s: %w", path, err)
	}
	chunks := splitter.AssignChunkIDs(p.splitter.Split(docs))

	n, err := p.index.ReplaceDocument(ctx, filepath.Base(path), chunks)
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: index %s: %w", path, err)
	}

	res := Result{Path: path, NumDocs: len(docs), NumChunks: n}
	log.Info("ingestion: file ingested",
		slog.String("path", path),
		slog.Int("docs", res.NumDocs),
		slog.Int("chunks", res.NumChunks),
		slog.Duration("duration", time.Since(start)),
	)
	if p.observer != nil {
		p.observer.Ingested(res)
	}
	return res, nil
}

// IngestFiles ingests paths sequentially and returns the first error
// encountered. Progress is reported via the optional progress callback.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string, progress func(Result)) ([]Result, error) {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		res, err := p.IngestFile(ctx, path)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if progress != nil {
			progress(res)
		}
	}
	return results, nil
}
