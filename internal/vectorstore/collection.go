// Package vectorstore persists embedded chunks and retrieves them by cosine
// similarity or by maximal marginal relevance. A [Collection] is a named set
// of chunks inside a backend: a local SQLite file (the default) or a Qdrant
// server. Collections are opened explicitly with [Open] and closed by the
// caller.
//
// Writes to one collection are serialised across every handle in the process;
// reads run concurrently with each other and with writers.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
)

// record is one stored chunk.
type record struct {
	id       string
	content  string
	metadata map[string]string
	vector   []float32
}

// storage is the backend contract. Implementations hold no per-collection
// state beyond what is persisted, so several Collections may share one.
type storage interface {
	// upsert inserts or replaces records keyed by id, creating the
	// collection if needed.
	upsert(ctx context.Context, collection string, recs []record) error
	// nearest returns up to limit records ordered by descending cosine
	// similarity to query, ties in insertion order. A missing collection
	// yields no records.
	nearest(ctx context.Context, collection string, query []float32, limit int) ([]record, error)
	// replace deletes every record whose doc_id is docID, then upserts recs.
	// Readers never observe a mix of old and new records where the backend
	// supports transactions.
	replace(ctx context.Context, collection, docID string, recs []record) error
	// drop deletes the collection. Missing collections are not an error.
	drop(ctx context.Context, collection string) error
	// count returns the number of records in the collection.
	count(ctx context.Context, collection string) (int, error)
	// ping checks the backend is reachable.
	ping(ctx context.Context) error
	// location identifies where data is persisted.
	location() string
	close() error
}

// Collection is a handle on one named collection. It is safe for concurrent use.
type Collection struct {
	// name is the collection name.
	name string
	// embedder turns chunk text and questions into vectors.
	embedder rag.Embedder
	// store is the backend holding the records.
	store storage
	// writeMu serialises writers to (location, name) process-wide.
	writeMu *sync.Mutex
	// fetchK is the diversity-search candidate pool size.
	fetchK int
	// lambda is the MMR relevance weight.
	lambda float64
}

// Open validates cfg, connects to or creates the backing storage, and
// returns a handle on cfg.Collection. Bad configuration wraps
// rag.ErrConfiguration; I/O or server failures wrap rag.ErrBackend.
func Open(ctx context.Context, cfg Config, embedder rag.Embedder) (*Collection, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("vectorstore: embedder is required: %w", rag.ErrConfiguration)
	}

	var (
		st  storage
		err error
	)
	switch cfg.Backend {
	case BackendSQLite:
		st, err = openSQLite(ctx, cfg.Dir)
	case BackendQdrant:
		st, err = openQdrant(ctx, cfg.Qdrant)
	default:
		err = fmt.Errorf("vectorstore: unknown provider %q: %w", cfg.Backend, rag.ErrConfiguration)
	}
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("vectorstore: opened collection",
		slog.String("backend", string(cfg.Backend)),
		slog.String("collection", cfg.Collection),
		slog.String("location", st.location()),
	)

	return &Collection{
		name:     cfg.Collection,
		embedder: embedder,
		store:    st,
		writeMu:  writeLocks.get(lockKey{location: st.location(), collection: cfg.Collection}),
		fetchK:   cfg.FetchK,
		lambda:   cfg.Lambda,
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Location returns the persist directory or server address.
func (c *Collection) Location() string { return c.store.location() }

// Add embeds the chunks that lack an embedding in one batch call, then
// persists all of them and returns the number stored. Chunks are keyed by
// chunk_id; re-adding an id replaces the stored chunk. Chunks without an id
// are stored under a random UUID.
func (c *Collection) Add(ctx context.Context, chunks []rag.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	start := time.Now()
	recs, err := c.records(ctx, chunks)
	if err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	err = c.store.upsert(ctx, c.name, recs)
	c.writeMu.Unlock()
	if err != nil {
		return 0, err
	}

	logging.FromContext(ctx).Debug("vectorstore: added chunks",
		slog.String("collection", c.name),
		slog.Int("chunks", len(recs)),
		slog.Duration("duration", time.Since(start)),
	)
	return len(recs), nil
}

// ReplaceDocument makes chunks the complete set stored for docID: chunks
// from an earlier version of the document that the new split no longer
// produces are removed. Empty chunks clears the document.
func (c *Collection) ReplaceDocument(ctx context.Context, docID string, chunks []rag.Chunk) (int, error) {
	if docID == "" {
		return 0, fmt.Errorf("vectorstore: replace needs a doc_id: %w", rag.ErrValidation)
	}
	for _, ch := range chunks {
		if got := ch.Metadata[rag.MetaDocID]; got != docID {
			return 0, fmt.Errorf("vectorstore: chunk %q has doc_id %q, replacing %q: %w", ch.ID(), got, docID, rag.ErrValidation)
		}
	}
	recs, err := c.records(ctx, chunks)
	if err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	err = c.store.replace(ctx, c.name, docID, recs)
	c.writeMu.Unlock()
	if err != nil {
		return 0, err
	}

	logging.FromContext(ctx).Debug("vectorstore: replaced document",
		slog.String("collection", c.name),
		slog.String("doc_id", docID),
		slog.Int("chunks", len(recs)),
	)
	return len(recs), nil
}

// records embeds the chunks lacking a vector in one batch call and converts
// all of them to records keyed by chunk_id, or a random UUID without one.
func (c *Collection) records(ctx context.Context, chunks []rag.Chunk) ([]record, error) {
	var (
		texts   []string
		missing []int
	)
	for i, ch := range chunks {
		if len(ch.Embedding) == 0 {
			texts = append(texts, ch.Content)
			missing = append(missing, i)
		}
	}
	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = c.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: embed %d chunks: %w", len(texts), err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("vectorstore: embedder returned %d vectors for %d chunks: %w", len(vectors), len(texts), rag.ErrBackend)
		}
	}

	recs := make([]record, len(chunks))
	for i, ch := range chunks {
		md := rag.CloneMetadata(ch.Metadata)
		id := md[rag.MetaChunkID]
		if id == "" {
			id = uuid.NewString()
		}
		recs[i] = record{id: id, content: ch.Content, metadata: md, vector: ch.Embedding}
	}
	for j, i := range missing {
		recs[i].vector = vectors[j]
	}
	return recs, nil
}

// Search embeds question and returns at most k chunks. Similarity search
// orders by descending cosine similarity. Diversity search re-ranks the
// nearest fetch_k candidates by maximal marginal relevance. Fewer than k
// results is not an error.
func (c *Collection) Search(ctx context.Context, question string, k int, st rag.SearchType) ([]rag.Chunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("vectorstore: k must be >= 1, got %d: %w", k, rag.ErrValidation)
	}
	if st != rag.SearchSimilarity && st != rag.SearchDiversity {
		return nil, fmt.Errorf("vectorstore: unknown search type %q: %w", st, rag.ErrValidation)
	}

	vecs, err := c.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("vectorstore: embedder returned %d vectors for 1 question: %w", len(vecs), rag.ErrBackend)
	}
	query := vecs[0]

	if st == rag.SearchSimilarity {
		recs, err := c.store.nearest(ctx, c.name, query, k)
		if err != nil {
			return nil, err
		}
		return toChunks(recs), nil
	}

	pool, err := c.store.nearest(ctx, c.name, query, max(c.fetchK, k))
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(pool))
	for i, r := range pool {
		vectors[i] = r.vector
	}
	picked := selectMMR(query, vectors, k, c.lambda)
	out := make([]record, len(picked))
	for i, idx := range picked {
		out[i] = pool[idx]
	}
	return toChunks(out), nil
}

// DeleteCollection removes every chunk in the collection. Deleting a missing
// collection succeeds. A later Add recreates it.
func (c *Collection) DeleteCollection(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.store.drop(ctx, c.name)
}

// Stats reports the collection size without modifying it.
func (c *Collection) Stats(ctx context.Context) (rag.Stats, error) {
	n, err := c.store.count(ctx, c.name)
	if err != nil {
		return rag.Stats{}, err
	}
	return rag.Stats{
		Collection:       c.name,
		PersistDirectory: c.store.location(),
		TotalVectors:     n,
	}, nil
}

// Ping checks the backing storage is reachable.
func (c *Collection) Ping(ctx context.Context) error {
	return c.store.ping(ctx)
}

// Close releases the backend connection.
func (c *Collection) Close() error {
	return c.store.close()
}

func toChunks(recs []record) []rag.Chunk {
	out := make([]rag.Chunk, len(recs))
	for i, r := range recs {
		out[i] = rag.Chunk{Content: r.content, Metadata: r.metadata, Embedding: r.vector}
	}
	return out
}

// rankBySimilarity orders recs by descending similarity to query, keeping
// input order for ties, and truncates to limit.
func rankBySimilarity(query []float32, recs []record, limit int) []record {
	scores := make([]float64, len(recs))
	idx := make([]int, len(recs))
	for i, r := range recs {
		scores[i] = cosine(query, r.vector)
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if len(idx) > limit {
		idx = idx[:limit]
	}
	out := make([]record, len(idx))
	for i, j := range idx {
		out[i] = recs[j]
	}
	return out
}
