package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/pdfrag/internal/embedder"
	"github.com/54b3r/pdfrag/internal/loader"
	"github.com/54b3r/pdfrag/internal/loader/loadertest"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/splitter"
	"github.com/54b3r/pdfrag/internal/vectorstore"
)

// stubLoader returns fixed pages for any .pdf path.
type stubLoader struct {
	pages []string
}

func (l stubLoader) Load(_ context.Context, path string) ([]rag.Document, error) {
	if !loader.IsPDF(path) {
		return nil, rag.ErrValidation
	}
	docs := make([]rag.Document, len(l.pages))
	for i, p := range l.pages {
		docs[i] = rag.Document{Content: p, Metadata: map[string]string{
			rag.MetaSource: path,
			rag.MetaDocID:  filepath.Base(path),
			rag.MetaPage:   strconv.Itoa(i),
		}}
	}
	return docs, nil
}

// recordingIndex captures the chunks of the most recent replacement.
type recordingIndex struct {
	mu     sync.Mutex
	docIDs []string
	chunks []rag.Chunk
	err    error
}

func (r *recordingIndex) ReplaceDocument(_ context.Context, docID string, chunks []rag.Chunk) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docIDs = append(r.docIDs, docID)
	r.chunks = append(r.chunks, chunks...)
	return len(chunks), nil
}

func newSplitter(t *testing.T, size, overlap int) *splitter.Splitter {
	t.Helper()
	sp, err := splitter.New(size, overlap)
	if err != nil {
		t.Fatal(err)
	}
	return sp
}

func TestNewPipeline_NilDependencies(t *testing.T) {
	t.Parallel()
	sp := newSplitter(t, 100, 10)
	if _, err := NewPipeline(nil, sp, &recordingIndex{}); err == nil {
		t.Error("expected error for nil loader")
	}
	if _, err := NewPipeline(stubLoader{}, nil, &recordingIndex{}); err == nil {
		t.Error("expected error for nil splitter")
	}
	if _, err := NewPipeline(stubLoader{}, sp, nil); err == nil {
		t.Error("expected error for nil index")
	}
}

func TestIngestFile_AssignsChunkIDs(t *testing.T) {
	t.Parallel()

	idx := &recordingIndex{}
	p, err := NewPipeline(stubLoader{pages: []string{
		"alpha beta gamma delta epsilon",
		"zeta eta theta iota kappa",
	}}, newSplitter(t, 12, 0), idx)
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.IngestFile(context.Background(), "/data/raw/greek.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.NumDocs != 2 || res.NumChunks != len(idx.chunks) || res.NumChunks < 4 {
		t.Errorf("unexpected result %+v with %d chunks", res, len(idx.chunks))
	}
	if len(idx.docIDs) != 1 || idx.docIDs[0] != "greek.pdf" {
		t.Errorf("replaced doc ids = %v, want [greek.pdf]", idx.docIDs)
	}
	for i, c := range idx.chunks {
		want := "greek.pdf#c" + strconv.Itoa(i)
		if c.ID() != want {
			t.Errorf("chunk %d id = %q, want %q", i, c.ID(), want)
		}
		if c.Metadata[rag.MetaStartIndex] == "" {
			t.Errorf("chunk %d missing start_index", i)
		}
	}
}

func TestIngestFile_Errors(t *testing.T) {
	t.Parallel()

	p, _ := NewPipeline(stubLoader{pages: []string{"x"}}, newSplitter(t, 10, 0), &recordingIndex{})
	if _, err := p.IngestFile(context.Background(), "notes.txt"); !errors.Is(err, rag.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	failing, _ := NewPipeline(stubLoader{pages: []string{"x"}}, newSplitter(t, 10, 0), &recordingIndex{err: rag.ErrBackend})
	if _, err := failing.IngestFile(context.Background(), "a.pdf"); !errors.Is(err, rag.ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}

func TestIngestFile_RealPDFIntoCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "guide.pdf")
	if err := os.WriteFile(path, loadertest.BuildPDF("Vector stores index embeddings", "Retrieval finds relevant chunks"), 0o600); err != nil {
		t.Fatal(err)
	}

	col, err := vectorstore.Open(ctx, vectorstore.Config{Dir: filepath.Join(dir, "index"), Collection: "docs"},
		embedder.NewFakeEmbedder("fake-a", 128))
	if err != nil {
		t.Fatal(err)
	}
	defer col.Close()

	p, err := NewPipeline(loader.PDFLoader{}, newSplitter(t, 1000, 150), col)
	if err != nil {
		t.Fatal(err)
	}
	var seen []Result
	res, err := p.IngestFiles(ctx, []string{path, path}, func(r Result) { seen = append(seen, r) })
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || len(seen) != 2 || res[0].NumDocs != 2 {
		t.Fatalf("unexpected results %+v", res)
	}

	// Ingesting the same file twice replaces rather than duplicates.
	stats, _ := col.Stats(ctx)
	if stats.TotalVectors != res[0].NumChunks {
		t.Errorf("TotalVectors = %d, want %d", stats.TotalVectors, res[0].NumChunks)
	}
	hits, err := col.Search(ctx, "retrieval relevant chunks", 1, rag.SearchSimilarity)
	if err != nil || len(hits) != 1 {
		t.Fatalf("search = %v, %v", hits, err)
	}
	if !strings.HasPrefix(hits[0].ID(), "guide.pdf#c") {
		t.Errorf("unexpected chunk id %q", hits[0].ID())
	}
}

func TestIngestFile_ShrunkDocumentDropsStaleChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	col, err := vectorstore.Open(ctx, vectorstore.Config{Dir: filepath.Join(dir, "index"), Collection: "docs"},
		embedder.NewFakeEmbedder("fake-a", 128))
	if err != nil {
		t.Fatal(err)
	}
	defer col.Close()
	p, err := NewPipeline(loader.PDFLoader{}, newSplitter(t, 1000, 150), col)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, loadertest.BuildPDF("old page one", "old page two", "old page three"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := p.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, loadertest.BuildPDF("new single page"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := p.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	stats, _ := col.Stats(ctx)
	if stats.TotalVectors != res.NumChunks || res.NumChunks != 1 {
		t.Fatalf("TotalVectors = %d after re-ingest of %d chunks, want 1", stats.TotalVectors, res.NumChunks)
	}
	hits, err := col.Search(ctx, "old page three", 5, rag.SearchSimilarity)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if strings.Contains(h.Content, "old page") {
			t.Errorf("stale chunk %s still indexed: %q", h.ID(), h.Content)
		}
	}
}

func TestWatch_IngestsNewPDFs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx := &recordingIndex{}
	p, _ := NewPipeline(stubLoader{pages: []string{"watched content"}}, newSplitter(t, 100, 0), idx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan Result, 4)
	done := make(chan error, 1)
	go func() {
		done <- p.Watch(ctx, dir, WatchOptions{
			Settle: 50 * time.Millisecond,
			OnResult: func(r Result, err error) {
				if err == nil {
					results <- r
				}
			},
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-results:
		if filepath.Base(r.Path) != "report.pdf" || r.NumChunks != 1 {
			t.Errorf("unexpected result %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watched PDF was not ingested")
	}

	select {
	case r := <-results:
		t.Errorf("unexpected extra ingestion %+v", r)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestWatch_MissingDir(t *testing.T) {
	t.Parallel()
	p, _ := NewPipeline(stubLoader{}, newSplitter(t, 10, 0), &recordingIndex{})
	if err := p.Watch(context.Background(), filepath.Join(t.TempDir(), "absent"), WatchOptions{}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWatch_ContinuousWritesDoNotDoubleFire(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, _ := NewPipeline(stubLoader{pages: []string{"growing"}}, newSplitter(t, 100, 0), &recordingIndex{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ingested sync.WaitGroup
	ingested.Add(1)
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- p.Watch(ctx, dir, WatchOptions{
			Settle:   20 * time.Microsecond,
			OnResult: func(Result, error) { once.Do(ingested.Done) },
		})
	}()
	time.Sleep(100 * time.Millisecond)

	// Writes keep landing while earlier callbacks for the same path are
	// still running, which used to re-arm fired timers.
	path := filepath.Join(dir, "a.pdf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := f.Write([]byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	waitOrFail(t, &ingested, 5*time.Second)
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	ch := make(chan struct{})
	go func() { wg.Wait(); close(ch) }()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatal("timed out waiting for ingestion")
	}
}
