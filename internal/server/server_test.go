package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfrag/internal/embedder"
	"github.com/54b3r/pdfrag/internal/ingestion"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/provider"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/splitter"
	"github.com/54b3r/pdfrag/internal/store"
	"github.com/54b3r/pdfrag/internal/vectorstore"
)

// newTestServer builds a bare *Server for handlers that need no pipeline.
func newTestServer() *Server {
	return &Server{cfg: &Config{}}
}

// pageLoader returns fixed pages for any path and counts calls. Files whose
// bytes start with "corrupt" fail with rag.ErrLoad.
type pageLoader struct {
	pages []string
	calls atomic.Int64
}

func (l *pageLoader) Load(_ context.Context, path string) ([]rag.Document, error) {
	l.calls.Add(1)
	if b, err := os.ReadFile(path); err == nil && bytes.HasPrefix(b, []byte("corrupt")) {
		return nil, fmt.Errorf("load %s: %w", path, rag.ErrLoad)
	}
	docs := make([]rag.Document, len(l.pages))
	for i, p := range l.pages {
		docs[i] = rag.Document{Content: p, Metadata: map[string]string{
			rag.MetaSource:     path,
			rag.MetaDocID:      filepath.Base(path),
			rag.MetaPage:       strconv.Itoa(i),
			rag.MetaTotalPages: strconv.Itoa(len(l.pages)),
		}}
	}
	return docs, nil
}

// testEnv is a server wired to a real splitter, a sqlite collection with
// the fake embedder, an in-memory upload log and an isolated registry.
type testEnv struct {
	srv     *Server
	loader  *pageLoader
	col     *vectorstore.Collection
	uploads *store.SQLiteStore
	reg     *prometheus.Registry
	rawDir  string
	model   *provider.FakeChatModel
}

func newTestEnv(t *testing.T, withGenerator bool, opts ...func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	col, err := vectorstore.Open(ctx, vectorstore.Config{Dir: filepath.Join(dir, "index"), Collection: "documents"},
		embedder.NewFakeEmbedder("fake-embed", 256))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { col.Close() })

	sp, err := splitter.New(1000, 150)
	if err != nil {
		t.Fatal(err)
	}
	ld := &pageLoader{pages: []string{
		"Maximal marginal relevance trades relevance for novelty.",
		"The upload endpoint accepts PDF files only.",
	}}
	pipe, err := ingestion.NewPipeline(ld, sp, col)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{loader: ld, col: col, reg: prometheus.NewRegistry(), rawDir: filepath.Join(dir, "raw")}

	var gen rag.Generator
	if withGenerator {
		env.model = provider.NewFakeChatModel(provider.FakeAnswer)
		g, err := provider.NewGenerator(ctx, env.model)
		if err != nil {
			t.Fatal(err)
		}
		gen = g
	}
	engine, err := rag.NewEngine(col, gen, rag.Defaults{K: 5, SearchType: rag.SearchDiversity})
	if err != nil {
		t.Fatal(err)
	}

	env.uploads, err = store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { env.uploads.Close() })

	cfg := &Config{
		Logger:          logging.NewWriter(io.Discard, "error", "text"),
		RawDir:          env.rawDir,
		MetricsRegistry: env.reg,
		MetricsGatherer: env.reg,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	env.srv, err = New(Deps{Querier: engine, Ingester: pipe, Index: col, Uploads: env.uploads}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(env.srv.stopRL)
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.RemoteAddr = "127.0.0.1:5555"
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// TestUploadThenQuery covers the upload → stats → query flow end to end.
func TestUploadThenQuery(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	w := env.do(t, uploadRequest(t, "notes.pdf", []byte("%PDF-1.4 fake")))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d, body: %s", w.Code, w.Body.String())
	}
	up := decode[store.Upload](t, w)
	if up.Filename != "notes.pdf" || up.NumDocs != 2 || up.NumChunks != 2 || up.Collection != "documents" {
		t.Errorf("unexpected upload response %+v", up)
	}
	if up.UploadedAt.IsZero() {
		t.Error("uploaded_at should be set")
	}
	if _, err := os.Stat(filepath.Join(env.rawDir, "notes.pdf")); err != nil {
		t.Errorf("uploaded file not stored: %v", err)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	stats := decode[rag.Stats](t, w)
	if stats.TotalVectors != 2 || stats.Collection != "documents" {
		t.Errorf("unexpected stats %+v", stats)
	}

	w = env.do(t, jsonRequest(http.MethodPost, "/v1/rag/query",
		`{"question":"Which files does the upload endpoint accept?","k":1,"search_type":"similarity"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("query: expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	res := decode[rag.Result](t, w)
	if res.Answer != nil {
		t.Errorf("answer should be null without generate, got %q", *res.Answer)
	}
	if len(res.Hits) != 1 || !strings.HasPrefix(res.Hits[0].Metadata[rag.MetaChunkID], "notes.pdf#c") {
		t.Errorf("unexpected hits %+v", res.Hits)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/v1/documents/uploads?limit=5", nil))
	list := decode[uploadsResponse](t, w)
	if len(list.Uploads) != 1 || list.Uploads[0].Filename != "notes.pdf" || list.Uploads[0].NumChunks != 2 {
		t.Errorf("unexpected upload log %+v", list)
	}

	if got := counterValue(t, env.reg, "pdfrag_ingest_chunks_total", ""); got != 2 {
		t.Errorf("ingest_chunks_total = %v, want 2", got)
	}
	if got := counterValue(t, env.reg, "pdfrag_query_requests_total", "ok"); got != 1 {
		t.Errorf("query_requests_total{outcome=ok} = %v, want 1", got)
	}
}

// TestQuery_FakeGeneration verifies the fake model answer and that the
// prompt carries the retrieved context.
func TestQuery_FakeGeneration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)

	if w := env.do(t, uploadRequest(t, "notes.pdf", []byte("x"))); w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}

	w := env.do(t, jsonRequest(http.MethodPost, "/v1/rag/query", `{"question":"What does MMR trade?","generate":true}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	res := decode[rag.Result](t, w)
	if res.Answer == nil || *res.Answer != provider.FakeAnswer {
		t.Errorf("answer = %v, want %q", res.Answer, provider.FakeAnswer)
	}
	if len(res.Hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(res.Hits))
	}
	if env.model.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", env.model.Calls())
	}
	var prompt strings.Builder
	for _, m := range env.model.LastInput() {
		prompt.WriteString(m.Content)
	}
	if !strings.Contains(prompt.String(), "Maximal marginal relevance") {
		t.Errorf("prompt missing retrieved context: %s", prompt.String())
	}
}

// TestUpload_RejectsNonPDF verifies nothing is written and the index is
// untouched when the file name is not a PDF.
func TestUpload_RejectsNonPDF(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	for _, name := range []string{"notes.txt", "report.pdf.exe", "noextension"} {
		w := env.do(t, uploadRequest(t, name, []byte("hello")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
		if body := decode[errorResponse](t, w); body.Error == "" {
			t.Errorf("%s: expected error body", name)
		}
	}

	if _, err := os.Stat(env.rawDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("raw dir should not exist, stat err = %v", err)
	}
	if env.loader.calls.Load() != 0 {
		t.Errorf("loader called %d times", env.loader.calls.Load())
	}
	stats, err := env.col.Stats(context.Background())
	if err != nil || stats.TotalVectors != 0 {
		t.Errorf("index mutated: %+v, %v", stats, err)
	}
	ups, _ := env.uploads.Recent(context.Background(), 10)
	if len(ups) != 0 {
		t.Errorf("upload log mutated: %+v", ups)
	}
}

func TestUpload_FailedIngestLeavesRawDirUnchanged(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	if w := env.do(t, uploadRequest(t, "bad.pdf", []byte("corrupt bytes"))); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("corrupt upload: expected 422, got %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(env.rawDir, "bad.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("rejected upload left on disk, stat err = %v", err)
	}

	// A failed replacement keeps the previously accepted file.
	if w := env.do(t, uploadRequest(t, "keep.pdf", []byte("%PDF-1.4 good"))); w.Code != http.StatusCreated {
		t.Fatalf("good upload: expected 201, got %d", w.Code)
	}
	if w := env.do(t, uploadRequest(t, "keep.pdf", []byte("corrupt again"))); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("corrupt replacement: expected 422, got %d", w.Code)
	}
	got, err := os.ReadFile(filepath.Join(env.rawDir, "keep.pdf"))
	if err != nil || string(got) != "%PDF-1.4 good" {
		t.Errorf("keep.pdf = %q, %v; want the original upload", got, err)
	}
	entries, _ := os.ReadDir(env.rawDir)
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("raw dir holds %v, want only keep.pdf", names)
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("other", "x")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if w := env.do(t, req); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"question":`, http.StatusBadRequest},
		{"empty question", `{"question":"  "}`, http.StatusBadRequest},
		{"bad k", `{"question":"q","k":0}`, http.StatusBadRequest},
		{"bad search type", `{"question":"q","search_type":"cosine"}`, http.StatusBadRequest},
		{"generation unavailable", `{"question":"q","generate":true}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, jsonRequest(http.MethodPost, "/v1/rag/query", tt.body))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d, body: %s", tt.want, w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", rag.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("x: %w", rag.ErrLoad), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", rag.ErrConfiguration), http.StatusServiceUnavailable},
		{rag.BackendFailure("embed", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{rag.BackendFailure("embed", errors.New("connection refused")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestEcho(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	w := env.do(t, jsonRequest(http.MethodPost, "/v1/echo", `{"question":"ping"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	res := decode[rag.Result](t, w)
	if res.Answer == nil || *res.Answer != "echo: ping" || res.Hits == nil || len(res.Hits) != 0 {
		t.Errorf("unexpected echo response %+v", res)
	}
}

func TestUploads_Disabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)
	env.srv.uploads = nil

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/documents/uploads", nil)); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestUploads_BadLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/documents/uploads?limit=-1", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	if got := env.do(t, req).Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if got := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil)).Header().Get(requestIDHeader); got == "" {
		t.Error("expected generated request id")
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, nil); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

// counterValue returns the counter named name, filtered by its outcome
// label when outcome is non-empty.
func counterValue(t *testing.T, reg *prometheus.Registry, name, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if outcome == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
