package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/pdfrag/internal/logging"
)

func TestRequestLogger_LevelByStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			h := requestLogger(logging.NewWriter(&buf, "debug", "json"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("log line: %v (%q)", err, buf.String())
			}
			if rec["level"] != tt.level || rec["status"] != float64(tt.status) || rec["bytes"] != float64(4) {
				t.Errorf("unexpected record: %v", rec)
			}
		})
	}
}

func TestRequestID_RejectsOversized(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	if got := requestID(r); len(got) > maxRequestIDLen || strings.HasPrefix(got, "xx") {
		t.Errorf("oversized id should be replaced, got %q", got)
	}
}

func TestRecoverPanics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logging.NewWriter(&buf, "debug", "text")
	h := requestLogger(log, recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error == "" {
		t.Errorf("expected JSON error body, got %q (%v)", w.Body.String(), err)
	}
	if !strings.Contains(buf.String(), "handler panic") || !strings.Contains(buf.String(), "panic=boom") {
		t.Errorf("panic not logged: %q", buf.String())
	}
}

func TestRecoverPanics_ReraisesAbort(t *testing.T) {
	t.Parallel()

	h := recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
