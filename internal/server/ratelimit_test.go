package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func limitedRequest(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/query", strings.NewReader("{}"))
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLimiter_BurstThenReject(t *testing.T) {
	t.Parallel()

	l, stop := newLimiter(0.001, 3)
	defer stop()
	h := l.wrap(routeQuery, okHandler)

	for i := range 3 {
		if w := limitedRequest(h, "10.0.0.1:5000"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i, w.Code)
		}
	}
	w := limitedRequest(h, "10.0.0.1:5001")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	// One token every 1000s.
	if secs, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || secs < 999 || secs > 1001 {
		t.Errorf("Retry-After = %q, want about 1000", w.Header().Get("Retry-After"))
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "query") {
		t.Errorf("expected route in error body, got %s", w.Body.String())
	}
}

func TestLimiter_IsolatesClientsAndRoutes(t *testing.T) {
	t.Parallel()

	l, stop := newLimiter(0.001, 1)
	defer stop()
	query := l.wrap(routeQuery, okHandler)
	upload := l.wrap(routeUpload, okHandler)

	if w := limitedRequest(query, "192.0.2.1:1"); w.Code != http.StatusOK {
		t.Fatalf("first query: %d", w.Code)
	}
	if w := limitedRequest(query, "192.0.2.1:2"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second query from same client: %d", w.Code)
	}
	if w := limitedRequest(upload, "192.0.2.1:3"); w.Code != http.StatusOK {
		t.Errorf("upload budget must be separate from query budget, got %d", w.Code)
	}
	if w := limitedRequest(query, "192.0.2.2:1"); w.Code != http.StatusOK {
		t.Errorf("other client must have its own budget, got %d", w.Code)
	}
}

func TestLimiter_RejectionDoesNotConsume(t *testing.T) {
	t.Parallel()

	// 10ms per token: five uncancelled reservations would owe 50ms.
	l, stop := newLimiter(100, 1)
	defer stop()
	key := bucketKey{client: "c", route: routeQuery}

	if _, ok := l.take(key); !ok {
		t.Fatal("first take must succeed")
	}
	for range 5 {
		l.take(key)
	}
	time.Sleep(15 * time.Millisecond)
	if _, ok := l.take(key); !ok {
		t.Error("cancelled reservations must not delay the next token")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	t.Parallel()

	l, stop := newLimiter(1, 1)
	defer stop()
	l.take(bucketKey{client: "a", route: routeQuery})
	l.take(bucketKey{client: "b", route: routeUpload})

	if n := l.sweep(time.Now().Add(-time.Minute)); n != 2 {
		t.Errorf("recent buckets swept: %d left", n)
	}
	if n := l.sweep(time.Now().Add(time.Second)); n != 0 {
		t.Errorf("idle buckets kept: %d left", n)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	for d, want := range map[time.Duration]string{
		10 * time.Millisecond:   "1",
		1500 * time.Millisecond: "2",
		3 * time.Second:         "3",
	} {
		if got := retryAfter(d); got != want {
			t.Errorf("retryAfter(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestRemoteHost(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]string{
		"127.0.0.1:8000":    "127.0.0.1",
		"[::1]:443":         "::1",
		"unix-socket":       "unix-socket",
		"203.0.113.9:65535": "203.0.113.9",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := remoteHost(req); got != want {
			t.Errorf("remoteHost(%q) = %q, want %q", addr, got, want)
		}
	}
}
