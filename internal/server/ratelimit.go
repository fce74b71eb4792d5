package server

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/pdfrag/internal/logging"
)

// Per-client token bucket defaults for the upload and query routes.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Idle buckets are swept after bucketIdle, checked every sweepEvery.
const (
	bucketIdle = 5 * time.Minute
	sweepEvery = time.Minute
)

// Route classes with independent budgets, so a burst of uploads from one
// client does not exhaust its query budget.
const (
	routeUpload = "upload"
	routeQuery  = "query"
)

// bucketKey identifies one client's budget on one route class.
type bucketKey struct {
	client string
	route  string
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiter hands out per-(client, route) token buckets.
type limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	every   rate.Limit
	burst   int
}

// newLimiter starts a limiter and its idle-bucket sweeper. The returned
// function stops the sweeper.
func newLimiter(rps float64, burst int) (*limiter, func()) {
	l := &limiter{
		buckets: make(map[bucketKey]*bucket),
		every:   rate.Limit(rps),
		burst:   burst,
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				l.sweep(now.Add(-bucketIdle))
			}
		}
	}()
	return l, func() { close(done) }
}

// take consumes one token for key. When none is available it returns the
// wait until the next token and false, leaving the bucket untouched.
func (l *limiter) take(key bucketKey) (time.Duration, bool) {
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64), false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d, false
	}
	return 0, true
}

// sweep drops buckets not used since cutoff and reports how many remain.
func (l *limiter) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
	return len(l.buckets)
}

// wrap enforces the route budget in front of next. Rejected requests get a
// 429 JSON error with Retry-After in whole seconds.
func (l *limiter) wrap(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := remoteHost(r)
		wait, ok := l.take(bucketKey{client: client, route: route})
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("client", client),
			slog.String("route", route),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", retryAfter(wait))
		writeJSON(w, r, http.StatusTooManyRequests,
			errorResponse{Error: fmt.Sprintf("rate limit exceeded for %s requests", route)})
	})
}

// retryAfter renders d as whole seconds, rounded up, at least 1. A bucket
// that can never refill (zero burst) is reported as one hour.
func retryAfter(d time.Duration) string {
	if d == time.Duration(math.MaxInt64) {
		return "3600"
	}
	return strconv.FormatInt(max(1, int64(math.Ceil(d.Seconds()))), 10)
}

// remoteHost returns the host part of RemoteAddr. Forwarding headers are
// ignored; the server binds to loopback by default.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
