package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/pdfrag/internal/logging"
)

// probeTimeout bounds each dependency probe in a readiness check.
const probeTimeout = 5 * time.Second

// Pinger reports whether one backend (index, upload log, model server) is
// reachable. Implementations must be safe for concurrent use.
type Pinger interface {
	// Name labels the dependency in readiness responses, e.g. "index".
	Name() string
	// Ping returns nil when the dependency is usable.
	Ping(ctx context.Context) error
}

// MultiPinger probes a fixed set of dependencies together.
type MultiPinger []Pinger

// NewMultiPinger groups pingers, preserving their order.
func NewMultiPinger(pingers ...Pinger) MultiPinger {
	return MultiPinger(pingers)
}

// Name returns "all".
func (m MultiPinger) Name() string { return "all" }

// Ping probes every dependency and joins the failures, each prefixed with
// the dependency name.
func (m MultiPinger) Ping(ctx context.Context) error {
	var errs []error
	for _, c := range m.Probe(ctx) {
		if !c.OK {
			errs = append(errs, fmt.Errorf("%s: %s", c.Name, c.Error))
		}
	}
	return errors.Join(errs...)
}

// Probe runs all probes concurrently, each under probeTimeout, and returns
// one check per pinger in registration order.
func (m MultiPinger) Probe(ctx context.Context) []readyCheck {
	checks := make([]readyCheck, len(m))
	var wg sync.WaitGroup
	for i, p := range m {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(pctx)
			checks[i] = readyCheck{
				Name:      p.Name(),
				OK:        err == nil,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				checks[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()
	return checks
}

// readyCheck is the outcome of one dependency probe.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// readyResponse is the body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. It answers 200 when every configured
// dependency responds and 503 otherwise. With no pingers it is equivalent
// to /api/health.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := NewMultiPinger(s.pingers...).Probe(r.Context())

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			logging.FromContext(r.Context()).Warn("readiness probe failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
