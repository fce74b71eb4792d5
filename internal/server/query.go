package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/54b3r/pdfrag/internal/rag"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// Query outcomes recorded in the query metrics.
const (
	outcomeOK      = "ok"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

// handleQuery handles POST /v1/rag/query. Overrides in the body apply to
// this request only.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	res, err := s.querier.Execute(r.Context(), rag.Request{
		Question:   req.Question,
		Generate:   req.Generate,
		K:          req.K,
		SearchType: req.SearchType,
	})
	outcome := outcomeOK
	switch {
	case rag.IsTimeout(err):
		outcome = outcomeTimeout
	case err != nil:
		outcome = outcomeError
	}
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Hits == nil {
		res.Hits = []rag.Hit{}
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleEcho handles POST /v1/echo, a pipeline smoke test that needs no
// index or model.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	var req echoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	answer, err := s.echo.Answer(r.Context(), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rag.Result{Answer: &answer, Hits: []rag.Hit{}})
}

// decodeJSON reads a bounded JSON body into dst. Malformed bodies wrap
// rag.ErrValidation.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return fmt.Errorf("server: malformed JSON at offset %d: %w", syntax.Offset, rag.ErrValidation)
		}
		return fmt.Errorf("server: invalid request body: %w: %w", rag.ErrValidation, err)
	}
	return nil
}
