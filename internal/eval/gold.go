// Package eval scores retrieval quality across embedding models. It loads a
// gold set of questions with their relevant chunk ids, rebuilds an isolated
// collection per candidate model from the same chunks, and reports
// Recall@K, MRR@K and NDCG@K averaged over the gold set.
package eval

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
)

// Gold CSV column names.
const (
	colQuestion    = "question"
	colRelevantIDs = "relevant_chunk_ids"
)

// QueryCase is one gold question with the chunk ids that answer it.
type QueryCase struct {
	// Question is the query text.
	Question string
	// RelevantIDs is the set of relevant chunk ids.
	RelevantIDs map[string]struct{}
}

// Relevant reports whether id answers the question.
func (q QueryCase) Relevant(id string) bool {
	_, ok := q.RelevantIDs[id]
	return ok
}

// LoadGold reads a CSV with header question,relevant_chunk_ids. The ids are
// ';'-separated and trimmed. Rows with an empty question are skipped and
// their line numbers logged as a warning. A missing or empty file, or a
// missing column, wraps rag.ErrLoad.
func LoadGold(ctx context.Context, path string) ([]QueryCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eval: gold file %s: %w: %w", path, rag.ErrLoad, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("eval: gold file %s is empty: %w", path, rag.ErrLoad)
	}
	if err != nil {
		return nil, fmt.Errorf("eval: read gold header: %w: %w", rag.ErrLoad, err)
	}

	qi, ri := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case colQuestion:
			qi = i
		case colRelevantIDs:
			ri = i
		}
	}
	if qi < 0 || ri < 0 {
		return nil, fmt.Errorf("eval: gold file %s needs columns %s,%s: %w", path, colQuestion, colRelevantIDs, rag.ErrLoad)
	}

	var (
		cases   []QueryCase
		skipped []int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("eval: read gold row: %w: %w", rag.ErrLoad, err)
		}
		q := field(rec, qi)
		if q == "" {
			line, _ := r.FieldPos(0)
			skipped = append(skipped, line)
			continue
		}
		rel := make(map[string]struct{})
		for _, id := range strings.Split(field(rec, ri), ";") {
			if id = strings.TrimSpace(id); id != "" {
				rel[id] = struct{}{}
			}
		}
		cases = append(cases, QueryCase{Question: q, RelevantIDs: rel})
	}
	if len(skipped) > 0 {
		logging.FromContext(ctx).Warn("gold rows without a question skipped",
			slog.String("path", path),
			slog.Any("lines", skipped),
		)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("eval: gold file %s has no questions: %w", path, rag.ErrLoad)
	}
	return cases, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
