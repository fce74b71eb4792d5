package eval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/54b3r/pdfrag/internal/embedder"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/vectorstore"
)

// CollectionPrefix prefixes every candidate's collection name.
const CollectionPrefix = "eval_"

// PreviewChars bounds the chunk preview printed by the candidate dump.
const PreviewChars = 220

// Row is the averaged result for one candidate.
type Row struct {
	Tag          string
	ModelID      string
	Recall       float64
	MRR          float64
	NDCG         float64
	K            int
	ChunkSize    int
	ChunkOverlap int
}

// Options configures a Harness.
type Options struct {
	// Store is the vector store template. Collection is replaced per candidate.
	Store vectorstore.Config
	// K is the cut-off for every metric.
	K int
	// SearchType is the retrieval strategy under evaluation.
	SearchType rag.SearchType
	// ChunkSize and ChunkOverlap are reported alongside the metrics.
	ChunkSize    int
	ChunkOverlap int
	// Dump, when non-nil, receives the top DumpK candidates per question.
	Dump  io.Writer
	DumpK int
	// Logger receives progress records. Defaults to slog.Default.
	Logger *slog.Logger
}

// Harness evaluates candidate embedding models against a gold set.
type Harness struct {
	resolver *embedder.Resolver
	opts     Options
	log      *slog.Logger
}

// NewHarness validates opts and returns a Harness that resolves embedders
// through resolver.
func NewHarness(resolver *embedder.Resolver, opts Options) (*Harness, error) {
	if resolver == nil {
		return nil, fmt.Errorf("eval: embedder resolver is required: %w", rag.ErrConfiguration)
	}
	if opts.K < 1 {
		return nil, fmt.Errorf("eval: k must be >= 1, got %d: %w", opts.K, rag.ErrConfiguration)
	}
	if opts.SearchType == "" {
		opts.SearchType = rag.SearchDiversity
	}
	if _, err := rag.ParseSearchType(string(opts.SearchType)); err != nil {
		return nil, fmt.Errorf("eval: %w: %w", rag.ErrConfiguration, err)
	}
	if opts.DumpK < 1 {
		opts.DumpK = opts.K
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Harness{resolver: resolver, opts: opts, log: log.With(slog.String("component", "eval"))}, nil
}

// Run rebuilds each candidate's collection from chunks and scores every case
// against it. Candidates are processed one after another, each in its own
// collection, so results never mix.
func (h *Harness) Run(ctx context.Context, cases []QueryCase, chunks []rag.Chunk, cands []Candidate) ([]Row, error) {
	rows := make([]Row, 0, len(cands))
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		row, err := h.runCandidate(ctx, cases, chunks, c)
		if err != nil {
			return rows, fmt.Errorf("eval: candidate %q: %w", c.Tag, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (h *Harness) runCandidate(ctx context.Context, cases []QueryCase, chunks []rag.Chunk, c Candidate) (Row, error) {
	ecfg, err := c.EmbedderConfig()
	if err != nil {
		return Row{}, err
	}
	emb, err := h.resolver.Resolve(ecfg)
	if err != nil {
		return Row{}, err
	}

	scfg := h.opts.Store
	scfg.Collection = CollectionPrefix + c.Tag
	col, err := vectorstore.Open(ctx, scfg, emb)
	if err != nil {
		return Row{}, err
	}
	defer col.Close()

	start := time.Now()
	h.log.Info("eval: building embeddings",
		slog.String("tag", c.Tag),
		slog.String("model_id", ecfg.ModelID()),
		slog.String("collection", col.Name()),
	)
	if err := col.DeleteCollection(ctx); err != nil {
		return Row{}, err
	}
	n, err := col.Add(ctx, chunks)
	if err != nil {
		return Row{}, err
	}
	h.log.Info("eval: collection rebuilt",
		slog.String("collection", col.Name()),
		slog.Int("chunks", n),
		slog.Duration("duration", time.Since(start)),
	)

	recalls := make([]float64, 0, len(cases))
	mrrs := make([]float64, 0, len(cases))
	ndcgs := make([]float64, 0, len(cases))
	for _, q := range cases {
		hits, err := col.Search(ctx, q.Question, h.opts.K, h.opts.SearchType)
		if err != nil {
			return Row{}, err
		}
		ids := make([]string, len(hits))
		for i, hit := range hits {
			ids[i] = hit.ID()
		}
		recalls = append(recalls, RecallAtK(ids, q, h.opts.K))
		mrrs = append(mrrs, MRRAtK(ids, q, h.opts.K))
		ndcgs = append(ndcgs, NDCGAtK(ids, q, h.opts.K))

		if h.opts.Dump != nil {
			if err := h.dump(ctx, col, c.Tag, q.Question); err != nil {
				return Row{}, err
			}
		}
	}

	return Row{
		Tag:          c.Tag,
		ModelID:      ecfg.ModelID(),
		Recall:       mean(recalls),
		MRR:          mean(mrrs),
		NDCG:         mean(ndcgs),
		K:            h.opts.K,
		ChunkSize:    h.opts.ChunkSize,
		ChunkOverlap: h.opts.ChunkOverlap,
	}, nil
}

func (h *Harness) dump(ctx context.Context, col *vectorstore.Collection, tag, question string) error {
	hits, err := col.Search(ctx, question, h.opts.DumpK, h.opts.SearchType)
	if err != nil {
		return err
	}
	w := h.opts.Dump
	fmt.Fprintf(w, "\n--- Candidates [%s] top %d\nQ: %s\n\n", tag, h.opts.DumpK, question)
	for i, hit := range hits {
		id := hit.ID()
		if id == "" {
			id = "unknown#c?"
		}
		src := hit.Metadata[rag.MetaDocID]
		if src == "" {
			src = hit.Metadata[rag.MetaSource]
		}
		fmt.Fprintf(w, "%02d. %s [%s]\n    %s\n", i+1, id, src, Preview(hit.Content, PreviewChars))
	}
	fmt.Fprintln(w, strings.Repeat("-", 70))
	return nil
}

// Preview collapses whitespace in s and shortens it to at most width runes,
// cutting at a word boundary and marking the cut with " …".
func Preview(s string, width int) string {
	words := strings.FieldsFunc(s, unicode.IsSpace)
	text := strings.Join(words, " ")
	if len([]rune(text)) <= width {
		return text
	}
	const placeholder = " …"
	budget := width - len([]rune(placeholder))
	var b strings.Builder
	used := 0
	for _, w := range words {
		n := len([]rune(w))
		if used > 0 {
			n++
		}
		if used+n > budget {
			break
		}
		if used > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		used += n
	}
	if used == 0 {
		return strings.TrimSpace(placeholder)
	}
	return b.String() + placeholder
}
