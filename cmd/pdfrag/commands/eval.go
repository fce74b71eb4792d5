package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/54b3r/pdfrag/internal/embedder"
	"github.com/54b3r/pdfrag/internal/eval"
	"github.com/54b3r/pdfrag/internal/loader"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
	"github.com/54b3r/pdfrag/internal/splitter"
	"github.com/54b3r/pdfrag/internal/vectorstore"
)

// exampleChunkIDs is how many chunk ids are printed after splitting.
const exampleChunkIDs = 10

// NewEvalCmd constructs the `pdfrag eval` command, which scores candidate
// embedding models against a gold question set.
func NewEvalCmd() *cobra.Command {
	var (
		rawDir, gold, models, reportsDir, indexDir string
		k, dumpK                                   int
		searchType                                 string
		include                                    string
		dump                                       bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score embedding models on retrieval quality",
		Long: `Evaluate candidate embedding models on a gold question set.

Every PDF in the raw directory is split once. Each candidate from the models
file (YAML list of {tag, provider, model, base_url, dimensions}) gets its own
collection "eval_<tag>" which is rebuilt from scratch, then every gold
question is searched and scored with Recall@k, MRR@k and NDCG@k.

The gold CSV needs the columns question and relevant_chunk_ids, where ids
are "{file name}#c{n}" joined with ';'. Results are printed as a table and
written to reports/metrics_YYYYMMDD_HHMMSS.csv.

Flags override the EVAL_* environment variables.

Examples:
  pdfrag eval
  pdfrag eval --k 10 --include fake-a,nomic
  pdfrag eval --dump --dump-k 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			cfg, err := eval.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("raw-dir") {
				cfg.RawDir = rawDir
			}
			if flags.Changed("gold") {
				cfg.Gold = gold
			}
			if flags.Changed("models") {
				cfg.Models = models
			}
			if flags.Changed("reports-dir") {
				cfg.ReportsDir = reportsDir
			}
			if flags.Changed("index-dir") {
				cfg.IndexDir = indexDir
			}
			if flags.Changed("k") {
				cfg.K = k
			}
			if flags.Changed("dump-k") {
				cfg.DumpK = dumpK
			}
			if flags.Changed("search-type") {
				if cfg.SearchType, err = rag.ParseSearchType(searchType); err != nil {
					return fmt.Errorf("eval: %w", err)
				}
			}
			if flags.Changed("include") {
				cfg.IncludeTags = eval.SplitTags(include)
			}
			if flags.Changed("dump") {
				cfg.Dump = dump
			}

			out := cmd.OutOrStdout()

			sp, err := splitter.NewFromEnv()
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			chunks, err := eval.LoadCorpus(ctx, cfg.RawDir, loader.PDFLoader{}, sp)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			fmt.Fprintf(out, "Split %d chunks from %s. Example chunk ids:\n", len(chunks), cfg.RawDir)
			for _, c := range chunks[:min(exampleChunkIDs, len(chunks))] {
				fmt.Fprintf(out, "  %s\n", c.ID())
			}

			cases, err := eval.LoadGold(ctx, cfg.Gold)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			cands, err := eval.LoadCandidates(cfg.Models)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			cands = eval.FilterTags(cands, cfg.IncludeTags)
			if len(cands) == 0 {
				return fmt.Errorf("eval: no candidates left after EVAL_INCLUDE_TAGS filter %v: %w", cfg.IncludeTags, rag.ErrConfiguration)
			}
			log.Info("eval: starting",
				slog.Int("questions", len(cases)),
				slog.Int("candidates", len(cands)),
				slog.Int("k", cfg.K),
				slog.String("search_type", string(cfg.SearchType)),
			)

			storeCfg, err := vectorstore.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			storeCfg.Dir = cfg.IndexDir

			var dumpTo io.Writer
			if cfg.Dump {
				dumpTo = out
			}
			h, err := eval.NewHarness(embedder.NewResolver(log), eval.Options{
				Store:        storeCfg,
				K:            cfg.K,
				SearchType:   cfg.SearchType,
				ChunkSize:    sp.Size(),
				ChunkOverlap: sp.Overlap(),
				Dump:         dumpTo,
				DumpK:        cfg.DumpK,
				Logger:       log,
			})
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}

			rows, err := h.Run(ctx, cases, chunks, cands)
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprint(out, eval.RenderTable(rows, isTerminal(out)))
			path, err := eval.WriteReport(cfg.ReportsDir, rows, time.Now())
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			fmt.Fprintf(out, "\nSaved metrics to %s\n", path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&rawDir, "raw-dir", eval.DefaultRawDir, "Directory of PDFs to evaluate on (EVAL_RAW_DIR)")
	f.StringVar(&gold, "gold", eval.DefaultGold, "Gold question CSV (EVAL_GOLD)")
	f.StringVar(&models, "models", eval.DefaultModels, "Candidate models YAML (EVAL_MODELS)")
	f.StringVar(&reportsDir, "reports-dir", eval.DefaultReportsDir, "Directory for metrics CSV reports (EVAL_REPORTS_DIR)")
	f.StringVar(&indexDir, "index-dir", eval.DefaultIndexDir, "Persist directory for eval collections (EVAL_INDEX_DIR)")
	f.IntVarP(&k, "k", "k", eval.DefaultK, "Metric cut-off (EVAL_K)")
	f.StringVar(&searchType, "search-type", string(rag.SearchDiversity), "similarity | diversity | mmr (EVAL_SEARCH_TYPE)")
	f.StringVar(&include, "include", "", "Comma-separated candidate tags to run (EVAL_INCLUDE_TAGS)")
	f.BoolVar(&dump, "dump", false, "Print the top candidates per question (EVAL_DUMP)")
	f.IntVar(&dumpK, "dump-k", eval.DefaultDumpK, "Candidates printed per question with --dump (EVAL_DUMP_K)")

	return cmd
}

// isTerminal reports whether w is a terminal, enabling the styled table.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
