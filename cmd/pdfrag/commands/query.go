package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag/internal/eval"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
)

// queryPreviewChars bounds the hit preview printed in text mode.
const queryPreviewChars = 240

// NewQueryCmd constructs the `pdfrag query` command, which runs a single
// retrieval (and optional generation) against the collection.
func NewQueryCmd() *cobra.Command {
	var generate bool
	var k int
	var searchType string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve chunks for a question and optionally generate an answer",
		Long: `Retrieve the most relevant chunks for a question.

--search-type selects similarity (nearest neighbours) or diversity (maximal
marginal relevance, alias mmr). With --generate, the configured model
answers from the retrieved chunks only.

Examples:
  pdfrag query "what is the warranty period?"
  pdfrag query --generate --k 8 "summarise chapter 2"
  pdfrag query --search-type similarity --json "termination clause"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			a, err := openApp(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", exitHint(err))
			}
			defer a.Close()

			req := rag.Request{Question: strings.Join(args, " "), Generate: generate}
			if cmd.Flags().Changed("k") {
				req.K = &k
			}
			if cmd.Flags().Changed("search-type") {
				req.SearchType = &searchType
			}

			res, err := a.engine.Execute(ctx, req)
			if err != nil {
				return fmt.Errorf("query: %w", exitHint(err))
			}
			if res.Hits == nil {
				res.Hits = []rag.Hit{}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(out, res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&generate, "generate", "g", false, "Generate an answer from the retrieved chunks")
	cmd.Flags().IntVarP(&k, "k", "k", rag.DefaultK, "Number of chunks to retrieve (default from RETRIEVER_K)")
	cmd.Flags().StringVarP(&searchType, "search-type", "s", "", "similarity | diversity | mmr (default from RETRIEVER_SEARCH_TYPE)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON result")

	return cmd
}

// printResult writes a human-readable rendering of res.
func printResult(w io.Writer, res rag.Result) {
	if res.Answer != nil {
		fmt.Fprintf(w, "Answer:\n%s\n\n", *res.Answer)
	}
	if len(res.Hits) == 0 {
		fmt.Fprintln(w, "No matching chunks.")
		return
	}
	fmt.Fprintf(w, "Hits (%d):\n", len(res.Hits))
	for i, h := range res.Hits {
		fmt.Fprintf(w, "%2d. %s", i+1, h.Metadata[rag.MetaChunkID])
		if p, ok := h.Metadata[rag.MetaPage]; ok {
			fmt.Fprintf(w, " (page %s)", p)
		}
		fmt.Fprintf(w, "\n    %s\n", eval.Preview(h.Content, queryPreviewChars))
	}
}
