package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag/internal/ingestion"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/store"
)

// NewIngestCmd constructs the `pdfrag ingest` command, which indexes PDF
// files into the configured collection.
func NewIngestCmd() *cobra.Command {
	var watchDir string

	cmd := &cobra.Command{
		Use:   "ingest [pdf...]",
		Short: "Index PDF files into the vector collection",
		Long: `Load, split, embed and store one or more PDF files.

Chunk ids are "{file name}#c{n}", so re-ingesting a file with the same name
replaces its chunks. With --watch, the command keeps running and indexes
every PDF created in or moved into the directory.

Examples:
  pdfrag ingest report.pdf manual.pdf
  pdfrag ingest --watch ./inbox
  EMBEDDING_PROVIDER=ollama pdfrag ingest data/raw/*.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && watchDir == "" {
				return fmt.Errorf("ingest: at least one PDF or --watch is required")
			}
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			a, err := openApp(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", exitHint(err))
			}
			defer a.Close()

			var uploads store.UploadLog
			if s := openUploadLog(log); s != nil {
				uploads = s
				defer func() { _ = s.Close() }()
			}

			out := cmd.OutOrStdout()
			report := func(res ingestion.Result) {
				recordIngest(ctx, log, uploads, a.coll.Name(), res)
				fmt.Fprintf(out, "indexed %s: %d pages, %d chunks\n", res.Path, res.NumDocs, res.NumChunks)
			}

			if _, err := a.pipeline.IngestFiles(ctx, args, report); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if watchDir == "" {
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(out, "watching %s for new PDFs (Ctrl-C to stop)\n", watchDir)
			return a.pipeline.Watch(ctx, watchDir, ingestion.WatchOptions{
				OnResult: func(res ingestion.Result, err error) {
					if err != nil {
						log.Warn("ingest: watched file failed", slog.String("file", res.Path), slog.Any("error", err))
						return
					}
					report(res)
				},
			})
		},
	}

	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "Directory to watch for new PDFs after the listed files are indexed")

	return cmd
}
