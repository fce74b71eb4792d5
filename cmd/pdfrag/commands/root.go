// Package commands defines all Cobra CLI commands for the pdfrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag/internal/audit"
	"github.com/54b3r/pdfrag/internal/config"
	"github.com/54b3r/pdfrag/internal/logging"
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "pdfrag",
		Short: "pdfrag indexes PDFs and answers questions over them",
		Long: `pdfrag is a retrieval-augmented generation service for PDF documents.

PDFs are split into chunks, embedded, and stored in a vector collection
(local SQLite by default, or Qdrant). Questions retrieve the most relevant
chunks and, on request, a grounded answer from the configured model.

Backends are selected with environment variables (MODEL_PROVIDER,
EMBEDDING_PROVIDER, VECTOR_STORE_PROVIDER), a .env file, or a config file
(~/.pdfrag/config.yaml, ./pdfrag.yaml or ./pdfrag.toml). The defaults need
no network access: fake embeddings, fake generation and a SQLite index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			// LOG_* may come from the config file, so rebuild the logger.
			log = logging.New()

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or TOML config file (default: ~/.pdfrag/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewQueryCmd(),
		NewStatsCmd(),
		NewResetCmd(),
		NewEvalCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return root
}
