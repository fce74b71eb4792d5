package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/mcpserver"
	"github.com/54b3r/pdfrag/internal/tracing"
)

// NewMCPCmd constructs the `pdfrag mcp` command, which serves the query and
// stats tools to an MCP client over stdio.
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve pdfrag tools over the Model Context Protocol (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing two tools:

  rag_query  {question, generate, k, search_type}
  rag_stats  {}

Logs go to stderr so the protocol stream stays clean. Register it with an
MCP client as: pdfrag mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			flush := tracing.Install(tracing.SettingsFromEnv(), log)
			defer flush()

			a, err := openApp(ctx, log)
			if err != nil {
				return fmt.Errorf("mcp: %w", exitHint(err))
			}
			defer a.Close()

			srv, err := mcpserver.New(a.engine, a.coll)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return srv.Run(ctx)
		},
	}
}
