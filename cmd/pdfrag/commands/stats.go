package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag/internal/logging"
)

// NewStatsCmd constructs the `pdfrag stats` command.
func NewStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the configured collection and its vector count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("stats: %w", exitHint(err))
			}
			defer a.Close()

			st, err := a.coll.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(st)
			}
			fmt.Fprintf(out, "collection:        %s\n", st.Collection)
			fmt.Fprintf(out, "persist_directory: %s\n", st.PersistDirectory)
			fmt.Fprintf(out, "total_vectors:     %d\n", st.TotalVectors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON stats")

	return cmd
}

// NewResetCmd constructs the `pdfrag reset` command, which deletes every
// chunk in the configured collection.
func NewResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the configured collection",
		Long: `Delete the configured collection and all of its chunks.

The source PDFs and the upload log are left untouched. Re-run
'pdfrag ingest' to rebuild the index. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset: refusing to delete the collection without --yes")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("reset: %w", exitHint(err))
			}
			defer a.Close()

			if err := a.coll.DeleteCollection(ctx); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted collection %s (%s)\n", a.coll.Name(), a.coll.Location())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}
