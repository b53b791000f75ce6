package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewDocsCmd constructs the `docqa docs` command, which lists ingested
// documents.
func NewDocsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, closeRuntime, err := buildRuntime(ctx, logging.FromContext(ctx), runtimeOptions{})
			if err != nil {
				return fmt.Errorf("docs: %w", err)
			}
			defer closeRuntime()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOCUMENT_ID\tTYPE\tWORDS\tCHUNKS\tUPLOADED\tMODEL")
			for _, d := range rt.pipeline.Documents() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
					d.ID, d.Format, d.WordCount, d.ChunkCount,
					d.UploadedAt.Format("2006-01-02 15:04"), d.EmbeddingModel)
			}
			return tw.Flush() //nolint:wrapcheck // CLI entry point
		},
	}
}
