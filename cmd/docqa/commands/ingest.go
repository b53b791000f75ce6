package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which indexes local
// files into persistent storage.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest TXT, DOCX or PDF files",
		Long: `Extract, chunk and embed one or more local files and persist their
indexes. Each file's document_id is derived from its filename; ingesting a
file with the same name replaces the earlier document.

Examples:
  docqa ingest report.pdf
  docqa ingest notes.txt contract.docx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			rt, closeRuntime, err := buildRuntime(ctx, log, runtimeOptions{embed: true, mirror: true})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeRuntime()

			out := cmd.OutOrStdout()
			var errs []error
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					errs = append(errs, fmt.Errorf("ingest: read %s: %w", path, err))
					continue
				}
				res, err := rt.pipeline.Ingest(ctx, data, filepath.Base(path))
				if err != nil {
					errs = append(errs, fmt.Errorf("ingest: %s: %w", path, err))
					continue
				}
				fmt.Fprintf(out, "%s\t%d words\t%d chunks\t%s\n",
					res.DocumentID, res.WordCount, res.ChunkCount, res.Summary)
			}
			return errors.Join(errs...)
		},
	}
	return cmd
}
