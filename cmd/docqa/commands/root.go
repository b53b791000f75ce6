// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "docqa: ask questions about your documents",
		Long: `docqa ingests TXT, DOCX and PDF documents, indexes them for semantic
retrieval and answers questions grounded in their content.

Model and embedding providers are selected via MODEL_PROVIDER and
EMBEDDING_PROVIDER, or a YAML config file (~/.docqa/config.yaml).
A .env file in the working directory is loaded first.
See 'docqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env never overrides variables already present in the environment.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("config: failed to load .env", slog.Any("error", err))
			}

			log := logging.New()
			path, err := config.Load(configPath, log)
			if err != nil {
				return err //nolint:wrapcheck // already prefixed by config
			}

			// Config may have changed LOG_LEVEL or LOG_FORMAT.
			log = logging.New()
			slog.SetDefault(log)
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), len(args), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewDocsCmd(),
		NewDeleteCmd(),
		NewVersionCmd(),
	)

	return root
}
