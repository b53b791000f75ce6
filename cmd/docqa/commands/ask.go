package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewAskCmd constructs the `docqa ask` command, which answers one question
// about an ingested document.
func NewAskCmd() *cobra.Command {
	var topK int
	var contextOnly bool

	cmd := &cobra.Command{
		Use:   "ask <document_id> <question>",
		Short: "Ask a question about an ingested document",
		Long: `Retrieve the passages of a document most relevant to a question and
ask the chat model to answer from them. With --context-only the retrieved
context is printed and no model is called.

Examples:
  docqa ask report "What was the revenue in Q3?"
  docqa ask report "termination clause" --context-only --top-k 3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			documentID, question := args[0], strings.Join(args[1:], " ")

			rt, closeRuntime, err := buildRuntime(ctx, log, runtimeOptions{embed: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeRuntime()

			res, err := rt.pipeline.QueryContext(ctx, documentID, question, topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if contextOnly {
				fmt.Fprintln(out, res.Context)
				return nil
			}

			flush := tracing.Setup(log)
			defer flush()

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}
			var history store.ConversationStore
			if rt.settings.HistoryEnabled {
				history = rt.db
			}
			answers, err := assistant.New(&assistant.Config{ChatModel: chatModel, History: history})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer, err := answers.Answer(ctx, &assistant.AnswerRequest{
				DocumentID: documentID,
				Question:   question,
				Context:    res.Context,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintln(out, answer)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages to retrieve (default: DOCQA_TOP_K or 5)")
	cmd.Flags().BoolVar(&contextOnly, "context-only", false, "Print the retrieved context without calling the model")

	return cmd
}
