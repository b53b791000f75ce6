package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which restores the
// document catalog and serves the JSON API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Start the docqa HTTP API.

Documents ingested earlier (by this server or by 'docqa ingest') are
restored from storage and their indexes are loaded on first use.

Examples:
  docqa serve
  docqa serve --port 9090
  MODEL_PROVIDER=openai docqa serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			flush := tracing.Setup(log)
			defer flush()

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("provider", string(providerCfg.Backend)),
				slog.String("model", providerCfg.ModelName()),
			)

			rt, closeRuntime, err := buildRuntime(ctx, log, runtimeOptions{
				embed:      true,
				mirror:     true,
				registerer: prometheus.DefaultRegisterer,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeRuntime()

			var history store.ConversationStore
			if rt.settings.HistoryEnabled {
				history = rt.db
			} else {
				log.Info("history: disabled via DOCQA_HISTORY=disabled")
			}

			answers, err := assistant.New(&assistant.Config{
				ChatModel: chatModel,
				History:   history,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise assistant: %w", err)
			}

			if !cmd.Flags().Changed("host") && rt.settings.Host != "" {
				host = rt.settings.Host
			}
			if !cmd.Flags().Changed("port") && rt.settings.Port != 0 {
				port = rt.settings.Port
			}

			srv, err := server.New(rt.pipeline, answers, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        buildPingers(rt, string(providerCfg.Backend), providerCfg.Endpoint()),
				RateLimit:      rt.settings.RateLimit,
				RateBurst:      rt.settings.RateBurst,
				APIKey:         rt.settings.APIKey,
				MaxUploadBytes: rt.settings.MaxUploadBytes,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx) //nolint:wrapcheck // already prefixed by server
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
