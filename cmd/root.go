// Package cmd implements the chatbridge CLI using cobra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chatbridge/internal/config"
	"chatbridge/internal/credential"
	"chatbridge/internal/provider"
	"chatbridge/internal/response"
	"chatbridge/internal/router"
	"chatbridge/internal/stream"
	"chatbridge/internal/transport"
)

const version = "0.1.0"

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd(ctx)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(ctx context.Context) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "chatbridge",
		Short:         "chatbridge routes chat requests to LLM providers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(ctx))
	root.AddCommand(newProvidersCmd())
	root.AddCommand(newChatCmd(ctx))
	return root
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// newRouter wires the call pipeline from configuration.
func newRouter(cfg config.Config) *router.Router {
	timeout := cfg.HTTP.Timeout
	if timeout < 0 {
		timeout = 0
	}
	httpClient := transport.NewHTTPClient(timeout)
	forge := credential.NewForge(credential.ForgeOptions{
		TokenURL:     cfg.Token.Endpoint,
		SafetyMargin: cfg.Token.SafetyMargin,
		Client:       httpClient,
	})

	return router.New(
		provider.NewRegistry(),
		credential.NewResolver(forge),
		transport.New(httpClient),
		response.NewResolver(nil, stream.NewDecoder()),
		router.WithNotifier(func(code, message string, _ error) {
			slog.Warn("provider call failed", "code", code, "error", message)
		}),
	)
}
