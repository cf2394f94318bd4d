package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chatbridge/internal/config"
	"chatbridge/internal/models"
)

func newChatCmd(ctx context.Context) *cobra.Command {
	var (
		cfgPath     string
		providerID  string
		model       string
		system      string
		stream      bool
		temperature float64
	)

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send a single prompt to a provider and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return errors.New("chat command requires --config <path>")
			}
			if providerID == "" {
				return errors.New("chat command requires --provider <id>")
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			var messages []models.Message
			if system != "" {
				messages = append(messages, models.Message{Role: "system", Content: system})
			}
			messages = append(messages, models.Message{Role: "user", Content: strings.Join(args, " ")})

			req := models.UnifiedChatRequest{
				Provider: providerID,
				Model:    model,
				Messages: messages,
				Stream:   stream,
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			if err := cfg.Provider(providerID).Apply(&req); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var onChunk func(string)
			if stream {
				onChunk = func(delta string) { fmt.Fprint(out, delta) }
			}

			resp, err := newRouter(cfg).Chat(ctx, req, onChunk)
			if err != nil {
				return err
			}
			if stream {
				fmt.Fprintln(out)
				return nil
			}
			fmt.Fprintln(out, resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML configuration file (required)")
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id as listed by the providers command")
	cmd.Flags().StringVar(&model, "model", "", "model name")
	cmd.Flags().StringVar(&system, "system", "", "optional system prompt")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the reply as it arrives")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	return cmd
}
