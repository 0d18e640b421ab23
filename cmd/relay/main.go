package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/iamvkosarev/telegram-ai-relay/config"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Telegram to OpenAI webhook relay",
		Long:         "Telegram to OpenAI webhook relay.\n\nEnvironment:\n" + config.Usage(),
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "Config file path (optional, env overrides it).")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWebhookCmd())
	return cmd
}

// setup loads the config named by --config and builds the logger it asks for.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := sl.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
