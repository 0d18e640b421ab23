package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/iamvkosarev/telegram-ai-relay/internal/app"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the Telegram webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("starting relay", sl.Secret(cfg.Telegram.BotToken))
			if err = app.Run(ctx, cfg, log); err != nil {
				log.Error("relay stopped", sl.Err(err))
				return err
			}
			log.Info("relay stopped")
			return nil
		},
	}
}
