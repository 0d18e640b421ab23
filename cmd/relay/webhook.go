package main

import (
	"fmt"
	"net/url"

	"github.com/iamvkosarev/telegram-ai-relay/internal/telegram"
	"github.com/spf13/cobra"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	cmd.AddCommand(newWebhookSetCmd())
	cmd.AddCommand(newWebhookDeleteCmd())
	return cmd
}

func newWebhookSetCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Register <url>/<bot token> as the webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			link, err := url.JoinPath(baseURL, cfg.Telegram.BotToken)
			if err != nil {
				return fmt.Errorf("failed to build webhook url: %w", err)
			}
			bot, err := telegram.NewBot(cfg.Telegram.BotToken, log)
			if err != nil {
				return err
			}
			return bot.SetWebhook(link, cfg.Telegram.WebhookSecret)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Public base URL of the relay.")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newWebhookDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			bot, err := telegram.NewBot(cfg.Telegram.BotToken, log)
			if err != nil {
				return err
			}
			return bot.DeleteWebhook()
		},
	}
}
