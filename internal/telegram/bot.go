package telegram

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
)

const (
	methodEditMessageText = "editMessageText"
	methodSetWebhook      = "setWebhook"
	methodDeleteWebhook   = "deleteWebhook"
)

// AllowedUpdates are the only update kinds the relay handles.
var AllowedUpdates = []string{"message", "inline_query", "callback_query"}

// Bot performs the few Bot API calls that cannot be expressed as a webhook
// reply.
type Bot struct {
	api *api.BotAPI
	log *slog.Logger
}

func NewBot(token string, log *slog.Logger) (*Bot, error) {
	return NewBotWithEndpoint(token, api.APIEndpoint, &http.Client{}, log)
}

// NewBotWithEndpoint is NewBot against a custom Bot API server; endpoint is a
// format string such as "https://api.telegram.org/bot%s/%s".
func NewBotWithEndpoint(token, endpoint string, client *http.Client, log *slog.Logger) (*Bot, error) {
	botAPI, err := api.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create new bot: %w", err)
	}
	return &Bot{
		api: botAPI,
		log: log.With(sl.Module("telegram")),
	}, nil
}

func (b *Bot) Username() string {
	return b.api.Self.UserName
}

func (b *Bot) EditInlineMessageText(inlineMessageID, text string) error {
	params := api.Params{}
	params.AddNonEmpty("inline_message_id", inlineMessageID)
	params.AddNonEmpty("text", text)
	if _, err := b.api.MakeRequest(methodEditMessageText, params); err != nil {
		return fmt.Errorf("failed to edit inline message %s: %w", inlineMessageID, err)
	}
	return nil
}

// SetWebhook registers link as the webhook. Telegram echoes secret back in
// the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (b *Bot) SetWebhook(link, secret string) error {
	allowed, err := json.Marshal(AllowedUpdates)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed updates: %w", err)
	}
	params := api.Params{}
	params.AddNonEmpty("url", link)
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = string(allowed)
	if _, err = b.api.MakeRequest(methodSetWebhook, params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	b.log.Info("webhook registered", slog.String("username", b.Username()))
	return nil
}

func (b *Bot) DeleteWebhook() error {
	if _, err := b.api.MakeRequest(methodDeleteWebhook, api.Params{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	b.log.Info("webhook deleted", slog.String("username", b.Username()))
	return nil
}
