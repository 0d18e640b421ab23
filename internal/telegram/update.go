package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
)

var (
	ErrMalformedUpdate   = errors.New("malformed update")
	ErrUnsupportedUpdate = errors.New("unsupported update")
	ErrMissingChat       = errors.New("update has no chat")
	ErrMissingQuery      = errors.New("update has no query")
)

func DecodeUpdate(r io.Reader) (api.Update, error) {
	var update api.Update
	if err := json.NewDecoder(r).Decode(&update); err != nil {
		return api.Update{}, fmt.Errorf("%w: %w", ErrMalformedUpdate, err)
	}
	return update, nil
}

// SenderOf returns the author of any update kind, or a zero Sender.
func SenderOf(update api.Update) model.Sender {
	switch {
	case update.Message != nil:
		return newSender(update.Message.From)
	case update.InlineQuery != nil:
		return newSender(update.InlineQuery.From)
	case update.CallbackQuery != nil:
		return newSender(update.CallbackQuery.From)
	default:
		return model.Sender{}
	}
}

// Classify turns a raw update into one of the model.Update variants. Inline
// queries win over everything else; text messages win over callbacks.
func Classify(update api.Update) (model.Update, error) {
	switch {
	case update.InlineQuery != nil:
		query := update.InlineQuery
		return model.InlineQuery{
			QueryID: query.ID,
			From:    newSender(query.From),
			Query:   query.Query,
		}, nil
	case update.Message != nil && update.Message.Text != "":
		return classifyMessage(update)
	case update.CallbackQuery != nil:
		callback := update.CallbackQuery
		if callback.ChatInstance == "" {
			return nil, ErrMissingChat
		}
		if callback.Data == "" {
			return nil, ErrMissingQuery
		}
		return model.CallbackQuery{
			QueryID:         callback.ID,
			InlineMessageID: callback.InlineMessageID,
			ChatInstance:    callback.ChatInstance,
			From:            newSender(callback.From),
			Data:            callback.Data,
		}, nil
	default:
		return nil, ErrUnsupportedUpdate
	}
}

func classifyMessage(update api.Update) (model.Update, error) {
	msg := update.Message
	chat := update.FromChat()
	if chat == nil || chat.ID == 0 {
		return nil, ErrMissingChat
	}

	message := model.TextMessage{
		ChatID:    chat.ID,
		ChatType:  model.ChatType(chat.Type),
		MessageID: msg.MessageID,
		From:      newSender(msg.From),
		Text:      msg.Text,
	}
	if reply := msg.ReplyToMessage; reply != nil {
		message.ReplyTo = &model.RepliedMessage{
			Text:    reply.Text,
			FromBot: reply.From != nil && reply.From.IsBot,
		}
	}
	return message, nil
}

func newSender(user *api.User) model.Sender {
	if user == nil {
		return model.Sender{}
	}
	return model.Sender{
		Username:     user.UserName,
		LanguageCode: user.LanguageCode,
		IsBot:        user.IsBot,
	}
}
