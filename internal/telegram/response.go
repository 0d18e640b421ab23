package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/google/uuid"
)

const (
	MethodSendMessage         = "sendMessage"
	MethodSendPhoto           = "sendPhoto"
	MethodAnswerInlineQuery   = "answerInlineQuery"
	MethodAnswerCallbackQuery = "answerCallbackQuery"

	MaxMessageLength      = 4096
	MaxCallbackAnswerLen  = 200
	MaxCallbackDataLength = 64

	ButtonAsk           = "Ask ChatGPT"
	ButtonContext       = "Show context"
	ButtonClear         = "Clear context"
	CallbackDataContext = "/context"
	CallbackDataClear   = "/clear"

	inlineArticleTitle      = "Ask ChatGPT"
	inlineArticleTextFormat = "Query: %s"
)

// Reply is a webhook reply body: Telegram executes the method named in it as
// if the bot had called the API. A nil Reply means no action.
type Reply interface {
	MethodName() string
}

type ReplyParameters struct {
	MessageID int `json:"message_id"`
}

type SendMessage struct {
	Method          string           `json:"method"`
	ChatID          int64            `json:"chat_id"`
	Text            string           `json:"text"`
	ReplyParameters *ReplyParameters `json:"reply_parameters,omitempty"`
	ReplyMarkup     any              `json:"reply_markup,omitempty"`
}

func (m SendMessage) MethodName() string { return m.Method }

type SendPhoto struct {
	Method          string           `json:"method"`
	ChatID          int64            `json:"chat_id"`
	Photo           string           `json:"photo"`
	ReplyParameters *ReplyParameters `json:"reply_parameters,omitempty"`
}

func (m SendPhoto) MethodName() string { return m.Method }

type AnswerInlineQuery struct {
	Method        string `json:"method"`
	InlineQueryID string `json:"inline_query_id"`
	Results       []any  `json:"results"`
	CacheTime     int    `json:"cache_time"`
	IsPersonal    bool   `json:"is_personal,omitempty"`
}

func (m AnswerInlineQuery) MethodName() string { return m.Method }

type AnswerCallbackQuery struct {
	Method          string `json:"method"`
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

func (m AnswerCallbackQuery) MethodName() string { return m.Method }

type messageOptions struct {
	replyTo        int
	removeKeyboard bool
}

type MessageOption func(*messageOptions)

func WithReplyTo(messageID int) MessageOption {
	return func(o *messageOptions) {
		o.replyTo = messageID
	}
}

func WithRemoveKeyboard() MessageOption {
	return func(o *messageOptions) {
		o.removeKeyboard = true
	}
}

func applyOptions(opts []MessageOption) messageOptions {
	var o messageOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o messageOptions) replyParameters() *ReplyParameters {
	if o.replyTo == 0 {
		return nil
	}
	return &ReplyParameters{MessageID: o.replyTo}
}

func NewSendMessage(chatID int64, text string, opts ...MessageOption) SendMessage {
	o := applyOptions(opts)
	msg := SendMessage{
		Method:          MethodSendMessage,
		ChatID:          chatID,
		Text:            limit(text, MaxMessageLength),
		ReplyParameters: o.replyParameters(),
	}
	if o.removeKeyboard {
		msg.ReplyMarkup = api.NewRemoveKeyboard(false)
	}
	return msg
}

func NewSendPhoto(chatID int64, photoURL string, opts ...MessageOption) SendPhoto {
	o := applyOptions(opts)
	return SendPhoto{
		Method:          MethodSendPhoto,
		ChatID:          chatID,
		Photo:           photoURL,
		ReplyParameters: o.replyParameters(),
	}
}

func NewAnswerInlineQueryEmpty(queryID string) AnswerInlineQuery {
	return AnswerInlineQuery{
		Method:        MethodAnswerInlineQuery,
		InlineQueryID: queryID,
		Results:       make([]any, 0),
	}
}

// NewAnswerInlineQuery offers a single article. Sending it posts the query as
// an inline message whose buttons come back as callback queries.
func NewAnswerInlineQuery(queryID, query string) AnswerInlineQuery {
	article := api.NewInlineQueryResultArticle(
		uuid.New().String(),
		inlineArticleTitle,
		limit(fmt.Sprintf(inlineArticleTextFormat, query), MaxMessageLength),
	)
	article.Description = query
	markup := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(ButtonAsk, limitBytes(query, MaxCallbackDataLength)),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(ButtonContext, CallbackDataContext),
			api.NewInlineKeyboardButtonData(ButtonClear, CallbackDataClear),
		),
	)
	article.ReplyMarkup = &markup

	return AnswerInlineQuery{
		Method:        MethodAnswerInlineQuery,
		InlineQueryID: queryID,
		Results:       []any{article},
		IsPersonal:    true,
	}
}

func NewAnswerCallbackQuery(queryID, text string) AnswerCallbackQuery {
	return AnswerCallbackQuery{
		Method:          MethodAnswerCallbackQuery,
		CallbackQueryID: queryID,
		Text:            limit(text, MaxCallbackAnswerLen),
	}
}

// Sanitize prepares model output for an inline message edit: surrounding
// whitespace is dropped and the text is cut to the message length limit.
func Sanitize(text string) string {
	return limit(strings.TrimSpace(text), MaxMessageLength)
}

func limit(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}

func limitBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
