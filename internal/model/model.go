package model

import "strconv"

type ChatType string

const (
	ChatTypePrivate    = ChatType("private")
	ChatTypeGroup      = ChatType("group")
	ChatTypeSupergroup = ChatType("supergroup")
	ChatTypeChannel    = ChatType("channel")
)

func (t ChatType) IsGroup() bool {
	return t == ChatTypeGroup || t == ChatTypeSupergroup
}

// Update is one classified inbound event. The set of implementations is
// closed: TextMessage, InlineQuery and CallbackQuery.
type Update interface {
	SentBy() Sender
	isUpdate()
}

type RepliedMessage struct {
	Text    string
	FromBot bool
}

type TextMessage struct {
	ChatID    int64
	ChatType  ChatType
	MessageID int
	From      Sender
	Text      string
	ReplyTo   *RepliedMessage
}

func (m TextMessage) SentBy() Sender { return m.From }
func (TextMessage) isUpdate()        {}

func (m TextMessage) ConversationKey() string {
	return strconv.FormatInt(m.ChatID, 10)
}

type InlineQuery struct {
	QueryID string
	From    Sender
	Query   string
}

func (q InlineQuery) SentBy() Sender { return q.From }
func (InlineQuery) isUpdate()        {}

type CallbackQuery struct {
	QueryID         string
	InlineMessageID string
	ChatInstance    string
	From            Sender
	Data            string
}

func (q CallbackQuery) SentBy() Sender { return q.From }
func (CallbackQuery) isUpdate()        {}

// ConversationKey is the chat instance: callbacks from inline messages carry
// no chat id.
func (q CallbackQuery) ConversationKey() string {
	return q.ChatInstance
}
