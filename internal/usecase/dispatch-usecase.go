package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
	"github.com/iamvkosarev/telegram-ai-relay/internal/telegram"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
	"github.com/iamvkosarev/telegram-ai-relay/pkg/local"
	"github.com/sourcegraph/conc"
)

var (
	ErrUnsupportedUpdate = errors.New("unsupported update")
	ErrImageGeneration   = errors.New("image generation failed")
)

// Messenger performs the Bot API calls that cannot be webhook replies.
type Messenger interface {
	EditInlineMessageText(inlineMessageID, text string) error
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) Completion
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type DispatchUsecaseDeps struct {
	Conversation *ConversationUsecase
	Completer    Completer
	Messenger    Messenger
}

// DispatchUsecase turns one classified update into one webhook reply.
// Non-command callback queries additionally start a background completion
// that edits the inline message when done; Wait drains those.
type DispatchUsecase struct {
	DispatchUsecaseDeps
	background *conc.WaitGroup
	log        *slog.Logger
}

func NewDispatchUsecase(deps DispatchUsecaseDeps, log *slog.Logger) *DispatchUsecase {
	return &DispatchUsecase{
		DispatchUsecaseDeps: deps,
		background:          conc.NewWaitGroup(),
		log:                 log.With(sl.Module("dispatch")),
	}
}

// Handle returns a nil reply when the update needs no answer.
func (d *DispatchUsecase) Handle(ctx context.Context, update model.Update) (telegram.Reply, error) {
	switch u := update.(type) {
	case model.InlineQuery:
		return d.handleInlineQuery(u), nil
	case model.TextMessage:
		return d.handleMessage(ctx, u)
	case model.CallbackQuery:
		return d.handleCallbackQuery(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedUpdate, update)
	}
}

// Wait blocks until every background completion has finished.
func (d *DispatchUsecase) Wait() {
	if recovered := d.background.WaitAndRecover(); recovered != nil {
		d.log.Error("background completion panicked", slog.String("panic", recovered.String()))
	}
}

func (d *DispatchUsecase) handleInlineQuery(q model.InlineQuery) telegram.Reply {
	if strings.TrimSpace(q.Query) == "" {
		return telegram.NewAnswerInlineQueryEmpty(q.QueryID)
	}
	return telegram.NewAnswerInlineQuery(q.QueryID, q.Query)
}

func (d *DispatchUsecase) handleMessage(ctx context.Context, msg model.TextMessage) (telegram.Reply, error) {
	text := msg.Text
	lang := local.ParseLanguage(msg.From.LanguageCode)

	switch {
	case hasCommand(text, CommandStart), hasCommand(text, CommandHelp):
		return telegram.NewSendMessage(
			msg.ChatID, MessageGreeting.Format(lang, msg.From.DisplayName()), telegram.WithRemoveKeyboard(),
		), nil
	case hasCommand(text, CommandBuy):
		return telegram.NewSendMessage(msg.ChatID, MessageBuy.Text(lang), telegram.WithRemoveKeyboard()), nil
	}

	key := msg.ConversationKey()
	conv, err := d.Conversation.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if reply := msg.ReplyTo; reply != nil && reply.Text != "" && !strings.HasPrefix(reply.Text, CommandPrefix) {
		conv = append(conv, model.Message{Role: model.AuthorRole(reply.FromBot), Content: reply.Text})
	}

	if msg.ChatType == model.ChatTypePrivate {
		if hasCommand(text, CommandImage) {
			return d.replyWithImage(ctx, msg, commandArgument(text, CommandImage))
		}
		conv = append(conv, model.Message{Role: model.RoleUser, Content: text})
		return d.replyWithCompletion(ctx, msg, conv)
	}

	content, handled, err := d.contextCommand(ctx, key, text, conv)
	if err != nil {
		return nil, err
	}
	if handled {
		if hasCommand(text, CommandClear) {
			return telegram.NewSendMessage(msg.ChatID, content, telegram.WithRemoveKeyboard()), nil
		}
		return telegram.NewSendMessage(msg.ChatID, content), nil
	}

	conv = d.Conversation.Truncate(conv)

	if hasCommand(text, CommandImage) {
		prompt := commandArgument(text, CommandImage)
		if prompt == "" {
			return telegram.NewSendMessage(msg.ChatID, MessageImageHint.Text(lang), telegram.WithRemoveKeyboard()), nil
		}
		return d.replyWithImage(ctx, msg, prompt)
	}

	if msg.ChatType.IsGroup() && hasCommand(text, CommandChat) {
		prompt := commandArgument(text, CommandChat)
		if prompt == "" {
			return telegram.NewSendMessage(msg.ChatID, MessageChatHint.Text(lang), telegram.WithRemoveKeyboard()), nil
		}
		conv = append(conv, model.Message{Role: model.RoleUser, Content: prompt})
		return d.replyWithCompletion(ctx, msg, conv)
	}

	return nil, nil
}

func (d *DispatchUsecase) handleCallbackQuery(ctx context.Context, cb model.CallbackQuery) (telegram.Reply, error) {
	query := cb.Data
	d.editInline(cb.InlineMessageID, fmt.Sprintf(InlineProcessingFormat, query))

	key := cb.ConversationKey()
	conv, err := d.Conversation.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	content, handled, err := d.contextCommand(ctx, key, query, conv)
	if err != nil {
		return nil, err
	}
	if handled {
		d.editInline(cb.InlineMessageID, content)
		return telegram.NewAnswerCallbackQuery(cb.QueryID, content), nil
	}

	conv = d.Conversation.Truncate(conv)
	bgCtx := context.WithoutCancel(ctx)
	d.background.Go(
		func() {
			answer, err := d.completeAndReply(bgCtx, key, cb.From, conv)
			if err != nil {
				d.log.Error("background completion failed", sl.Err(err), slog.String("chat", key))
				return
			}
			d.editInline(cb.InlineMessageID, fmt.Sprintf(InlineAnswerFormat, query, telegram.Sanitize(answer)))
		},
	)
	return telegram.NewAnswerCallbackQuery(cb.QueryID, MessageProcessing), nil
}

// contextCommand runs /clear and /context. handled is false for any other
// text.
func (d *DispatchUsecase) contextCommand(
	ctx context.Context, key, text string, conv model.Conversation,
) (content string, handled bool, err error) {
	switch {
	case hasCommand(text, CommandClear):
		if err = d.Conversation.Clear(ctx, key); err != nil {
			return "", true, err
		}
		return MessageContextCleared, true, nil
	case hasCommand(text, CommandContext):
		if len(conv) == 0 {
			return MessageContextEmpty, true, nil
		}
		var data []byte
		if data, err = json.Marshal(conv); err != nil {
			return "", true, fmt.Errorf("failed to marshal context: %w", err)
		}
		return fmt.Sprintf(MessageContextFormat, data), true, nil
	default:
		return "", false, nil
	}
}

func (d *DispatchUsecase) replyWithCompletion(
	ctx context.Context, msg model.TextMessage, conv model.Conversation,
) (telegram.Reply, error) {
	answer, err := d.completeAndReply(ctx, msg.ConversationKey(), msg.From, conv)
	if err != nil {
		return nil, err
	}
	return telegram.NewSendMessage(
		msg.ChatID, answer, telegram.WithReplyTo(msg.MessageID), telegram.WithRemoveKeyboard(),
	), nil
}

func (d *DispatchUsecase) replyWithImage(ctx context.Context, msg model.TextMessage, prompt string) (telegram.Reply, error) {
	url, err := d.Completer.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageGeneration, err)
	}
	return telegram.NewSendPhoto(msg.ChatID, url, telegram.WithReplyTo(msg.MessageID)), nil
}

// completeAndReply asks the model to continue conv. A successful answer is
// appended and the conversation stored as is, without truncating again.
// Degraded answers are returned but never stored.
func (d *DispatchUsecase) completeAndReply(
	ctx context.Context, key string, sender model.Sender, conv model.Conversation,
) (string, error) {
	conv = d.Conversation.Truncate(conv)
	completion := d.Completer.Complete(
		ctx, CompletionRequest{
			UserID:       userID(sender),
			Conversation: conv,
		},
	)
	if completion.Outcome != OutcomeOK {
		d.log.Warn("completion degraded", slog.String("chat", key), slog.String("outcome", completion.Outcome.String()))
		return completion.Text, nil
	}
	if d.Conversation.Enabled() {
		conv = append(conv, model.Message{Role: model.RoleAssistant, Content: completion.Text})
		if err := d.Conversation.Save(ctx, key, conv); err != nil {
			return "", err
		}
	}
	return completion.Text, nil
}

func (d *DispatchUsecase) editInline(inlineMessageID, text string) {
	if err := d.Messenger.EditInlineMessageText(inlineMessageID, text); err != nil {
		d.log.Warn("failed to edit inline message", sl.Err(err))
	}
}

func userID(sender model.Sender) string {
	return "tg_" + sender.Username
}
