package usecase

import (
	"strings"

	"github.com/iamvkosarev/telegram-ai-relay/pkg/local"
)

const (
	// CommandPrefix marks bot output that must never be fed back to the model.
	CommandPrefix = "COMMAND:"

	CommandStart   = "/start"
	CommandHelp    = "/help"
	CommandBuy     = "/buy"
	CommandImage   = "/image"
	CommandChat    = "/chat"
	CommandClear   = "/clear"
	CommandContext = "/context"
)

const (
	MessageContextCleared  = CommandPrefix + " Context for the current chat (if it existed) has been cleared."
	MessageContextEmpty    = CommandPrefix + " Context is empty or not available."
	MessageContextFormat   = CommandPrefix + " %s"
	MessageProcessing      = "ChatGPT is processing..."
	InlineProcessingFormat = "Query: %s\n\n(Processing...)"
	InlineAnswerFormat     = "Query: %s\n\nAnswer:\n%s"
)

var (
	MessageGreeting = local.NewSet(
		"Hi %s! I'm an AI bot developed by $GROK | NEAR! Use /image command with your image request in both private "+
			"and group chats to create images. For text replies, use /chat command in group chats, but it's not "+
			"necessary in private chats.",
		local.NewTrans(
			local.Rus,
			"Привет, %s! Я ИИ-бот от $GROK | NEAR! Используй команду /image с описанием картинки в личных и групповых "+
				"чатах, чтобы создавать изображения. Для текстовых ответов в группах используй /chat, в личных чатах "+
				"команда не нужна.",
		),
	)
	MessageBuy = local.NewSet(
		"To buy $GROK, visit https://app.ref.finance/swap/#near|grokcoin.near, connect your NEAR wallet, and add the " +
			"coin manually by typing grokcoin.near since it's not yet on the whitelist, but it will be soon.",
	)
	MessageImageHint = local.NewSet(
		"Please use /image command plus your image request in both private and group chats to create images. " +
			"For example, /image a big tree under sunshine.",
	)
	MessageChatHint = local.NewSet(
		"Please use /chat command plus your query question in group chats to get AI text replies. " +
			"For example, /chat why near protocol is a great blockchain project?",
	)
)

func hasCommand(text, command string) bool {
	return strings.HasPrefix(text, command)
}

// commandArgument returns what follows command in text, without a leading
// "@botname" mention.
func commandArgument(text, command string) string {
	arg := strings.TrimPrefix(text, command)
	if strings.HasPrefix(arg, "@") {
		if i := strings.IndexAny(arg, " \t\n"); i >= 0 {
			arg = arg[i:]
		} else {
			arg = ""
		}
	}
	return strings.TrimSpace(arg)
}
