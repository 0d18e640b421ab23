package usecase

import (
	"context"
	"fmt"

	"github.com/iamvkosarev/telegram-ai-relay/config"
	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
)

type ConversationStorage interface {
	GetConversation(ctx context.Context, chatKey string) (model.Conversation, error)
	SetConversation(ctx context.Context, chatKey string, conv model.Conversation) error
}

type ConversationUsecaseDeps struct {
	// Storage may be nil, which disables persistence.
	Storage ConversationStorage
}

type ConversationUsecase struct {
	ConversationUsecaseDeps
	cfg config.Conversation
}

func NewConversationUsecase(deps ConversationUsecaseDeps, cfg config.Conversation) *ConversationUsecase {
	return &ConversationUsecase{
		ConversationUsecaseDeps: deps,
		cfg:                     cfg,
	}
}

// Enabled reports whether conversations are read from and written to
// storage. Otherwise every turn starts from an empty conversation.
func (c *ConversationUsecase) Enabled() bool {
	return c.cfg.Window > 0 && c.Storage != nil
}

func (c *ConversationUsecase) Load(ctx context.Context, chatKey string) (model.Conversation, error) {
	if !c.Enabled() {
		return model.Conversation{}, nil
	}
	conv, err := c.Storage.GetConversation(ctx, chatKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", chatKey, err)
	}
	return conv, nil
}

func (c *ConversationUsecase) Save(ctx context.Context, chatKey string, conv model.Conversation) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.Storage.SetConversation(ctx, chatKey, conv); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", chatKey, err)
	}
	return nil
}

func (c *ConversationUsecase) Clear(ctx context.Context, chatKey string) error {
	return c.Save(ctx, chatKey, model.Conversation{})
}

func (c *ConversationUsecase) Truncate(conv model.Conversation) model.Conversation {
	return conv.Truncate(c.cfg.Window)
}
