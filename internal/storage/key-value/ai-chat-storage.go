package key_value

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
	"github.com/redis/go-redis/v9"
)

type AIChatStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAIChatStorage stores one JSON conversation per chat. A zero ttl keeps
// entries forever.
func NewAIChatStorage(rdb *redis.Client, ttl time.Duration) *AIChatStorage {
	return &AIChatStorage{
		rdb: rdb,
		ttl: ttl,
	}
}

func (a *AIChatStorage) GetConversation(ctx context.Context, chatKey string) (model.Conversation, error) {
	raw, err := a.rdb.Get(ctx, getChatIDKey(chatKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Conversation{}, nil
		}
		return nil, fmt.Errorf("failed to get chat %s: %w", chatKey, err)
	}
	conversation, err := model.DecodeConversation(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", chatKey, err)
	}
	return conversation, nil
}

func (a *AIChatStorage) SetConversation(ctx context.Context, chatKey string, conversation model.Conversation) error {
	data, err := model.EncodeConversation(conversation)
	if err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", chatKey, err)
	}
	if err = a.rdb.Set(ctx, getChatIDKey(chatKey), data, a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save chat %s: %w", chatKey, err)
	}
	return nil
}

func getChatIDKey(chatKey string) string {
	return fmt.Sprintf("chat_%s", chatKey)
}
