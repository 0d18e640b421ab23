package in_memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
)

// AIChatStorage keeps encoded conversations in process memory. It is meant
// for local runs; contents are lost on restart.
type AIChatStorage struct {
	mu    sync.RWMutex
	chats map[string][]byte
}

func NewAIChatStorage() *AIChatStorage {
	return &AIChatStorage{
		chats: make(map[string][]byte),
	}
}

func (a *AIChatStorage) GetConversation(_ context.Context, chatKey string) (model.Conversation, error) {
	a.mu.RLock()
	raw, ok := a.chats[chatKey]
	a.mu.RUnlock()
	if !ok {
		return model.Conversation{}, nil
	}
	conversation, err := model.DecodeConversation(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", chatKey, err)
	}
	return conversation, nil
}

func (a *AIChatStorage) SetConversation(_ context.Context, chatKey string, conversation model.Conversation) error {
	data, err := model.EncodeConversation(conversation)
	if err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", chatKey, err)
	}
	a.mu.Lock()
	a.chats[chatKey] = data
	a.mu.Unlock()
	return nil
}

// Len reports how many chats have a stored conversation.
func (a *AIChatStorage) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.chats)
}
