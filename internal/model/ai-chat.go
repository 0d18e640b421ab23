package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the rolling transcript of one chat, oldest message first.
type Conversation []Message

// ContextLimit is the number of messages kept for a window of n
// user/assistant pairs. It never drops below one.
func ContextLimit(window int) int {
	return max(1, window*2)
}

// Truncate drops the oldest messages until at most ContextLimit(window)
// remain. The receiver is left untouched.
func (c Conversation) Truncate(window int) Conversation {
	limit := ContextLimit(window)
	if len(c) <= limit {
		return c
	}
	out := make(Conversation, limit)
	copy(out, c[len(c)-limit:])
	return out
}

// EncodeConversation serializes a conversation for storage. Newlines are
// stripped from message content so the stored JSON carries no \n escapes.
func EncodeConversation(c Conversation) ([]byte, error) {
	normalized := make(Conversation, 0, len(c))
	for _, msg := range c {
		msg.Content = strings.ReplaceAll(msg.Content, "\n", "")
		normalized = append(normalized, msg)
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return data, nil
}

func DecodeConversation(data []byte) (Conversation, error) {
	if len(data) == 0 {
		return Conversation{}, nil
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if c == nil {
		c = Conversation{}
	}
	return c, nil
}
