package openai_tools

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const fallbackEncoding = "cl100k_base"

// CountToken estimates the prompt size of a chat completion request using the
// per-message overhead of the gpt-3.5/gpt-4 chat format.
func CountToken(messages []openai.ChatCompletionMessage, model string) (int, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return 0, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
		}
	}

	const (
		tokensPerMessage = 3
		tokensPerName    = 1
		replyPrimer      = 3
	)
	count := 0
	for _, message := range messages {
		count += tokensPerMessage
		count += len(tkm.Encode(message.Role, nil, nil))
		count += len(tkm.Encode(message.Content, nil, nil))
		if message.Name != "" {
			count += len(tkm.Encode(message.Name, nil, nil)) + tokensPerName
		}
	}
	return count + replyPrimer, nil
}
