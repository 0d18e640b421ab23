package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iamvkosarev/telegram-ai-relay/config"
	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
	openai_tools "github.com/iamvkosarev/telegram-ai-relay/pkg/openai-tools"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	RequestTimeout = 10 * time.Second
	ImageSize      = openai.CreateImageSize512x512

	FallbackCompletionText = "An error occurred while processing your request. Please try again later."
	NoImageURL             = "No image URL"
)

// Outcome tells a real answer from the fallback text Complete substitutes
// when the API call fails.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeDegraded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

type Completion struct {
	Text    string
	Outcome Outcome
}

type CompletionRequest struct {
	// UserID is hashed before it leaves the process.
	UserID       string
	Conversation model.Conversation
}

type TokenCounter func(messages []openai.ChatCompletionMessage, model string) (int, error)

type OpenAIUsecase struct {
	client            *openai.Client
	cfg               config.OpenAI
	countTokens       TokenCounter
	completionTimeout time.Duration
	log               *slog.Logger
}

func NewOpenAIUsecase(cfg config.OpenAI, log *slog.Logger) *OpenAIUsecase {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &OpenAIUsecase{
		client:            openai.NewClientWithConfig(clientConfig),
		cfg:               cfg,
		countTokens:       openai_tools.CountToken,
		completionTimeout: RequestTimeout,
		log:               log.With(sl.Module("openai")),
	}
}

// Complete never fails: API errors, timeouts and empty answers are logged and
// reported as OutcomeDegraded with FallbackCompletionText.
func (o *OpenAIUsecase) Complete(ctx context.Context, req CompletionRequest) Completion {
	ctx, cancel := context.WithTimeout(ctx, o.completionTimeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(
		ctx, openai.ChatCompletionRequest{
			Model:    o.cfg.ChatModel,
			User:     HashUser(req.UserID),
			Messages: o.buildMessages(req.Conversation),
		},
	)
	if err != nil {
		o.log.Error("chat completion failed", sl.Err(err), slog.String("model", o.cfg.ChatModel))
		return Completion{Text: FallbackCompletionText, Outcome: OutcomeDegraded}
	}
	if len(resp.Choices) == 0 {
		o.log.Error("empty chat completion", slog.String("model", o.cfg.ChatModel))
		return Completion{Text: FallbackCompletionText, Outcome: OutcomeDegraded}
	}
	return Completion{
		Text:    strings.TrimSpace(resp.Choices[0].Message.Content),
		Outcome: OutcomeOK,
	}
}

// GenerateImage returns the URL of one generated image. Unlike Complete it
// propagates every error.
func (o *OpenAIUsecase) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if o.cfg.ImageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ImageTimeout)
		defer cancel()
	}
	resp, err := o.client.CreateImage(
		ctx, openai.ImageRequest{
			Prompt:         prompt,
			Model:          o.cfg.ImageModel,
			Size:           ImageSize,
			ResponseFormat: openai.CreateImageResponseFormatURL,
			N:              1,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return NoImageURL, nil
	}
	return resp.Data[0].URL, nil
}

func (o *OpenAIUsecase) buildMessages(conv model.Conversation) []openai.ChatCompletionMessage {
	var system []openai.ChatCompletionMessage
	if strings.TrimSpace(o.cfg.Behavior) != "" {
		system = append(
			system, openai.ChatCompletionMessage{
				Role:    string(model.RoleSystem),
				Content: o.cfg.Behavior,
			},
		)
	}
	history := make([]openai.ChatCompletionMessage, 0, len(conv))
	for _, msg := range conv {
		history = append(
			history, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			},
		)
	}
	history = o.trimToBudget(system, history)
	return append(system, history...)
}

// trimToBudget drops the oldest history messages until the request fits
// MaxContextTokens. The newest message is always kept.
func (o *OpenAIUsecase) trimToBudget(system, history []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	budget := o.cfg.MaxContextTokens
	if budget <= 0 {
		return history
	}
	for len(history) > 1 {
		count, err := o.countTokens(append(append([]openai.ChatCompletionMessage{}, system...), history...), o.cfg.ChatModel)
		if err != nil {
			o.log.Warn("failed to count tokens", sl.Err(err))
			return history
		}
		if count < budget {
			break
		}
		history = history[1:]
		o.log.Debug("history trimmed due to token limit", slog.Int("tokens", count), slog.Int("budget", budget))
	}
	return history
}

// HashUser is the pseudonymous end-user id sent to OpenAI.
func HashUser(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}
