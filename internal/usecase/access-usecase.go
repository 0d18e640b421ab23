package usecase

import (
	"errors"
	"strings"

	"github.com/iamvkosarev/telegram-ai-relay/config"
	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
)

var ErrSenderNotAllowed = errors.New("sender is not in the whitelist")

type AccessUsecase struct {
	enforce bool
	allowed map[string]struct{}
}

func NewAccessUsecase(cfg config.Telegram) *AccessUsecase {
	allowed := make(map[string]struct{}, len(cfg.UsernameWhitelist))
	for _, username := range cfg.UsernameWhitelist {
		username = strings.ToLower(strings.TrimSpace(username))
		if username == "" {
			continue
		}
		allowed[username] = struct{}{}
	}
	return &AccessUsecase{
		enforce: cfg.EnforceWhitelist,
		allowed: allowed,
	}
}

// IsAllowed matches username case-insensitively. Everyone is allowed while
// the whitelist is not enforced.
func (a *AccessUsecase) IsAllowed(username string) bool {
	if !a.enforce {
		return true
	}
	_, ok := a.allowed[strings.ToLower(username)]
	return ok
}

func (a *AccessUsecase) Check(sender model.Sender) error {
	if !a.IsAllowed(sender.Username) {
		return ErrSenderNotAllowed
	}
	return nil
}
