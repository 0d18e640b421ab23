package model

const defaultDisplayName = "user"

type Sender struct {
	Username     string
	LanguageCode string
	IsBot        bool
}

func (s Sender) DisplayName() string {
	if s.Username == "" {
		return defaultDisplayName
	}
	return s.Username
}
