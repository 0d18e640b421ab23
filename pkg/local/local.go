package local

import (
	"fmt"
	"strings"
)

type Language string

const (
	Eng = Language("en")
	Rus = Language("ru")
)

// ParseLanguage maps a Telegram language_code ("ru", "en-US", ...) to a
// supported language, falling back to Eng.
func ParseLanguage(code string) Language {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	if Language(code) == Rus {
		return Rus
	}
	return Eng
}

type Localization struct {
	language Language
	text     string
}

func NewTrans(language Language, text string) Localization {
	return Localization{language: language, text: text}
}

// TextSet is one user-facing text with its translations. Default is used for
// every language without a translation.
type TextSet struct {
	Default      string
	translations map[Language]string
}

func NewSet(defaultText string, localizations ...Localization) TextSet {
	translations := make(map[Language]string, len(localizations))
	for _, l := range localizations {
		translations[l.language] = l.text
	}
	return TextSet{Default: defaultText, translations: translations}
}

func (s TextSet) Text(language Language) string {
	if text, ok := s.translations[language]; ok {
		return text
	}
	return s.Default
}

func (s TextSet) Format(language Language, a ...any) string {
	return fmt.Sprintf(s.Text(language), a...)
}
