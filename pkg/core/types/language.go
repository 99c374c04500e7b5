package types

import "strings"

// Language is a supported reply language code.
type Language string

const (
	LangHindi   Language = "hi"
	LangEnglish Language = "en"
	LangMarathi Language = "mr"
)

// DefaultLanguage is used when neither the request nor the profile names one.
const DefaultLanguage = LangHindi

// SupportedLanguages lists languages in IVR menu order (digit 1, 2, 3).
var SupportedLanguages = []Language{LangHindi, LangEnglish, LangMarathi}

var locales = map[Language]string{
	LangHindi:   "hi-IN",
	LangEnglish: "en-IN",
	LangMarathi: "mr-IN",
}

var languageNames = map[Language]string{
	LangHindi:   "Hindi",
	LangEnglish: "English",
	LangMarathi: "Marathi",
}

// ParseLanguage accepts a language code or locale ("hi", "hi-IN", "HI").
func ParseLanguage(raw string) (Language, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(raw, "-_"); i > 0 {
		raw = raw[:i]
	}
	l := Language(raw)
	_, ok := locales[l]
	return l, ok
}

// LanguageOr parses raw and falls back to def when it is empty or unsupported.
func LanguageOr(raw string, def Language) Language {
	if l, ok := ParseLanguage(raw); ok {
		return l
	}
	if _, ok := locales[def]; ok {
		return def
	}
	return DefaultLanguage
}

// Locale returns the BCP-47 tag used by recognizers and telephony <Say>/<Gather>.
func (l Language) Locale() string {
	if loc, ok := locales[l]; ok {
		return loc
	}
	return locales[DefaultLanguage]
}

// DisplayName returns the English name of the language, used inside prompts.
func (l Language) DisplayName() string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return languageNames[DefaultLanguage]
}

// LanguageForDigit maps an IVR keypad digit to a language.
func LanguageForDigit(digit string) (Language, bool) {
	digit = strings.TrimSpace(digit)
	if len(digit) != 1 || digit[0] < '1' || digit[0] > '9' {
		return "", false
	}
	i := int(digit[0] - '1')
	if i >= len(SupportedLanguages) {
		return "", false
	}
	return SupportedLanguages[i], true
}
