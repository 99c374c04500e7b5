package respond

import (
	"strings"
	"unicode"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Message identifies a fixed localized phrase.
type Message int

const (
	MsgBusy Message = iota
	MsgFallback
	MsgPricesUnavailable
	MsgGoodbye
)

var messages = map[Message]map[types.Language]string{
	MsgBusy: {
		types.LangHindi:   "माफ़ कीजिए, अभी सिस्टम व्यस्त है। कृपया थोड़ी देर में फिर से पूछें।",
		types.LangEnglish: "Sorry, the system is busy right now. Please try again in a moment.",
		types.LangMarathi: "माफ करा, सध्या सिस्टम व्यस्त आहे. कृपया थोड्या वेळाने पुन्हा विचारा.",
	},
	MsgFallback: {
		types.LangHindi:   "माफ़ कीजिए, मैं अभी जवाब नहीं दे पा रहा हूँ। कृपया बाद में फिर से कोशिश करें या अपने नज़दीकी कृषि केंद्र से संपर्क करें।",
		types.LangEnglish: "Sorry, I cannot answer right now. Please try again later or contact your nearest agriculture centre.",
		types.LangMarathi: "माफ करा, मी सध्या उत्तर देऊ शकत नाही. कृपया नंतर पुन्हा प्रयत्न करा किंवा जवळच्या कृषी केंद्राशी संपर्क साधा.",
	},
	MsgPricesUnavailable: {
		types.LangHindi:   "माफ़ कीजिए, आपकी फसल के लिए आज का मंडी भाव अभी उपलब्ध नहीं है। कृपया बाद में फिर से पूछें।",
		types.LangEnglish: "Sorry, today's mandi price for your crop is not available right now. Please ask again later.",
		types.LangMarathi: "माफ करा, तुमच्या पिकाचा आजचा बाजारभाव सध्या उपलब्ध नाही. कृपया नंतर पुन्हा विचारा.",
	},
	MsgGoodbye: {
		types.LangHindi:   "धन्यवाद! आपका दिन शुभ हो। नमस्ते।",
		types.LangEnglish: "Thank you! Have a good day. Goodbye.",
		types.LangMarathi: "धन्यवाद! तुमचा दिवस चांगला जावो. नमस्कार.",
	},
}

// Localized returns msg in lang, falling back to the default language.
func Localized(msg Message, lang types.Language) string {
	byLang := messages[msg]
	if s, ok := byLang[lang]; ok {
		return s
	}
	return byLang[types.DefaultLanguage]
}

// goodbyePhrases are matched as whole words or phrases, case-insensitively.
var goodbyePhrases = []string{
	"bye", "goodbye", "good bye", "thank you", "thanks", "that's all", "nothing else",
	"dhanyavad", "dhanyawad", "shukriya", "alvida", "bas itna hi", "theek hai bas",
	"धन्यवाद", "शुक्रिया", "अलविदा", "बस इतना ही", "ठीक है बस",
	"बाय", "एवढेच", "आभारी आहे",
}

// IsGoodbye reports whether utterance is a closing phrase rather than a
// question. Long utterances that merely contain "thanks" are not goodbyes.
func IsGoodbye(utterance string) bool {
	norm := normalize(utterance)
	if norm == "" {
		return false
	}
	if len(strings.Fields(norm)) > 5 {
		return false
	}
	padded := " " + norm + " "
	for _, p := range goodbyePhrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// normalize lowercases and replaces punctuation with spaces, keeping
// Devanagari combining marks intact.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r), unicode.Is(unicode.Mc, r), r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
