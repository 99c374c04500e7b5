package types

import (
	"strings"
)

// AskRequest is the body of POST /v1/voice/ask.
type AskRequest struct {
	FarmerID   string             `json:"farmer_id"`
	Transcript string             `json:"transcript"`
	Language   Language           `json:"language,omitempty"`
	History    []ConversationTurn `json:"history,omitempty"`
}

// Validate checks the fields required before any lookup runs.
func (r *AskRequest) Validate() error {
	if strings.TrimSpace(r.FarmerID) == "" {
		return errorf("farmer_id is required")
	}
	if strings.TrimSpace(r.Transcript) == "" {
		return errorf("transcript is required")
	}
	if r.Language != "" {
		if _, ok := ParseLanguage(string(r.Language)); !ok {
			return errorf("language %q is not supported", r.Language)
		}
	}
	return nil
}

// AskResponse is the reply to an AskRequest. Degraded is set when the reply
// is a localized fallback rather than a generated answer.
type AskResponse struct {
	Reply    string   `json:"reply"`
	Source   Topic    `json:"source"`
	Language Language `json:"language"`
	Degraded bool     `json:"degraded,omitempty"`
}

// Turns returns the user and assistant turns this exchange adds to history.
func (r *AskResponse) Turns(transcript string) []ConversationTurn {
	return []ConversationTurn{
		{Role: RoleUser, Content: transcript},
		{Role: RoleAssistant, Content: r.Reply, Source: r.Source},
	}
}

// SpeechRequest is the body of POST /v1/voice/tts.
type SpeechRequest struct {
	Text     string   `json:"text"`
	Language Language `json:"language,omitempty"`
}

// MaxSpeechChars bounds one synthesis request.
const MaxSpeechChars = 2000

// Validate checks text and language.
func (r *SpeechRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errorf("text is required")
	}
	if n := len([]rune(r.Text)); n > MaxSpeechChars {
		return errorf("text is %d characters, at most %d allowed", n, MaxSpeechChars)
	}
	if r.Language != "" {
		if _, ok := ParseLanguage(string(r.Language)); !ok {
			return errorf("language %q is not supported", r.Language)
		}
	}
	return nil
}

// SpeechFallback is the 503 body telling clients to synthesize locally.
type SpeechFallback struct {
	Fallback string `json:"fallback"`
}

// SpeechFallbackClient is the only SpeechFallback value the server sends.
const SpeechFallbackClient = "client"

// TranslateRequest is the body of POST /v1/translate.
type TranslateRequest struct {
	Text     string   `json:"text"`
	Language Language `json:"language"`
}

// Validate requires text and a supported target language.
func (r *TranslateRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errorf("text is required")
	}
	if _, ok := ParseLanguage(string(r.Language)); !ok {
		return errorf("language %q is not supported", r.Language)
	}
	return nil
}

// TranslateResponse carries the translated text.
type TranslateResponse struct {
	Text     string   `json:"text"`
	Language Language `json:"language"`
}

// Header names used on TTS responses.
const (
	HeaderTTSProvider = "X-TTS-Provider"
	HeaderTTSCache    = "X-TTS-Cache"
)
