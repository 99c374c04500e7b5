package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/core/voice"
	"github.com/kisansetu/voicecore/pkg/core/voice/stt"
	"github.com/kisansetu/voicecore/pkg/gateway/mw"
	"github.com/kisansetu/voicecore/pkg/respond"
)

// ContextSource loads a farmer's context bundle. *farmctx.Aggregator
// implements it.
type ContextSource interface {
	ForFarmerID(ctx context.Context, farmerID string) (*types.ContextBundle, error)
}

// Replier answers one voice turn. *respond.Generator implements it.
type Replier interface {
	Reply(ctx context.Context, req respond.Request) (*respond.Reply, error)
}

// Translator renders text in a target language.
type Translator interface {
	Translate(ctx context.Context, text string, lang types.Language) (string, error)
}

// SpeechSynthesizer turns text into audio. *voice.Synthesizer implements it.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, lang types.Language) (*voice.Result, error)
}

// AskHandler serves POST /v1/voice/ask.
type AskHandler struct {
	Context      ContextSource
	Replies      Replier
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	var req types.AskRequest
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeErr(w, reqID, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeErr(w, reqID, err)
		return
	}

	bundle, err := h.Context.ForFarmerID(r.Context(), req.FarmerID)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	reply, err := h.Replies.Reply(r.Context(), respond.Request{
		Transcript: req.Transcript,
		Bundle:     bundle,
		Language:   req.Language,
		History:    req.History,
	})
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	logger(h.Logger).Info("voice reply",
		"request_id", reqID,
		"farmer_id", req.FarmerID,
		"source", string(reply.Source),
		"language", string(reply.Language),
		"degraded", reply.Degraded,
		"model", reply.Model,
	)
	writeJSON(w, http.StatusOK, reply.Response())
}

// TTSHandler serves POST /v1/voice/tts.
type TTSHandler struct {
	Speech       SpeechSynthesizer
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h TTSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	var req types.SpeechRequest
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeErr(w, reqID, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeErr(w, reqID, err)
		return
	}
	lang := types.LanguageOr(string(req.Language), types.DefaultLanguage)

	res, err := h.Speech.Synthesize(r.Context(), req.Text, lang)
	if errors.Is(err, voice.ErrSynthesisUnavailable) {
		logger(h.Logger).Warn("tts unavailable, client fallback", "request_id", reqID, "language", string(lang))
		writeJSON(w, http.StatusServiceUnavailable, types.SpeechFallback{Fallback: types.SpeechFallbackClient})
		return
	}
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	cache := "miss"
	if res.Cached {
		cache = "hit"
	}
	w.Header().Set("Content-Type", res.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set(types.HeaderTTSProvider, res.Provider)
	w.Header().Set(types.HeaderTTSCache, cache)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

// DefaultTokenTTL bounds streaming STT tokens handed to capture clients.
const DefaultTokenTTL = 60 * time.Second

// TokenHandler serves POST /v1/voice/token.
type TokenHandler struct {
	Issuer stt.TokenIssuer
	TTL    time.Duration
}

func (h TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	if h.Issuer == nil {
		writeErr(w, reqID, core.NewUnconfiguredError("stt"))
		return
	}
	ttl := h.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	tok, err := h.Issuer.IssueToken(r.Context(), ttl)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tok)
}

// TranslateHandler serves POST /v1/translate.
type TranslateHandler struct {
	Translator   Translator
	MaxBodyBytes int64
}

func (h TranslateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	var req types.TranslateRequest
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeErr(w, reqID, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeErr(w, reqID, err)
		return
	}
	lang, _ := types.ParseLanguage(string(req.Language))
	out, err := h.Translator.Translate(r.Context(), req.Text, lang)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TranslateResponse{Text: out, Language: lang})
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
