// Package respond turns a transcript and a farmer's context into a short
// spoken reply through the LLM fallback chain.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

const (
	// DefaultDeadline caps the whole provider chain for voice callers.
	DefaultDeadline = 12 * time.Second
	// DefaultMaxTokens keeps spoken replies short.
	DefaultMaxTokens = 300
	// DefaultTranslationCacheSize bounds cached translations.
	DefaultTranslationCacheSize = 500
)

// Completer runs a completion through an ordered provider chain.
// *llm.Engine implements it.
type Completer interface {
	Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)
}

// Request is one turn.
type Request struct {
	Transcript string
	Bundle     *types.ContextBundle
	Language   types.Language // empty uses the farmer's profile language
	History    []types.ConversationTurn
}

// Reply is what the farmer hears. Degraded replies are fixed localized
// messages produced without a model answer.
type Reply struct {
	Text     string
	Source   types.Topic
	Language types.Language
	Degraded bool
	Model    string
}

// Response converts a Reply into the HTTP wire shape.
func (r *Reply) Response() *types.AskResponse {
	return &types.AskResponse{Reply: r.Text, Source: r.Source, Language: r.Language, Degraded: r.Degraded}
}

// Generator produces replies and translations.
type Generator struct {
	llm          Completer
	deadline     time.Duration
	maxTokens    int
	temperature  *float64
	translations *lru.Cache[string, string]
	logger       *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithDeadline overrides the reply deadline. Zero disables it.
func WithDeadline(d time.Duration) Option {
	return func(g *Generator) { g.deadline = d }
}

// WithMaxTokens overrides the reply token budget.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = &t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator. translationCacheSize <= 0 uses the default.
func New(llm Completer, translationCacheSize int, opts ...Option) (*Generator, error) {
	if llm == nil {
		return nil, fmt.Errorf("respond: completer is required")
	}
	if translationCacheSize <= 0 {
		translationCacheSize = DefaultTranslationCacheSize
	}
	cache, err := lru.New[string, string](translationCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create translation cache: %w", err)
	}
	g := &Generator{
		llm:          llm,
		deadline:     DefaultDeadline,
		maxTokens:    DefaultMaxTokens,
		translations: cache,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Reply answers one turn. Provider failures never surface: a chain timeout
// yields the localized busy message and exhaustion yields the localized
// fallback, each exactly once. The only error is the caller's own
// cancellation.
func (g *Generator) Reply(ctx context.Context, req Request) (*Reply, error) {
	bundle := req.Bundle
	if bundle == nil {
		bundle = &types.ContextBundle{}
	}
	lang := types.LanguageOr(string(req.Language), bundle.Farmer.Language)
	out := &Reply{Source: ClassifyTopic(req.Transcript), Language: lang}

	chainCtx := ctx
	if g.deadline > 0 {
		var cancel context.CancelFunc
		chainCtx, cancel = context.WithTimeout(ctx, g.deadline)
		defer cancel()
	}

	system := SystemPrompt(bundle, lang)
	start := time.Now()
	resp, err := g.llm.Complete(chainCtx, &types.CompletionRequest{
		System:      system,
		Messages:    types.MessagesFromHistory(req.History, req.Transcript),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		out.Degraded = true
		if core.Classify(chainCtx, err) == core.ClassTimeout {
			out.Text = Localized(MsgBusy, lang)
		} else {
			out.Text = Localized(MsgFallback, lang)
		}
		g.logger.Warn("reply degraded",
			"farmer_id", bundle.Farmer.ID,
			"language", string(lang),
			"class", string(core.Classify(chainCtx, err)),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return out, nil
	}

	out.Text = cleanForSpeech(resp.Text)
	out.Model = resp.Provider + "/" + resp.Model
	if out.Source == types.TopicPrices && !bundle.Has(types.TopicPrices) && quotesUnknownNumber(out.Text, system) {
		g.logger.Warn("reply quoted prices without price data, replaced",
			"farmer_id", bundle.Farmer.ID,
			"model", out.Model,
		)
		out.Text = Localized(MsgPricesUnavailable, lang)
	}
	if out.Text == "" {
		out.Text = Localized(MsgFallback, lang)
		out.Degraded = true
	}
	return out, nil
}

// Translate renders text in lang through the same chain without a deadline.
// Results are cached by (lang, text).
func (g *Generator) Translate(ctx context.Context, text string, lang types.Language) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	key := string(lang) + "\x00" + text
	if cached, ok := g.translations.Get(key); ok {
		return cached, nil
	}

	resp, err := g.llm.Complete(ctx, &types.CompletionRequest{
		System: fmt.Sprintf("Translate the user's text into %s. Keep numbers, units and names unchanged. "+
			"Reply with the translation only.", lang.DisplayName()),
		Messages: []types.CompletionMessage{{Role: types.RoleUser, Content: text}},
	})
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	out := strings.TrimSpace(resp.Text)
	g.translations.Add(key, out)
	return out, nil
}

var (
	numbers    = regexp.MustCompile(`[0-9०-९]+(?:[.,][0-9०-९]+)*`)
	markup     = regexp.MustCompile("[*_#`>|~]+")
	whitespace = regexp.MustCompile(`\s+`)
)

// plainDigits folds Devanagari digits to ASCII and drops digit grouping.
var plainDigits = strings.NewReplacer("०", "0", "१", "1", "२", "2", "३", "3", "४", "4",
	"५", "5", "६", "6", "७", "7", "८", "8", "९", "9", ",", "")

// quotesUnknownNumber reports whether text contains a number that does not
// appear anywhere in the prompt the model was given.
func quotesUnknownNumber(text, prompt string) bool {
	found := numbers.FindAllString(text, -1)
	if len(found) == 0 {
		return false
	}
	known := make(map[string]struct{})
	for _, n := range numbers.FindAllString(prompt, -1) {
		known[plainDigits.Replace(n)] = struct{}{}
	}
	for _, n := range found {
		if _, ok := known[plainDigits.Replace(n)]; !ok {
			return true
		}
	}
	return false
}

// cleanForSpeech strips markdown a model may emit despite instructions.
func cleanForSpeech(s string) string {
	s = markup.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
