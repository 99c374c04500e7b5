// Package voice turns reply text into audio across an ordered TTS chain
// with a shared clip cache.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/fallback"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/core/voice/tts"
)

// ErrSynthesisUnavailable means every TTS provider failed. HTTP callers
// answer 503 and let the client synthesize locally.
var ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")

// CacheObserver is told about cache hits and misses.
type CacheObserver interface {
	ObserveCache(hit bool)
}

// Synthesizer implements cache lookup followed by the provider chain.
type Synthesizer struct {
	providers []tts.Provider
	cache     *tts.Cache
	chain     *fallback.Chain[*tts.Synthesis]
	format    string
	cacheObs  CacheObserver
	logger    *slog.Logger
}

// SynthesizerConfig configures a Synthesizer.
type SynthesizerConfig struct {
	Providers []tts.Provider // in preference order
	Cache     *tts.Cache     // nil disables caching
	Format    string         // default "mp3"
	Observer  fallback.Observer
	CacheObs  CacheObserver
	Logger    *slog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	format := cfg.Format
	if format == "" {
		format = "mp3"
	}
	return &Synthesizer{
		providers: cfg.Providers,
		cache:     cfg.Cache,
		format:    format,
		cacheObs:  cfg.CacheObs,
		logger:    logger,
		chain: fallback.New("tts",
			fallback.WithLogger[*tts.Synthesis](logger),
			fallback.WithObserver[*tts.Synthesis](cfg.Observer),
			fallback.WithAccept(func(s *tts.Synthesis) bool { return s != nil && len(s.Audio) > 0 }),
		),
	}
}

// Result is synthesized audio plus where it came from.
type Result struct {
	*tts.Synthesis
	Cached bool
}

// Synthesize returns audio for text in lang. Only provider exhaustion
// yields ErrSynthesisUnavailable; caller cancellation is returned as is.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, lang types.Language) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewInvalidRequestError("text is required")
	}

	compute := func(ctx context.Context) (*tts.Synthesis, error) {
		return s.runChain(ctx, text, lang)
	}

	var (
		syn *tts.Synthesis
		hit bool
		err error
	)
	if s.cache != nil {
		syn, hit, err = s.cache.GetOrSynthesize(ctx, lang, text, compute)
		if s.cacheObs != nil && tts.Cacheable(text) && err == nil {
			s.cacheObs.ObserveCache(hit)
		}
	} else {
		syn, err = compute(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &Result{Synthesis: syn, Cached: hit}, nil
}

func (s *Synthesizer) runChain(ctx context.Context, text string, lang types.Language) (*tts.Synthesis, error) {
	steps := make([]fallback.Step[*tts.Synthesis], 0, len(s.providers))
	for _, p := range s.providers {
		provider := p
		steps = append(steps, fallback.Step[*tts.Synthesis]{
			Name: provider.Name(),
			Do: func(ctx context.Context) (*tts.Synthesis, error) {
				return provider.Synthesize(ctx, text, tts.SynthesizeOptions{
					Language: lang,
					Format:   s.format,
				})
			},
		})
	}

	res, err := s.chain.Run(ctx, steps)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("tts chain exhausted", "language", string(lang), "chars", len([]rune(text)), "error", err)
		return nil, ErrSynthesisUnavailable
	}
	return res.Value, nil
}
