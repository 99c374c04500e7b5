// Package llm routes chat completions through an ordered provider chain.
package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/fallback"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Engine tries each configured {provider, model} in order.
type Engine struct {
	registry core.ProviderRegistry
	targets  []core.ModelTarget
	chain    *fallback.Chain[*types.CompletionResponse]
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger   *slog.Logger
	observer fallback.Observer
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithObserver reports each provider attempt.
func WithObserver(obs fallback.Observer) Option {
	return func(o *engineOptions) { o.observer = obs }
}

// NewEngine creates an engine over registry. Targets naming unregistered
// providers are dropped with a warning.
func NewEngine(registry core.ProviderRegistry, targets []core.ModelTarget, opts ...Option) *Engine {
	o := engineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	kept := make([]core.ModelTarget, 0, len(targets))
	for _, t := range targets {
		if _, ok := registry.Get(t.Provider); !ok {
			o.logger.Warn("llm chain target skipped: provider not registered", "provider", t.Provider, "model", t.Model)
			continue
		}
		kept = append(kept, t)
	}

	return &Engine{
		registry: registry,
		targets:  kept,
		logger:   o.logger,
		chain: fallback.New("llm",
			fallback.WithLogger[*types.CompletionResponse](o.logger),
			fallback.WithObserver[*types.CompletionResponse](o.observer),
			fallback.WithAccept(func(r *types.CompletionResponse) bool {
				return r != nil && strings.TrimSpace(r.Text) != ""
			}),
		),
	}
}

// Targets returns the active chain in order.
func (e *Engine) Targets() []core.ModelTarget {
	return append([]core.ModelTarget(nil), e.targets...)
}

// Complete runs req through the chain. req.Model is ignored; each step uses
// its own model. A deadline on ctx bounds the whole chain.
func (e *Engine) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	steps := make([]fallback.Step[*types.CompletionResponse], 0, len(e.targets))
	for _, t := range e.targets {
		provider, _ := e.registry.Get(t.Provider)
		target := t
		steps = append(steps, fallback.Step[*types.CompletionResponse]{
			Name: target.String(),
			Do: func(ctx context.Context) (*types.CompletionResponse, error) {
				reqCopy := *req
				reqCopy.Model = target.Model
				return provider.Complete(ctx, &reqCopy)
			},
		})
	}

	res, err := e.chain.Run(ctx, steps)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}
