// Package fallback runs an ordered list of interchangeable providers until
// one succeeds. It is shared by the LLM, TTS and STT layers.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kisansetu/voicecore/pkg/core"
)

var tracer = otel.Tracer("github.com/kisansetu/voicecore/pkg/core/fallback")

// Step is one provider in a chain.
type Step[T any] struct {
	// Name identifies the step in logs and metrics, e.g. "groq/llama-3.3-70b-versatile".
	Name string
	Do   func(ctx context.Context) (T, error)
}

// Outcome labels a single attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeRejected Outcome = "rejected"
	OutcomePanic    Outcome = "panic"
	OutcomeTimeout  Outcome = "timeout"
)

// Attempt records what happened to one step.
type Attempt struct {
	Step     string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Result is the winning value plus the attempt history.
type Result[T any] struct {
	Value    T
	Step     string
	Attempts []Attempt
}

// Fellback reports whether a step other than the first produced the value.
func (r Result[T]) Fellback() bool {
	return len(r.Attempts) > 1
}

// Observer receives one callback per finished attempt.
type Observer interface {
	ObserveAttempt(chain, step string, outcome Outcome, d time.Duration)
}

// ExhaustedError is returned when every step failed.
type ExhaustedError struct {
	Chain    string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Step, a.Err))
	}
	return fmt.Sprintf("%s chain exhausted after %d attempts [%s]", e.Chain, len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes each attempt error to errors.Is/As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// ErrEmptyChain is returned by Run when no steps are configured.
var ErrEmptyChain = errors.New("fallback: no steps configured")

// Chain executes steps in order.
type Chain[T any] struct {
	name     string
	logger   *slog.Logger
	observer Observer
	accept   func(T) bool
}

// Option configures a Chain.
type Option[T any] func(*Chain[T])

// WithLogger sets the logger.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *Chain[T]) { c.logger = logger }
}

// WithObserver sets the per-attempt observer.
func WithObserver[T any](o Observer) Option[T] {
	return func(c *Chain[T]) { c.observer = o }
}

// WithAccept rejects successful but unusable values (empty audio, blank
// text). A rejected value falls through like an error.
func WithAccept[T any](accept func(T) bool) Option[T] {
	return func(c *Chain[T]) { c.accept = accept }
}

// New creates a chain. The name labels logs, spans and metrics.
func New[T any](name string, opts ...Option[T]) *Chain[T] {
	c := &Chain[T]{name: name}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Name returns the chain label.
func (c *Chain[T]) Name() string {
	return c.name
}

// Run tries steps in order and returns the first accepted value. Any step
// error falls through. When ctx ends, Run returns at once, even if a step is
// still blocked; the abandoned step sees its own context canceled.
//
// Deadline expiry yields a core.Error of type ErrTimeout, cancellation yields
// ctx.Err(), and exhaustion yields *ExhaustedError.
func (c *Chain[T]) Run(ctx context.Context, steps []Step[T]) (Result[T], error) {
	var res Result[T]
	if len(steps) == 0 {
		return res, ErrEmptyChain
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, c.stopped(ctx, err)
		}

		a, value := c.attempt(ctx, step)
		res.Attempts = append(res.Attempts, a)
		if c.observer != nil {
			c.observer.ObserveAttempt(c.name, step.Name, a.Outcome, a.Duration)
		}

		if a.Outcome == OutcomeSuccess {
			res.Value = value
			res.Step = step.Name
			if len(res.Attempts) > 1 {
				c.logger.Info("fallback step succeeded",
					"chain", c.name,
					"step", step.Name,
					"attempt", len(res.Attempts),
				)
			}
			return res, nil
		}

		if a.Outcome == OutcomeTimeout || !core.IsFallthrough(ctx, a.Err) {
			return res, c.stopped(ctx, a.Err)
		}

		c.logger.Warn("fallback step failed",
			"chain", c.name,
			"step", step.Name,
			"outcome", string(a.Outcome),
			"duration_ms", a.Duration.Milliseconds(),
			"error", a.Err,
		)
	}

	return res, &ExhaustedError{Chain: c.name, Attempts: res.Attempts}
}

type stepResult[T any] struct {
	value T
	err   error
	panic any
}

func (c *Chain[T]) attempt(ctx context.Context, step Step[T]) (Attempt, T) {
	var zero T
	start := time.Now()

	spanCtx, span := tracer.Start(ctx, "fallback."+c.name, trace.WithAttributes(
		attribute.String("fallback.chain", c.name),
		attribute.String("fallback.step", step.Name),
	))
	defer span.End()

	stepCtx, cancel := context.WithCancel(spanCtx)
	defer cancel()

	done := make(chan stepResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stepResult[T]{panic: r}
			}
		}()
		v, err := step.Do(stepCtx)
		done <- stepResult[T]{value: v, err: err}
	}()

	a := Attempt{Step: step.Name}
	var value T
	select {
	case r := <-done:
		a.Duration = time.Since(start)
		switch {
		case r.panic != nil:
			a.Outcome = OutcomePanic
			a.Err = fmt.Errorf("step %s panicked: %v", step.Name, r.panic)
			c.logger.Error("fallback step panic", "chain", c.name, "step", step.Name, "panic", r.panic)
		case r.err != nil:
			a.Outcome = OutcomeError
			a.Err = r.err
			if ctx.Err() != nil {
				a.Outcome = OutcomeTimeout
			}
		case c.accept != nil && !c.accept(r.value):
			a.Outcome = OutcomeRejected
			a.Err = core.NewMalformedError(step.Name, "provider returned an unusable result")
		default:
			a.Outcome = OutcomeSuccess
			value = r.value
		}
	case <-ctx.Done():
		a.Duration = time.Since(start)
		a.Outcome = OutcomeTimeout
		a.Err = ctx.Err()
	}

	span.SetAttributes(attribute.String("fallback.outcome", string(a.Outcome)))
	if a.Err != nil {
		span.RecordError(a.Err)
		span.SetStatus(codes.Error, a.Err.Error())
	}
	if a.Outcome != OutcomeSuccess {
		return a, zero
	}
	return a, value
}

func (c *Chain[T]) stopped(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	c.logger.Warn("fallback chain deadline exceeded", "chain", c.name, "error", cause)
	return core.NewTimeoutError(c.name+" chain deadline exceeded", context.DeadlineExceeded)
}
