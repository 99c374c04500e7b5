package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kisansetu/voicecore/pkg/core"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveAttempt(chain, step string, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, chain+":"+step+":"+string(outcome))
}

func staticStep(name string, value string, err error, calls *[]string) Step[string] {
	return Step[string]{
		Name: name,
		Do: func(ctx context.Context) (string, error) {
			*calls = append(*calls, name)
			return value, err
		},
	}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	var calls []string
	obs := &recordingObserver{}
	c := New[string]("llm", WithObserver[string](obs))

	res, err := c.Run(t.Context(), []Step[string]{
		staticStep("groq/llama", "", core.NewAuthenticationError("groq", "invalid key"), &calls),
		staticStep("openai/gpt-4o-mini", "namaste", nil, &calls),
		staticStep("gemini/gemini-2.0-flash", "unused", nil, &calls),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Value != "namaste" || res.Step != "openai/gpt-4o-mini" {
		t.Fatalf("Run() = %+v", res)
	}
	if !res.Fellback() {
		t.Error("Fellback() = false, want true")
	}
	if diff := cmp.Diff([]string{"groq/llama", "openai/gpt-4o-mini"}, calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	wantObs := []string{"llm:groq/llama:error", "llm:openai/gpt-4o-mini:success"}
	if diff := cmp.Diff(wantObs, obs.calls); diff != "" {
		t.Errorf("observer mismatch (-want +got):\n%s", diff)
	}
}

func TestChain_EveryFailureKindFallsThrough(t *testing.T) {
	var calls []string
	c := New[string]("llm")

	_, err := c.Run(t.Context(), []Step[string]{
		staticStep("a", "", core.NewAuthenticationError("a", "bad key"), &calls),
		staticStep("b", "", core.NewRateLimitError("b", "quota", 30), &calls),
		staticStep("c", "", core.NewNotFoundError("c", "model decommissioned"), &calls),
		staticStep("d", "", core.FromHTTPStatus("d", 504, "upstream timeout"), &calls),
		staticStep("e", "", core.NewMalformedError("e", "no choices"), &calls),
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want *ExhaustedError", err)
	}
	if len(exhausted.Attempts) != 5 {
		t.Errorf("attempts = %d, want 5", len(exhausted.Attempts))
	}
	if len(calls) != 5 {
		t.Errorf("calls = %v, want all five steps", calls)
	}
	if core.TypeOf(err) != core.ErrAuthentication {
		t.Errorf("expected first attempt error reachable through Unwrap, got %v", core.TypeOf(err))
	}
}

func TestChain_AcceptRejectsEmptyValues(t *testing.T) {
	var calls []string
	c := New[string]("tts", WithAccept(func(s string) bool { return s != "" }))

	res, err := c.Run(t.Context(), []Step[string]{
		staticStep("elevenlabs", "", nil, &calls),
		staticStep("cartesia", "audio", nil, &calls),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Step != "cartesia" {
		t.Errorf("Step = %q, want cartesia", res.Step)
	}
	if res.Attempts[0].Outcome != OutcomeRejected {
		t.Errorf("first outcome = %v, want rejected", res.Attempts[0].Outcome)
	}
}

func TestChain_RecoversPanics(t *testing.T) {
	c := New[int]("stt")
	res, err := c.Run(t.Context(), []Step[int]{
		{Name: "bad", Do: func(context.Context) (int, error) { panic("nil socket") }},
		{Name: "good", Do: func(context.Context) (int, error) { return 7, nil }},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Value != 7 {
		t.Errorf("Value = %d, want 7", res.Value)
	}
	if res.Attempts[0].Outcome != OutcomePanic {
		t.Errorf("first outcome = %v, want panic", res.Attempts[0].Outcome)
	}
}

func TestChain_DeadlineBoundsWholeChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	var secondCalled bool
	c := New[string]("llm")
	start := time.Now()
	_, err := c.Run(ctx, []Step[string]{
		{Name: "hangs", Do: func(context.Context) (string, error) {
			// Ignores its context on purpose; the chain must still return.
			time.Sleep(2 * time.Second)
			return "late", nil
		}},
		{Name: "never", Do: func(context.Context) (string, error) {
			secondCalled = true
			return "x", nil
		}},
	})
	elapsed := time.Since(start)

	if core.Classify(ctx, err) != core.ClassTimeout {
		t.Fatalf("Run() error = %v, want timeout", err)
	}
	if core.TypeOf(err) != core.ErrTimeout {
		t.Errorf("TypeOf = %v, want %v", core.TypeOf(err), core.ErrTimeout)
	}
	if elapsed > time.Second {
		t.Errorf("Run took %v, deadline was not enforced", elapsed)
	}
	if secondCalled {
		t.Error("second step ran after the deadline")
	}
}

func TestChain_CancelReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	c := New[string]("llm")

	_, err := c.Run(ctx, []Step[string]{
		{Name: "cancels", Do: func(context.Context) (string, error) {
			cancel()
			return "", errors.New("connection closed")
		}},
		{Name: "never", Do: func(context.Context) (string, error) { return "x", nil }},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestChain_EmptySteps(t *testing.T) {
	c := New[string]("llm")
	if _, err := c.Run(t.Context(), nil); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("Run() error = %v, want ErrEmptyChain", err)
	}
}

func TestChain_StepContextCanceledAfterReturn(t *testing.T) {
	var stepCtx context.Context
	c := New[string]("llm")
	_, err := c.Run(t.Context(), []Step[string]{
		{Name: "only", Do: func(ctx context.Context) (string, error) {
			stepCtx = ctx
			return "ok", nil
		}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	select {
	case <-stepCtx.Done():
	default:
		t.Error("step context should be released once the attempt finishes")
	}
}
