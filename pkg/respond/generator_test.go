package respond

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/llm"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

type scriptedProvider struct {
	name  string
	reply string
	err   error
	hang  bool

	calls atomic.Int32
	mu    sync.Mutex
	last  *types.CompletionRequest
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.last = req
	p.mu.Unlock()
	if p.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &types.CompletionResponse{Provider: p.name, Model: req.Model, Text: p.reply}, nil
}

func (p *scriptedProvider) lastRequest() *types.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func newGenerator(t *testing.T, opts []Option, providers ...*scriptedProvider) *Generator {
	t.Helper()
	reg := core.NewProviderRegistry()
	var targets []core.ModelTarget
	for _, p := range providers {
		reg.Register(p)
		targets = append(targets, core.ModelTarget{Provider: p.name, Model: p.name + "-model"})
	}
	g, err := New(llm.NewEngine(reg, targets), 0, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

var hindiFarmer = types.FarmerProfile{
	ID:          "farmer-7",
	Name:        "Sita",
	Language:    types.LangHindi,
	PrimaryCrop: "onion",
	District:    "Nashik",
	State:       "Maharashtra",
}

func TestReply_FallsThroughToSecondProvider(t *testing.T) {
	groq := &scriptedProvider{name: "groq", err: core.NewNotFoundError("groq", "model decommissioned")}
	gemini := &scriptedProvider{name: "gemini", reply: "**Kal** halki baarish ho sakti hai."}
	g := newGenerator(t, nil, groq, gemini)

	r, err := g.Reply(t.Context(), Request{
		Transcript: "kal mausam kaisa rahega",
		Bundle:     &types.ContextBundle{Farmer: hindiFarmer},
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if r.Degraded {
		t.Error("Degraded = true, want false")
	}
	if r.Text != "Kal halki baarish ho sakti hai." {
		t.Errorf("Text = %q", r.Text)
	}
	if r.Source != types.TopicWeather {
		t.Errorf("Source = %q, want weather", r.Source)
	}
	if r.Model != "gemini/gemini-model" {
		t.Errorf("Model = %q", r.Model)
	}
	if groq.calls.Load() != 1 || gemini.calls.Load() != 1 {
		t.Errorf("calls groq=%d gemini=%d", groq.calls.Load(), gemini.calls.Load())
	}
}

func TestReply_ExhaustionReturnsLocalizedFallback(t *testing.T) {
	for _, lang := range types.SupportedLanguages {
		t.Run(string(lang), func(t *testing.T) {
			g := newGenerator(t, nil,
				&scriptedProvider{name: "groq", err: core.NewAuthenticationError("groq", "invalid key")},
				&scriptedProvider{name: "openai", err: core.NewRateLimitError("openai", "quota", 5)},
			)
			r, err := g.Reply(t.Context(), Request{Transcript: "yojana", Language: lang, Bundle: &types.ContextBundle{Farmer: hindiFarmer}})
			if err != nil {
				t.Fatalf("Reply() error = %v", err)
			}
			if !r.Degraded || r.Text != Localized(MsgFallback, lang) {
				t.Errorf("Reply = %+v, want localized fallback", r)
			}
			if strings.Contains(r.Text, "quota") || strings.Contains(r.Text, "invalid key") {
				t.Error("provider error leaked into reply")
			}
		})
	}
}

func TestReply_DeadlineReturnsBusyMessageOnce(t *testing.T) {
	hung := &scriptedProvider{name: "groq", hang: true}
	never := &scriptedProvider{name: "openai", reply: "late"}
	g := newGenerator(t, []Option{WithDeadline(50 * time.Millisecond)}, hung, never)

	start := time.Now()
	r, err := g.Reply(t.Context(), Request{Transcript: "khaad kab daalu", Language: types.LangEnglish})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Reply took %v, deadline not enforced", elapsed)
	}
	if r.Text != Localized(MsgBusy, types.LangEnglish) || !r.Degraded {
		t.Errorf("Reply = %+v, want busy message", r)
	}
	if never.calls.Load() != 0 {
		t.Error("second provider ran after the chain deadline")
	}
}

func TestReply_CallerCancellationIsReturned(t *testing.T) {
	g := newGenerator(t, nil, &scriptedProvider{name: "groq", hang: true})
	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := g.Reply(ctx, Request{Transcript: "hello"}); err == nil {
		t.Fatal("Reply() error = nil, want cancellation")
	}
}

func TestReply_HindiPriceQuestionWithoutPrices(t *testing.T) {
	honest := &scriptedProvider{name: "groq", reply: "माफ़ कीजिए, आज के प्याज़ के भाव की जानकारी अभी उपलब्ध नहीं है।"}
	g := newGenerator(t, nil, honest)

	r, err := g.Reply(t.Context(), Request{
		Transcript: "mandi mein aaj bhav kya hai?",
		Bundle:     &types.ContextBundle{Farmer: hindiFarmer},
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if r.Source != types.TopicPrices {
		t.Errorf("Source = %q, want prices", r.Source)
	}
	if r.Language != types.LangHindi {
		t.Errorf("Language = %q, want hi", r.Language)
	}
	if numbers.MatchString(r.Text) {
		t.Errorf("reply quotes a number without price data: %q", r.Text)
	}

	sys := honest.lastRequest().System
	if !strings.Contains(sys, "MARKET PRICES (most recent first):\n"+NotAvailable) {
		t.Errorf("system prompt does not mark prices unavailable:\n%s", sys)
	}
	if !strings.Contains(sys, "Reply only in Hindi") {
		t.Error("system prompt does not request Hindi")
	}
}

func TestReply_InventedPriceIsReplaced(t *testing.T) {
	inventive := &scriptedProvider{name: "groq", reply: "आज प्याज़ का भाव 2400 रुपये क्विंटल है।"}
	g := newGenerator(t, nil, inventive)

	r, err := g.Reply(t.Context(), Request{
		Transcript: "pyaaz ka bhav batao",
		Bundle:     &types.ContextBundle{Farmer: hindiFarmer},
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if r.Text != Localized(MsgPricesUnavailable, types.LangHindi) {
		t.Errorf("Text = %q, want prices-unavailable message", r.Text)
	}
	if r.Source != types.TopicPrices {
		t.Errorf("Source = %q", r.Source)
	}
}

func TestReply_PricesWithDataAreKept(t *testing.T) {
	p := &scriptedProvider{name: "groq", reply: "Nashik mandi mein pyaaz 1800 rupaye quintal hai."}
	g := newGenerator(t, nil, p)
	bundle := &types.ContextBundle{
		Farmer: hindiFarmer,
		Prices: []types.MarketPrice{{Crop: "onion", Market: "Nashik", ModalPrice: 1800}},
	}
	r, _ := g.Reply(t.Context(), Request{Transcript: "pyaaz ka bhav", Bundle: bundle})
	if r.Text != p.reply {
		t.Errorf("Text = %q, want model reply", r.Text)
	}
}

func TestReply_MSPFromAdvisoryIsKept(t *testing.T) {
	bundle := &types.ContextBundle{
		Farmer:   hindiFarmer,
		Advisory: &types.Advisory{Crop: "wheat", MSP: 2275},
	}
	tests := []struct {
		name  string
		reply string
		kept  bool
	}{
		{"msp from context", "गेहूं का एमएसपी 2275 रुपये प्रति क्विंटल है।", true},
		{"msp in devanagari digits", "गेहूं का एमएसपी २२७५ रुपये प्रति क्विंटल है।", true},
		{"msp with grouping", "Gehun ka MSP 2,275 rupaye quintal hai.", true},
		{"invented mandi rate", "गेहूं का एमएसपी 2275 है, मंडी में 2400 चल रहा है।", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{name: "groq", reply: tt.reply}
			g := newGenerator(t, nil, p)
			r, err := g.Reply(t.Context(), Request{Transcript: "gehun ka msp kya hai", Bundle: bundle})
			if err != nil {
				t.Fatalf("Reply() error = %v", err)
			}
			if r.Source != types.TopicPrices {
				t.Fatalf("Source = %q, want prices", r.Source)
			}
			want := Localized(MsgPricesUnavailable, types.LangHindi)
			if tt.kept {
				want = tt.reply
			}
			if r.Text != want {
				t.Errorf("Text = %q, want %q", r.Text, want)
			}
		})
	}
}

func TestReply_SendsBoundedHistory(t *testing.T) {
	p := &scriptedProvider{name: "groq", reply: "ok"}
	g := newGenerator(t, nil, p)

	history := make([]types.ConversationTurn, 0, 14)
	for i := range 14 {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		history = append(history, types.ConversationTurn{Role: role, Content: "turn"})
	}
	if _, err := g.Reply(t.Context(), Request{Transcript: "aur?", History: history}); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	msgs := p.lastRequest().Messages
	if len(msgs) != types.MaxHistoryTurns+1 {
		t.Errorf("len(Messages) = %d, want %d", len(msgs), types.MaxHistoryTurns+1)
	}
	if msgs[len(msgs)-1].Content != "aur?" {
		t.Errorf("last message = %+v", msgs[len(msgs)-1])
	}
}

func TestTranslate_CachesAndHasNoDeadline(t *testing.T) {
	p := &scriptedProvider{name: "groq", reply: " गेहूं की बुवाई नवंबर में करें। "}
	g := newGenerator(t, []Option{WithDeadline(time.Nanosecond)}, p)

	for range 2 {
		out, err := g.Translate(t.Context(), "Sow wheat in November.", types.LangHindi)
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		if out != "गेहूं की बुवाई नवंबर में करें।" {
			t.Errorf("Translate() = %q", out)
		}
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls.Load())
	}
}
