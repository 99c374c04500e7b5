package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kisansetu/voicecore/pkg/broadcast"
	"github.com/kisansetu/voicecore/pkg/core/fallback"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/core/voice"
	"github.com/kisansetu/voicecore/pkg/farmctx"
	"github.com/kisansetu/voicecore/pkg/gateway/mw"
	"github.com/kisansetu/voicecore/pkg/ivr"
)

var (
	_ fallback.Observer    = (*Metrics)(nil)
	_ voice.CacheObserver  = (*Metrics)(nil)
	_ farmctx.Observer     = (*Metrics)(nil)
	_ ivr.Observer         = (*Metrics)(nil)
	_ broadcast.Observer   = (*Metrics)(nil)
	_ mw.RequestObserver   = (*Metrics)(nil)
	_ mw.RateLimitObserver = (*Metrics)(nil)
)

func TestObservers(t *testing.T) {
	m := New("")

	m.ObserveAttempt("llm", "groq/llama", fallback.OutcomeError, 40*time.Millisecond)
	m.ObserveAttempt("llm", "gemini/flash", fallback.OutcomeSuccess, 300*time.Millisecond)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObserveLookup(farmctx.SourcePrices, false, time.Millisecond)
	m.ObserveTurn("conversation")
	m.ObserveSend(types.ChannelSMS, types.DeliverySent)
	m.ObserveSend(types.ChannelSMS, types.DeliveryFailed)
	m.ObserveRequest("POST /v1/voice/ask", 200, time.Second)

	if got := testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("llm", "groq/llama", "error")); got != 1 {
		t.Errorf("llm error attempts = %v", got)
	}
	if got := testutil.ToFloat64(m.TTSCacheTotal.WithLabelValues("miss")); got != 2 {
		t.Errorf("tts misses = %v", got)
	}
	if got := testutil.ToFloat64(m.ContextLookups.WithLabelValues("prices", "error")); got != 1 {
		t.Errorf("price lookup errors = %v", got)
	}
	if got := testutil.ToFloat64(m.SendsTotal.WithLabelValues("sms", "failed")); got != 1 {
		t.Errorf("sms failures = %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST /v1/voice/ask", "200")); got != 1 {
		t.Errorf("requests = %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("voicecore")
	m.ObserveTurn("entry")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `voicecore_ivr_turns_total{step="entry"} 1`) {
		t.Fatalf("metrics output missing ivr turn:\n%s", body)
	}
}
