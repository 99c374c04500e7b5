package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/ivr"
	"github.com/kisansetu/voicecore/pkg/telephony"
)

type recordingFlow struct {
	step ivr.Step
	in   ivr.Input
}

func (f *recordingFlow) Handle(ctx context.Context, step ivr.Step, in ivr.Input) *telephony.Response {
	f.step, f.in = step, in
	return &telephony.Response{Verbs: []any{telephony.Say{Text: "namaste"}, telephony.Hangup{}}}
}

func twilioPost(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIVRHandler_DecodesStepAndInput(t *testing.T) {
	flow := &recordingFlow{}
	h := IVRHandler{Flow: flow}
	form := url.Values{"CallSid": {"CA1"}, "From": {"+919876543210"}, "SpeechResult": {"kal baarish hogi"}}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, twilioPost("/v1/ivr/voice?step=conversation&lang=hi&farmer=f1", form))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != telephony.ContentTypeTwiML {
		t.Errorf("Content-Type=%q", got)
	}
	if flow.step.Kind != ivr.StepConversation || flow.step.Language != types.LangHindi || flow.step.FarmerID != "f1" {
		t.Errorf("step=%+v", flow.step)
	}
	if flow.in.CallSID != "CA1" || flow.in.Speech != "kal baarish hogi" {
		t.Errorf("input=%+v", flow.in)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "<?xml") || !strings.Contains(body, "<Say>namaste</Say>") {
		t.Errorf("body=%s", body)
	}
}

func TestIVRHandler_UnknownStepRestartsAtEntry(t *testing.T) {
	flow := &recordingFlow{}
	rr := httptest.NewRecorder()
	IVRHandler{Flow: flow}.ServeHTTP(rr, twilioPost("/v1/ivr/voice?step=bogus", url.Values{}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if flow.step.Kind != ivr.StepEntry {
		t.Errorf("kind=%q, want entry", flow.step.Kind)
	}
}

type statusCounter map[string]int

func (c statusCounter) ObserveCallStatus(status string) { c[status]++ }

func TestCallStatusHandler(t *testing.T) {
	obs := statusCounter{}
	h := CallStatusHandler{Observer: obs}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, twilioPost("/v1/ivr/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"no-answer"}}))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rr.Code)
	}
	if obs["no-answer"] != 1 {
		t.Errorf("observed=%v", obs)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, twilioPost("/v1/ivr/status", url.Values{}))
	if obs["unknown"] != 1 {
		t.Errorf("observed=%v", obs)
	}
}
