package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/gateway/mw"
	"github.com/kisansetu/voicecore/pkg/ivr"
	"github.com/kisansetu/voicecore/pkg/telephony"
)

// CallFlow produces the markup for one IVR step. *ivr.Machine implements it.
type CallFlow interface {
	Handle(ctx context.Context, step ivr.Step, in ivr.Input) *telephony.Response
}

// CallStatusObserver counts call status callbacks.
type CallStatusObserver interface {
	ObserveCallStatus(status string)
}

// IVRHandler serves POST /v1/ivr/voice. The call step travels in the query
// string; the form carries what the caller said or pressed.
type IVRHandler struct {
	Flow   CallFlow
	Logger *slog.Logger
}

func (h IVRHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	step, err := ivr.ParseStep(r.URL.Query())
	if err != nil {
		// Unknown steps restart the call rather than failing it.
		logger(h.Logger).Warn("ivr step rejected", "request_id", reqID, "error", err)
	}
	in := ivr.InputFromForm(r.PostForm)

	body, err := h.Flow.Handle(r.Context(), step, in).Render()
	if err != nil {
		logger(h.Logger).Error("render twiml failed", "request_id", reqID, "call_sid", in.CallSID, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", telephony.ContentTypeTwiML)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// CallStatusHandler serves POST /v1/ivr/status. It only records the
// callback.
type CallStatusHandler struct {
	Observer CallStatusObserver
	Logger   *slog.Logger
}

func (h CallStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	status := r.PostForm.Get("CallStatus")
	if status == "" {
		status = "unknown"
	}
	logger(h.Logger).Info("call status",
		"request_id", reqID,
		"call_sid", r.PostForm.Get("CallSid"),
		"status", status,
		"to", types.MaskPhone(r.PostForm.Get("To")),
		"duration_s", r.PostForm.Get("CallDuration"),
	)
	if h.Observer != nil {
		h.Observer.ObserveCallStatus(status)
	}
	w.WriteHeader(http.StatusNoContent)
}
