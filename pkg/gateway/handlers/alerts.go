package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/gateway/auth"
	"github.com/kisansetu/voicecore/pkg/gateway/mw"
)

// AlertDispatcher broadcasts one alert. *broadcast.Broadcaster implements it.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *types.AlertDescriptor) (*types.DeliveryReport, error)
}

// AlertScheduler persists an alert for later dispatch.
type AlertScheduler interface {
	ScheduleAlert(ctx context.Context, a *types.ScheduledAlert) error
}

// FarmerDirectory loads a profile by id.
type FarmerDirectory interface {
	FarmerByID(ctx context.Context, id string) (*types.FarmerProfile, error)
}

// FarmerCaller starts an advisory call. *broadcast.Broadcaster implements it.
type FarmerCaller interface {
	CallFarmer(ctx context.Context, r types.Recipient) (string, error)
}

// createdBy names the admin key that issued a request without exposing it.
func createdBy(ctx context.Context) string {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok || p == nil || p.APIKey == "" {
		return "api"
	}
	key := p.APIKey
	if len(key) > 4 {
		key = key[len(key)-4:]
	}
	return "api:" + key
}

// BroadcastHandler serves POST /v1/alerts/broadcast.
type BroadcastHandler struct {
	Alerts       AlertDispatcher
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h BroadcastHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	var alert types.AlertDescriptor
	if err := decodeJSON(w, r, h.MaxBodyBytes, &alert); err != nil {
		writeErr(w, reqID, err)
		return
	}
	// Ids and timestamps are assigned server side.
	alert.ID = ""
	alert.CreatedAt = time.Time{}
	alert.CreatedBy = createdBy(r.Context())

	report, err := h.Alerts.Dispatch(r.Context(), &alert)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	logger(h.Logger).Info("alert broadcast",
		"request_id", reqID,
		"alert_id", alert.ID,
		"district", alert.District,
		"sent", report.Sent,
		"failed", report.Failed,
	)
	writeJSON(w, http.StatusOK, types.BroadcastResponse{
		AlertID:        alert.ID,
		Status:         report.Status(),
		DeliveryReport: *report,
	})
}

// ScheduleHandler serves POST /v1/alerts/schedule.
type ScheduleHandler struct {
	Store        AlertScheduler
	MaxBodyBytes int64
	Now          func() time.Time
	Logger       *slog.Logger
}

func (h ScheduleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	if h.Store == nil {
		writeErr(w, reqID, core.NewUnconfiguredError("database"))
		return
	}
	var req types.ScheduleRequest
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeErr(w, reqID, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeErr(w, reqID, err)
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	req.Alert.ID = ""
	req.Alert.CreatedBy = createdBy(r.Context())
	req.Alert.CreatedAt = now().UTC()
	sa := &types.ScheduledAlert{
		ID:    uuid.NewString(),
		Alert: req.Alert,
		DueAt: req.DueAt.UTC(),
	}
	if err := h.Store.ScheduleAlert(r.Context(), sa); err != nil {
		writeErr(w, reqID, err)
		return
	}
	logger(h.Logger).Info("alert scheduled", "request_id", reqID, "scheduled_id", sa.ID, "due_at", sa.DueAt)
	writeJSON(w, http.StatusCreated, sa)
}

// OutboundCallHandler serves POST /v1/calls/outbound.
type OutboundCallHandler struct {
	Farmers      FarmerDirectory
	Caller       FarmerCaller
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h OutboundCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID, http.MethodPost)
		return
	}
	if h.Farmers == nil || h.Caller == nil {
		writeErr(w, reqID, core.NewUnconfiguredError("telephony"))
		return
	}
	var req types.OutboundCallRequest
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeErr(w, reqID, err)
		return
	}
	req.FarmerID = strings.TrimSpace(req.FarmerID)
	if req.FarmerID == "" {
		writeErr(w, reqID, core.NewInvalidRequestError("farmer_id is required"))
		return
	}
	farmer, err := h.Farmers.FarmerByID(r.Context(), req.FarmerID)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	sid, err := h.Caller.CallFarmer(r.Context(), types.RecipientFromProfile(*farmer))
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	logger(h.Logger).Info("outbound call started", "request_id", reqID, "farmer_id", farmer.ID, "call_sid", sid)
	writeJSON(w, http.StatusAccepted, types.OutboundCallResponse{CallSID: sid, FarmerID: farmer.ID})
}
