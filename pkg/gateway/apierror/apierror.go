// Package apierror maps internal errors to the HTTP error envelope. Upstream
// provider messages never reach the envelope.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/fallback"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrTimeout,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var validation *types.ValidationError
	if errors.As(err, &validation) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   validation.Message,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	// Checked before *core.Error: an exhausted chain wraps provider errors.
	var exhausted *fallback.ExhaustedError
	if errors.As(err, &exhausted) {
		return &core.Error{
			Type:      core.ErrProvider,
			Message:   "all providers unavailable",
			Code:      exhausted.Chain + "_exhausted",
			RequestID: requestID,
		}, http.StatusServiceUnavailable
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		if coreErr.Provider != "" {
			return upstream(coreErr, requestID)
		}
		out := &core.Error{
			Type:       coreErr.Type,
			Message:    coreErr.Message,
			Code:       coreErr.Code,
			RequestID:  requestID,
			RetryAfter: coreErr.RetryAfter,
		}
		return out, statusFromType(coreErr.Type)
	}

	// Unknown errors: do not leak details.
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

// upstream reports a single provider failure by type and status only.
func upstream(e *core.Error, requestID string) (*core.Error, int) {
	out := &core.Error{
		Type:      core.ErrProvider,
		Message:   "upstream provider error",
		Code:      string(e.Type),
		RequestID: requestID,
	}
	switch e.Type {
	case core.ErrUnconfigured:
		out.Type = core.ErrUnconfigured
		out.Message = e.Provider + " is not configured"
		out.Code = ""
		return out, http.StatusServiceUnavailable
	case core.ErrTimeout:
		out.Type = core.ErrTimeout
		out.Message = "upstream provider timeout"
		out.Code = ""
		return out, http.StatusGatewayTimeout
	case core.ErrRateLimit:
		out.RetryAfter = e.RetryAfter
		return out, http.StatusServiceUnavailable
	}
	return out, http.StatusBadGateway
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound, core.ErrUnknownCaller:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrNoSpeech:
		return http.StatusUnprocessableEntity
	case core.ErrUnconfigured, core.ErrOverloaded:
		return http.StatusServiceUnavailable
	case core.ErrTimeout:
		return http.StatusGatewayTimeout
	case core.ErrProvider, core.ErrAPI, core.ErrMalformed, core.ErrRecipientSend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write encodes err as an envelope with the mapped status.
func Write(w http.ResponseWriter, err error, requestID string) {
	ce, status := FromError(err, requestID)
	WriteCore(w, status, ce)
}

// WriteCore encodes an already canonical error.
func WriteCore(w http.ResponseWriter, status int, ce *core.Error) {
	if ce.RetryAfter != nil && *ce.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(*ce.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: ce})
}
