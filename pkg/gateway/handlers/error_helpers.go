package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/gateway/apierror"
)

// defaultMaxBodyBytes applies when a handler is built without a limit.
const defaultMaxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, reqID string, err error) {
	apierror.Write(w, err, reqID)
}

func methodNotAllowed(w http.ResponseWriter, reqID string, allow string) {
	w.Header().Set("Allow", allow)
	apierror.WriteCore(w, http.StatusMethodNotAllowed, &core.Error{
		Type:      core.ErrInvalidRequest,
		Message:   "method not allowed",
		RequestID: reqID,
	})
}

// decodeJSON reads one JSON object from the body into dst. Unknown fields
// are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return core.NewInvalidRequestError("content type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return core.NewInvalidRequestError("request body too large")
		case errors.Is(err, io.EOF):
			return core.NewInvalidRequestError("request body is empty")
		default:
			return core.NewInvalidRequestError("invalid json body")
		}
	}
	if dec.More() {
		return core.NewInvalidRequestError("request body must be a single json object")
	}
	return nil
}
