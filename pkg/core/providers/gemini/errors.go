package gemini

import (
	"errors"

	"google.golang.org/genai"

	"github.com/kisansetu/voicecore/pkg/core"
)

// mapError converts a genai error into the core taxonomy. The gRPC-style
// status wins over the HTTP code when both are present.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if ptr := (*genai.APIError)(nil); errors.As(err, &ptr) && ptr != nil {
		apiErr = *ptr
	} else if !errors.As(err, &apiErr) {
		return core.NewProviderError("gemini", err)
	}

	var errType core.ErrorType
	switch apiErr.Status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		errType = core.ErrInvalidRequest
	case "UNAUTHENTICATED":
		errType = core.ErrAuthentication
	case "PERMISSION_DENIED":
		errType = core.ErrPermission
	case "NOT_FOUND":
		errType = core.ErrNotFound
	case "RESOURCE_EXHAUSTED":
		errType = core.ErrRateLimit
	case "INTERNAL":
		errType = core.ErrAPI
	case "UNAVAILABLE":
		errType = core.ErrOverloaded
	case "DEADLINE_EXCEEDED":
		errType = core.ErrTimeout
	default:
		errType = core.FromHTTPStatus("gemini", apiErr.Code, "").Type
	}

	return &core.Error{
		Type:     errType,
		Provider: "gemini",
		Message:  apiErr.Message,
		Code:     apiErr.Status,
	}
}
