package mw

import (
	"log/slog"
	"net/http"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/gateway/apierror"
)

// SignatureHeader carries Twilio's HMAC over the webhook URL and form.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator checks a Twilio webhook signature.
// *telephony.Twilio implements it.
type SignatureValidator interface {
	ValidSignature(url string, params map[string]string, signature string) bool
}

// TwilioSignature rejects webhooks whose signature does not match the
// public URL Twilio was given plus the posted form. A nil validator
// disables the check.
func TwilioSignature(v SignatureValidator, publicBaseURL string, logger *slog.Logger, next http.Handler) http.Handler {
	if v == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := RequestIDFrom(r.Context())
		if err := r.ParseForm(); err != nil {
			apierror.WriteCore(w, http.StatusBadRequest, &core.Error{
				Type:      core.ErrInvalidRequest,
				Message:   "malformed form body",
				RequestID: reqID,
			})
			return
		}

		params := make(map[string]string, len(r.PostForm))
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				params[k] = vs[0]
			}
		}
		url := publicBaseURL + r.URL.RequestURI()
		if !v.ValidSignature(url, params, r.Header.Get(SignatureHeader)) {
			if logger != nil {
				logger.Warn("twilio signature rejected",
					"request_id", reqID,
					"path", r.URL.Path,
					"call_sid", params["CallSid"],
				)
			}
			apierror.WriteCore(w, http.StatusForbidden, &core.Error{
				Type:      core.ErrPermission,
				Message:   "invalid webhook signature",
				RequestID: reqID,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
