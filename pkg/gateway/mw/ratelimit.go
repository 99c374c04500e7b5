package mw

import (
	"net/http"
	"time"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/gateway/apierror"
	"github.com/kisansetu/voicecore/pkg/gateway/principal"
	"github.com/kisansetu/voicecore/pkg/gateway/ratelimit"
)

// RateLimitObserver is told about rejected requests.
type RateLimitObserver interface {
	ObserveRateLimited(kind string)
}

// RateLimit applies limiter per resolved principal. Twilio webhooks and
// health probes are mounted outside it.
func RateLimit(limiter *ratelimit.Limiter, trustProxy bool, obs RateLimitObserver, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		who := principal.Resolve(r, trustProxy)
		dec := limiter.Acquire(who.Key, time.Now())
		if !dec.Allowed {
			if obs != nil {
				obs.ObserveRateLimited(string(who.Kind))
			}
			reqID, _ := RequestIDFrom(r.Context())
			ce := &core.Error{
				Type:      core.ErrRateLimit,
				Message:   "rate limit exceeded",
				RequestID: reqID,
			}
			if dec.RetryAfter > 0 {
				v := dec.RetryAfter
				ce.RetryAfter = &v
			}
			apierror.WriteCore(w, http.StatusTooManyRequests, ce)
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}
