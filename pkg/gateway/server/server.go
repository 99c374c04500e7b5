package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/voice/stt"
	"github.com/kisansetu/voicecore/pkg/gateway/apierror"
	"github.com/kisansetu/voicecore/pkg/gateway/config"
	"github.com/kisansetu/voicecore/pkg/gateway/handlers"
	"github.com/kisansetu/voicecore/pkg/gateway/lifecycle"
	"github.com/kisansetu/voicecore/pkg/gateway/metrics"
	"github.com/kisansetu/voicecore/pkg/gateway/mw"
	"github.com/kisansetu/voicecore/pkg/gateway/ratelimit"
)

// Deps are the components behind the routes. A nil component answers its
// routes with 503 unconfigured.
type Deps struct {
	Context    handlers.ContextSource
	Replies    handlers.Replier
	Translator handlers.Translator
	Speech     handlers.SpeechSynthesizer
	Tokens     stt.TokenIssuer
	Flow       handlers.CallFlow
	Alerts     handlers.AlertDispatcher
	Schedules  handlers.AlertScheduler
	Farmers    handlers.FarmerDirectory
	Caller     handlers.FarmerCaller

	// Signatures validates Twilio webhooks. Nil skips validation.
	Signatures mw.SignatureValidator

	Metrics   *metrics.Metrics
	Lifecycle *lifecycle.Lifecycle
}

type Server struct {
	cfg     config.Config
	deps    Deps
	logger  *slog.Logger
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
		}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Lifecycle: s.deps.Lifecycle})
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	maxBody := s.cfg.MaxBodyBytes

	var ask http.Handler = unconfigured("llm")
	if s.deps.Context != nil && s.deps.Replies != nil {
		ask = handlers.AskHandler{Context: s.deps.Context, Replies: s.deps.Replies, MaxBodyBytes: maxBody, Logger: s.logger}
	}
	var speech http.Handler = unconfigured("tts")
	if s.deps.Speech != nil {
		speech = handlers.TTSHandler{Speech: s.deps.Speech, MaxBodyBytes: maxBody, Logger: s.logger}
	}
	var translate http.Handler = unconfigured("llm")
	if s.deps.Translator != nil {
		translate = handlers.TranslateHandler{Translator: s.deps.Translator, MaxBodyBytes: maxBody}
	}
	s.mux.Handle("/v1/voice/ask", s.public(ask))
	s.mux.Handle("/v1/voice/tts", s.public(speech))
	s.mux.Handle("/v1/voice/token", s.public(handlers.TokenHandler{Issuer: s.deps.Tokens}))
	s.mux.Handle("/v1/translate", s.public(translate))

	var flow http.Handler = unconfigured("ivr")
	if s.deps.Flow != nil {
		flow = handlers.IVRHandler{Flow: s.deps.Flow, Logger: s.logger}
	}
	var statusObs handlers.CallStatusObserver
	if s.deps.Metrics != nil {
		statusObs = s.deps.Metrics
	}
	s.mux.Handle("/v1/ivr/voice", s.twilio(flow))
	s.mux.Handle("/v1/ivr/status", s.twilio(handlers.CallStatusHandler{Observer: statusObs, Logger: s.logger}))

	var broadcast http.Handler = unconfigured("broadcast")
	if s.deps.Alerts != nil {
		broadcast = handlers.BroadcastHandler{Alerts: s.deps.Alerts, MaxBodyBytes: maxBody, Logger: s.logger}
	}
	s.mux.Handle("/v1/alerts/broadcast", s.admin(broadcast))
	s.mux.Handle("/v1/alerts/schedule", s.admin(handlers.ScheduleHandler{Store: s.deps.Schedules, MaxBodyBytes: maxBody, Logger: s.logger}))
	s.mux.Handle("/v1/calls/outbound", s.admin(handlers.OutboundCallHandler{
		Farmers:      s.deps.Farmers,
		Caller:       s.deps.Caller,
		MaxBodyBytes: maxBody,
		Logger:       s.logger,
	}))

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// public wraps app-facing routes with per-principal rate limits.
func (s *Server) public(h http.Handler) http.Handler {
	var obs mw.RateLimitObserver
	if s.deps.Metrics != nil {
		obs = s.deps.Metrics
	}
	return mw.RateLimit(s.limiter, s.cfg.TrustProxyHeaders, obs, withTimeout(s.cfg.HandlerTimeout, h))
}

func (s *Server) admin(h http.Handler) http.Handler {
	return mw.AdminAuth(s.cfg.AdminAPIKeys, withTimeout(s.cfg.HandlerTimeout, h))
}

// twilio wraps webhooks with signature validation.
func (s *Server) twilio(h http.Handler) http.Handler {
	return mw.TwilioSignature(s.deps.Signatures, s.cfg.PublicBaseURL, s.logger, withTimeout(s.cfg.HandlerTimeout, h))
}

func (s *Server) Handler() http.Handler {
	var obs mw.RequestObserver
	if s.deps.Metrics != nil {
		obs = s.deps.Metrics
	}
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, obs, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness to 503 ahead of shutdown.
func (s *Server) SetDraining() {
	s.deps.Lifecycle.SetDraining(true)
}

func withTimeout(d time.Duration, h http.Handler) http.Handler {
	if d <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unconfigured(component string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := mw.RequestIDFrom(r.Context())
		apierror.Write(w, core.NewUnconfiguredError(component), reqID)
	})
}
