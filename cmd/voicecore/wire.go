package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kisansetu/voicecore/pkg/broadcast"
	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/llm"
	"github.com/kisansetu/voicecore/pkg/core/providers/cerebras"
	"github.com/kisansetu/voicecore/pkg/core/providers/gemini"
	"github.com/kisansetu/voicecore/pkg/core/providers/groq"
	"github.com/kisansetu/voicecore/pkg/core/providers/openai"
	"github.com/kisansetu/voicecore/pkg/core/providers/openrouter"
	"github.com/kisansetu/voicecore/pkg/core/voice"
	"github.com/kisansetu/voicecore/pkg/core/voice/stt"
	"github.com/kisansetu/voicecore/pkg/core/voice/tts"
	"github.com/kisansetu/voicecore/pkg/farmctx"
	"github.com/kisansetu/voicecore/pkg/gateway/config"
	"github.com/kisansetu/voicecore/pkg/gateway/lifecycle"
	"github.com/kisansetu/voicecore/pkg/gateway/metrics"
	"github.com/kisansetu/voicecore/pkg/gateway/scheduler"
	gatewayserver "github.com/kisansetu/voicecore/pkg/gateway/server"
	"github.com/kisansetu/voicecore/pkg/ivr"
	"github.com/kisansetu/voicecore/pkg/respond"
	"github.com/kisansetu/voicecore/pkg/store/postgres"
	"github.com/kisansetu/voicecore/pkg/store/rediscache"
	"github.com/kisansetu/voicecore/pkg/telephony"
)

// app is everything the gateway process owns.
type app struct {
	deps      gatewayserver.Deps
	scheduler *scheduler.Scheduler
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newUpstreamClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

// registerLLMProviders registers every provider with a key. Chain entries
// naming a provider without a key are skipped by the engine.
func registerLLMProviders(cfg config.Config, client *http.Client) core.ProviderRegistry {
	reg := core.NewProviderRegistry()
	if k := cfg.Providers.Groq; k != "" {
		reg.Register(groq.New(k, groq.WithHTTPClient(client)))
	}
	if k := cfg.Providers.Cerebras; k != "" {
		reg.Register(cerebras.New(k, cerebras.WithHTTPClient(client)))
	}
	if k := cfg.Providers.Gemini; k != "" {
		reg.Register(gemini.New(k, gemini.WithHTTPClient(client)))
	}
	if k := cfg.Providers.OpenAI; k != "" {
		reg.Register(openai.New(k, openai.WithHTTPClient(client)))
	}
	if k := cfg.Providers.OpenRouter; k != "" {
		reg.Register(openrouter.New(k, openrouter.WithHTTPClient(client), openrouter.WithSiteName("Kisan Setu")))
	}
	return reg
}

func ttsProviders(cfg config.Config, client *http.Client) []tts.Provider {
	var out []tts.Provider
	if k := cfg.Providers.ElevenLabs; k != "" {
		out = append(out, tts.NewElevenLabs(k, cfg.Providers.ElevenLabsVoiceID).WithHTTPClient(client))
	}
	if k := cfg.Providers.Cartesia; k != "" {
		out = append(out, tts.NewCartesiaWithClient(k, cfg.Providers.CartesiaVoiceID, client))
	}
	return out
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{}
	lc := &lifecycle.Lifecycle{}
	a.deps.Lifecycle = lc
	a.deps.Metrics = m

	var store *postgres.Store
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool, logger); err != nil {
			a.close()
			return nil, err
		}
		store = postgres.New(pool, logger)
		lc.AddCheck("postgres", store.Ping)
	} else {
		logger.Warn("no database configured, farmer context, ivr and alerts are disabled")
	}

	stores := farmctx.Stores{}
	if store != nil {
		stores.Farmers = store
		stores.Advisory = store
		stores.Prices = store
		stores.Schemes = store
	}
	if cfg.RedisURL != "" {
		rdb, err := rediscache.Open(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		lc.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		stores.Weather = rediscache.NewWeatherStore(rdb)
	}
	aggregator := farmctx.New(stores, farmctx.WithObserver(m), farmctx.WithLogger(logger))

	client := newUpstreamClient(cfg)
	targets, err := core.ParseModelChain(cfg.LLMChain)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("parse llm chain: %w", err)
	}
	engine := llm.NewEngine(registerLLMProviders(cfg, client), targets, llm.WithLogger(logger), llm.WithObserver(m))
	replies, err := respond.New(engine, 0,
		respond.WithDeadline(cfg.VoiceDeadline),
		respond.WithMaxTokens(cfg.MaxReplyTokens),
		respond.WithLogger(logger),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.deps.Replies = replies
	a.deps.Translator = replies
	if store != nil {
		a.deps.Context = aggregator
	}

	cache, err := tts.NewCache(cfg.TTSCacheSize)
	if err != nil {
		a.close()
		return nil, err
	}
	if providers := ttsProviders(cfg, client); len(providers) > 0 {
		a.deps.Speech = voice.NewSynthesizer(voice.SynthesizerConfig{
			Providers: providers,
			Cache:     cache,
			Format:    cfg.TTSFormat,
			Observer:  m,
			CacheObs:  m,
			Logger:    logger,
		})
	}
	if k := cfg.Providers.Deepgram; k != "" {
		a.deps.Tokens = stt.NewDeepgram(k)
	}

	var alerts *broadcast.Broadcaster
	if cfg.Twilio.Enabled() {
		tw, err := telephony.NewTwilio(telephony.Config{
			AccountSID:   cfg.Twilio.AccountSID,
			AuthToken:    cfg.Twilio.AuthToken,
			From:         cfg.Twilio.From,
			WhatsAppFrom: cfg.Twilio.WhatsAppFrom,
			HTTPClient:   client,
			Logger:       logger,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		if cfg.Twilio.ValidateSignatures {
			a.deps.Signatures = tw
		}
		bc := broadcast.Config{
			Messenger:     tw,
			Dialer:        tw,
			PublicBaseURL: cfg.PublicBaseURL,
			Concurrency:   cfg.BroadcastConcurrency,
			SendTimeout:   cfg.BroadcastSendTimeout,
			Observer:      m,
			Logger:        logger,
		}
		if store != nil {
			bc.Recipients = store
			bc.Logs = store
		}
		alerts, err = broadcast.New(bc)
		if err != nil {
			a.close()
			return nil, err
		}
		a.deps.Alerts = alerts
		a.deps.Caller = alerts
	} else {
		logger.Warn("twilio not configured, broadcasts and outbound calls are disabled")
	}

	if store != nil {
		a.deps.Farmers = store
		a.deps.Schedules = store

		ic := ivr.Config{
			Callers:   store,
			Context:   aggregator,
			Replies:   replies,
			Stats:     store,
			Districts: cfg.IVRDistricts,
			Observer:  m,
			Logger:    logger,
		}
		if alerts != nil {
			ic.Alerts = alerts
		}
		flow, err := ivr.New(ic)
		if err != nil {
			a.close()
			return nil, err
		}
		a.deps.Flow = flow

		if alerts != nil && cfg.AlertScanSchedule != "" {
			s, err := scheduler.New(scheduler.Config{
				Schedule:   cfg.AlertScanSchedule,
				Batch:      cfg.AlertScanBatch,
				Store:      store,
				Dispatcher: alerts,
				Observer:   m,
				Logger:     logger,
			})
			if err != nil {
				a.close()
				return nil, err
			}
			a.scheduler = s
		}
	}

	logger.Info("components ready",
		"llm_chain", strings.Join(cfg.LLMChain, ","),
		"tts", a.deps.Speech != nil,
		"stt_tokens", a.deps.Tokens != nil,
		"ivr", a.deps.Flow != nil,
		"broadcast", a.deps.Alerts != nil,
		"scheduler", a.scheduler != nil,
	)
	return a, nil
}
