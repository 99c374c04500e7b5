package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	Addr      string
	LogFormat LogFormat

	// PublicBaseURL is how Twilio reaches this server. Outbound calls and
	// webhook signature checks are built on it.
	PublicBaseURL string

	// Admin endpoints (broadcast, outbound calls) require one of these keys.
	AdminAPIKeys map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Collaborator stores. Empty disables the store; handlers that need it
	// answer unconfigured_error.
	DatabaseURL string
	RedisURL    string

	// LLM chain in preference order, "provider/model".
	LLMChain       []string
	VoiceDeadline  time.Duration
	MaxReplyTokens int

	TTSCacheSize int
	TTSFormat    string

	BroadcastConcurrency int
	BroadcastSendTimeout time.Duration
	AlertScanSchedule    string // "off" in the environment disables the scan
	AlertScanBatch       int

	// Districts offered in the admin IVR menu, in digit order.
	IVRDistricts []string

	Providers ProviderKeys
	Twilio    TwilioConfig

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

// ProviderKeys holds upstream credentials. Each empty key drops that
// provider from its chain.
type ProviderKeys struct {
	Groq       string
	Cerebras   string
	OpenAI     string
	OpenRouter string
	Gemini     string

	ElevenLabs        string
	ElevenLabsVoiceID string
	Cartesia          string
	CartesiaVoiceID   string

	Deepgram string
}

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	From         string
	WhatsAppFrom string

	// ValidateSignatures rejects IVR webhooks without a valid
	// X-Twilio-Signature. It only applies when AuthToken is set.
	ValidateSignatures bool
}

// Enabled reports whether outbound messaging can be configured.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("VOICECORE_ADDR", ":8080"),
		LogFormat:                     LogFormat(strings.ToLower(envOr("VOICECORE_LOG_FORMAT", string(LogFormatText)))),
		PublicBaseURL:                 strings.TrimRight(envOr("VOICECORE_PUBLIC_BASE_URL", ""), "/"),
		AdminAPIKeys:                  make(map[string]struct{}),
		TrustProxyHeaders:             envBoolOr("VOICECORE_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:                  envInt64Or("VOICECORE_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CORSAllowedOrigins:            make(map[string]struct{}),
		DatabaseURL:                   envOr("VOICECORE_DATABASE_URL", ""),
		RedisURL:                      envOr("VOICECORE_REDIS_URL", ""),
		LLMChain:                      splitCSV(envOr("VOICECORE_LLM_CHAIN", "groq/llama-3.3-70b-versatile,gemini/gemini-2.0-flash,openai/gpt-4o-mini")),
		VoiceDeadline:                 envDurationOr("VOICECORE_VOICE_DEADLINE", 12*time.Second),
		MaxReplyTokens:                envIntOr("VOICECORE_MAX_REPLY_TOKENS", 300),
		TTSCacheSize:                  envIntOr("VOICECORE_TTS_CACHE_SIZE", 100),
		TTSFormat:                     envOr("VOICECORE_TTS_FORMAT", "mp3"),
		BroadcastConcurrency:          envIntOr("VOICECORE_BROADCAST_CONCURRENCY", 8),
		BroadcastSendTimeout:          envDurationOr("VOICECORE_BROADCAST_SEND_TIMEOUT", 20*time.Second),
		AlertScanSchedule:             envOr("VOICECORE_ALERT_SCAN_SCHEDULE", "@every 1m"),
		AlertScanBatch:                envIntOr("VOICECORE_ALERT_SCAN_BATCH", 20),
		IVRDistricts:                  splitCSV(os.Getenv("VOICECORE_IVR_DISTRICTS")),
		LimitRPS:                      envFloat64Or("VOICECORE_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                    envIntOr("VOICECORE_RATE_LIMIT_BURST", 4),
		LimitMaxConcurrentRequests:    envIntOr("VOICECORE_MAX_CONCURRENT_REQUESTS", 8),
		ReadHeaderTimeout:             envDurationOr("VOICECORE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("VOICECORE_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:                envDurationOr("VOICECORE_TOTAL_REQUEST_TIMEOUT", time.Minute),
		ShutdownGracePeriod:           envDurationOr("VOICECORE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("VOICECORE_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("VOICECORE_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
		Providers: ProviderKeys{
			Groq:              envOr("GROQ_API_KEY", ""),
			Cerebras:          envOr("CEREBRAS_API_KEY", ""),
			OpenAI:            envOr("OPENAI_API_KEY", ""),
			OpenRouter:        envOr("OPENROUTER_API_KEY", ""),
			Gemini:            envOr("GEMINI_API_KEY", ""),
			ElevenLabs:        envOr("ELEVENLABS_API_KEY", ""),
			ElevenLabsVoiceID: envOr("ELEVENLABS_VOICE_ID", ""),
			Cartesia:          envOr("CARTESIA_API_KEY", ""),
			CartesiaVoiceID:   envOr("CARTESIA_VOICE_ID", ""),
			Deepgram:          envOr("DEEPGRAM_API_KEY", ""),
		},
		Twilio: TwilioConfig{
			AccountSID:         envOr("TWILIO_ACCOUNT_SID", ""),
			AuthToken:          envOr("TWILIO_AUTH_TOKEN", ""),
			From:               envOr("TWILIO_FROM_NUMBER", ""),
			WhatsAppFrom:       envOr("TWILIO_WHATSAPP_FROM", ""),
			ValidateSignatures: envBoolOr("VOICECORE_TWILIO_VALIDATE_SIGNATURES", true),
		},
	}

	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("VOICECORE_LOG_FORMAT must be one of text|json")
	}

	for _, key := range splitCSV(os.Getenv("VOICECORE_ADMIN_API_KEYS")) {
		cfg.AdminAPIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("VOICECORE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.PublicBaseURL != "" {
		u, err := url.Parse(cfg.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Config{}, fmt.Errorf("VOICECORE_PUBLIC_BASE_URL must be an absolute URL")
		}
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_MAX_BODY_BYTES must be > 0")
	}
	if len(cfg.LLMChain) == 0 {
		return Config{}, fmt.Errorf("VOICECORE_LLM_CHAIN must list at least one provider/model")
	}
	for _, m := range cfg.LLMChain {
		if p, model, ok := strings.Cut(m, "/"); !ok || p == "" || model == "" {
			return Config{}, fmt.Errorf("VOICECORE_LLM_CHAIN entry %q must be provider/model", m)
		}
	}
	if cfg.VoiceDeadline <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_VOICE_DEADLINE must be > 0")
	}
	if cfg.MaxReplyTokens <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_MAX_REPLY_TOKENS must be > 0")
	}
	if cfg.TTSCacheSize <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_TTS_CACHE_SIZE must be > 0")
	}
	if cfg.BroadcastConcurrency <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_BROADCAST_CONCURRENCY must be > 0")
	}
	if cfg.BroadcastSendTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_BROADCAST_SEND_TIMEOUT must be > 0")
	}
	if strings.EqualFold(cfg.AlertScanSchedule, "off") {
		cfg.AlertScanSchedule = ""
	}
	if cfg.AlertScanSchedule != "" {
		if _, err := cron.ParseStandard(cfg.AlertScanSchedule); err != nil {
			return Config{}, fmt.Errorf("VOICECORE_ALERT_SCAN_SCHEDULE: %w", err)
		}
	}
	if cfg.AlertScanBatch <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_ALERT_SCAN_BATCH must be > 0")
	}
	if len(cfg.IVRDistricts) > 9 {
		return Config{}, fmt.Errorf("VOICECORE_IVR_DISTRICTS must list at most 9 districts")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout < cfg.VoiceDeadline {
		return Config{}, fmt.Errorf("VOICECORE_TOTAL_REQUEST_TIMEOUT must be >= VOICECORE_VOICE_DEADLINE")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICECORE_RESPONSE_HEADER_TIMEOUT must be > 0")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("VOICECORE_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("VOICECORE_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("VOICECORE_MAX_CONCURRENT_REQUESTS must be >= 0")
	}

	if (cfg.Twilio.AccountSID == "") != (cfg.Twilio.AuthToken == "") {
		return Config{}, fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together")
	}
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.From == "" {
		return Config{}, fmt.Errorf("TWILIO_FROM_NUMBER must be set when Twilio credentials are configured")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
