// Package ivr drives phone calls. Every webhook request carries the full
// call state in its URL; Handle maps (Step, Input) to the next TwiML
// document without keeping anything in memory between requests.
package ivr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/respond"
	"github.com/kisansetu/voicecore/pkg/telephony"
)

const (
	// MaxMisses is how many consecutive empty gathers end a call.
	MaxMisses = 2
	// GatherTimeout is the gather timeout in seconds.
	GatherTimeout = 5
	// DefaultPath is where the voice webhook is mounted.
	DefaultPath = "/v1/ivr/voice"
)

// CallerDirectory resolves an inbound phone number. Unknown numbers yield
// an error of type core.ErrUnknownCaller.
type CallerDirectory interface {
	ResolveCaller(ctx context.Context, phone string) (*types.Caller, error)
}

// ContextSource loads farmers and their context bundles.
type ContextSource interface {
	Farmer(ctx context.Context, farmerID string) (*types.FarmerProfile, error)
	ForFarmerID(ctx context.Context, farmerID string) (*types.ContextBundle, error)
}

// Responder produces the spoken reply. *respond.Generator implements it.
type Responder interface {
	Reply(ctx context.Context, req respond.Request) (*respond.Reply, error)
}

// AlertDispatcher broadcasts an alert raised from the admin menu. Recipients
// are resolved from the alert's district.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *types.AlertDescriptor) (*types.DeliveryReport, error)
}

// StatsSource summarizes today's activity for administrators.
type StatsSource interface {
	DailyStats(ctx context.Context) (*types.DailyStats, error)
}

// Observer is told about every handled step.
type Observer interface {
	ObserveTurn(step string)
}

// Config configures a Machine.
type Config struct {
	Path          string // webhook path used in action URLs, default DefaultPath
	Callers       CallerDirectory
	Context       ContextSource
	Replies       Responder
	Alerts        AlertDispatcher
	Stats         StatsSource
	Districts     []string        // admin district menu, in digit order
	AlertChannels []types.Channel // channels for admin alerts, default sms and whatsapp
	Observer      Observer
	Logger        *slog.Logger
}

// Machine implements the call flow.
type Machine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Machine. Callers, Context and Replies are required.
func New(cfg Config) (*Machine, error) {
	if cfg.Callers == nil || cfg.Context == nil || cfg.Replies == nil {
		return nil, fmt.Errorf("ivr: callers, context and replies are required")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if len(cfg.AlertChannels) == 0 {
		cfg.AlertChannels = []types.Channel{types.ChannelSMS, types.ChannelWhatsApp}
	}
	if len(cfg.Districts) > 9 {
		cfg.Districts = cfg.Districts[:9]
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{cfg: cfg, logger: logger}, nil
}

// Handle returns the markup for one webhook request. It never fails: store
// or provider errors are spoken as a short apology and the call ends.
func (m *Machine) Handle(ctx context.Context, step Step, in Input) *telephony.Response {
	if m.cfg.Observer != nil {
		m.cfg.Observer.ObserveTurn(string(step.Kind))
	}
	switch step.Kind {
	case StepLanguageSelect:
		return m.languageSelect(step, in)
	case StepConversation:
		return m.conversation(ctx, step, in)
	case StepAdminMenu:
		return m.adminMenu(ctx, step, in)
	case StepAlertDistrict:
		return m.alertDistrict(step, in)
	case StepAlertType:
		return m.alertType(step, in)
	case StepAlertConfirm:
		return m.alertConfirm(ctx, step, in)
	case StepStats:
		return m.stats(ctx, step, in)
	case StepTerminated:
		return m.goodbye(step.Language)
	default:
		return m.entry(ctx, step, in)
	}
}

func (m *Machine) entry(ctx context.Context, step Step, in Input) *telephony.Response {
	if step.FarmerID != "" {
		return m.outboundEntry(ctx, step, in)
	}
	if alert := strings.TrimSpace(step.Alert); alert != "" {
		// Outbound alert to a number with no farmer profile: read and hang up.
		lang := types.LanguageOr(string(step.Language), types.DefaultLanguage)
		return &telephony.Response{Verbs: []any{
			say(lang, text(promptAlertIntro, lang)),
			say(lang, alert),
			say(lang, respond.Localized(respond.MsgGoodbye, lang)),
			telephony.Hangup{},
		}}
	}
	phone := types.NormalizePhone(in.From)
	if phone == "" {
		return m.unregistered()
	}
	caller, err := m.cfg.Callers.ResolveCaller(ctx, phone)
	switch {
	case core.TypeOf(err) == core.ErrUnknownCaller:
		m.logger.Info("unknown caller", "call_sid", in.CallSID)
		return m.unregistered()
	case err != nil:
		m.logger.Error("resolve caller failed", "call_sid", in.CallSID, "error", err)
		return m.technical(types.DefaultLanguage)
	}

	if caller.Role == types.RoleAdmin && caller.Admin != nil {
		return m.adminPrompt(Step{Kind: StepAdminMenu, AdminID: caller.Admin.ID}, "")
	}
	if caller.Farmer == nil {
		return m.unregistered()
	}
	next := Step{
		Kind:     StepLanguageSelect,
		FarmerID: caller.Farmer.ID,
		Language: types.LanguageOr(string(caller.Farmer.Language), types.DefaultLanguage),
	}
	g := m.gatherDigits(next, next.Language)
	for _, lang := range types.SupportedLanguages {
		g.Verbs = append(g.Verbs, say(lang, languageMenu[lang]))
	}
	return &telephony.Response{Verbs: []any{g}}
}

// outboundEntry answers a call placed by the server for a known farmer,
// optionally reading an alert before the conversation starts.
func (m *Machine) outboundEntry(ctx context.Context, step Step, in Input) *telephony.Response {
	farmer, err := m.cfg.Context.Farmer(ctx, step.FarmerID)
	switch {
	case core.TypeOf(err) == core.ErrUnknownCaller:
		m.logger.Warn("outbound call for unknown farmer", "farmer_id", step.FarmerID, "call_sid", in.CallSID)
		return m.unregistered()
	case err != nil:
		m.logger.Error("load farmer failed", "farmer_id", step.FarmerID, "call_sid", in.CallSID, "error", err)
		return m.technical(types.LanguageOr(string(step.Language), types.DefaultLanguage))
	}
	lang := types.LanguageOr(string(step.Language), farmer.Language)
	next := Step{Kind: StepConversation, FarmerID: farmer.ID, Language: lang}

	var verbs []any
	if alert := strings.TrimSpace(step.Alert); alert != "" {
		verbs = append(verbs, say(lang, text(promptAlertIntro, lang)), say(lang, alert), say(lang, text(promptAskMore, lang)))
	} else {
		verbs = append(verbs, say(lang, text(promptWelcome, lang)))
	}
	return &telephony.Response{Verbs: []any{m.gatherSpeech(next, lang, verbs...)}}
}

func (m *Machine) languageSelect(step Step, in Input) *telephony.Response {
	lang, ok := types.LanguageForDigit(in.Digits)
	if !ok {
		lang = types.LanguageOr(string(step.Language), types.DefaultLanguage)
	}
	next := Step{Kind: StepConversation, FarmerID: step.FarmerID, Language: lang}
	return &telephony.Response{Verbs: []any{m.gatherSpeech(next, lang, say(lang, text(promptWelcome, lang)))}}
}

func (m *Machine) conversation(ctx context.Context, step Step, in Input) *telephony.Response {
	lang := types.LanguageOr(string(step.Language), types.DefaultLanguage)
	speech := strings.TrimSpace(in.Speech)

	if speech == "" {
		misses := step.Misses + 1
		if misses >= MaxMisses {
			return m.goodbye(lang)
		}
		next := step
		next.Misses = misses
		return &telephony.Response{Verbs: []any{m.gatherSpeech(next, lang, say(lang, text(promptNotHeard, lang)))}}
	}
	if respond.IsGoodbye(speech) {
		return m.goodbye(lang)
	}

	bundle, err := m.cfg.Context.ForFarmerID(ctx, step.FarmerID)
	if err != nil {
		if core.TypeOf(err) == core.ErrUnknownCaller {
			return m.unregistered()
		}
		m.logger.Warn("farmer context unavailable", "farmer_id", step.FarmerID, "call_sid", in.CallSID, "error", err)
		bundle = &types.ContextBundle{Farmer: types.FarmerProfile{ID: step.FarmerID, Language: lang}}
	}

	reply, err := m.cfg.Replies.Reply(ctx, respond.Request{Transcript: speech, Bundle: bundle, Language: lang})
	if err != nil {
		// Only caller cancellation reaches here; Twilio has already hung up.
		m.logger.Info("turn abandoned", "call_sid", in.CallSID, "error", err)
		return m.goodbye(lang)
	}
	m.logger.Info("ivr turn",
		"call_sid", in.CallSID,
		"farmer_id", step.FarmerID,
		"language", string(lang),
		"source", string(reply.Source),
		"degraded", reply.Degraded,
	)
	next := Step{Kind: StepConversation, FarmerID: step.FarmerID, Language: lang}
	return &telephony.Response{Verbs: []any{m.gatherSpeech(next, lang, say(lang, reply.Text))}}
}

func (m *Machine) adminMenu(ctx context.Context, step Step, in Input) *telephony.Response {
	switch in.Digits {
	case "1":
		return m.districtPrompt(Step{Kind: StepAlertDistrict, AdminID: step.AdminID}, "")
	case "2":
		return m.stats(ctx, step, in)
	}
	return m.retryAdmin(step, func(s Step, pre string) *telephony.Response { return m.adminPrompt(s, pre) })
}

func (m *Machine) alertDistrict(step Step, in Input) *telephony.Response {
	if i, ok := digitIndex(in.Digits, len(m.cfg.Districts)); ok {
		return m.typePrompt(Step{Kind: StepAlertType, AdminID: step.AdminID, District: m.cfg.Districts[i]}, "")
	}
	return m.retryAdmin(step, m.districtPrompt)
}

func (m *Machine) alertType(step Step, in Input) *telephony.Response {
	if i, ok := digitIndex(in.Digits, len(types.AlertTypes)); ok {
		next := Step{Kind: StepAlertConfirm, AdminID: step.AdminID, District: step.District, AlertType: types.AlertTypes[i]}
		return m.confirmPrompt(next, "")
	}
	return m.retryAdmin(step, m.typePrompt)
}

func (m *Machine) alertConfirm(ctx context.Context, step Step, in Input) *telephony.Response {
	menu := Step{Kind: StepAdminMenu, AdminID: step.AdminID}
	switch in.Digits {
	case "2":
		return m.adminPrompt(menu, adminCancelled)
	case "1":
	default:
		return m.retryAdmin(step, m.confirmPrompt)
	}

	if denied := m.verifyAdmin(ctx, step, in); denied != nil {
		return denied
	}
	if m.cfg.Alerts == nil || step.District == "" || step.AlertType == "" {
		return m.adminPrompt(menu, adminFailedText)
	}
	alert := &types.AlertDescriptor{
		Type:      step.AlertType,
		Severity:  alertSeverity(step.AlertType),
		Title:     fmt.Sprintf("%s alert for %s", titleCase(string(step.AlertType)), step.District),
		Message:   fmt.Sprintf(alertTemplates[step.AlertType], step.District),
		District:  step.District,
		Channels:  m.cfg.AlertChannels,
		CreatedBy: step.AdminID,
	}
	report, err := m.cfg.Alerts.Dispatch(ctx, alert)
	if err != nil {
		m.logger.Error("admin alert failed", "admin_id", step.AdminID, "district", step.District, "call_sid", in.CallSID, "error", err)
		return m.adminPrompt(menu, adminFailedText)
	}
	m.logger.Info("admin alert sent",
		"admin_id", step.AdminID,
		"district", step.District,
		"type", string(step.AlertType),
		"sent", report.Sent,
		"failed", report.Failed,
	)
	return m.adminPrompt(menu, fmt.Sprintf(adminSentText, report.Sent, report.Failed))
}

func (m *Machine) stats(ctx context.Context, step Step, in Input) *telephony.Response {
	if denied := m.verifyAdmin(ctx, step, in); denied != nil {
		return denied
	}
	menu := Step{Kind: StepAdminMenu, AdminID: step.AdminID}
	if m.cfg.Stats == nil {
		return m.adminPrompt(menu, adminStatsFailed)
	}
	s, err := m.cfg.Stats.DailyStats(ctx)
	if err != nil {
		m.logger.Error("load stats failed", "admin_id", step.AdminID, "error", err)
		return m.adminPrompt(menu, adminStatsFailed)
	}
	return m.adminPrompt(menu, fmt.Sprintf(adminStatsText, s.Farmers, s.AlertsToday, s.DeliveredToday))
}

// verifyAdmin resolves the calling number again before an admin action.
// The admin id in the URL is only a hint; the number must belong to that
// admin. It returns nil when the caller is allowed.
func (m *Machine) verifyAdmin(ctx context.Context, step Step, in Input) *telephony.Response {
	phone := types.NormalizePhone(in.From)
	if phone == "" {
		m.logger.Warn("admin action without caller number", "call_sid", in.CallSID, "admin_id", step.AdminID)
		return m.unregistered()
	}
	caller, err := m.cfg.Callers.ResolveCaller(ctx, phone)
	switch {
	case core.TypeOf(err) == core.ErrUnknownCaller:
	case err != nil:
		m.logger.Error("resolve admin failed", "call_sid", in.CallSID, "error", err)
		return m.technical(types.LangEnglish)
	case caller.Role == types.RoleAdmin && caller.Admin != nil && caller.Admin.ID == step.AdminID:
		return nil
	}
	m.logger.Warn("admin action refused",
		"call_sid", in.CallSID,
		"admin_id", step.AdminID,
		"from", types.MaskPhone(in.From),
	)
	return m.unregistered()
}

// retryAdmin re-prompts after invalid or missing admin input and ends the
// call after MaxMisses attempts.
func (m *Machine) retryAdmin(step Step, prompt func(Step, string) *telephony.Response) *telephony.Response {
	step.Misses++
	if step.Misses >= MaxMisses {
		return m.goodbye(types.LangEnglish)
	}
	return prompt(step, adminInvalidText)
}

func (m *Machine) adminPrompt(step Step, preface string) *telephony.Response {
	return m.adminGather(step, preface, adminMenuText)
}

func (m *Machine) districtPrompt(step Step, preface string) *telephony.Response {
	if len(m.cfg.Districts) == 0 {
		return m.adminPrompt(Step{Kind: StepAdminMenu, AdminID: step.AdminID}, adminNoDistricts)
	}
	return m.adminGather(step, preface, numberedMenu(adminDistrictHead, m.cfg.Districts))
}

func (m *Machine) typePrompt(step Step, preface string) *telephony.Response {
	names := make([]string, len(types.AlertTypes))
	for i, t := range types.AlertTypes {
		names[i] = string(t)
	}
	return m.adminGather(step, preface, numberedMenu(adminTypeMenuHead, names))
}

func (m *Machine) confirmPrompt(step Step, preface string) *telephony.Response {
	return m.adminGather(step, preface, fmt.Sprintf(adminConfirmText, step.AlertType, step.District))
}

func (m *Machine) adminGather(step Step, preface, menu string) *telephony.Response {
	var verbs []any
	if preface != "" {
		verbs = append(verbs, say(types.LangEnglish, preface))
	}
	verbs = append(verbs, say(types.LangEnglish, menu))
	return &telephony.Response{Verbs: []any{m.gatherDigits(step, types.LangEnglish, verbs...)}}
}

func (m *Machine) goodbye(lang types.Language) *telephony.Response {
	lang = types.LanguageOr(string(lang), types.DefaultLanguage)
	return &telephony.Response{Verbs: []any{say(lang, respond.Localized(respond.MsgGoodbye, lang)), telephony.Hangup{}}}
}

// unregistered speaks in Hindi and English since the caller's language is unknown.
func (m *Machine) unregistered() *telephony.Response {
	return &telephony.Response{Verbs: []any{
		say(types.LangHindi, text(promptUnregistered, types.LangHindi)),
		say(types.LangEnglish, text(promptUnregistered, types.LangEnglish)),
		telephony.Hangup{},
	}}
}

func (m *Machine) technical(lang types.Language) *telephony.Response {
	return &telephony.Response{Verbs: []any{say(lang, text(promptTechnical, lang)), telephony.Hangup{}}}
}

func (m *Machine) gatherSpeech(next Step, lang types.Language, verbs ...any) telephony.Gather {
	return telephony.Gather{
		Input:               "speech",
		Action:              next.URL(m.cfg.Path),
		Method:              http.MethodPost,
		Timeout:             GatherTimeout,
		SpeechTimeout:       "auto",
		Language:            lang.Locale(),
		ActionOnEmptyResult: true,
		Verbs:               verbs,
	}
}

func (m *Machine) gatherDigits(next Step, lang types.Language, verbs ...any) telephony.Gather {
	return telephony.Gather{
		Input:               "dtmf",
		Action:              next.URL(m.cfg.Path),
		Method:              http.MethodPost,
		Timeout:             GatherTimeout,
		NumDigits:           1,
		Language:            lang.Locale(),
		ActionOnEmptyResult: true,
		Verbs:               verbs,
	}
}

func say(lang types.Language, s string) telephony.Say {
	return telephony.Say{Language: lang.Locale(), Voice: voices[lang], Text: s}
}

// digitIndex maps "1".."n" to 0..n-1.
func digitIndex(digits string, n int) (int, bool) {
	if len(digits) != 1 || digits[0] < '1' || digits[0] > '9' {
		return 0, false
	}
	i := int(digits[0] - '1')
	return i, i < n
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
