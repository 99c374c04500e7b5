// Package broadcast delivers alerts to farmers over SMS, WhatsApp and
// outbound voice calls.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/ivr"
	"github.com/kisansetu/voicecore/pkg/telephony"
)

const (
	// DefaultConcurrency bounds in-flight sends.
	DefaultConcurrency = 8
	// DefaultSendTimeout bounds one send.
	DefaultSendTimeout = 20 * time.Second
	// StatusPath receives outbound call status callbacks.
	StatusPath = "/v1/ivr/status"
)

// RecipientStore resolves the farmers of a district.
type RecipientStore interface {
	RecipientsByDistrict(ctx context.Context, district string) ([]types.Recipient, error)
}

// LogStore persists broadcast outcomes.
type LogStore interface {
	SaveAlertLog(ctx context.Context, log *types.AlertLog) error
}

// Observer is told about every send.
type Observer interface {
	ObserveSend(channel types.Channel, status types.DeliveryStatus)
}

// Config configures a Broadcaster.
type Config struct {
	Messenger     telephony.Messenger
	Dialer        telephony.Dialer // nil disables the voice channel
	PublicBaseURL string           // absolute base for call webhooks
	Recipients    RecipientStore
	Logs          LogStore
	Concurrency   int
	SendTimeout   time.Duration
	Observer      Observer
	Logger        *slog.Logger
}

// Broadcaster fans an alert out to its recipients.
type Broadcaster struct {
	cfg    Config
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// New creates a Broadcaster.
func New(cfg Config) (*Broadcaster, error) {
	if cfg.Messenger == nil {
		return nil, fmt.Errorf("broadcast: messenger is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		cfg:    cfg,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: logger,
	}, nil
}

// Dispatch validates alert, resolves recipients from its district when none
// are given, broadcasts and persists the log. A failed log write is logged;
// the report is still returned.
func (b *Broadcaster) Dispatch(ctx context.Context, alert *types.AlertDescriptor) (*types.DeliveryReport, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	if alert.ID == "" {
		alert.ID = b.newID()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = b.now().UTC()
	}
	if len(alert.Recipients) == 0 {
		if alert.District == "" {
			return nil, core.NewInvalidRequestError("recipients or district is required")
		}
		if b.cfg.Recipients == nil {
			return nil, core.NewUnconfiguredError("recipients")
		}
		rs, err := b.cfg.Recipients.RecipientsByDistrict(ctx, alert.District)
		if err != nil {
			return nil, fmt.Errorf("resolve recipients for %s: %w", alert.District, err)
		}
		alert.Recipients = rs
	}

	report := b.Broadcast(ctx, alert)

	if b.cfg.Logs != nil {
		entry := &types.AlertLog{Alert: *alert, Report: *report, Status: report.Status(), FinishedAt: b.now().UTC()}
		if err := b.cfg.Logs.SaveAlertLog(ctx, entry); err != nil {
			b.logger.Error("persist alert log failed", "alert_id", alert.ID, "error", err)
		}
	}
	return report, nil
}

type job struct {
	recipient types.Recipient
	channel   types.Channel
}

// Broadcast sends alert to every recipient on every requested channel the
// recipient opted into. Sends are independent: one failure or panic never
// affects another. Results keep recipient-then-channel order.
func (b *Broadcaster) Broadcast(ctx context.Context, alert *types.AlertDescriptor) *types.DeliveryReport {
	start := time.Now()
	body := alert.Body()
	jobs := b.plan(alert)
	results := make([]types.DeliveryResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = b.send(ctx, alert, body, j)
			return nil
		})
	}
	_ = g.Wait()

	report := &types.DeliveryReport{Results: results}
	for _, r := range results {
		if r.Status == types.DeliverySent {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	b.logger.Info("broadcast finished",
		"alert_id", alert.ID,
		"district", alert.District,
		"sent", report.Sent,
		"failed", report.Failed,
		"status", string(report.Status()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report
}

// plan expands recipients × channels, skipping channels the recipient did
// not opt into and duplicate phone numbers.
func (b *Broadcaster) plan(alert *types.AlertDescriptor) []job {
	seen := make(map[string]bool, len(alert.Recipients))
	var jobs []job
	for _, r := range alert.Recipients {
		r.Phone = types.NormalizePhone(r.Phone)
		if r.Phone != "" {
			if seen[r.Phone] {
				continue
			}
			seen[r.Phone] = true
		}
		for _, ch := range alert.Channels {
			if r.OptIns.Allows(ch) {
				jobs = append(jobs, job{recipient: r, channel: ch})
			}
		}
	}
	return jobs
}

func (b *Broadcaster) send(ctx context.Context, alert *types.AlertDescriptor, body string, j job) (res types.DeliveryResult) {
	res = types.DeliveryResult{Phone: j.recipient.Phone, Channel: j.channel}
	defer func() {
		if r := recover(); r != nil {
			res.Status = types.DeliveryFailed
			res.MessageID = ""
			res.Error = string(core.ErrRecipientSend)
			b.logger.Error("send panicked", "alert_id", alert.ID, "channel", string(j.channel), "panic", r)
		}
		if b.cfg.Observer != nil {
			b.cfg.Observer.ObserveSend(res.Channel, res.Status)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout)
	defer cancel()

	var (
		id  string
		err error
	)
	switch {
	case j.recipient.Phone == "":
		err = core.NewInvalidRequestError("recipient phone is missing")
	case j.channel == types.ChannelSMS:
		id, err = b.cfg.Messenger.SendSMS(ctx, j.recipient.Phone, body)
	case j.channel == types.ChannelWhatsApp:
		id, err = b.cfg.Messenger.SendWhatsApp(ctx, j.recipient.Phone, body)
	case j.channel == types.ChannelVoice:
		id, err = b.call(ctx, body, j.recipient)
	default:
		err = core.NewInvalidRequestError("unsupported channel " + string(j.channel))
	}

	if err != nil {
		res.Status = types.DeliveryFailed
		res.Error = summarize(err)
		b.logger.Warn("alert send failed",
			"alert_id", alert.ID,
			"channel", string(j.channel),
			"farmer_id", j.recipient.FarmerID,
			"error_type", string(core.ErrRecipientSend),
			"error", err,
		)
		return res
	}
	res.Status = types.DeliverySent
	res.MessageID = id
	return res
}

// call places an outbound call whose webhook lands in the IVR entry step
// with the farmer, language and alert text already resolved.
func (b *Broadcaster) call(ctx context.Context, body string, r types.Recipient) (string, error) {
	if b.cfg.Dialer == nil || b.cfg.PublicBaseURL == "" {
		return "", core.NewUnconfiguredError("voice")
	}
	return b.cfg.Dialer.StartCall(ctx, telephony.CallRequest{
		To:             r.Phone,
		URL:            EntryURL(b.cfg.PublicBaseURL, r, body),
		StatusCallback: b.cfg.PublicBaseURL + StatusPath,
	})
}

// EntryURL is the voice webhook URL for an outbound call to r. An empty
// alert starts a plain advisory conversation.
func EntryURL(publicBaseURL string, r types.Recipient, alert string) string {
	step := ivr.Step{Kind: ivr.StepEntry, FarmerID: r.FarmerID, Language: r.Language, Alert: alert}
	return step.URL(strings.TrimRight(publicBaseURL, "/") + ivr.DefaultPath)
}

// summarize reduces err to its type and code. Provider messages stay in logs.
func summarize(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return string(core.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		if ce.Code != "" {
			return string(ce.Type) + " (" + ce.Code + ")"
		}
		return string(ce.Type)
	}
	return string(core.ErrRecipientSend)
}

// CallFarmer starts an advisory call that opens directly in the farmer's
// conversation loop.
func (b *Broadcaster) CallFarmer(ctx context.Context, r types.Recipient) (string, error) {
	r.Phone = types.NormalizePhone(r.Phone)
	if r.Phone == "" {
		return "", core.NewInvalidRequestError("recipient phone is missing")
	}
	return b.call(ctx, "", r)
}
