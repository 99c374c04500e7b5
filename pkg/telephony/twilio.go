// Package telephony sends SMS and WhatsApp messages, places outbound calls
// and renders TwiML for the IVR webhooks.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

const providerName = "twilio"

// Messenger sends text messages. Both methods return the provider message id.
type Messenger interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
	SendWhatsApp(ctx context.Context, to, body string) (string, error)
}

// Dialer places outbound calls and returns the call SID.
type Dialer interface {
	StartCall(ctx context.Context, req CallRequest) (string, error)
}

// CallRequest describes an outbound call. URL is fetched by Twilio when the
// callee answers; StatusCallback receives terminal call states.
type CallRequest struct {
	To             string
	URL            string
	StatusCallback string
}

// Config configures the Twilio client.
type Config struct {
	AccountSID   string
	AuthToken    string
	From         string // voice and SMS sender
	WhatsAppFrom string // defaults to From
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Twilio implements Messenger and Dialer on the Twilio REST API.
type Twilio struct {
	rest         *twilio.RestClient
	from         string
	whatsappFrom string
	validator    client.RequestValidator
	logger       *slog.Logger
}

// NewTwilio creates a client. AccountSID, AuthToken and From are required.
func NewTwilio(cfg Config) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, core.NewUnconfiguredError(providerName)
	}
	from := types.NormalizePhone(cfg.From)
	if from == "" {
		return nil, fmt.Errorf("telephony: sender number is required")
	}
	waFrom := types.NormalizePhone(cfg.WhatsAppFrom)
	if waFrom == "" {
		waFrom = from
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newDefaultHTTPClient()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := &client.Client{
		Credentials: client.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(cfg.AccountSID)

	return &Twilio{
		rest:         twilio.NewRestClientWithParams(twilio.ClientParams{Client: base}),
		from:         from,
		whatsappFrom: waFrom,
		validator:    client.NewRequestValidator(cfg.AuthToken),
		logger:       logger,
	}, nil
}

func newDefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// SendSMS sends body to the phone number to.
func (t *Twilio) SendSMS(ctx context.Context, to, body string) (string, error) {
	return t.sendMessage(ctx, "sms", types.NormalizePhone(to), t.from, body)
}

// SendWhatsApp sends body over WhatsApp. Both addresses carry the
// "whatsapp:" prefix Twilio routes on.
func (t *Twilio) SendWhatsApp(ctx context.Context, to, body string) (string, error) {
	n := types.NormalizePhone(to)
	if n == "" {
		return "", core.NewInvalidRequestError("recipient phone is required")
	}
	return t.sendMessage(ctx, "whatsapp", WhatsAppAddress(n), WhatsAppAddress(t.whatsappFrom), body)
}

// WhatsAppAddress prefixes an E.164 number for the WhatsApp channel.
func WhatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

func (t *Twilio) sendMessage(ctx context.Context, channel, to, from, body string) (string, error) {
	if to == "" {
		return "", core.NewInvalidRequestError("recipient phone is required")
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	msg, err := withContext(ctx, func() (*openapi.ApiV2010Message, error) {
		return t.rest.Api.CreateMessage(params)
	})
	if err != nil {
		return "", mapError(err)
	}
	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	t.logger.Debug("message queued", "channel", channel, "message_sid", sid)
	return sid, nil
}

// StartCall places an outbound call.
func (t *Twilio) StartCall(ctx context.Context, req CallRequest) (string, error) {
	to := types.NormalizePhone(req.To)
	if to == "" {
		return "", core.NewInvalidRequestError("recipient phone is required")
	}
	if req.URL == "" {
		return "", core.NewInvalidRequestError("call webhook url is required")
	}
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetUrl(req.URL)
	params.SetMethod(http.MethodPost)
	if req.StatusCallback != "" {
		params.SetStatusCallback(req.StatusCallback)
		params.SetStatusCallbackMethod(http.MethodPost)
		params.SetStatusCallbackEvent([]string{"completed"})
	}

	call, err := withContext(ctx, func() (*openapi.ApiV2010Call, error) {
		return t.rest.Api.CreateCall(params)
	})
	if err != nil {
		return "", mapError(err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return "", core.NewMalformedError(providerName, "call created without sid")
	}
	t.logger.Info("outbound call started", "call_sid", *call.Sid)
	return *call.Sid, nil
}

// ValidSignature checks the X-Twilio-Signature of a webhook request. url is
// the full public URL Twilio requested and params the posted form fields.
func (t *Twilio) ValidSignature(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return t.validator.Validate(url, params, signature)
}

// withContext runs a blocking REST call and returns early when ctx ends.
// The REST client has no context support; its HTTP timeout bounds the
// abandoned request.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// mapError converts REST failures into the core taxonomy. Twilio's message
// is kept in the error for logs; HTTP envelopes never expose it.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rest *client.TwilioRestError
	if errors.As(err, &rest) {
		e := core.FromHTTPStatus(providerName, rest.Status, rest.Message)
		if rest.Code != 0 {
			e.Code = fmt.Sprintf("twilio_%d", rest.Code)
		}
		return e
	}
	return core.NewProviderError(providerName, err)
}
