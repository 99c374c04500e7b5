package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// ParseSeverity is case-insensitive.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return s, true
	}
	return "", false
}

// AlertType categorizes an alert.
type AlertType string

const (
	AlertWeather AlertType = "weather"
	AlertPest    AlertType = "pest"
	AlertPrice   AlertType = "price"
	AlertScheme  AlertType = "scheme"
	AlertGeneral AlertType = "general"
)

// AlertTypes lists alert types in admin-menu digit order.
var AlertTypes = []AlertType{AlertWeather, AlertPest, AlertPrice, AlertScheme, AlertGeneral}

// ParseAlertType accepts a type name.
func ParseAlertType(raw string) (AlertType, bool) {
	t := AlertType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AlertTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Channel is a delivery channel.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
)

// ParseChannel accepts a channel name.
func ParseChannel(raw string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case ChannelSMS, ChannelWhatsApp, ChannelVoice:
		return c, true
	}
	return "", false
}

// Recipient is one broadcast target.
type Recipient struct {
	Phone    string        `json:"phone"`
	FarmerID string        `json:"farmer_id,omitempty"`
	Language Language      `json:"language,omitempty"`
	OptIns   ChannelOptIns `json:"opt_ins"`
}

// RecipientFromProfile builds a broadcast recipient from a farmer profile.
func RecipientFromProfile(p FarmerProfile) Recipient {
	return Recipient{
		Phone:    p.Phone,
		FarmerID: p.ID,
		Language: p.Language,
		OptIns:   p.OptIns,
	}
}

// AlertDescriptor is created once per broadcast and not mutated during fan-out.
type AlertDescriptor struct {
	ID         string      `json:"id"`
	Type       AlertType   `json:"type"`
	Severity   Severity    `json:"severity"`
	Title      string      `json:"title"`
	Message    string      `json:"message"`
	District   string      `json:"district,omitempty"`
	Channels   []Channel   `json:"channels"`
	Recipients []Recipient `json:"recipients"`
	CreatedBy  string      `json:"created_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Body is the canonical message text sent on every channel.
func (a *AlertDescriptor) Body() string {
	return fmt.Sprintf("[%s] %s\n\n%s", a.Severity, a.Title, a.Message)
}

// Validate checks the fields needed before a broadcast.
func (a *AlertDescriptor) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errorf("alert title is required")
	}
	if strings.TrimSpace(a.Message) == "" {
		return errorf("alert message is required")
	}
	if _, ok := ParseSeverity(string(a.Severity)); !ok {
		return errorf("alert severity %q must be one of CRITICAL|WARNING|INFO", a.Severity)
	}
	if len(a.Channels) == 0 {
		return errorf("at least one channel is required")
	}
	for _, ch := range a.Channels {
		if _, ok := ParseChannel(string(ch)); !ok {
			return errorf("unknown channel %q", ch)
		}
	}
	return nil
}

// DeliveryStatus of one send attempt or of a whole broadcast.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryPartial DeliveryStatus = "partial"
)

// DeliveryResult is the outcome of one recipient × channel attempt.
type DeliveryResult struct {
	Phone     string         `json:"phone"`
	Channel   Channel        `json:"channel"`
	Status    DeliveryStatus `json:"status"`
	MessageID string         `json:"message_id,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// DeliveryReport aggregates a broadcast. It is output, never part of the descriptor.
type DeliveryReport struct {
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Results []DeliveryResult `json:"results"`
}

// Status is sent when nothing failed, failed only when nothing succeeded,
// and partial otherwise.
func (r DeliveryReport) Status() DeliveryStatus {
	switch {
	case r.Failed == 0:
		return DeliverySent
	case r.Sent == 0:
		return DeliveryFailed
	default:
		return DeliveryPartial
	}
}

// AlertLog is what gets persisted after a broadcast.
type AlertLog struct {
	Alert      AlertDescriptor `json:"alert"`
	Report     DeliveryReport  `json:"report"`
	Status     DeliveryStatus  `json:"status"`
	FinishedAt time.Time       `json:"finished_at"`
}

// ScheduledAlert is an alert queued for a future broadcast.
type ScheduledAlert struct {
	ID    string          `json:"id"`
	Alert AlertDescriptor `json:"alert"`
	DueAt time.Time       `json:"due_at"`
}

// BroadcastResponse is the reply to POST /v1/alerts/broadcast.
type BroadcastResponse struct {
	AlertID string         `json:"alert_id"`
	Status  DeliveryStatus `json:"status"`
	DeliveryReport
}

// ScheduleRequest is the body of POST /v1/alerts/schedule.
type ScheduleRequest struct {
	Alert AlertDescriptor `json:"alert"`
	DueAt time.Time       `json:"due_at"`
}

// Validate checks the alert and requires a due time.
func (r *ScheduleRequest) Validate() error {
	if r.DueAt.IsZero() {
		return errorf("due_at is required")
	}
	if len(r.Alert.Recipients) == 0 && strings.TrimSpace(r.Alert.District) == "" {
		return errorf("a scheduled alert needs a district or recipients")
	}
	return r.Alert.Validate()
}

// OutboundCallRequest is the body of POST /v1/calls/outbound.
type OutboundCallRequest struct {
	FarmerID string `json:"farmer_id"`
}

// OutboundCallResponse carries the provider call id.
type OutboundCallResponse struct {
	CallSID  string `json:"call_sid"`
	FarmerID string `json:"farmer_id"`
}
