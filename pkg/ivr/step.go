package ivr

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Kind names a call step.
type Kind string

const (
	StepEntry          Kind = "entry"
	StepLanguageSelect Kind = "language"
	StepConversation   Kind = "conversation"
	StepAdminMenu      Kind = "admin"
	StepAlertDistrict  Kind = "alert_district"
	StepAlertType      Kind = "alert_type"
	StepAlertConfirm   Kind = "alert_confirm"
	StepStats          Kind = "stats"
	StepTerminated     Kind = "end"
)

var kinds = map[Kind]bool{
	StepEntry: true, StepLanguageSelect: true, StepConversation: true,
	StepAdminMenu: true, StepAlertDistrict: true, StepAlertType: true,
	StepAlertConfirm: true, StepStats: true, StepTerminated: true,
}

// Query parameter names.
const (
	paramStep     = "step"
	paramLanguage = "lang"
	paramFarmer   = "farmer"
	paramMisses   = "miss"
	paramAdmin    = "admin"
	paramDistrict = "district"
	paramType     = "type"
	paramAlert    = "alert"
)

// Step is the whole call state. It travels in the webhook URL, so the
// server keeps nothing between requests. Fields not used by Kind are empty.
type Step struct {
	Kind      Kind
	Language  types.Language
	FarmerID  string
	Misses    int
	AdminID   string
	District  string
	AlertType types.AlertType
	Alert     string // outbound alert text read out at Entry
}

// Values encodes the step. Empty fields are omitted.
func (s Step) Values() url.Values {
	v := url.Values{}
	kind := s.Kind
	if kind == "" {
		kind = StepEntry
	}
	v.Set(paramStep, string(kind))
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set(paramLanguage, string(s.Language))
	set(paramFarmer, s.FarmerID)
	if s.Misses > 0 {
		v.Set(paramMisses, strconv.Itoa(s.Misses))
	}
	set(paramAdmin, s.AdminID)
	set(paramDistrict, s.District)
	set(paramType, string(s.AlertType))
	set(paramAlert, s.Alert)
	return v
}

// URL returns base with the step encoded as its query. Keys are sorted, so
// equal steps produce equal URLs.
func (s Step) URL(base string) string {
	return base + "?" + s.Values().Encode()
}

// ParseStep decodes a step from webhook query parameters. A missing step
// parameter is Entry. Unsupported languages and malformed counters are
// dropped rather than rejected.
func ParseStep(q url.Values) (Step, error) {
	s := Step{Kind: Kind(q.Get(paramStep))}
	if s.Kind == "" {
		s.Kind = StepEntry
	}
	if !kinds[s.Kind] {
		return Step{Kind: StepEntry}, fmt.Errorf("unknown ivr step %q", s.Kind)
	}
	if l, ok := types.ParseLanguage(q.Get(paramLanguage)); ok {
		s.Language = l
	}
	s.FarmerID = q.Get(paramFarmer)
	if n, err := strconv.Atoi(q.Get(paramMisses)); err == nil && n > 0 {
		s.Misses = n
	}
	s.AdminID = q.Get(paramAdmin)
	s.District = q.Get(paramDistrict)
	if t, ok := types.ParseAlertType(q.Get(paramType)); ok {
		s.AlertType = t
	}
	s.Alert = q.Get(paramAlert)
	return s, nil
}

// Input is what the caller did on the previous step.
type Input struct {
	CallSID string
	From    string
	Digits  string
	Speech  string
}

// InputFromForm reads the Twilio webhook form fields.
func InputFromForm(form url.Values) Input {
	return Input{
		CallSID: form.Get("CallSid"),
		From:    form.Get("From"),
		Digits:  form.Get("Digits"),
		Speech:  form.Get("SpeechResult"),
	}
}
