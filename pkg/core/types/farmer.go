package types

// ChannelOptIns records which alert channels a farmer accepts.
type ChannelOptIns struct {
	SMS      bool `json:"sms"`
	WhatsApp bool `json:"whatsapp"`
	Voice    bool `json:"voice"`
	Push     bool `json:"push"`
}

// Allows reports whether the opt-ins permit delivery on ch.
func (o ChannelOptIns) Allows(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return o.SMS
	case ChannelWhatsApp:
		return o.WhatsApp
	case ChannelVoice:
		return o.Voice
	default:
		return false
	}
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FarmerProfile is owned by the account subsystem and only read here.
type FarmerProfile struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Phone            string        `json:"phone"`
	Language         Language      `json:"language"`
	PrimaryCrop      string        `json:"primary_crop"`
	SoilType         string        `json:"soil_type"`
	LandHoldingAcres float64       `json:"land_holding_acres"`
	District         string        `json:"district"`
	State            string        `json:"state"`
	Location         *GeoPoint     `json:"location,omitempty"`
	OptIns           ChannelOptIns `json:"opt_ins"`
}

// CallerRole distinguishes the two kinds of registered phone users.
type CallerRole string

const (
	RoleFarmer CallerRole = "farmer"
	RoleAdmin  CallerRole = "admin"
)

// Caller is the result of resolving an inbound phone number.
type Caller struct {
	Role   CallerRole
	Farmer *FarmerProfile // set when Role == RoleFarmer
	Admin  *AdminProfile  // set when Role == RoleAdmin
}

// AdminProfile identifies an administrator allowed to use the admin phone menu.
type AdminProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	State string `json:"state,omitempty"`
}
