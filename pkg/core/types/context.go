package types

import "time"

// Advisory is the crop rule matched for a farmer.
type Advisory struct {
	Crop        string  `json:"crop"`
	SoilType    string  `json:"soil_type,omitempty"`
	Fertilizer  string  `json:"fertilizer,omitempty"`
	Irrigation  string  `json:"irrigation,omitempty"`
	PestControl string  `json:"pest_control,omitempty"`
	Sowing      string  `json:"sowing,omitempty"`
	Harvest     string  `json:"harvest,omitempty"`
	MSP         float64 `json:"msp,omitempty"` // minimum support price, rupees per quintal
}

// WeatherDay is one forecast day.
type WeatherDay struct {
	Date        string  `json:"date"`
	MinTempC    float64 `json:"min_temp_c"`
	MaxTempC    float64 `json:"max_temp_c"`
	RainChance  float64 `json:"rain_chance"`
	Description string  `json:"description"`
}

// WeatherSnapshot is the cached weather for a district.
type WeatherSnapshot struct {
	District    string       `json:"district"`
	TempC       float64      `json:"temp_c"`
	Humidity    float64      `json:"humidity"`
	RainfallMM  float64      `json:"rainfall_mm"`
	WindKPH     float64      `json:"wind_kph"`
	Description string       `json:"description"`
	Forecast    []WeatherDay `json:"forecast,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// MarketPrice is one mandi quote.
type MarketPrice struct {
	Crop       string    `json:"crop"`
	Market     string    `json:"market"`
	State      string    `json:"state"`
	MinPrice   float64   `json:"min_price"`
	MaxPrice   float64   `json:"max_price"`
	ModalPrice float64   `json:"modal_price"`
	Date       time.Time `json:"date"`
}

// SchemeSummary is an active government scheme the farmer is eligible for.
type SchemeSummary struct {
	Name        string `json:"name"`
	Benefit     string `json:"benefit"`
	Eligibility string `json:"eligibility,omitempty"`
	HowToApply  string `json:"how_to_apply,omitempty"`
}

const (
	MaxContextPrices  = 5
	MaxContextSchemes = 5
)

// ContextBundle is the per-request snapshot fed into prompt construction.
// Every field except Farmer may be absent independently of the others.
type ContextBundle struct {
	Farmer   FarmerProfile    `json:"farmer"`
	Advisory *Advisory        `json:"advisory,omitempty"`
	Weather  *WeatherSnapshot `json:"weather,omitempty"`
	Prices   []MarketPrice    `json:"prices,omitempty"`
	Schemes  []SchemeSummary  `json:"schemes,omitempty"`
}

// Has reports whether the bundle carries data for topic.
func (b *ContextBundle) Has(topic Topic) bool {
	if b == nil {
		return false
	}
	switch topic {
	case TopicWeather:
		return b.Weather != nil
	case TopicPrices:
		return len(b.Prices) > 0
	case TopicAdvisory:
		return b.Advisory != nil
	case TopicSchemes:
		return len(b.Schemes) > 0
	default:
		return true
	}
}
