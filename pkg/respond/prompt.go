package respond

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// NotAvailable marks a context section with no data.
const NotAvailable = "NOT AVAILABLE"

// SystemPrompt renders the single system prompt for one turn. Context values
// are copied verbatim; absent sections are marked NOT AVAILABLE so the model
// can say so instead of guessing.
func SystemPrompt(bundle *types.ContextBundle, lang types.Language) string {
	if bundle == nil {
		bundle = &types.ContextBundle{}
	}
	var b strings.Builder
	b.WriteString("You are Kisan Setu, a voice assistant that answers farmers over the phone and in a mobile app.\n\n")

	b.WriteString("FARMER PROFILE:\n")
	writeProfile(&b, bundle.Farmer)

	b.WriteString("\nCROP ADVISORY:\n")
	writeAdvisory(&b, bundle.Advisory)

	b.WriteString("\nWEATHER:\n")
	writeWeather(&b, bundle.Weather)

	b.WriteString("\nMARKET PRICES (most recent first):\n")
	writePrices(&b, bundle.Prices)

	b.WriteString("\nELIGIBLE GOVERNMENT SCHEMES:\n")
	writeSchemes(&b, bundle.Schemes)

	fmt.Fprintf(&b, `
RULES:
1. Reply only in %s, in simple spoken language a farmer would use.
2. Keep the reply to two or three short sentences. It will be read aloud.
3. No markdown, bullet points, emojis, URLs or special symbols.
4. Use only the numbers given above. Never invent prices, dates, quantities or temperatures.
5. If the farmer asks about something marked %s, say clearly that this information is not available right now.
6. If the farmer says goodbye or thanks you, reply with a short farewell and nothing else.
7. For questions outside farming, answer briefly and guide the farmer back to farming topics.
`, lang.DisplayName(), NotAvailable)

	return b.String()
}

func writeProfile(b *strings.Builder, f types.FarmerProfile) {
	line(b, "Name", f.Name)
	line(b, "Primary crop", f.PrimaryCrop)
	line(b, "Soil type", f.SoilType)
	if f.LandHoldingAcres > 0 {
		line(b, "Land holding", num(f.LandHoldingAcres)+" acres")
	}
	line(b, "District", f.District)
	line(b, "State", f.State)
}

func writeAdvisory(b *strings.Builder, a *types.Advisory) {
	if a == nil {
		b.WriteString(NotAvailable + "\n")
		return
	}
	line(b, "Crop", a.Crop)
	line(b, "Soil", a.SoilType)
	line(b, "Fertilizer", a.Fertilizer)
	line(b, "Irrigation", a.Irrigation)
	line(b, "Pest control", a.PestControl)
	line(b, "Sowing", a.Sowing)
	line(b, "Harvest", a.Harvest)
	if a.MSP > 0 {
		line(b, "MSP", "Rs "+num(a.MSP)+" per quintal")
	}
}

func writeWeather(b *strings.Builder, w *types.WeatherSnapshot) {
	if w == nil {
		b.WriteString(NotAvailable + "\n")
		return
	}
	fmt.Fprintf(b, "Now in %s: %s, %s°C, humidity %s%%, rainfall %s mm, wind %s km/h\n",
		w.District, w.Description, num(w.TempC), num(w.Humidity), num(w.RainfallMM), num(w.WindKPH))
	for _, d := range w.Forecast {
		fmt.Fprintf(b, "%s: %s, %s-%s°C, rain chance %s%%\n",
			d.Date, d.Description, num(d.MinTempC), num(d.MaxTempC), num(d.RainChance))
	}
}

func writePrices(b *strings.Builder, prices []types.MarketPrice) {
	if len(prices) == 0 {
		b.WriteString(NotAvailable + "\n")
		return
	}
	for _, p := range prices {
		date := ""
		if !p.Date.IsZero() {
			date = p.Date.Format("2006-01-02") + " "
		}
		fmt.Fprintf(b, "- %s%s at %s: modal Rs %s per quintal (min %s, max %s)\n",
			date, p.Crop, p.Market, num(p.ModalPrice), num(p.MinPrice), num(p.MaxPrice))
	}
}

func writeSchemes(b *strings.Builder, schemes []types.SchemeSummary) {
	if len(schemes) == 0 {
		b.WriteString(NotAvailable + "\n")
		return
	}
	for _, s := range schemes {
		fmt.Fprintf(b, "- %s: %s", s.Name, s.Benefit)
		if s.HowToApply != "" {
			fmt.Fprintf(b, " (apply: %s)", s.HowToApply)
		}
		b.WriteByte('\n')
	}
}

func line(b *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
