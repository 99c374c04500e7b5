package ivr

import (
	"fmt"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

type prompt int

const (
	promptWelcome prompt = iota
	promptAlertIntro
	promptAskMore
	promptNotHeard
	promptUnregistered
	promptTechnical
)

var prompts = map[prompt]map[types.Language]string{
	promptWelcome: {
		types.LangHindi:   "नमस्ते! किसान सेतु में आपका स्वागत है। खेती से जुड़ा अपना सवाल पूछिए।",
		types.LangEnglish: "Namaste! Welcome to Kisan Setu. Please ask your farming question.",
		types.LangMarathi: "नमस्कार! किसान सेतूमध्ये आपले स्वागत आहे. शेतीविषयी आपला प्रश्न विचारा.",
	},
	promptAlertIntro: {
		types.LangHindi:   "किसान सेतु से एक ज़रूरी सूचना।",
		types.LangEnglish: "An important message from Kisan Setu.",
		types.LangMarathi: "किसान सेतूकडून एक महत्त्वाची सूचना.",
	},
	promptAskMore: {
		types.LangHindi:   "क्या आपका कोई और सवाल है?",
		types.LangEnglish: "Do you have any other question?",
		types.LangMarathi: "तुमचा आणखी काही प्रश्न आहे का?",
	},
	promptNotHeard: {
		types.LangHindi:   "माफ़ कीजिए, मैं सुन नहीं पाया। कृपया फिर से बोलिए।",
		types.LangEnglish: "Sorry, I could not hear you. Please say that again.",
		types.LangMarathi: "माफ करा, मला ऐकू आले नाही. कृपया पुन्हा बोला.",
	},
	promptUnregistered: {
		types.LangHindi:   "यह नंबर किसान सेतु पर पंजीकृत नहीं है। कृपया ऐप में पंजीकरण करें। धन्यवाद।",
		types.LangEnglish: "This number is not registered with Kisan Setu. Please register in the app. Thank you.",
		types.LangMarathi: "हा नंबर किसान सेतूवर नोंदणीकृत नाही. कृपया अॅपमध्ये नोंदणी करा. धन्यवाद.",
	},
	promptTechnical: {
		types.LangHindi:   "तकनीकी समस्या के कारण अभी सेवा उपलब्ध नहीं है। कृपया थोड़ी देर बाद कॉल करें।",
		types.LangEnglish: "We are facing a technical problem. Please call again later.",
		types.LangMarathi: "तांत्रिक अडचणीमुळे सेवा सध्या उपलब्ध नाही. कृपया थोड्या वेळाने कॉल करा.",
	},
}

func text(p prompt, lang types.Language) string {
	if s, ok := prompts[p][lang]; ok {
		return s
	}
	return prompts[p][types.DefaultLanguage]
}

// languageMenu is read in each language so callers recognize their own.
var languageMenu = map[types.Language]string{
	types.LangHindi:   "हिंदी के लिए 1 दबाएं।",
	types.LangEnglish: "For English, press 2.",
	types.LangMarathi: "मराठीसाठी 3 दाबा.",
}

// voices maps languages to Twilio text-to-speech voices.
var voices = map[types.Language]string{
	types.LangHindi:   "Polly.Aditi",
	types.LangEnglish: "Polly.Raveena",
	types.LangMarathi: "Google.mr-IN-Standard-A",
}

// Admin prompts are English only.
const (
	adminMenuText     = "Admin menu. Press 1 to send an alert. Press 2 to hear today's statistics."
	adminInvalidText  = "Invalid choice."
	adminNoDistricts  = "No districts are configured for alerts."
	adminCancelled    = "Alert cancelled."
	adminFailedText   = "The alert could not be sent. Please try again later."
	adminStatsFailed  = "Statistics are not available right now."
	adminConfirmText  = "You are about to send a %s alert to farmers in %s. Press 1 to confirm or 2 to cancel."
	adminSentText     = "Alert sent. %d messages delivered and %d failed."
	adminStatsText    = "%d farmers are registered. %d alerts were sent today, with %d messages delivered."
	adminTypeMenuHead = "Select the alert type."
	adminDistrictHead = "Select the district."
)

func numberedMenu(head string, items []string) string {
	var b strings.Builder
	b.WriteString(head)
	for i, item := range items {
		fmt.Fprintf(&b, " Press %d for %s.", i+1, item)
	}
	return b.String()
}

// alertTemplates are the message bodies for alerts raised from the phone menu.
var alertTemplates = map[types.AlertType]string{
	types.AlertWeather: "Severe weather is expected in %s. Protect your crops and livestock and follow local advisories.",
	types.AlertPest:    "Pest activity has been reported in %s. Inspect your fields and contact your local agriculture officer.",
	types.AlertPrice:   "Market prices have changed sharply in %s. Check current mandi rates before selling.",
	types.AlertScheme:  "A government scheme update is available for farmers in %s. Contact your local agriculture office for details.",
	types.AlertGeneral: "An important update for farmers in %s. Please contact your local agriculture office.",
}

func alertSeverity(t types.AlertType) types.Severity {
	switch t {
	case types.AlertWeather, types.AlertPest:
		return types.SeverityWarning
	default:
		return types.SeverityInfo
	}
}
