package respond

import (
	"strings"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// topicKeywords are matched against word prefixes of the normalized
// transcript, so "prices" matches "price" and "barish" matches "barish".
var topicKeywords = []struct {
	topic    types.Topic
	keywords []string
}{
	{types.TopicWeather, []string{
		"weather", "rain", "temperature", "forecast", "storm", "humid", "wind", "hail", "frost",
		"mausam", "baarish", "barish", "barsat", "garmi", "thand", "toofan", "olav",
		"मौसम", "बारिश", "बरसात", "वर्षा", "तापमान", "गर्मी", "ठंड", "तूफान", "ओले", "हवामान", "पाऊस",
	}},
	{types.TopicPrices, []string{
		"price", "rate", "mandi", "market", "sell", "msp",
		"bhav", "bhaav", "daam", "keemat", "kimat", "bazaar", "bechna", "bechu",
		"भाव", "दाम", "कीमत", "मंडी", "बाजार", "बेच", "दर", "बाजारभाव", "विक्री",
	}},
	{types.TopicSchemes, []string{
		"scheme", "subsidy", "yojana", "insurance", "loan", "bima", "sarkari",
		"योजना", "सब्सिडी", "अनुदान", "बीमा", "विमा", "लोन", "कर्ज", "सरकारी",
	}},
	{types.TopicAdvisory, []string{
		"fertilizer", "fertiliser", "urea", "dap", "irrigat", "water", "pest", "disease", "sow", "seed", "harvest", "spray", "soil",
		"khaad", "khad", "sinchai", "paani", "keet", "keeda", "rog", "buvai", "beej", "katai", "dawai", "mitti",
		"खाद", "उर्वरक", "यूरिया", "सिंचाई", "पानी", "कीट", "कीड़", "रोग", "बुवाई", "बीज", "कटाई", "दवा", "मिट्टी", "खत", "पेरणी", "फवारणी", "माती",
	}},
}

// ClassifyTopic tags a transcript by keyword matching. The topic with the
// most hits wins; ties go to the earlier topic in weather, prices, schemes,
// advisory order. No hits yields TopicGeneral.
func ClassifyTopic(transcript string) types.Topic {
	words := strings.Fields(normalize(transcript))
	if len(words) == 0 {
		return types.TopicGeneral
	}

	best, bestScore := types.TopicGeneral, 0
	for _, tk := range topicKeywords {
		score := 0
		for _, w := range words {
			for _, kw := range tk.keywords {
				if strings.HasPrefix(w, kw) {
					score++
					break
				}
			}
		}
		if score > bestScore {
			best, bestScore = tk.topic, score
		}
	}
	return best
}
