package types

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Topic tags an exchange for UI routing. It is advisory, not authoritative.
type Topic string

const (
	TopicWeather  Topic = "weather"
	TopicPrices   Topic = "prices"
	TopicAdvisory Topic = "advisory"
	TopicSchemes  Topic = "schemes"
	TopicGeneral  Topic = "general"
)

// MaxHistoryTurns bounds the history a caller may pass back on each turn.
const MaxHistoryTurns = 10

// ConversationTurn is one message of caller-held history.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Source  Topic  `json:"source,omitempty"`
}

// TrimHistory keeps the most recent MaxHistoryTurns turns and drops empty or
// unknown-role entries.
func TrimHistory(history []ConversationTurn) []ConversationTurn {
	out := make([]ConversationTurn, 0, len(history))
	for _, t := range history {
		if t.Content == "" {
			continue
		}
		if t.Role != RoleUser && t.Role != RoleAssistant {
			continue
		}
		out = append(out, t)
	}
	if len(out) > MaxHistoryTurns {
		out = out[len(out)-MaxHistoryTurns:]
	}
	return out
}
