package types

// CompletionMessage is one prior turn sent to a chat model.
type CompletionMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-neutral chat request. Model carries the
// bare model id; the provider is chosen by the caller.
type CompletionRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []CompletionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
}

// CompletionResponse is the text a provider produced.
type CompletionResponse struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// MessagesFromHistory converts bounded conversation history into completion
// messages followed by the new user utterance.
func MessagesFromHistory(history []ConversationTurn, utterance string) []CompletionMessage {
	history = TrimHistory(history)
	msgs := make([]CompletionMessage, 0, len(history)+1)
	for _, turn := range history {
		msgs = append(msgs, CompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	return append(msgs, CompletionMessage{Role: RoleUser, Content: utterance})
}
