package openai

import "github.com/kisansetu/voicecore/pkg/core/types"

// chatRequest is the OpenAI Chat Completions request body.
type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
	Temperature         *float64      `json:"temperature,omitempty"`
}

// chatMessage is a single message in OpenAI format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildRequest(req *types.CompletionRequest) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    make([]chatMessage, 0, len(req.Messages)+1),
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if p.maxTokensField == MaxTokensFieldMaxTokens {
		out.MaxTokens = &maxTokens
	} else {
		out.MaxCompletionTokens = &maxTokens
	}

	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
