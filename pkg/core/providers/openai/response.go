package openai

import (
	"encoding/json"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// chatResponse is the OpenAI Chat Completions response body.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// parseResponse converts a response body, treating an empty completion as
// malformed so a fallback chain moves on.
func (p *Provider) parseResponse(body []byte) (*types.CompletionResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, core.NewMalformedError(p.name, "unmarshal response: "+err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewMalformedError(p.name, "no choices in response")
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return nil, core.NewMalformedError(p.name, "empty completion")
	}

	return &types.CompletionResponse{
		Provider:     p.name,
		Model:        resp.Model,
		Text:         text,
		FinishReason: choice.FinishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
