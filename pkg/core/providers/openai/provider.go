// Package openai is a chat completions client for OpenAI and the
// OpenAI-compatible hosts (Groq, OpenRouter, Cerebras) in the reply chain.
package openai

import (
	"context"
	"net/http"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultMaxTokens keeps spoken replies short.
	DefaultMaxTokens = 400
)

// Provider sends chat completions with bearer auth.
type Provider struct {
	apiKey         string
	baseURL        string
	name           string
	httpClient     *http.Client
	extraHeaders   map[string]string
	maxTokensField MaxTokensField
}

var _ core.Provider = (*Provider)(nil)

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:         apiKey,
		baseURL:        DefaultBaseURL,
		name:           "openai",
		httpClient:     &http.Client{},
		maxTokensField: MaxTokensFieldMaxCompletionTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Complete sends a non-streaming chat completion request.
func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if p.apiKey == "" {
		return nil, core.NewUnconfiguredError(p.name)
	}

	respBody, err := p.doRequest(ctx, p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	return p.parseResponse(respBody)
}
