// Package cerebras implements the Cerebras inference API. It is
// OpenAI-compatible and used as an extra low-latency hop in the reply chain.
package cerebras

import (
	"context"
	"net/http"

	"github.com/kisansetu/voicecore/pkg/core/providers/openai"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// DefaultBaseURL is the Cerebras API endpoint.
const DefaultBaseURL = "https://api.cerebras.ai/v1"

// Option configures the Cerebras provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// WithMaxTokensField selects the token limit field. Newer Cerebras models
// accept max_completion_tokens only.
func WithMaxTokensField(field openai.MaxTokensField) Option {
	return func(p *Provider) { p.maxTokensField = field }
}

type Provider struct {
	baseURL        string
	httpClient     *http.Client
	maxTokensField openai.MaxTokensField
	inner          *openai.Provider
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:        DefaultBaseURL,
		httpClient:     &http.Client{},
		maxTokensField: openai.MaxTokensFieldMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.inner = openai.New(apiKey,
		openai.WithName("cerebras"),
		openai.WithBaseURL(p.baseURL),
		openai.WithHTTPClient(p.httpClient),
		openai.WithMaxTokensField(p.maxTokensField),
	)
	return p
}

func (p *Provider) Name() string {
	return "cerebras"
}

func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return p.inner.Complete(ctx, req)
}
