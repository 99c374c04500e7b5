// Package groq talks to Groq's OpenAI-compatible endpoint. It is the first
// hop of the default reply chain.
package groq

import (
	"context"
	"net/http"

	"github.com/kisansetu/voicecore/pkg/core/providers/openai"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// DefaultBaseURL is the Groq API endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Option configures the Groq provider.
type Option func(*Provider)

// WithBaseURL points the provider at another endpoint, such as a test server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

type Provider struct {
	baseURL    string
	httpClient *http.Client
	inner      *openai.Provider
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{baseURL: DefaultBaseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(p)
	}
	p.inner = openai.New(apiKey,
		openai.WithName("groq"),
		openai.WithBaseURL(p.baseURL),
		openai.WithHTTPClient(p.httpClient),
		openai.WithMaxTokensField(openai.MaxTokensFieldMaxTokens),
	)
	return p
}

func (p *Provider) Name() string { return "groq" }

// Complete answers one turn. Groq reports a retired model as 404, which the
// chain treats as a reason to move on.
func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return p.inner.Complete(ctx, req)
}
