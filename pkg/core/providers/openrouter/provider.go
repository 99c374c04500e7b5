// Package openrouter routes replies through OpenRouter, the last hop of the
// default chain when the direct providers are exhausted.
package openrouter

import (
	"context"
	"net/http"

	"github.com/kisansetu/voicecore/pkg/core/providers/openai"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// DefaultBaseURL is the OpenRouter API endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Option configures the OpenRouter provider.
type Option func(*Provider)

// WithBaseURL points the provider at another endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// WithSiteURL sends HTTP-Referer so usage is attributed to the deployment.
func WithSiteURL(url string) Option {
	return func(p *Provider) { p.siteURL = url }
}

// WithSiteName sends X-Title alongside WithSiteURL.
func WithSiteName(name string) Option {
	return func(p *Provider) { p.siteName = name }
}

type Provider struct {
	baseURL    string
	httpClient *http.Client
	siteURL    string
	siteName   string
	inner      *openai.Provider
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{baseURL: DefaultBaseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(p)
	}

	openaiOpts := []openai.Option{
		openai.WithName("openrouter"),
		openai.WithBaseURL(p.baseURL),
		openai.WithHTTPClient(p.httpClient),
		openai.WithMaxTokensField(openai.MaxTokensFieldMaxTokens),
	}
	if p.siteURL != "" {
		openaiOpts = append(openaiOpts, openai.WithExtraHeader("HTTP-Referer", p.siteURL))
	}
	if p.siteName != "" {
		openaiOpts = append(openaiOpts, openai.WithExtraHeader("X-Title", p.siteName))
	}

	p.inner = openai.New(apiKey, openaiOpts...)
	return p
}

func (p *Provider) Name() string { return "openrouter" }

func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return p.inner.Complete(ctx, req)
}
