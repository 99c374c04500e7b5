package openai

import "net/http"

// Option configures a Provider.
type Option func(*Provider)

// MaxTokensField names the token limit in the request body. OpenAI's newer
// models reject max_tokens; Groq, OpenRouter and older Cerebras models expect it.
type MaxTokensField string

const (
	MaxTokensFieldMaxTokens           MaxTokensField = "max_tokens"
	MaxTokensFieldMaxCompletionTokens MaxTokensField = "max_completion_tokens"
)

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the client used for requests. Nil is ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithName sets the provider name reported in errors, spans and responses.
func WithName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.name = name
		}
	}
}

// WithMaxTokensField picks the token limit field. Unknown values are ignored.
func WithMaxTokensField(field MaxTokensField) Option {
	return func(p *Provider) {
		switch field {
		case MaxTokensFieldMaxTokens, MaxTokensFieldMaxCompletionTokens:
			p.maxTokensField = field
		}
	}
}

// WithExtraHeader adds a header to every request.
func WithExtraHeader(key, value string) Option {
	return func(p *Provider) {
		if key == "" {
			return
		}
		if p.extraHeaders == nil {
			p.extraHeaders = make(map[string]string)
		}
		p.extraHeaders[key] = value
	}
}
