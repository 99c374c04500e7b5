// Package gemini implements the Google Gemini provider on top of the
// google.golang.org/genai client.
package gemini

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// DefaultMaxTokens keeps spoken replies short.
const DefaultMaxTokens = 400

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL overrides the genai endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the client handed to genai.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// Provider answers turns with Gemini models.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

var _ core.Provider = (*Provider)(nil)

// New creates a new Gemini provider. The genai client is built on first use.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Complete sends a non-streaming request to Gemini.
func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if p.apiKey == "" {
		return nil, core.NewUnconfiguredError("gemini")
	}

	client, err := p.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, buildContents(req), buildConfig(req))
	if err != nil {
		return nil, mapError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, core.NewMalformedError("gemini", "empty completion")
	}

	out := &types.CompletionResponse{
		Provider: "gemini",
		Model:    req.Model,
		Text:     text,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func (p *Provider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, core.NewProviderError("gemini", err)
	}
	p.client = client
	return client, nil
}

func buildContents(req *types.CompletionRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func buildConfig(req *types.CompletionRequest) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	return cfg
}
