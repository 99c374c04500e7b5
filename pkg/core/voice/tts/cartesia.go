package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2025-04-16"
)

// Default voice ID - deployments should configure their own.
const defaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"

// CartesiaProvider implements the TTS Provider interface using Cartesia's API.
type CartesiaProvider struct {
	apiKey     string
	voiceID    string
	baseURL    string
	httpClient *http.Client
}

// NewCartesia creates a new Cartesia TTS provider.
func NewCartesia(apiKey, voiceID string) *CartesiaProvider {
	if strings.TrimSpace(voiceID) == "" {
		voiceID = defaultVoiceID
	}
	return &CartesiaProvider{
		apiKey:     strings.TrimSpace(apiKey),
		voiceID:    voiceID,
		baseURL:    cartesiaBaseURL,
		httpClient: &http.Client{},
	}
}

// NewCartesiaWithClient creates a new Cartesia TTS provider with a custom HTTP client.
func NewCartesiaWithClient(apiKey, voiceID string, client *http.Client) *CartesiaProvider {
	p := NewCartesia(apiKey, voiceID)
	if client != nil {
		p.httpClient = client
	}
	return p
}

// WithBaseURL overrides the API host.
func (c *CartesiaProvider) WithBaseURL(base string) *CartesiaProvider {
	if base = strings.TrimSpace(base); base != "" {
		c.baseURL = strings.TrimRight(base, "/")
	}
	return c
}

// Name returns the provider identifier.
func (c *CartesiaProvider) Name() string {
	return "cartesia"
}

// Synthesize converts text to audio using Cartesia's /tts/bytes endpoint.
func (c *CartesiaProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if c.apiKey == "" {
		return nil, core.NewUnconfiguredError(c.Name())
	}
	voiceID := opts.Voice
	if voiceID == "" {
		voiceID = c.voiceID
	}

	reqBody := cartesiaTTSRequest{
		ModelID:    "sonic-3",
		Transcript: text,
		Voice: cartesiaVoiceSpec{
			Mode: "id",
			ID:   voiceID,
		},
		OutputFormat: c.buildOutputFormat(opts),
	}
	if opts.Speed != 0 {
		reqBody.GenerationConfig = &cartesiaGenerationConfig{Speed: opts.Speed}
	}
	if opts.Language != "" {
		lang := string(opts.Language)
		reqBody.Language = &lang
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError(c.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(c.Name(), resp)
	}
	return readAudio(c.Name(), resp, getFormat(opts.Format))
}

type cartesiaTTSRequest struct {
	ModelID          string                    `json:"model_id"`
	Transcript       string                    `json:"transcript"`
	Voice            cartesiaVoiceSpec         `json:"voice"`
	OutputFormat     cartesiaOutputFormat      `json:"output_format"`
	Language         *string                   `json:"language,omitempty"`
	GenerationConfig *cartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type cartesiaVoiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Speed float64 `json:"speed,omitempty"`
}

func (c *CartesiaProvider) buildOutputFormat(opts SynthesizeOptions) cartesiaOutputFormat {
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 24000
	}

	switch getFormat(opts.Format) {
	case "pcm", "raw":
		return cartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		}
	case "wav":
		return cartesiaOutputFormat{
			Container:  "wav",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		}
	default:
		return cartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    128000,
		}
	}
}
