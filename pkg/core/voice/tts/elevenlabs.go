package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
)

// ElevenLabsProvider synthesizes through the ElevenLabs REST API.
type ElevenLabsProvider struct {
	apiKey     string
	voiceID    string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewElevenLabs creates an ElevenLabs provider with a default voice.
func NewElevenLabs(apiKey, voiceID string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:     strings.TrimSpace(apiKey),
		voiceID:    strings.TrimSpace(voiceID),
		model:      elevenLabsDefaultModel,
		baseURL:    elevenLabsBaseURL,
		httpClient: &http.Client{},
	}
}

// WithBaseURL overrides the API host.
func (e *ElevenLabsProvider) WithBaseURL(base string) *ElevenLabsProvider {
	if base = strings.TrimSpace(base); base != "" {
		e.baseURL = strings.TrimRight(base, "/")
	}
	return e
}

// WithHTTPClient sets the HTTP client.
func (e *ElevenLabsProvider) WithHTTPClient(client *http.Client) *ElevenLabsProvider {
	if client != nil {
		e.httpClient = client
	}
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Synthesize posts text to /v1/text-to-speech/{voice}.
func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if e.apiKey == "" {
		return nil, core.NewUnconfiguredError(e.Name())
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		voiceID = e.voiceID
	}
	if voiceID == "" {
		return nil, core.NewUnconfiguredError(e.Name())
	}

	format := getFormat(opts.Format)
	if format == "wav" || format == "raw" {
		// ElevenLabs returns headerless PCM for non-mp3 output.
		format = "pcm"
	}
	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.model,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           opts.Speed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	u := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) +
		"?output_format=" + url.QueryEscape(elevenLabsOutputFormat(format, opts.SampleRate))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError(e.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(e.Name(), resp)
	}
	return readAudio(e.Name(), resp, format)
}

func elevenLabsOutputFormat(format string, sampleRate int) string {
	switch format {
	case "pcm":
		if sampleRate == 0 {
			sampleRate = 24000
		}
		return fmt.Sprintf("pcm_%d", sampleRate)
	default:
		return "mp3_44100_128"
	}
}
