package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kisansetu/voicecore/pkg/core"
)

const (
	cartesiaWSURL   = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion = "2025-04-16"
)

// CartesiaProvider streams audio to Cartesia's STT websocket.
type CartesiaProvider struct {
	apiKey string
	model  string
	wsURL  string
}

// NewCartesia creates a new Cartesia STT provider.
func NewCartesia(apiKey string) *CartesiaProvider {
	return &CartesiaProvider{
		apiKey: strings.TrimSpace(apiKey),
		model:  "ink-whisper",
		wsURL:  cartesiaWSURL,
	}
}

// WithWSURL overrides the websocket endpoint.
func (c *CartesiaProvider) WithWSURL(u string) *CartesiaProvider {
	if u != "" {
		c.wsURL = u
	}
	return c
}

// Name returns the provider identifier.
func (c *CartesiaProvider) Name() string {
	return "cartesia"
}

type cartesiaSTTResponse struct {
	Type    string `json:"type"` // "transcript", "flush_done", "done", "error"
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
}

// Open dials the Cartesia STT websocket.
func (c *CartesiaProvider) Open(ctx context.Context, opts StreamOptions) (Session, error) {
	if c.apiKey == "" {
		return nil, core.NewUnconfiguredError(c.Name())
	}

	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("model", c.model)
	language := string(opts.Language)
	if language == "" {
		language = "en"
	}
	q.Set("language", language)
	encoding := opts.Encoding
	if encoding == "" || encoding == "linear16" {
		encoding = "pcm_s16le"
	}
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(defaultSampleRate(opts.SampleRate)))
	// Low threshold so quiet field recordings still produce interim text.
	q.Set("min_volume", "0.01")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", c.apiKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, core.FromHTTPStatus(c.Name(), resp.StatusCode, "websocket connect: "+err.Error())
		}
		return nil, core.NewProviderError(c.Name(), fmt.Errorf("websocket connect: %w", err))
	}

	// "done" asks Cartesia to flush outstanding transcripts and end the stream.
	return newWSSession(conn, []byte("done"), parseCartesia), nil
}

func parseCartesia(data []byte) (Result, bool, bool, error) {
	var msg cartesiaSTTResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		return Result{}, false, false, nil
	}
	switch msg.Type {
	case "transcript":
		if msg.Text == "" {
			return Result{}, false, false, nil
		}
		return Result{Text: msg.Text, IsFinal: msg.IsFinal}, true, false, nil
	case "done":
		return Result{}, false, true, nil
	case "error":
		return Result{}, false, true, core.NewProviderError("cartesia", fmt.Errorf("stream error: %s", msg.Error))
	default:
		return Result{}, false, false, nil
	}
}
