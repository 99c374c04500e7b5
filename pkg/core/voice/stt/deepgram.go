package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kisansetu/voicecore/pkg/core"
)

const (
	deepgramWSURL   = "wss://api.deepgram.com/v1/listen"
	deepgramAPIURL  = "https://api.deepgram.com"
	deepgramModel   = "nova-2"
	deepgramMaxTTL  = 3600 * time.Second
	deepgramDefTTL  = 30 * time.Second
	deepgramTimeout = 10 * time.Second
)

// DeepgramProvider streams audio to Deepgram's live endpoint. Servers use
// the API key directly; clients open sessions with short-lived tokens
// fetched through a TokenSource.
type DeepgramProvider struct {
	apiKey      string
	tokenSource TokenSource
	model       string
	wsURL       string
	apiURL      string
	httpClient  *http.Client
}

// NewDeepgram creates a provider authenticated with a long-lived API key.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey:     strings.TrimSpace(apiKey),
		model:      deepgramModel,
		wsURL:      deepgramWSURL,
		apiURL:     deepgramAPIURL,
		httpClient: &http.Client{Timeout: deepgramTimeout},
	}
}

// NewDeepgramWithTokenSource creates a provider that authenticates each
// session with a freshly issued short-lived token.
func NewDeepgramWithTokenSource(src TokenSource) *DeepgramProvider {
	p := NewDeepgram("")
	p.tokenSource = src
	return p
}

// WithURLs overrides the websocket and REST endpoints.
func (p *DeepgramProvider) WithURLs(wsURL, apiURL string) *DeepgramProvider {
	if wsURL != "" {
		p.wsURL = wsURL
	}
	if apiURL != "" {
		p.apiURL = strings.TrimRight(apiURL, "/")
	}
	return p
}

// Name returns the provider identifier.
func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

// Open dials wss://api.deepgram.com/v1/listen.
func (p *DeepgramProvider) Open(ctx context.Context, opts StreamOptions) (Session, error) {
	header, err := p.authHeader(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(p.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	if opts.Language != "" {
		q.Set("language", string(opts.Language))
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(defaultSampleRate(opts.SampleRate)))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(opts.Interim))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: deepgramTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, core.FromHTTPStatus(p.Name(), resp.StatusCode, "websocket connect: "+err.Error())
		}
		return nil, core.NewProviderError(p.Name(), fmt.Errorf("websocket connect: %w", err))
	}

	return newWSSession(conn, []byte(`{"type":"CloseStream"}`), parseDeepgram), nil
}

func parseDeepgram(data []byte) (Result, bool, bool, error) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Result{}, false, false, nil
	}
	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 || msg.Channel.Alternatives[0].Transcript == "" {
			return Result{}, false, false, nil
		}
		alt := msg.Channel.Alternatives[0]
		return Result{
			Text:       alt.Transcript,
			IsFinal:    msg.IsFinal || msg.SpeechFinal,
			Confidence: alt.Confidence,
		}, true, false, nil
	case "Error":
		return Result{}, false, true, core.NewProviderError("deepgram", fmt.Errorf("stream error: %s", msg.Description))
	default:
		return Result{}, false, false, nil
	}
}

func (p *DeepgramProvider) authHeader(ctx context.Context) (http.Header, error) {
	header := http.Header{}
	switch {
	case p.tokenSource != nil:
		token, err := p.tokenSource.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch stt token: %w", err)
		}
		if token == "" {
			return nil, core.NewUnconfiguredError(p.Name())
		}
		header.Set("Authorization", "Bearer "+token)
	case p.apiKey != "":
		header.Set("Authorization", "Token "+p.apiKey)
	default:
		return nil, core.NewUnconfiguredError(p.Name())
	}
	return header, nil
}

type deepgramGrantResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
}

// IssueToken mints a temporary token through POST /v1/auth/grant.
func (p *DeepgramProvider) IssueToken(ctx context.Context, ttl time.Duration) (*Token, error) {
	if p.apiKey == "" {
		return nil, core.NewUnconfiguredError(p.Name())
	}
	if ttl <= 0 {
		ttl = deepgramDefTTL
	}
	ttl = min(ttl, deepgramMaxTTL)

	body, _ := json.Marshal(map[string]int{"ttl_seconds": int(ttl.Seconds())})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/v1/auth/grant", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, core.FromHTTPStatus(p.Name(), resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var grant deepgramGrantResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, core.NewMalformedError(p.Name(), "decode grant: "+err.Error())
	}
	if grant.AccessToken == "" {
		return nil, core.NewMalformedError(p.Name(), "grant missing access_token")
	}
	expiresIn := time.Duration(grant.ExpiresIn * float64(time.Second))
	if expiresIn <= 0 {
		expiresIn = ttl
	}
	return &Token{
		Provider:  p.Name(),
		Value:     grant.AccessToken,
		ExpiresAt: time.Now().Add(expiresIn),
	}, nil
}
