package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/core/voice/stt"
	"github.com/kisansetu/voicecore/pkg/core/voice/tts"
)

const defaultRequestTimeout = 30 * time.Second

// ErrUseLocalSynthesis is returned by RemoteAssistant.Synthesize when the
// server has no working TTS provider and tells the client to speak locally.
var ErrUseLocalSynthesis = errors.New("capture: server asked for local synthesis")

// TransportError is a network-level failure talking to the server, as
// opposed to an error envelope the server returned.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op != "" && e.URL != "" {
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func redactURLUserInfo(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

// RemoteAssistant talks to the voicecore HTTP server. It implements
// Assistant, stt.TokenSource and the synthesis half of RemoteSpeaker.
type RemoteAssistant struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

// RemoteOption configures a RemoteAssistant.
type RemoteOption func(*RemoteAssistant)

// WithAPIKey sends a bearer key on every request.
func WithAPIKey(key string) RemoteOption {
	return func(r *RemoteAssistant) { r.apiKey = strings.TrimSpace(key) }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteAssistant) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithRequestTimeout bounds requests whose context carries no deadline.
func WithRequestTimeout(d time.Duration) RemoteOption {
	return func(r *RemoteAssistant) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRemoteAssistant creates a client for the server at baseURL.
func NewRemoteAssistant(baseURL string, opts ...RemoteOption) *RemoteAssistant {
	r := &RemoteAssistant{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: newDefaultHTTPClient(),
		timeout:    defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newDefaultHTTPClient sets transport-level timeouts and leaves the overall
// request lifetime to context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Ask posts the transcript to /v1/voice/ask.
func (r *RemoteAssistant) Ask(ctx context.Context, req *types.AskRequest) (*types.AskResponse, error) {
	if req == nil {
		return nil, core.NewInvalidRequestError("req must not be nil")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	resp, endpoint, err := r.postJSON(ctx, "/v1/voice/ask", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeErrorResponse(resp, endpoint)
	}

	var out types.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: fmt.Errorf("decode reply: %w", err)}
	}
	return &out, nil
}

// Synthesize fetches reply audio from /v1/voice/tts. A 503 carrying
// {"fallback":"client"} yields ErrUseLocalSynthesis.
func (r *RemoteAssistant) Synthesize(ctx context.Context, text string, lang types.Language) (*tts.Synthesis, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	resp, endpoint, err := r.postJSON(ctx, "/v1/voice/tts", &types.SpeechRequest{Text: text, Language: lang})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var fb types.SpeechFallback
		if json.Unmarshal(body, &fb) == nil && fb.Fallback == types.SpeechFallbackClient {
			return nil, ErrUseLocalSynthesis
		}
		return nil, core.FromHTTPStatus("voicecore", resp.StatusCode, "speech unavailable")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeErrorResponse(resp, endpoint)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	return &tts.Synthesis{
		Audio:    audio,
		Format:   formatFromContentType(resp.Header.Get("Content-Type")),
		Provider: resp.Header.Get(types.HeaderTTSProvider),
	}, nil
}

// IssueToken fetches a short-lived streaming recognizer token.
func (r *RemoteAssistant) IssueToken(ctx context.Context) (*stt.Token, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	resp, endpoint, err := r.postJSON(ctx, "/v1/voice/token", struct{}{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeErrorResponse(resp, endpoint)
	}

	var tok stt.Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: fmt.Errorf("decode token: %w", err)}
	}
	if tok.Value == "" {
		return nil, core.NewMalformedError("voicecore", "empty token")
	}
	return &tok, nil
}

// Token implements stt.TokenSource.
func (r *RemoteAssistant) Token(ctx context.Context) (string, error) {
	tok, err := r.IssueToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

func (r *RemoteAssistant) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RemoteAssistant) postJSON(ctx context.Context, path string, payload any) (*http.Response, string, error) {
	endpoint := r.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, endpoint, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, endpoint, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, endpoint, ctxErr
		}
		return nil, endpoint, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	return resp, endpoint, nil
}

// decodeErrorResponse turns a server error envelope into a *core.Error.
func decodeErrorResponse(resp *http.Response, endpoint string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	requestID := strings.TrimSpace(resp.Header.Get("X-Request-Id"))

	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if env.Error.RequestID == "" {
			env.Error.RequestID = requestID
		}
		if env.Error.Type == "" {
			env.Error.Type = core.FromHTTPStatus("", resp.StatusCode, "").Type
		}
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode)
		}
		if env.Error.RetryAfter == nil {
			if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil {
				env.Error.RetryAfter = &secs
			}
		}
		return env.Error
	}

	e := core.FromHTTPStatus("", resp.StatusCode, fmt.Sprintf("server request failed with status %d", resp.StatusCode))
	e.RequestID = requestID
	return e
}

func formatFromContentType(ct string) string {
	switch {
	case strings.HasPrefix(ct, "audio/mpeg"):
		return "mp3"
	case strings.HasPrefix(ct, "audio/L16"):
		return "pcm"
	case strings.HasPrefix(ct, "audio/wav"), strings.HasPrefix(ct, "audio/x-wav"):
		return "wav"
	default:
		return "mp3"
	}
}
