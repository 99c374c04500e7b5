package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
)

// doRequest sends a non-streaming request.
func (p *Provider) doRequest(ctx context.Context, req *chatRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatCompletionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError(p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, p.parseError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError(p.name, fmt.Errorf("read response: %w", err))
	}
	return respBody, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")

	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	for key, value := range p.extraHeaders {
		req.Header.Set(key, value)
	}
}

func (p *Provider) chatCompletionsURL() string {
	return strings.TrimRight(p.baseURL, "/") + "/chat/completions"
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code,omitempty"`
	} `json:"error"`
}

// parseError maps an error response onto the core taxonomy. The HTTP status
// decides the type; the body only contributes the message.
func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := strings.TrimSpace(string(body))
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	if msg == "" {
		msg = resp.Status
	}

	coreErr := core.FromHTTPStatus(p.name, resp.StatusCode, msg)
	if coreErr.Type == core.ErrRateLimit {
		if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			coreErr.RetryAfter = &ra
		}
	}
	return coreErr
}

func parseRetryAfter(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
