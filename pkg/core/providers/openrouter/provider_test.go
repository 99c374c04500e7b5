package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

func TestNew_AppliesOptions(t *testing.T) {
	client := &http.Client{}
	p := New("test-key", WithBaseURL("https://example.com"), WithHTTPClient(client))

	if p.baseURL != "https://example.com" {
		t.Fatalf("baseURL = %q, want https://example.com", p.baseURL)
	}
	if p.httpClient != client {
		t.Fatal("httpClient option was not applied")
	}
	if p.inner == nil {
		t.Fatal("expected inner OpenAI provider to be initialized")
	}
	if p.Name() != "openrouter" {
		t.Fatalf("name = %q, want openrouter", p.Name())
	}
}

func TestComplete_SendsAttributionAndMaxTokens(t *testing.T) {
	var gotBody map[string]any
	var gotReferer, gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id":"chatcmpl_1",
			"model":"meta-llama/llama-3.1-8b-instruct",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]
		}`)
	}))
	defer server.Close()

	p := New("or-key",
		WithBaseURL(server.URL),
		WithSiteURL("https://kisansetu.example"),
		WithSiteName("KisanSetu"),
	)
	resp, err := p.Complete(t.Context(), &types.CompletionRequest{Model: "meta-llama/llama-3.1-8b-instruct"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Provider != "openrouter" {
		t.Errorf("Provider = %q, want openrouter", resp.Provider)
	}
	if gotReferer != "https://kisansetu.example" || gotTitle != "KisanSetu" {
		t.Errorf("attribution headers = %q / %q", gotReferer, gotTitle)
	}
	if _, ok := gotBody["max_tokens"]; !ok {
		t.Errorf("request missing max_tokens: %#v", gotBody)
	}
}
