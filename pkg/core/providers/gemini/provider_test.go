package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

func TestComplete_SendsSystemInstructionAndHistory(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates":[{"content":{"role":"model","parts":[{"text":"Kal halki baarish ho sakti hai."}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":42,"candidatesTokenCount":9},
			"modelVersion":"gemini-2.0-flash"
		}`)
	}))
	defer server.Close()

	p := New("AIza-test", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	resp, err := p.Complete(t.Context(), &types.CompletionRequest{
		Model:  "gemini-2.0-flash",
		System: "Reply in Hindi.",
		Messages: []types.CompletionMessage{
			{Role: types.RoleUser, Content: "Kal mausam kaisa rahega?"},
			{Role: types.RoleAssistant, Content: "Aapke zile mein?"},
			{Role: types.RoleUser, Content: "Haan"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if !strings.HasSuffix(gotPath, "/models/gemini-2.0-flash:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Errorf("request missing systemInstruction: %#v", gotBody)
	}
	contents, _ := gotBody["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	second, _ := contents[1].(map[string]any)
	if second["role"] != "model" {
		t.Errorf("assistant turn role = %v, want model", second["role"])
	}

	if resp.Text != "Kal halki baarish ho sakti hai." {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Provider != "gemini" || resp.InputTokens != 42 || resp.OutputTokens != 9 {
		t.Errorf("response = %+v", resp)
	}
}

func TestComplete_MapsQuotaErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	p := New("AIza-test", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := p.Complete(t.Context(), &types.CompletionRequest{Model: "gemini-2.0-flash", Messages: []types.CompletionMessage{{Role: types.RoleUser, Content: "hi"}}})
	if core.TypeOf(err) != core.ErrRateLimit {
		t.Fatalf("TypeOf(err) = %v (%v), want %v", core.TypeOf(err), err, core.ErrRateLimit)
	}
}

func TestComplete_EmptyCandidateIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"SAFETY"}]}`)
	}))
	defer server.Close()

	p := New("AIza-test", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := p.Complete(t.Context(), &types.CompletionRequest{Model: "gemini-2.0-flash", Messages: []types.CompletionMessage{{Role: types.RoleUser, Content: "hi"}}})
	if core.TypeOf(err) != core.ErrMalformed {
		t.Fatalf("TypeOf(err) = %v, want %v", core.TypeOf(err), core.ErrMalformed)
	}
}

func TestComplete_MissingKey(t *testing.T) {
	_, err := New("").Complete(t.Context(), &types.CompletionRequest{Model: "gemini-2.0-flash"})
	if core.TypeOf(err) != core.ErrUnconfigured {
		t.Fatalf("TypeOf(err) = %v, want %v", core.TypeOf(err), core.ErrUnconfigured)
	}
}
