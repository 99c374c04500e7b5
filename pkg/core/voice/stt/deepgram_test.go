package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDeepgramOpen_StreamsInterimAndFinal(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	gotQuery := make(chan string, 1)
	gotAuth := make(chan string, 1)
	gotClose := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.RawQuery
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// One audio frame.
		if mt, _, err := conn.ReadMessage(); err != nil || mt != websocket.BinaryMessage {
			return
		}
		_ = conn.WriteJSON(map[string]any{
			"type":     "Results",
			"is_final": false,
			"channel":  map[string]any{"alternatives": []map[string]any{{"transcript": "gehun ka", "confidence": 0.7}}},
		})
		_ = conn.WriteJSON(map[string]any{
			"type":     "Results",
			"is_final": true,
			"channel":  map[string]any{"alternatives": []map[string]any{{"transcript": "gehun ka bhav", "confidence": 0.93}}},
		})

		// CloseStream, then the server ends the stream.
		_, msg, err := conn.ReadMessage()
		if err == nil {
			gotClose <- string(msg)
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	p := NewDeepgram("dg-key").WithURLs(wsURL(srv)+"/v1/listen", "")
	sess, err := p.Open(t.Context(), StreamOptions{Language: types.LangHindi, Interim: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio([]byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}

	var got []Result
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case r := <-sess.Results():
			got = append(got, r)
		case <-timeout:
			t.Fatalf("timed out, got %+v", got)
		}
	}
	if got[0].IsFinal || !got[1].IsFinal || got[1].Text != "gehun ka bhav" {
		t.Fatalf("results = %+v", got)
	}

	if err := sess.CloseSend(); err != nil {
		t.Fatalf("CloseSend() error = %v", err)
	}
	select {
	case msg := <-gotClose:
		var m map[string]string
		if err := json.Unmarshal([]byte(msg), &m); err != nil || m["type"] != "CloseStream" {
			t.Errorf("close message = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received CloseStream")
	}

	for range sess.Results() {
	}
	if err := sess.Err(); err != nil {
		t.Errorf("Err() = %v after normal close", err)
	}

	q := <-gotQuery
	if !strings.Contains(q, "language=hi") || !strings.Contains(q, "interim_results=true") {
		t.Errorf("query = %q", q)
	}
	if auth := <-gotAuth; auth != "Token dg-key" {
		t.Errorf("Authorization = %q", auth)
	}
}

type staticTokenSource string

func (s staticTokenSource) Token(ctx context.Context) (string, error) { return string(s), nil }

func TestDeepgramOpen_UsesBearerTokenFromSource(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	p := NewDeepgramWithTokenSource(staticTokenSource("temp-123")).WithURLs(wsURL(srv), "")
	sess, err := p.Open(t.Context(), StreamOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sess.Close()

	if auth := <-gotAuth; auth != "Bearer temp-123" {
		t.Errorf("Authorization = %q, want Bearer temp-123", auth)
	}
}

func TestDeepgramOpen_Unconfigured(t *testing.T) {
	_, err := NewDeepgram("").Open(t.Context(), StreamOptions{})
	if core.TypeOf(err) != core.ErrUnconfigured {
		t.Fatalf("TypeOf(err) = %v, want %v", core.TypeOf(err), core.ErrUnconfigured)
	}
}

func TestDeepgramOpen_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewDeepgram("bad").WithURLs(wsURL(srv), "").Open(t.Context(), StreamOptions{})
	if core.TypeOf(err) != core.ErrAuthentication {
		t.Fatalf("TypeOf(err) = %v (%v), want %v", core.TypeOf(err), err, core.ErrAuthentication)
	}
}

func TestDeepgramIssueToken(t *testing.T) {
	var gotBody map[string]int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/grant" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Token dg-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"eyJ.temp","expires_in":30}`))
	}))
	defer srv.Close()

	p := NewDeepgram("dg-key").WithURLs("", srv.URL)
	before := time.Now()
	tok, err := p.IssueToken(t.Context(), 30*time.Second)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if tok.Value != "eyJ.temp" || tok.Provider != "deepgram" {
		t.Fatalf("token = %+v", tok)
	}
	if tok.ExpiresAt.Before(before.Add(29 * time.Second)) {
		t.Errorf("ExpiresAt = %v, too early", tok.ExpiresAt)
	}
	if gotBody["ttl_seconds"] != 30 {
		t.Errorf("ttl_seconds = %d, want 30", gotBody["ttl_seconds"])
	}
}

func TestParseDeepgram(t *testing.T) {
	if _, ok, done, err := parseDeepgram([]byte(`{"type":"Metadata"}`)); ok || done || err != nil {
		t.Errorf("metadata should be ignored")
	}
	if _, ok, _, _ := parseDeepgram([]byte(`{"type":"Results","channel":{"alternatives":[{"transcript":""}]}}`)); ok {
		t.Errorf("empty transcript should be skipped")
	}
	r, ok, _, _ := parseDeepgram([]byte(`{"type":"Results","speech_final":true,"channel":{"alternatives":[{"transcript":"haan"}]}}`))
	if !ok || !r.IsFinal {
		t.Errorf("speech_final should mark result final: %+v", r)
	}
	if _, _, done, err := parseDeepgram([]byte(`{"type":"Error","description":"bad audio"}`)); !done || err == nil {
		t.Errorf("error message should end the stream with an error")
	}
}
