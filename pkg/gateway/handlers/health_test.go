package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kisansetu/voicecore/pkg/gateway/lifecycle"
)

func readyz(t *testing.T, lc *lifecycle.Lifecycle) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	ReadyHandler{Lifecycle: lc}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rr.Code, body
}

func TestReadyHandler_Ready(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.AddCheck("postgres", func(context.Context) error { return nil })
	if code, body := readyz(t, lc); code != http.StatusOK || body["ok"] != true {
		t.Fatalf("status=%d body=%v", code, body)
	}
}

func TestReadyHandler_FailedCheck(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	code, body := readyz(t, lc)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", code)
	}
	issues, _ := body["issues"].([]any)
	if len(issues) != 1 || issues[0] != "redis: connection refused" {
		t.Errorf("issues=%v", body["issues"])
	}
}

func TestReadyHandler_Draining(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	if code, body := readyz(t, lc); code != http.StatusServiceUnavailable || body["draining"] != true {
		t.Fatalf("status=%d body=%v", code, body)
	}
}

func TestNotFoundHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}
