package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/kisansetu/voicecore/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports 503 while draining or when a dependency check fails.
type ReadyHandler struct {
	Lifecycle *lifecycle.Lifecycle
	Timeout   time.Duration
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining,omitempty"`
		Issues   []string `json:"issues,omitempty"`
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	draining := h.Lifecycle.IsDraining()
	var issues []string
	for name, err := range h.Lifecycle.Check(ctx) {
		issues = append(issues, name+": "+err.Error())
	}
	sort.Strings(issues)

	ok := !draining && len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{OK: ok, Draining: draining, Issues: issues})
}
