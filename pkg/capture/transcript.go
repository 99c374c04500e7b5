package capture

import (
	"strings"
	"sync"

	"github.com/kisansetu/voicecore/pkg/core/voice/stt"
)

// Transcript accumulates recognizer output. Final segments are appended in
// order; the interim segment is replaced on every update and cleared when a
// final arrives.
type Transcript struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

// Add applies one recognizer result.
func (t *Transcript) Add(r stt.Result) {
	text := strings.TrimSpace(r.Text)
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.IsFinal {
		if text != "" {
			t.finals = append(t.finals, text)
		}
		t.interim = ""
		return
	}
	t.interim = text
}

// Final returns the finalized text only.
func (t *Transcript) Final() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.finals, " ")
}

// Interim returns the pending, not yet finalized segment.
func (t *Transcript) Interim() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interim
}

// Text returns the finalized text followed by any pending interim segment.
// A recognizer closed before it finalizes the last words still yields them.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := t.finals
	if t.interim != "" {
		parts = append(parts[:len(parts):len(parts)], t.interim)
	}
	return strings.Join(parts, " ")
}
