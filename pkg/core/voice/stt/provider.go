// Package stt provides streaming speech-to-text sessions.
package stt

import (
	"context"
	"time"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Provider opens live transcription sessions.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Open dials a new session. It must honor ctx for the handshake.
	Open(ctx context.Context, opts StreamOptions) (Session, error)
}

// StreamOptions configures a session.
type StreamOptions struct {
	Language   types.Language // Requested language; the provider maps it to its own code
	SampleRate int            // PCM sample rate in Hz (default 16000)
	Encoding   string         // Raw audio encoding (default linear PCM s16le)
	Interim    bool           // Ask for interim (non-final) results
}

// Session is one live transcription stream. Callers own it exclusively and
// must call Close on every exit path.
type Session interface {
	// SendAudio forwards one chunk of raw audio.
	SendAudio(pcm []byte) error

	// Results yields transcript updates. It is closed when the session ends.
	Results() <-chan Result

	// CloseSend tells the provider no more audio is coming so it can flush
	// final results before ending the stream.
	CloseSend() error

	// Close tears the session down immediately.
	Close() error

	// Err returns the error that ended the stream, if any.
	Err() error
}

// Result is a transcript update.
type Result struct {
	Text       string  // Transcript for the current segment
	IsFinal    bool    // True once the segment will not change
	Confidence float64 // Provider confidence, 0 when unreported
}

// Token is a short-lived credential a client can use to open a session
// without holding the long-lived API key.
type Token struct {
	Provider  string    `json:"provider"`
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer mints short-lived client tokens.
type TokenIssuer interface {
	IssueToken(ctx context.Context, ttl time.Duration) (*Token, error)
}

// TokenSource supplies a client token when a session is opened.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

func defaultSampleRate(rate int) int {
	if rate <= 0 {
		return 16000
	}
	return rate
}
