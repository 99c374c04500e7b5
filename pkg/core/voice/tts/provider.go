// Package tts provides text-to-speech functionality.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to a complete audio clip.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string         // Voice identifier; providers fall back to their configured default
	Language   types.Language // Requested language
	Format     string         // Output format: "mp3", "wav", or "pcm"
	SampleRate int            // Sample rate: 8000, 16000, 22050, 24000, 44100
	Speed      float64        // Speed multiplier, 0 leaves the provider default
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio    []byte // Audio data
	Format   string // Audio format
	Provider string // Provider that produced the audio
}

// ContentType returns the MIME type for the audio format.
func (s *Synthesis) ContentType() string {
	switch s.Format {
	case "mp3":
		return "audio/mpeg"
	case "pcm", "raw":
		return "audio/L16"
	default:
		return "audio/wav"
	}
}

func getFormat(format string) string {
	switch format {
	case "mp3", "pcm", "raw", "wav":
		return format
	default:
		return "mp3"
	}
}

// readError maps a non-2xx provider response onto the core taxonomy.
func readError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return core.FromHTTPStatus(provider, resp.StatusCode, msg)
}

func readAudio(provider string, resp *http.Response, format string) (*Synthesis, error) {
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError(provider, fmt.Errorf("read audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, core.NewMalformedError(provider, "empty audio")
	}
	return &Synthesis{Audio: audio, Format: format, Provider: provider}, nil
}
