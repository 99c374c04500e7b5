package capture

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/core/voice/tts"
)

// Synthesizer produces reply audio. RemoteAssistant implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang types.Language) (*tts.Synthesis, error)
}

// Player plays one clip and returns when it finishes or ctx is canceled.
type Player interface {
	Play(ctx context.Context, clip *tts.Synthesis) error
}

// RemoteSpeaker plays server-synthesized audio and falls back to a local
// speaker when the server cannot synthesize.
type RemoteSpeaker struct {
	synth  Synthesizer
	player Player
	local  Speaker
	logger *slog.Logger
}

// NewRemoteSpeaker creates a RemoteSpeaker. local may be nil, in which case
// synthesis failures are returned to the caller.
func NewRemoteSpeaker(synth Synthesizer, player Player, local Speaker, logger *slog.Logger) *RemoteSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteSpeaker{synth: synth, player: player, local: local, logger: logger}
}

// Speak implements Speaker.
func (s *RemoteSpeaker) Speak(ctx context.Context, text string, lang types.Language) error {
	clip, err := s.synth.Synthesize(ctx, text, lang)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.local == nil {
			return err
		}
		if !errors.Is(err, ErrUseLocalSynthesis) {
			s.logger.Warn("remote synthesis failed, speaking locally", "error", err)
		}
		return s.local.Speak(ctx, text, lang)
	}
	return s.player.Play(ctx, clip)
}
