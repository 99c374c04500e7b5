package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	"github.com/hajimehoshi/go-mp3"

	"github.com/kisansetu/voicecore/pkg/core/voice/tts"
)

const micSampleRateHz = 16000

// malgoMicrophone implements capture.Microphone on the default input device.
type malgoMicrophone struct {
	ctx *malgo.AllocatedContext
}

func newMalgoMicrophone() (*malgoMicrophone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &malgoMicrophone{ctx: ctx}, nil
}

func (m *malgoMicrophone) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

// Open starts a 16kHz mono s16le capture. Reads block until samples arrive
// or the stream is closed.
func (m *malgoMicrophone) Open(ctx context.Context) (io.ReadCloser, error) {
	s := &micStream{}
	s.cond = sync.NewCond(&s.mu)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = micSampleRateHz
	cfg.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.mu.Lock()
			if !s.closed {
				s.buf = append(s.buf, input...)
			}
			s.mu.Unlock()
			s.cond.Signal()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	s.device = device
	return s, nil
}

type micStream struct {
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func (s *micStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *micStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	_ = s.device.Stop()
	s.device.Uninit()
	return nil
}

// otoPlayer implements capture.Player for mp3 clips. oto allows one context
// per process, so it is created on the first clip with that clip's rate.
type otoPlayer struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
}

func (p *otoPlayer) context(sampleRate int) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		if sampleRate != p.sampleRate {
			return nil, fmt.Errorf("clip sample rate %d differs from output rate %d", sampleRate, p.sampleRate)
		}
		return p.ctx, nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	p.ctx, p.sampleRate = ctx, sampleRate
	return ctx, nil
}

// Play decodes and plays clip, returning early when ctx is canceled.
func (p *otoPlayer) Play(ctx context.Context, clip *tts.Synthesis) error {
	if clip == nil || len(clip.Audio) == 0 {
		return nil
	}
	if clip.Format != "mp3" {
		return fmt.Errorf("unsupported clip format %q", clip.Format)
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(clip.Audio))
	if err != nil {
		return fmt.Errorf("decode mp3: %w", err)
	}
	octx, err := p.context(dec.SampleRate())
	if err != nil {
		return err
	}
	player := octx.NewPlayer(dec)
	defer player.Close()
	player.Play()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	if err := player.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}
