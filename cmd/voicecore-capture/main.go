// Command voicecore-capture is a terminal client for the voice assistant:
// press Enter to speak, Enter again to send, or type a question.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kisansetu/voicecore/pkg/capture"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/core/voice/stt"
)

const (
	defaultBaseURL = "http://127.0.0.1:8080"
	defaultTimeout = 30 * time.Second
)

type captureConfig struct {
	BaseURL  string
	APIKey   string
	FarmerID string
	Language types.Language
	Timeout  time.Duration
	NoAudio  bool
	Verbose  bool
}

func parseCaptureConfig(args []string, getenv func(string) string) (captureConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := captureConfig{}
	var lang string
	fs := flag.NewFlagSet("voicecore-capture", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", envOr(getenv, "VOICECORE_BASE_URL", defaultBaseURL), "voicecore gateway base URL")
	fs.StringVar(&cfg.APIKey, "api-key", strings.TrimSpace(getenv("VOICECORE_API_KEY")), "optional gateway api key")
	fs.StringVar(&cfg.FarmerID, "farmer", strings.TrimSpace(getenv("VOICECORE_FARMER_ID")), "farmer id to ask as")
	fs.StringVar(&lang, "lang", envOr(getenv, "VOICECORE_LANGUAGE", string(types.DefaultLanguage)), "hi, en or mr")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-request timeout")
	fs.BoolVar(&cfg.NoAudio, "no-audio", false, "typed input and text replies only")
	fs.BoolVar(&cfg.Verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return captureConfig{}, err
	}

	l, ok := types.ParseLanguage(lang)
	if !ok {
		return captureConfig{}, fmt.Errorf("unsupported language %q", lang)
	}
	cfg.Language = l
	if err := validateCaptureConfig(cfg); err != nil {
		return captureConfig{}, err
	}
	return cfg, nil
}

func validateCaptureConfig(cfg captureConfig) error {
	if strings.TrimSpace(cfg.FarmerID) == "" {
		return errors.New("farmer id is required (set --farmer or VOICECORE_FARMER_ID)")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

// silentSpeaker stands in for on-device synthesis. Replies are already
// printed by OnReply.
type silentSpeaker struct {
	out io.Writer
}

func (s silentSpeaker) Speak(ctx context.Context, text string, lang types.Language) error {
	_, err := fmt.Fprintln(s.out, "(audio unavailable, reply shown as text)")
	return err
}

// session wires a capture controller to the terminal.
type session struct {
	ctrl *capture.Controller
	out  io.Writer
}

func (s *session) handle(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		s.toggle(ctx)
	case line == "/quit" || line == "/exit":
		return true
	case line == "/cancel":
		if err := s.ctrl.Cancel(); err != nil {
			fmt.Fprintf(s.out, "cancel: %v\n", err)
		}
	case strings.HasPrefix(line, "/lang"):
		raw := strings.TrimSpace(strings.TrimPrefix(line, "/lang"))
		l, ok := types.ParseLanguage(raw)
		if !ok {
			fmt.Fprintf(s.out, "unsupported language %q\n", raw)
			return false
		}
		s.ctrl.SetLanguage(l)
		fmt.Fprintf(s.out, "language: %s\n", l.DisplayName())
	default:
		s.report(s.ctrl.SubmitText(ctx, line))
	}
	return false
}

func (s *session) toggle(ctx context.Context) {
	if s.ctrl.State() == capture.StateListening {
		s.report(s.ctrl.Stop(ctx))
		return
	}
	err := s.ctrl.Start(ctx)
	switch {
	case err == nil:
		fmt.Fprintln(s.out, "listening... press Enter to send")
	case errors.Is(err, capture.ErrTypeInstead), errors.Is(err, capture.ErrNoMicrophone):
		fmt.Fprintln(s.out, "voice input unavailable, type your question instead")
	default:
		fmt.Fprintf(s.out, "start: %v\n", err)
	}
}

func (s *session) report(resp *types.AskResponse, err error) {
	switch {
	case err == nil:
		if resp.Degraded {
			fmt.Fprintln(s.out, "(fallback reply)")
		}
	case errors.Is(err, capture.ErrNoSpeech):
		fmt.Fprintln(s.out, "no speech heard, try again")
	default:
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	cfg, err := parseCaptureConfig(args, os.Getenv)
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	opts := []capture.RemoteOption{capture.WithRequestTimeout(cfg.Timeout)}
	if cfg.APIKey != "" {
		opts = append(opts, capture.WithAPIKey(cfg.APIKey))
	}
	remote := capture.NewRemoteAssistant(cfg.BaseURL, opts...)
	ccfg := capture.Config{
		FarmerID:  cfg.FarmerID,
		Language:  cfg.Language,
		Assistant: remote,
		Logger:    logger,
		OnReply: func(r *types.AskResponse) {
			fmt.Fprintf(out, "[%s] %s\n", r.Language, r.Reply)
		},
		OnTranscript: func(final, interim string) {
			if cfg.Verbose {
				fmt.Fprintf(errOut, "\r%s %s", final, interim)
			}
		},
	}
	if !cfg.NoAudio {
		mic, err := newMalgoMicrophone()
		if err != nil {
			logger.Warn("microphone unavailable, typed input only", "error", err)
		} else {
			defer mic.Close()
			ccfg.Microphone = mic
			ccfg.Recognizer = stt.NewDeepgramWithTokenSource(remote)
		}
		ccfg.Speaker = capture.NewRemoteSpeaker(remote, &otoPlayer{}, silentSpeaker{out: out}, logger)
	}

	ctrl, err := capture.New(ccfg)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	s := &session{ctrl: ctrl, out: out}
	fmt.Fprintf(out, "voicecore capture (%s). Enter to speak, type to ask, /lang hi|en|mr, /cancel, /quit\n", cfg.Language.DisplayName())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || s.handle(ctx, line) {
				return nil
			}
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voicecore-capture: load .env: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "voicecore-capture: %v\n", err)
		os.Exit(1)
	}
}
