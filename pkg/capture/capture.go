package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kisansetu/voicecore/pkg/core"
	"github.com/kisansetu/voicecore/pkg/core/fallback"
	"github.com/kisansetu/voicecore/pkg/core/types"
	"github.com/kisansetu/voicecore/pkg/core/voice/stt"
)

const (
	DefaultOpenTimeout  = 5 * time.Second
	DefaultDrainTimeout = 2 * time.Second
	DefaultSampleRate   = 16000

	// 100ms of 16-bit mono audio at 16kHz.
	defaultChunkBytes = 3200
)

// Microphone opens a raw PCM capture stream (signed 16-bit little endian,
// mono). Closing the reader releases the device and unblocks pending reads.
type Microphone interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// LocalRecognizer is the on-device recognizer used when no streaming
// provider can be reached. It receives the locale tag (hi-IN, en-IN, mr-IN)
// through StreamOptions.Language.Locale().
type LocalRecognizer interface {
	stt.Provider
}

// Assistant answers a transcript. RemoteAssistant is the HTTP implementation.
type Assistant interface {
	Ask(ctx context.Context, req *types.AskRequest) (*types.AskResponse, error)
}

// Speaker plays reply text. It must return promptly once ctx is canceled.
type Speaker interface {
	Speak(ctx context.Context, text string, lang types.Language) error
}

// Config configures a Controller.
type Config struct {
	FarmerID string
	Language types.Language

	Microphone Microphone
	Recognizer stt.Provider    // primary streaming recognizer, may be nil
	Local      LocalRecognizer // may be nil
	Assistant  Assistant
	Speaker    Speaker // may be nil for text-only clients

	OpenTimeout  time.Duration // primary open budget, default 5s
	DrainTimeout time.Duration // wait for final results after CloseSend, default 2s
	SampleRate   int

	// OnTranscript, when set, receives every recognizer update.
	OnTranscript func(final, interim string)
	// OnReply, when set, receives each answer before it is spoken.
	OnReply func(*types.AskResponse)

	Observer fallback.Observer
	Logger   *slog.Logger
}

// Controller runs the idle → listening → processing → speaking → idle cycle.
// It is safe for concurrent use; Cancel may be called from any goroutine.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	chain  *fallback.Chain[stt.Session]

	mu          sync.Mutex
	state       State
	closed      bool
	starting    bool // a Start is opening the microphone and recognizer
	active      *activeCapture
	speakCancel context.CancelFunc
	history     []types.ConversationTurn
}

type activeCapture struct {
	id         string
	recognizer string
	mic        io.ReadCloser
	session    stt.Session
	transcript *Transcript
	pumpDone   chan struct{}
	readDone   chan struct{}
}

// New creates a Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Assistant == nil {
		return nil, errors.New("capture: assistant is required")
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	cfg.Language = types.LanguageOr(string(cfg.Language), types.DefaultLanguage)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := []fallback.Option[stt.Session]{
		fallback.WithLogger[stt.Session](logger),
		fallback.WithAccept(func(s stt.Session) bool { return s != nil }),
	}
	if cfg.Observer != nil {
		opts = append(opts, fallback.WithObserver[stt.Session](cfg.Observer))
	}
	return &Controller{
		cfg:    cfg,
		logger: logger,
		chain:  fallback.New("stt", opts...),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the bounded conversation history.
func (c *Controller) History() []types.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ConversationTurn(nil), c.history...)
}

// SetLanguage changes the language used for recognition and replies.
func (c *Controller) SetLanguage(lang types.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Language = types.LanguageOr(string(lang), c.cfg.Language)
}

// Start opens the microphone and a recognizer and begins listening. A prior
// capture still listening is torn down first.
//
// When neither recognizer opens, Start returns an error matching
// ErrTypeInstead and the controller stays idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.starting {
		c.mu.Unlock()
		return ErrBusy
	}
	switch c.state {
	case StateProcessing, StateSpeaking:
		c.mu.Unlock()
		return ErrBusy
	}
	prior := c.active
	c.active = nil
	c.state = StateIdle
	c.starting = true
	lang := c.cfg.Language
	c.mu.Unlock()

	claimed := true
	defer func() {
		if claimed {
			c.mu.Lock()
			c.starting = false
			c.mu.Unlock()
		}
	}()

	if prior != nil {
		c.abort(prior)
	}

	if c.cfg.Microphone == nil {
		return ErrNoMicrophone
	}
	mic, err := c.cfg.Microphone.Open(ctx)
	if err != nil {
		c.logger.Warn("microphone unavailable", "error", err)
		return fmt.Errorf("%w: %w", ErrNoMicrophone, err)
	}

	res, err := c.chain.Run(ctx, c.recognizerSteps(lang))
	if err != nil {
		_ = mic.Close()
		if core.Classify(ctx, err) == core.ClassCanceled {
			return err
		}
		c.logger.Warn("no recognizer available, typed input only", "error", err)
		return fmt.Errorf("%w: %w", ErrTypeInstead, err)
	}

	ac := &activeCapture{
		id:         uuid.NewString(),
		recognizer: res.Step,
		mic:        mic,
		session:    res.Value,
		transcript: &Transcript{},
		pumpDone:   make(chan struct{}),
		readDone:   make(chan struct{}),
	}

	// Close or SubmitText may have run while the recognizer was opening.
	// Nothing reads from ac yet, so it is released without waiting.
	c.mu.Lock()
	c.starting = false
	claimed = false
	switch {
	case c.closed:
		c.mu.Unlock()
		ac.release()
		return ErrClosed
	case c.state != StateIdle:
		c.mu.Unlock()
		ac.release()
		return ErrBusy
	}
	c.active = ac
	c.state = StateListening
	c.mu.Unlock()

	go c.pump(ac)
	go c.collect(ac)

	c.logger.Info("capture started", "capture_id", ac.id, "recognizer", ac.recognizer, "language", string(lang))
	return nil
}

func (c *Controller) recognizerSteps(lang types.Language) []fallback.Step[stt.Session] {
	opts := stt.StreamOptions{
		Language:   lang,
		SampleRate: c.cfg.SampleRate,
		Interim:    true,
	}
	var steps []fallback.Step[stt.Session]
	if c.cfg.Recognizer != nil {
		p := c.cfg.Recognizer
		steps = append(steps, fallback.Step[stt.Session]{
			Name: p.Name(),
			Do: func(ctx context.Context) (stt.Session, error) {
				openCtx, cancel := context.WithTimeout(ctx, c.cfg.OpenTimeout)
				defer cancel()
				return openSession(openCtx, p, opts)
			},
		})
	}
	if c.cfg.Local != nil {
		p := c.cfg.Local
		steps = append(steps, fallback.Step[stt.Session]{
			Name: p.Name(),
			Do: func(ctx context.Context) (stt.Session, error) {
				return openSession(ctx, p, opts)
			},
		})
	}
	return steps
}

// openSession closes a session that finished opening after its caller gave up.
func openSession(ctx context.Context, p stt.Provider, opts stt.StreamOptions) (stt.Session, error) {
	s, err := p.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		_ = s.Close()
		return nil, core.NewTimeoutError(p.Name()+" open exceeded its budget", ctx.Err())
	}
	return s, nil
}

func (c *Controller) pump(ac *activeCapture) {
	defer close(ac.pumpDone)
	buf := make([]byte, defaultChunkBytes)
	for {
		n, err := ac.mic.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := ac.session.SendAudio(chunk); sendErr != nil {
				if !errors.Is(sendErr, stt.ErrSessionClosed) {
					c.logger.Warn("send audio failed", "capture_id", ac.id, "error", sendErr)
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("microphone read ended", "capture_id", ac.id, "error", err)
			}
			return
		}
	}
}

func (c *Controller) collect(ac *activeCapture) {
	defer close(ac.readDone)
	for r := range ac.session.Results() {
		ac.transcript.Add(r)
		if c.cfg.OnTranscript != nil {
			c.cfg.OnTranscript(ac.transcript.Final(), ac.transcript.Interim())
		}
	}
	if err := ac.session.Err(); err != nil {
		c.logger.Warn("recognizer stream ended with error", "capture_id", ac.id, "recognizer", ac.recognizer, "error", err)
	}
}

// finish stops the microphone, asks the recognizer to flush, waits up to
// DrainTimeout for the remaining results, then closes the session.
func (c *Controller) finish(ac *activeCapture) {
	_ = ac.mic.Close()
	<-ac.pumpDone
	if err := ac.session.CloseSend(); err != nil && !errors.Is(err, stt.ErrSessionClosed) {
		c.logger.Debug("close send failed", "capture_id", ac.id, "error", err)
	}

	timer := time.NewTimer(c.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-ac.readDone:
	case <-timer.C:
		c.logger.Debug("recognizer drain timed out", "capture_id", ac.id)
	}
	_ = ac.session.Close()
	<-ac.readDone
}

func (ac *activeCapture) release() {
	_ = ac.mic.Close()
	_ = ac.session.Close()
}

// abort releases a running capture without waiting for final results.
func (c *Controller) abort(ac *activeCapture) {
	ac.release()
	<-ac.pumpDone
	<-ac.readDone
}

// Stop ends listening and answers the transcript. An empty transcript
// returns ErrNoSpeech without calling the assistant.
func (c *Controller) Stop(ctx context.Context) (*types.AskResponse, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	switch c.state {
	case StateProcessing, StateSpeaking:
		c.mu.Unlock()
		return nil, ErrBusy
	case StateIdle:
		c.mu.Unlock()
		return nil, ErrNotListening
	}
	ac := c.active
	c.active = nil
	c.state = StateProcessing
	c.mu.Unlock()

	c.finish(ac)

	text := strings.TrimSpace(ac.transcript.Text())
	if text == "" {
		c.setState(StateIdle)
		c.logger.Info("capture ended without speech", "capture_id", ac.id)
		return nil, ErrNoSpeech
	}
	return c.respond(ctx, text)
}

// SubmitText answers typed input. It works in every mode, including when no
// recognizer is available. A capture still listening is discarded.
func (c *Controller) SubmitText(ctx context.Context, text string) (*types.AskResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	switch c.state {
	case StateProcessing, StateSpeaking:
		c.mu.Unlock()
		return nil, ErrBusy
	}
	ac := c.active
	c.active = nil
	c.state = StateProcessing
	c.mu.Unlock()

	if ac != nil {
		c.abort(ac)
	}
	return c.respond(ctx, text)
}

// respond runs in StateProcessing and always leaves the controller idle.
func (c *Controller) respond(ctx context.Context, text string) (*types.AskResponse, error) {
	c.mu.Lock()
	req := &types.AskRequest{
		FarmerID:   c.cfg.FarmerID,
		Transcript: text,
		Language:   c.cfg.Language,
		History:    append([]types.ConversationTurn(nil), c.history...),
	}
	c.mu.Unlock()

	resp, err := c.cfg.Assistant.Ask(ctx, req)
	if err != nil {
		c.setState(StateIdle)
		return nil, err
	}
	if resp.Language == "" {
		resp.Language = req.Language
	}

	c.mu.Lock()
	c.history = types.TrimHistory(append(c.history, resp.Turns(text)...))
	c.mu.Unlock()

	if c.cfg.OnReply != nil {
		c.cfg.OnReply(resp)
	}
	if c.cfg.Speaker == nil || strings.TrimSpace(resp.Reply) == "" {
		c.setState(StateIdle)
		return resp, nil
	}

	speakCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.state = StateIdle
		c.mu.Unlock()
		cancel()
		return resp, nil
	}
	c.state = StateSpeaking
	c.speakCancel = cancel
	c.mu.Unlock()

	err = c.cfg.Speaker.Speak(speakCtx, resp.Reply, resp.Language)
	interrupted := speakCtx.Err() != nil && ctx.Err() == nil
	cancel()

	c.mu.Lock()
	c.speakCancel = nil
	c.state = StateIdle
	c.mu.Unlock()

	if err != nil && !interrupted {
		c.logger.Warn("reply playback failed", "error", err)
	}
	return resp, nil
}

// Cancel interrupts listening or speaking and returns to idle. Listening is
// discarded without calling the assistant. It returns ErrBusy while a reply
// is being fetched.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	switch c.state {
	case StateProcessing:
		c.mu.Unlock()
		return ErrBusy
	case StateSpeaking:
		if c.speakCancel != nil {
			c.speakCancel()
		}
		c.mu.Unlock()
		return nil
	case StateListening:
		ac := c.active
		c.active = nil
		c.state = StateIdle
		c.mu.Unlock()
		if ac != nil {
			c.abort(ac)
			c.logger.Info("capture canceled", "capture_id", ac.id)
		}
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
}

// Close releases the microphone and recognizer and stops any playback.
// Later calls return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ac := c.active
	c.active = nil
	if c.speakCancel != nil {
		c.speakCancel()
	}
	if c.state == StateListening {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if ac != nil {
		c.abort(ac)
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
