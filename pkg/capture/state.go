// Package capture is the client side of a spoken exchange: it owns the
// microphone and a streaming recognizer, hands the finished transcript to
// the assistant, and plays the reply.
package capture

import (
	"errors"

	"github.com/kisansetu/voicecore/pkg/core"
)

// State of a Controller. Exactly one is active at a time.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Guidance errors. They describe what the user should do next and leave the
// controller idle and usable.
var (
	// ErrTypeInstead means no recognizer could be opened. SubmitText still works.
	ErrTypeInstead = &core.Error{Type: core.ErrTypeInstead, Message: "speech recognition unavailable, type your question instead"}

	// ErrNoMicrophone means the microphone could not be opened or permission was denied.
	ErrNoMicrophone = &core.Error{Type: core.ErrNoMicrophone, Message: "microphone unavailable"}

	// ErrNoSpeech means the capture ended without any recognized words.
	ErrNoSpeech = &core.Error{Type: core.ErrNoSpeech, Message: "no speech detected"}
)

var (
	// ErrBusy is returned while a reply is being fetched.
	ErrBusy = errors.New("capture: busy processing")

	// ErrNotListening is returned by Stop when no capture is active.
	ErrNotListening = errors.New("capture: not listening")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture: controller closed")
)
