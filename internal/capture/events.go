package capture

import (
	"time"

	"github.com/MrWong99/earshot/internal/gate"
)

// EventKind names a lifecycle event of one utterance.
type EventKind int

const (
	// EventListening is emitted when the stream is open and the gate starts
	// listening.
	EventListening EventKind = iota
	// EventRecording is emitted on speech onset.
	EventRecording
	// EventStopped is emitted when trailing silence ends a recording.
	EventStopped
	// EventTimedOut is emitted when the maximum duration ends a recording.
	EventTimedOut
	// EventNoSpeech is emitted when nothing was captured.
	EventNoSpeech
	// EventProcessing is emitted by the caller when the captured audio is
	// handed to transcription.
	EventProcessing

	numEventKinds
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventListening:
		return "listening"
	case EventRecording:
		return "recording"
	case EventStopped:
		return "stopped"
	case EventTimedOut:
		return "timed_out"
	case EventNoSpeech:
		return "no_speech"
	case EventProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// eventFor maps a gate state entry to its event.
func eventFor(s gate.State) EventKind {
	switch s {
	case gate.Recording:
		return EventRecording
	case gate.Stopped:
		return EventStopped
	case gate.TimedOut:
		return EventTimedOut
	case gate.NoSpeech:
		return EventNoSpeech
	default:
		return EventListening
	}
}

// Event is delivered to a registered handler.
type Event struct {
	Kind EventKind

	// At is the wall-clock time of the transition.
	At time.Time

	// Elapsed is the time since listening began.
	Elapsed time.Duration

	// Profile is the name of the sensitivity profile in use.
	Profile string
}

// Hooks holds the optional observer callbacks of a capture: one volume
// handler and at most one handler per [EventKind]. Handlers run
// synchronously on the capture goroutine and must not block; they cannot
// influence control flow.
//
// A nil *Hooks is valid and has no handlers. Hooks must be fully configured
// before it is passed to a [Loop].
type Hooks struct {
	volume   func(float64)
	handlers [numEventKinds]func(Event)
}

// OnVolume registers fn to receive the raw volume of every chunk, replacing
// any previous volume handler. A nil fn removes it.
func (h *Hooks) OnVolume(fn func(volume float64)) *Hooks {
	h.volume = fn
	return h
}

// On registers fn for kind, replacing any previous handler for that kind.
// A nil fn removes it. Unknown kinds are ignored.
func (h *Hooks) On(kind EventKind, fn func(Event)) *Hooks {
	if kind >= 0 && kind < numEventKinds {
		h.handlers[kind] = fn
	}
	return h
}

// Volume delivers v to the volume handler, if any.
func (h *Hooks) Volume(v float64) {
	if h == nil || h.volume == nil {
		return
	}
	h.volume(v)
}

// Emit delivers e to the handler registered for e.Kind, if any.
func (h *Hooks) Emit(e Event) {
	if h == nil || e.Kind < 0 || e.Kind >= numEventKinds {
		return
	}
	if fn := h.handlers[e.Kind]; fn != nil {
		fn(e)
	}
}
