// Package gate implements the speech gate: the state machine that decides,
// one chunk at a time, when a recording starts and when it ends.
//
// The gate is fed the elapsed time since listening began and a speech/silence
// decision for each chunk (see [IsSpeech]). It never touches audio itself;
// the capture loop appends chunks when a [Step] says so.
//
//	LISTENING ──speech──▶ RECORDING ──silence ≥ d && len ≥ min──▶ STOPPED
//	    │                     │
//	    ├─ >10s ─▶ NO_SPEECH  └─ > max ─▶ TIMED_OUT
//	    └─ > max ─▶ NO_SPEECH
package gate

import (
	"time"

	"github.com/MrWong99/earshot/internal/sensitivity"
	"github.com/MrWong99/earshot/pkg/audio"
)

const (
	// NoSpeechGrace is how long the gate listens without hearing speech
	// before giving up.
	NoSpeechGrace = 10 * time.Second

	// DefaultMaxDuration bounds a whole capture when no maximum is given.
	DefaultMaxDuration = 30 * time.Second

	// ambientWindow is the number of recent samples used for the ambient
	// noise estimate; the estimate only applies once the history holds more.
	ambientWindow = 20

	// ambientPercentile selects the low percentile taken as ambient noise.
	ambientPercentile = 10

	// ambientMargin scales the ambient estimate into a threshold.
	ambientMargin = 1.2

	// boostFactor: any smoothed volume above boostFactor*threshold is speech.
	boostFactor = 0.5
)

// State is a speech gate state.
type State int

const (
	// Listening is the initial state: waiting for speech onset.
	Listening State = iota
	// Recording means speech was heard and chunks are being kept.
	Recording
	// Stopped is terminal: an utterance was captured.
	Stopped
	// NoSpeech is terminal: nothing was captured.
	NoSpeech
	// TimedOut is terminal: the maximum duration elapsed while recording.
	TimedOut
)

// String returns the lower-case event name of the state.
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	case NoSpeech:
		return "no_speech"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Stopped || s == NoSpeech || s == TimedOut
}

// AdjustedThreshold returns the ambient-adjusted threshold for base. Once the
// history holds more than 20 samples, the 10th percentile of the last 20 is
// taken as ambient noise and the threshold becomes max(base, ambient*1.2).
func AdjustedThreshold(base float64, h *audio.History) float64 {
	if h == nil || h.Len() <= ambientWindow {
		return base
	}
	ambient := audio.Percentile(h.Last(ambientWindow), ambientPercentile)
	return max(base, ambient*ambientMargin)
}

// IsSpeech classifies a smoothed volume. A value above half of base is always
// speech; otherwise it must reach the ambient-adjusted threshold.
//
// The adjusted threshold is never below base, so the first rule dominates:
// the ambient adjustment cannot reject a chunk the boost rule accepted.
func IsSpeech(base, smoothed float64, h *audio.History) bool {
	if smoothed > base*boostFactor {
		return true
	}
	return smoothed >= AdjustedThreshold(base, h)
}

// Step is the outcome of feeding one chunk to the gate.
type Step struct {
	// State after the chunk.
	State State

	// Append reports whether the chunk belongs to the recording.
	Append bool

	// Changed reports whether State differs from the state before the chunk.
	Changed bool
}

// Gate is the speech gate state machine. It is not safe for concurrent use;
// the capture loop owns it exclusively.
type Gate struct {
	profile     sensitivity.Profile
	maxDuration time.Duration

	state          State
	recordingStart time.Duration
	silenceStart   time.Duration
	inSilence      bool
}

// New returns a gate in the [Listening] state. A non-positive maxDuration is
// replaced by [DefaultMaxDuration].
func New(p sensitivity.Profile, maxDuration time.Duration) *Gate {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Gate{profile: p, maxDuration: maxDuration}
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// Profile returns the profile the gate was built with.
func (g *Gate) Profile() sensitivity.Profile { return g.profile }

// RecordingStart returns the elapsed time at which recording began. It is
// only meaningful once the gate has left [Listening].
func (g *Gate) RecordingStart() time.Duration { return g.recordingStart }

// Step advances the gate by one chunk. elapsed is the time since listening
// began, measured when the chunk was read; speech is the chunk's
// classification. Steps after a terminal state are no-ops.
func (g *Gate) Step(elapsed time.Duration, speech bool) Step {
	if g.state.Terminal() {
		return Step{State: g.state}
	}

	if elapsed > g.maxDuration {
		return g.expire()
	}

	switch g.state {
	case Listening:
		if speech {
			g.recordingStart = elapsed
			g.inSilence = false
			return g.enter(Recording, true)
		}
		if elapsed > NoSpeechGrace {
			return g.enter(NoSpeech, false)
		}
		return Step{State: Listening}

	default: // Recording
		if speech {
			g.inSilence = false
			return Step{State: Recording, Append: true}
		}
		if !g.inSilence {
			g.inSilence = true
			g.silenceStart = elapsed
		}
		if elapsed-g.silenceStart >= g.profile.SilenceDuration &&
			elapsed-g.recordingStart >= g.profile.MinRecording {
			return g.enter(Stopped, true)
		}
		return Step{State: Recording, Append: true}
	}
}

// Expire applies only the time limits at elapsed, for a read that delivered
// no chunk. It ends a capture whose device keeps failing transiently the
// same way [Gate.Step] would: past the maximum duration, or past the
// no-speech grace while still listening.
func (g *Gate) Expire(elapsed time.Duration) Step {
	if g.state.Terminal() {
		return Step{State: g.state}
	}
	if elapsed > g.maxDuration || (g.state == Listening && elapsed > NoSpeechGrace) {
		return g.expire()
	}
	return Step{State: g.state}
}

func (g *Gate) expire() Step {
	if g.state == Recording {
		return g.enter(TimedOut, false)
	}
	return g.enter(NoSpeech, false)
}

func (g *Gate) enter(s State, appendChunk bool) Step {
	g.state = s
	return Step{State: s, Append: appendChunk, Changed: true}
}
