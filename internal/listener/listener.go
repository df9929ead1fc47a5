// Package listener turns captured utterances into text.
//
// A [Listener] runs one capture, hands the audio to the transcription
// dispatcher and journals the outcome. [Listener.Serve] repeats this until
// its context is done. The context is only checked between utterances; a
// capture in progress always runs to its terminal state.
package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/earshot/internal/capture"
	"github.com/MrWong99/earshot/internal/dispatch"
	"github.com/MrWong99/earshot/internal/gate"
	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/sensitivity"
	"github.com/MrWong99/earshot/internal/transcript"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// Transcriber submits an utterance for transcription. It is implemented by
// [dispatch.Dispatcher].
type Transcriber interface {
	Submit(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Settings are read at the start of every utterance.
type Settings struct {
	// Profile is the sensitivity profile for the capture.
	Profile sensitivity.Profile

	// MaxDuration bounds the capture. Zero selects the gate default.
	MaxDuration time.Duration

	// Language is an optional hint for the speech engine.
	Language string

	// Task overrides the dispatcher's default task when set.
	Task stt.Task
}

// Outcome is the result of one utterance.
type Outcome struct {
	// ID identifies the utterance in logs and the journal.
	ID uuid.UUID

	// StartedAt is when listening began.
	StartedAt time.Time

	// State is the terminal capture state.
	State gate.State

	// Text is the processed transcription. It is empty for no speech, a
	// failed or timed-out transcription, and nonsense.
	Text string

	// Raw is the provider's unprocessed output.
	Raw string

	// Corrections lists vocabulary fixes applied to Text.
	Corrections []transcript.Correction

	// Keywords are the topic words of Text.
	Keywords []string

	// AudioDuration is the length of the captured audio.
	AudioDuration time.Duration

	// Latency is the time spent in transcription.
	Latency time.Duration

	// TimedOut is true when the transcription was abandoned.
	TimedOut bool

	// Err is the transcription error, if any. It is informational; Listen
	// does not return it.
	Err error
}

// Option is a functional option for configuring a Listener.
type Option func(*Listener)

// WithHooks sets the hooks that receive the processing event. Pass the same
// Hooks given to the capture loop.
func WithHooks(h *capture.Hooks) Option {
	return func(l *Listener) { l.hooks = h }
}

// WithJournal sets the sink that records every transcribed utterance.
func WithJournal(j journal.Sink) Option {
	return func(l *Listener) { l.journal = j }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

// Listener captures and transcribes utterances one at a time.
type Listener struct {
	loop        *capture.Loop
	transcriber Transcriber
	hooks       *capture.Hooks
	journal     journal.Sink
	metrics     *observe.Metrics
	now         func() time.Time
}

// New returns a Listener over loop and transcriber.
func New(loop *capture.Loop, transcriber Transcriber, opts ...Option) *Listener {
	l := &Listener{loop: loop, transcriber: transcriber, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Listen captures one utterance and transcribes it.
//
// When nothing was said the outcome carries only the NoSpeech state and the
// transcriber is not invoked. Transcription failures and timeouts yield an
// outcome with empty text. Only capture errors (device or configuration) are
// returned.
func (l *Listener) Listen(ctx context.Context, s Settings) (Outcome, error) {
	out := Outcome{ID: uuid.New(), StartedAt: l.now()}
	ctx, span := observe.StartUtteranceSpan(ctx, out.ID.String(), s.Profile.Name)
	defer span.End()
	log := observe.Logger(ctx).With("utterance", out.ID)

	res, err := l.loop.Run(s.Profile, s.MaxDuration)
	if err != nil {
		return Outcome{}, fmt.Errorf("listener: %w", err)
	}
	out.State = res.State
	span.SetAttributes(observe.AttrCaptureState.String(res.State.String()))
	if !res.HasAudio() {
		log.Debug("listener: no speech detected", "profile", s.Profile.Name, "elapsed", res.Elapsed)
		return out, nil
	}
	out.AudioDuration = res.Duration()

	l.hooks.Emit(capture.Event{
		Kind:    capture.EventProcessing,
		At:      l.now(),
		Elapsed: res.Elapsed,
		Profile: s.Profile.Name,
	})
	log.Debug("listener: transcribing", "state", res.State, "audio", out.AudioDuration)

	r := l.transcriber.Submit(ctx, dispatch.Request{
		Audio:    res.Audio,
		Format:   res.Format,
		Language: s.Language,
		Task:     s.Task,
	})
	out.Text = r.Text
	out.Raw = r.Raw
	out.Corrections = r.Corrections
	out.Keywords = r.Keywords
	out.Latency = r.Latency
	out.TimedOut = r.TimedOut
	out.Err = r.Err
	if r.Err != nil {
		log.Warn("listener: transcription failed", "err", r.Err)
	}

	l.record(ctx, s.Profile.Name, out)
	return out, nil
}

// Serve calls Listen until ctx is done and passes every outcome to onResult.
// settings is called before each utterance so configuration changes apply
// from the next one. Serve returns nil when ctx ends and the first capture
// error otherwise.
func (l *Listener) Serve(ctx context.Context, settings func() Settings, onResult func(Outcome)) error {
	// The utterance in progress completes even after ctx is cancelled.
	uctx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		out, err := l.Listen(uctx, settings())
		if err != nil {
			return err
		}
		if onResult != nil {
			onResult(out)
		}
	}
}

func (l *Listener) record(ctx context.Context, profile string, out Outcome) {
	if l.journal == nil {
		return
	}
	e := journal.Entry{
		ID:            out.ID,
		StartedAt:     out.StartedAt,
		Profile:       profile,
		State:         out.State.String(),
		Text:          out.Text,
		Raw:           out.Raw,
		Keywords:      out.Keywords,
		AudioDuration: out.AudioDuration,
		Latency:       out.Latency,
		TimedOut:      out.TimedOut,
		TraceID:       observe.CorrelationID(ctx),
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if err := l.journal.Record(ctx, e); err != nil {
		l.metrics.JournalErrors.Add(ctx, 1)
		observe.Logger(ctx).Warn("listener: failed to journal utterance", "utterance", out.ID, "err", err)
	}
}
