// Package capture runs one utterance capture: it owns the microphone stream
// for the duration of [Loop.Run], feeds every chunk through the volume
// analyzer and the speech gate, and accumulates the chunks of the recording.
//
// A Loop is synchronous. Run blocks on device reads and returns when the
// gate reaches a terminal state. There is no cancellation signal; every
// capture ends by the gate's time limits (the no-speech grace period and the
// maximum duration).
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/earshot/internal/gate"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/sensitivity"
	"github.com/MrWong99/earshot/pkg/audio"
)

// Result is the outcome of one capture.
type Result struct {
	// State is the terminal gate state: Stopped, TimedOut or NoSpeech.
	State gate.State

	// Audio is the concatenated PCM of every recorded chunk. It is empty for
	// NoSpeech and owned by the caller.
	Audio []byte

	// Format of Audio.
	Format audio.Format

	// Chunks is the number of chunks in Audio.
	Chunks int

	// Elapsed is the wall time from listening start to the terminal state.
	Elapsed time.Duration

	// Profile is the sensitivity profile the capture ran with.
	Profile sensitivity.Profile
}

// HasAudio reports whether the result carries an utterance to transcribe.
func (r *Result) HasAudio() bool { return r != nil && len(r.Audio) > 0 }

// Duration returns the playback length of Audio.
func (r *Result) Duration() time.Duration {
	if r == nil {
		return 0
	}
	return r.Format.Duration(len(r.Audio))
}

// Option is a functional option for configuring a Loop.
type Option func(*Loop)

// WithStreamConfig sets the stream format and chunk size. Zero fields fall
// back to 16 kHz mono and 1024 samples per chunk.
func WithStreamConfig(cfg audio.StreamConfig) Option {
	return func(l *Loop) { l.cfg = cfg }
}

// WithHooks sets the observer callbacks.
func WithHooks(h *Hooks) Option {
	return func(l *Loop) { l.hooks = h }
}

// WithClock replaces time.Now as the source of chunk timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// Loop captures one utterance per call to Run. A Loop must not run
// concurrently with itself; at most one session is active at a time.
type Loop struct {
	device  audio.Device
	cfg     audio.StreamConfig
	hooks   *Hooks
	now     func() time.Time
	metrics *observe.Metrics
}

// New returns a Loop that captures from device.
func New(device audio.Device, opts ...Option) *Loop {
	l := &Loop{device: device, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	l.cfg = l.cfg.WithDefaults()
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// session accumulates the chunks of one recording. It is owned by Run.
type session struct {
	chunks [][]byte
}

func (s *session) append(pcm []byte) {
	s.chunks = append(s.chunks, pcm)
}

// bytes returns the concatenated audio and releases the chunks.
func (s *session) bytes() []byte {
	out := bytes.Join(s.chunks, nil)
	s.chunks = nil
	return out
}

// Run opens the device and captures until the speech gate reaches a terminal
// state. maxDuration bounds the whole capture; zero selects
// [gate.DefaultMaxDuration].
//
// An invalid profile or negative duration is rejected before the device is
// opened. Device open failures and read errors other than [audio.ErrOverflow]
// abort the capture; no partial audio is returned with an error. The stream is
// closed on every return path.
func (l *Loop) Run(profile sensitivity.Profile, maxDuration time.Duration) (*Result, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if maxDuration < 0 {
		return nil, fmt.Errorf("capture: max duration %s must not be negative", maxDuration)
	}
	if maxDuration == 0 {
		maxDuration = gate.DefaultMaxDuration
	}

	ctx := context.Background()
	stream, err := l.device.Open(l.cfg)
	if err != nil {
		l.metrics.RecordCapture(ctx, "error", 0)
		return nil, fmt.Errorf("capture: open device: %w", err)
	}
	l.metrics.ActiveCaptures.Add(ctx, 1)
	defer func() {
		l.metrics.ActiveCaptures.Add(ctx, -1)
		if cerr := stream.Close(); cerr != nil {
			slog.Warn("capture: failed to close stream", "err", cerr)
		}
	}()

	res, err := l.capture(stream, profile, maxDuration)
	if err != nil {
		l.metrics.RecordCapture(ctx, "error", 0)
		return nil, err
	}
	l.metrics.RecordCapture(ctx, res.State.String(), res.Duration())
	return res, nil
}

func (l *Loop) capture(stream audio.Stream, profile sensitivity.Profile, maxDuration time.Duration) (*Result, error) {
	analyzer := audio.NewAnalyzer()
	g := gate.New(profile, maxDuration)
	start := l.now()
	var sess *session

	l.emit(EventListening, start, 0, profile)
	slog.Debug("capture: listening", "profile", profile.Name, "max_duration", maxDuration)

	for {
		chunk, err := stream.Read()
		if err != nil {
			if !errors.Is(err, audio.ErrOverflow) {
				return nil, fmt.Errorf("capture: read: %w", err)
			}
			slog.Warn("capture: input overflow, retrying read", "err", err, "state", g.State())
			l.metrics.Overflows.Add(context.Background(), 1)

			now := l.now()
			elapsed := now.Sub(start)
			if step := g.Expire(elapsed); step.Changed {
				l.emit(eventFor(step.State), now, elapsed, profile)
				slog.Debug("capture: state changed", "state", step.State, "elapsed", elapsed, "cause", "overflow")
				return l.result(step.State, sess, elapsed, profile), nil
			}
			continue
		}

		now := l.now()
		elapsed := now.Sub(start)
		raw, smoothed := analyzer.Analyze(chunk.Data)
		l.hooks.Volume(raw)

		step := g.Step(elapsed, gate.IsSpeech(profile.Threshold, smoothed, analyzer.History()))
		if step.Changed && step.State == gate.Recording {
			sess = &session{}
		}
		if step.Append {
			sess.append(chunk.Data)
		}
		if step.Changed {
			l.emit(eventFor(step.State), now, elapsed, profile)
			slog.Debug("capture: state changed", "state", step.State, "elapsed", elapsed, "volume", smoothed)
		}
		if step.State.Terminal() {
			return l.result(step.State, sess, elapsed, profile), nil
		}
	}
}

func (l *Loop) result(state gate.State, sess *session, elapsed time.Duration, p sensitivity.Profile) *Result {
	res := &Result{
		State:   state,
		Format:  l.cfg.Format,
		Elapsed: elapsed,
		Profile: p,
	}
	if sess != nil {
		res.Chunks = len(sess.chunks)
		res.Audio = sess.bytes()
	}
	return res
}

func (l *Loop) emit(kind EventKind, at time.Time, elapsed time.Duration, p sensitivity.Profile) {
	l.hooks.Emit(Event{Kind: kind, At: at, Elapsed: elapsed, Profile: p.Name})
}
