// Package stt defines the Provider interface for speech-to-text backends.
//
// A Provider turns one finished utterance, persisted as a WAV file, into a
// Transcript. Capture and silence detection happen upstream; providers never
// see live audio.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation: the dispatcher abandons a call at its timeout and cancels the
// context, and a well-behaved provider returns promptly after that.
//
// Example:
//
//	tr, err := p.Transcribe(ctx, stt.Request{AudioPath: "utterance.wav", Language: "en"})
//	if err != nil { ... }
//	fmt.Println(tr.Text)
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedTask is returned by providers that cannot run the requested
// [Task].
var ErrUnsupportedTask = errors.New("stt: unsupported task")

// Task selects what a provider does with the audio.
type Task string

const (
	// TaskTranscribe produces text in the spoken language.
	TaskTranscribe Task = "transcribe"

	// TaskTranslate produces English text regardless of the spoken language.
	TaskTranslate Task = "translate"
)

// ParseTask maps a configuration value to a Task. The empty string selects
// [TaskTranscribe].
func ParseTask(s string) (Task, error) {
	switch Task(strings.ToLower(strings.TrimSpace(s))) {
	case "", TaskTranscribe:
		return TaskTranscribe, nil
	case TaskTranslate:
		return TaskTranslate, nil
	default:
		return "", fmt.Errorf("stt: unknown task %q", s)
	}
}

// Request describes one transcription call.
type Request struct {
	// AudioPath is the path of a mono 16-bit PCM WAV file. The caller owns the
	// file and removes it after Transcribe returns.
	AudioPath string

	// Language is a BCP-47 or ISO-639-1 hint (e.g. "en", "de"). Empty lets the
	// provider detect the language.
	Language string

	// SampleRate of the audio in Hz. Zero means read it from the WAV header.
	SampleRate int

	// Task defaults to [TaskTranscribe] when empty.
	Task Task
}

// Segment is a timed span of recognised text.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcript is the result of a successful transcription.
type Transcript struct {
	// Text is the full recognised text, unprocessed.
	Text string

	// Language is the language reported by the provider, if any.
	Language string

	// Confidence is in [0.0, 1.0]. Zero when the provider does not report one.
	Confidence float64

	// Segments are the timed spans that make up Text. Optional.
	Segments []Segment

	// Duration is the audio length reported by the provider. Optional.
	Duration time.Duration
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe recognises the speech in req.AudioPath. It returns an error
	// when the backend fails or ctx is done; an empty Text with a nil error
	// means the backend heard nothing.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}

// JoinSegments concatenates the trimmed, non-empty segment texts with single
// spaces.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Seconds converts a floating-point second count, as most APIs report it, to
// a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
