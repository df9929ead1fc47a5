// Package journal records the outcome of every captured utterance.
//
// Recording is fire-and-forget from the caller's point of view: a [Sink]
// error is logged and counted by the listener but never changes what the
// listener returns.
package journal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one journaled utterance.
type Entry struct {
	// ID uniquely identifies the utterance.
	ID uuid.UUID

	// StartedAt is when listening began.
	StartedAt time.Time

	// Profile is the name of the sensitivity profile in use.
	Profile string

	// State is the terminal capture state (stopped, timed_out or no_speech).
	State string

	// Text is the processed transcription. Empty when nothing usable was heard.
	Text string

	// Raw is the provider's unprocessed output.
	Raw string

	// Keywords are the lower-cased topic words of Text.
	Keywords []string

	// AudioDuration is the playback length of the captured audio.
	AudioDuration time.Duration

	// Latency is the time spent waiting for the transcription.
	Latency time.Duration

	// TimedOut is true when the transcription was abandoned.
	TimedOut bool

	// Error holds the transcription error message, if any.
	Error string

	// TraceID links the entry to the utterance's trace. Empty when tracing
	// is not recording.
	TraceID string
}

// Sink stores entries. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Pinger is implemented by sinks backed by an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Memory is an in-process [Sink] that keeps every entry. Useful in tests and
// for the -once mode of the CLI.
type Memory struct {
	mu      sync.Mutex
	entries []Entry

	// Err, if non-nil, is returned from Record instead of storing the entry.
	Err error
}

var _ Sink = (*Memory)(nil)

// Record implements [Sink].
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of all recorded entries, oldest first.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Len returns the number of recorded entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
