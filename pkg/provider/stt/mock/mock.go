// Package mock provides a test double for the stt.Provider interface.
//
// Provider records every call and answers with a scripted Transcript, an
// error or a delay. A delayed call honours context cancellation, which makes
// it suitable for exercising transcription timeouts.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "hello"}}
//	tr, _ := p.Transcribe(ctx, stt.Request{AudioPath: path})
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// Call records a single invocation of Provider.Transcribe.
type Call struct {
	// Req is the request passed to Transcribe.
	Req stt.Request

	// FileExisted reports whether Req.AudioPath existed when the call began.
	FileExisted bool

	// Audio is the file content read at call time, when ReadAudio is set.
	Audio []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay, if positive, is waited before answering. A done context ends the
	// wait early with ctx.Err().
	Delay time.Duration

	// ReadAudio makes Transcribe capture the file content in Call.Audio.
	ReadAudio bool

	// Started, if non-nil, receives a value when a call begins. Sends do not
	// block.
	Started chan struct{}

	// Calls records every call to Transcribe.
	Calls []Call

	// Cancelled counts calls that ended because their context was done.
	Cancelled int
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call, waits Delay and returns Result or Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	call := Call{Req: req}
	if data, err := os.ReadFile(req.AudioPath); err == nil {
		call.FileExisted = true
		if p.readAudio() {
			call.Audio = data
		}
	}

	p.mu.Lock()
	p.Calls = append(p.Calls, call)
	delay, result, err, started := p.Delay, p.Result, p.Err, p.Started
	p.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			p.mu.Lock()
			p.Cancelled++
			p.mu.Unlock()
			return stt.Transcript{}, ctx.Err()
		}
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

func (p *Provider) readAudio() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ReadAudio
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent call and whether there was one.
func (p *Provider) LastCall() (Call, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return Call{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

// CancelledCount returns how many calls ended on a done context.
func (p *Provider) CancelledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Cancelled
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.Cancelled = 0
}
