// Package mock provides a scripted in-memory [audio.Device] for unit tests.
//
// A Device replays the same Script on every Open, which makes it easy to
// assert that repeated captures over identical input behave identically.
// Every call is recorded so tests can assert on open and close counts.
//
// Typical usage:
//
//	dev := &mock.Device{Script: []mock.Read{
//	    {Data: mock.Square(0.05, audio.DefaultChunkSamples)},
//	    {Err: audio.ErrOverflow},
//	}}
//	stream, _ := dev.Open(audio.StreamConfig{})
package mock

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
)

// Read is one scripted result of [Stream.Read].
type Read struct {
	// Data is returned as the chunk payload when Err is nil.
	Data []byte

	// Err, if non-nil, is returned instead of a chunk.
	Err error
}

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// Script is replayed from the beginning by every opened stream. Once the
	// script is exhausted, Read returns io.EOF.
	Script []Read

	// OpenErr, if non-nil, is returned from Open.
	OpenErr error

	// OnRead, if set, is called before every Read with the zero-based read
	// index. Tests use it to advance a fake clock.
	OnRead func(i int)

	// OpenCalls records the config of every Open call.
	OpenCalls []audio.StreamConfig

	streams []*Stream
}

// Open records the call and returns a new scripted stream or OpenErr.
func (d *Device) Open(cfg audio.StreamConfig) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, cfg)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Stream{script: d.Script, onRead: d.OnRead, format: cfg.WithDefaults().Format}
	d.streams = append(d.streams, s)
	return s, nil
}

// Streams returns every stream opened so far.
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)

// Stream is a mock implementation of [audio.Stream].
type Stream struct {
	mu         sync.Mutex
	script     []Read
	onRead     func(int)
	format     audio.Format
	pos        int
	closeCalls int
}

// Read returns the next scripted result.
func (s *Stream) Read() (audio.Chunk, error) {
	s.mu.Lock()
	if s.closeCalls > 0 {
		s.mu.Unlock()
		return audio.Chunk{}, audio.ErrClosed
	}
	i := s.pos
	s.pos++
	onRead := s.onRead
	s.mu.Unlock()

	if onRead != nil {
		onRead(i)
	}
	if i >= len(s.script) {
		return audio.Chunk{}, io.EOF
	}
	r := s.script[i]
	if r.Err != nil {
		return audio.Chunk{}, r.Err
	}
	return audio.Chunk{Data: r.Data, Format: s.format, ReadAt: time.Now()}, nil
}

// Close records the call.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// CloseCalls returns how many times Close was called.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Reads returns how many times Read was called.
func (s *Stream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Ensure Stream implements audio.Stream at compile time.
var _ audio.Stream = (*Stream)(nil)

// Square returns a chunk of n samples alternating between +a and -a full
// scale, so that [audio.Volume] of the result is a (to int16 precision).
// volume must be within [0, 1].
func Square(volume float64, n int) []byte {
	if volume < 0 || volume > 1 {
		panic(fmt.Sprintf("mock: volume %v out of range", volume))
	}
	amp := int16(math.Min(math.Round(volume*32768), 32767))
	pcm := make([]byte, n*2)
	for i := range n {
		s := amp
		if i%2 == 1 {
			s = -amp
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// Repeat returns count reads of data.
func Repeat(data []byte, count int) []Read {
	out := make([]Read, count)
	for i := range out {
		out[i] = Read{Data: data}
	}
	return out
}
