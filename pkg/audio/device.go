package audio

import "errors"

// ErrOverflow is returned by [Stream.Read] when the device dropped input
// because it was not read fast enough. Callers may retry the read.
var ErrOverflow = errors.New("audio: input overflowed")

// ErrClosed is returned by [Stream.Read] after [Stream.Close].
var ErrClosed = errors.New("audio: stream closed")

// StreamConfig selects the format and chunk size of an input stream.
type StreamConfig struct {
	// Format of the PCM delivered by Read. Channels must be 1.
	Format Format

	// ChunkSamples is the number of samples each Read returns.
	ChunkSamples int
}

// WithDefaults returns cfg with zero fields replaced by the package defaults.
func (cfg StreamConfig) WithDefaults() StreamConfig {
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = DefaultSampleRate
	}
	if cfg.Format.Channels <= 0 {
		cfg.Format.Channels = 1
	}
	if cfg.ChunkSamples <= 0 {
		cfg.ChunkSamples = DefaultChunkSamples
	}
	return cfg
}

// Device opens microphone input streams.
//
// Implementations must be safe to call Open on repeatedly, one stream at a
// time. Each opened stream is owned exclusively by the caller until Close.
type Device interface {
	// Open acquires the device and starts a stream. An error here is fatal for
	// the capture attempt.
	Open(cfg StreamConfig) (Stream, error)
}

// Stream is a blocking iterator over fixed-size chunks.
type Stream interface {
	// Read blocks until one chunk of cfg.ChunkSamples samples is available.
	// It returns [ErrOverflow] (possibly wrapped) for a transient overrun; any
	// other error is fatal.
	Read() (Chunk, error)

	// Close stops the stream and releases the device. It is safe to call
	// more than once.
	Close() error
}
