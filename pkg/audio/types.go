// Package audio defines the PCM types, loudness analysis and device
// abstractions used by the capture pipeline.
//
// All audio handled by this package is signed 16-bit little-endian PCM. The
// capture pipeline records mono audio at [DefaultSampleRate] in chunks of
// [DefaultChunkSamples] samples (about 64 ms per chunk).
//
// This package lives under pkg/ because external code is expected to provide
// its own [Device] implementations (see audio/portaudio for the default).
package audio

import "time"

const (
	// DefaultSampleRate is the capture rate expected by speech-to-text engines.
	DefaultSampleRate = 16000

	// DefaultChunkSamples is the number of samples read per chunk.
	DefaultChunkSamples = 1024

	// BitDepth is the only supported sample width.
	BitDepth = 16

	// bytesPerSample is the width of one int16 sample.
	bytesPerSample = BitDepth / 8
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono.
var DefaultFormat = Format{SampleRate: DefaultSampleRate, Channels: 1}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bytesPerSample
}

// Duration returns the playback duration of n bytes of PCM in this format.
// It returns 0 for an invalid format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Chunk is a single fixed-size block of audio read from a [Stream].
// Chunks are immutable once read.
type Chunk struct {
	// Data is 16-bit signed little-endian PCM.
	Data []byte

	// Format of Data.
	Format Format

	// ReadAt is the wall-clock time at which the read completed.
	ReadAt time.Time
}

// Duration returns the playback duration of the chunk.
func (c Chunk) Duration() time.Duration {
	return c.Format.Duration(len(c.Data))
}
