package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavPCMFormat is the WAVE format tag for uncompressed PCM.
const wavPCMFormat = 1

// EncodeWAV writes pcm as a 16-bit PCM WAVE stream to w.
func EncodeWAV(w io.WriteSeeker, pcm []byte, f Format) error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("audio: invalid wav format %d Hz / %d ch", f.SampleRate, f.Channels)
	}
	n := len(pcm) / bytesPerSample
	data := make([]int, n)
	for i := range n {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	enc := wav.NewEncoder(w, f.SampleRate, BitDepth, f.Channels, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	return nil
}

// DecodeWAV reads a 16-bit PCM WAVE stream and returns its samples as
// little-endian bytes together with the stream format.
func DecodeWAV(r io.ReadSeeker) ([]byte, Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, Format{}, errors.New("audio: not a valid wav stream")
	}
	if dec.BitDepth != BitDepth {
		return nil, Format{}, fmt.Errorf("audio: unsupported wav bit depth %d", dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*bytesPerSample)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	return pcm, f, nil
}

// WriteWAV creates (or truncates) the file at path and writes pcm to it as a
// WAVE file. A partially written file is removed on error.
func WriteWAV(path string, pcm []byte, f Format) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create wav: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("audio: close wav: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return EncodeWAV(file, pcm, f)
}

// ReadWAV reads the WAVE file at path.
func ReadWAV(path string) ([]byte, Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: open wav: %w", err)
	}
	defer file.Close()
	return DecodeWAV(file)
}
