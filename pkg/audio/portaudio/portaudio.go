// Package portaudio implements [audio.Device] on top of the PortAudio C
// library via github.com/gordonklaus/portaudio.
//
// Each Open initialises PortAudio, opens a blocking mono int16 input stream
// and starts it. Close stops the stream, closes it and terminates PortAudio,
// so the device is fully released between captures.
//
// Usage:
//
//	dev := portaudio.New(portaudio.WithDeviceName("usb"))
//	stream, err := dev.Open(audio.StreamConfig{})
//	defer stream.Close()
//	chunk, err := stream.Read()
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/earshot/pkg/audio"
)

// Compile-time assertions.
var (
	_ audio.Device = (*Device)(nil)
	_ audio.Stream = (*stream)(nil)
)

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithDeviceName selects the first input device whose name contains name
// (case-insensitive). When empty the host's default input device is used.
func WithDeviceName(name string) Option {
	return func(d *Device) {
		d.deviceName = name
	}
}

// Device opens PortAudio input streams.
type Device struct {
	deviceName string
}

// New creates a PortAudio-backed Device.
func New(opts ...Option) *Device {
	d := &Device{}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open initialises PortAudio and starts a blocking input stream. Only mono
// streams are supported.
func (d *Device) Open(cfg audio.StreamConfig) (audio.Stream, error) {
	cfg = cfg.WithDefaults()
	if cfg.Format.Channels != 1 {
		return nil, fmt.Errorf("portaudio: only mono capture is supported, got %d channels", cfg.Format.Channels)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	dev, err := d.selectDevice()
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}

	buf := make([]int16, cfg.ChunkSamples)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.Format.SampleRate),
		FramesPerBuffer: cfg.ChunkSamples,
	}
	s, err := pa.OpenStream(params, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open stream on %q: %w", dev.Name, err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start stream on %q: %w", dev.Name, err)
	}

	slog.Debug("portaudio stream started",
		"device", dev.Name,
		"sample_rate", cfg.Format.SampleRate,
		"chunk_samples", cfg.ChunkSamples,
	)
	return &stream{s: s, buf: buf, format: cfg.Format, device: dev.Name}, nil
}

func (d *Device) selectDevice() (*pa.DeviceInfo, error) {
	if d.deviceName == "" {
		dev, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: default input device: %w", err)
		}
		return dev, nil
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), strings.ToLower(d.deviceName)) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no input device matching %q", d.deviceName)
}

// InputDevices returns the names of all devices with at least one input
// channel.
func InputDevices() ([]string, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer pa.Terminate()
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var names []string
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			names = append(names, dev.Name)
		}
	}
	return names, nil
}

// stream is a started PortAudio input stream.
type stream struct {
	s      *pa.Stream
	buf    []int16
	format audio.Format
	device string

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Read blocks until the buffer is filled. An input overflow is reported as
// [audio.ErrOverflow]; the buffer still holds the samples PortAudio delivered
// but they are discarded so that callers retry with the same state.
func (st *stream) Read() (audio.Chunk, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return audio.Chunk{}, audio.ErrClosed
	}
	if err := st.s.Read(); err != nil {
		if errors.Is(err, pa.InputOverflowed) {
			return audio.Chunk{}, fmt.Errorf("portaudio: %s: %w", st.device, audio.ErrOverflow)
		}
		return audio.Chunk{}, fmt.Errorf("portaudio: read %s: %w", st.device, err)
	}
	return audio.Chunk{
		Data:   audio.Int16ToPCM(st.buf),
		Format: st.format,
		ReadAt: time.Now(),
	}, nil
}

// Close stops and closes the stream, then terminates PortAudio. It is safe
// to call more than once; only the first call has an effect.
func (st *stream) Close() error {
	st.closeOnce.Do(func() {
		st.mu.Lock()
		st.closed = true
		st.mu.Unlock()
		var errs []error
		if err := st.s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop: %w", err))
		}
		if err := st.s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		if err := pa.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate: %w", err))
		}
		if len(errs) > 0 {
			st.closeErr = fmt.Errorf("portaudio: close %s: %w", st.device, errors.Join(errs...))
		}
	})
	return st.closeErr
}
