// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup; inferences are serialized.
type NativeProvider struct {
	mu        sync.Mutex
	model     whisperlib.Model
	language  string
	normalize float64
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the fallback language used when a request carries
// none (e.g., "en", "de"). Defaults to "auto", which detects the language.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNormalize scales every utterance to the given RMS level, as a fraction
// of full scale, before inference. Zero disables normalization.
func WithNormalize(target float64) NativeOption {
	return func(p *NativeProvider) { p.normalize = target }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:     model,
		language:  autoLanguage,
		normalize: audio.DefaultNormalizeTarget,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Transcribe reads req.AudioPath, converts it to 16 kHz mono float32, applies
// the configured loudness normalization and runs whisper.cpp on it.
//
// whisper.cpp cannot be interrupted mid-inference. ctx is checked before the
// model is acquired and before processing starts; an abandoned call runs to
// completion and its result is discarded by the caller.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	pcm, format, err := audio.ReadWAV(req.AudioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	mono, err := audio.ToMono16k(pcm, format)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	if p.normalize > 0 {
		mono, _ = audio.NormalizeRMS(mono, p.normalize)
	}
	samples := audio.PCMToFloat32(mono)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	if p.model == nil {
		return stt.Transcript{}, errors.New("whisper: provider is closed")
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	segs, err := p.infer(samples, lang, req.Task == stt.TaskTranslate)
	if err != nil {
		return stt.Transcript{}, err
	}
	reported := lang
	if lang == autoLanguage {
		reported = ""
	}
	return stt.Transcript{
		Text:     stt.JoinSegments(segs),
		Language: reported,
		Segments: segs,
		Duration: audio.Format{SampleRate: audio.DefaultSampleRate, Channels: 1}.Duration(len(mono)),
	}, nil
}

// infer runs one inference on a fresh context and collects its segments.
// Callers hold p.mu.
func (p *NativeProvider) infer(samples []float32, lang string, translate bool) ([]stt.Segment, error) {
	// Contexts are not thread-safe; one is created per inference.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	wctx.SetTranslate(translate)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segs []stt.Segment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		segs = append(segs, stt.Segment{
			Start: segment.Start,
			End:   segment.End,
			Text:  strings.TrimSpace(segment.Text),
		})
	}
	return segs, nil
}
