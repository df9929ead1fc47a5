// Package dispatch hands a finished utterance to a speech-to-text provider on
// a separate worker and waits a bounded time for the text.
//
// Each [Dispatcher.Submit] writes the audio to a temporary WAV file, starts
// one worker goroutine with its own cancellable context and waits for its
// single result. When the wait times out the worker's context is cancelled
// and the caller gets an empty, TimedOut result; whatever the worker produces
// later is discarded. The WAV file is removed by the worker in every case.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/transcript"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// DefaultTimeout bounds how long Submit waits for a worker.
const DefaultTimeout = 30 * time.Second

var (
	// ErrEmptyAudio is returned for a request without audio.
	ErrEmptyAudio = errors.New("dispatch: empty audio buffer")

	// ErrBusy is returned when Submit is called while another Submit on the
	// same Dispatcher is still waiting.
	ErrBusy = errors.New("dispatch: a transcription is already in flight")
)

// Request is one finished utterance.
type Request struct {
	// Audio is mono 16-bit little-endian PCM. Submit does not retain it.
	Audio []byte

	// Format of Audio. The zero value means [audio.DefaultFormat].
	Format audio.Format

	// Language is an optional hint passed to the provider.
	Language string

	// Task overrides the dispatcher's task when set.
	Task stt.Task
}

// Result is the outcome of one Submit. Exactly one of these holds: Err is
// set, TimedOut is true, or Text and Raw carry the transcription (Text is
// empty when the provider heard nothing meaningful).
type Result struct {
	// Text is the cleaned, formatted transcription.
	Text string

	// Raw is the provider's unprocessed text.
	Raw string

	// Corrections lists vocabulary fixes applied to Text.
	Corrections []transcript.Correction

	// Keywords are the topic words of Text.
	Keywords []string

	// Transcript is the provider's full answer.
	Transcript stt.Transcript

	// Err is set when the audio could not be written or the provider failed.
	Err error

	// TimedOut is true when the worker did not answer in time.
	TimedOut bool

	// Latency is the time from dispatch to result.
	Latency time.Duration
}

// Option is a functional option for configuring a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the bounded wait. Non-positive values select
// [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(ds *Dispatcher) { ds.timeout = d }
}

// WithTempDir sets the directory for the WAV artifacts. Defaults to
// [os.TempDir].
func WithTempDir(dir string) Option {
	return func(ds *Dispatcher) { ds.tempDir = dir }
}

// WithProcessor sets the transcript post-processor. Defaults to a
// [transcript.Processor] with default settings.
func WithProcessor(p *transcript.Processor) Option {
	return func(ds *Dispatcher) { ds.processor = p }
}

// WithTask sets the default provider task. Defaults to [stt.TaskTranscribe].
func WithTask(t stt.Task) Option {
	return func(ds *Dispatcher) { ds.task = t }
}

// WithProviderName labels metrics and spans. Defaults to "stt".
func WithProviderName(name string) Option {
	return func(ds *Dispatcher) { ds.providerName = name }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(ds *Dispatcher) { ds.metrics = m }
}

// Dispatcher runs transcriptions one at a time.
type Dispatcher struct {
	provider     stt.Provider
	providerName string
	timeout      time.Duration
	tempDir      string
	task         stt.Task
	processor    *transcript.Processor
	metrics      *observe.Metrics

	busy atomic.Bool
}

// New returns a Dispatcher that transcribes with provider.
func New(provider stt.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider:     provider,
		providerName: "stt",
		task:         stt.TaskTranscribe,
	}
	for _, o := range opts {
		o(d)
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.tempDir == "" {
		d.tempDir = os.TempDir()
	}
	if d.processor == nil {
		d.processor = transcript.NewProcessor()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Timeout returns the bounded wait.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Submit transcribes req and returns within the dispatcher's timeout. It
// never panics on bad input: an empty buffer yields [ErrEmptyAudio] and a
// concurrent call yields [ErrBusy], both without dispatching anything.
func (d *Dispatcher) Submit(ctx context.Context, req Request) Result {
	if len(req.Audio) == 0 {
		return Result{Err: ErrEmptyAudio}
	}
	if !d.busy.CompareAndSwap(false, true) {
		return Result{Err: ErrBusy}
	}
	defer d.busy.Store(false)

	format := req.Format
	if format.SampleRate <= 0 || format.Channels <= 0 {
		format = audio.DefaultFormat
	}
	task := req.Task
	if task == "" {
		task = d.task
	}

	ctx, span := observe.StartDispatchSpan(ctx, d.providerName, string(task), format.Duration(len(req.Audio)))
	defer span.End()
	log := observe.Logger(ctx)

	path := filepath.Join(d.tempDir, "utterance-"+uuid.NewString()+".wav")
	if err := audio.WriteWAV(path, req.Audio, format); err != nil {
		err = fmt.Errorf("dispatch: write audio: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "write audio")
		log.Warn("dispatch: failed to write utterance", "err", err)
		return Result{Err: err}
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Result, 1)
	start := time.Now()
	d.metrics.InflightTranscriptions.Add(ctx, 1)
	go func() {
		defer d.metrics.InflightTranscriptions.Add(context.WithoutCancel(workCtx), -1)
		results <- d.work(workCtx, path, stt.Request{
			AudioPath:  path,
			Language:   req.Language,
			SampleRate: format.SampleRate,
			Task:       task,
		})
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		res.Latency = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "transcribe")
		}
		span.SetAttributes(attribute.Bool("transcript.discarded", res.Err == nil && res.Text == ""))
		return res

	case <-timer.C:
		cancel()
		d.metrics.DispatchTimeouts.Add(ctx, 1, observe.Attr("provider", d.providerName))
		span.SetStatus(codes.Error, "timeout")
		log.Warn("dispatch: transcription timed out, abandoning worker",
			"provider", d.providerName, "timeout", d.timeout)
		return Result{TimedOut: true, Latency: time.Since(start)}

	case <-ctx.Done():
		err := fmt.Errorf("dispatch: %w", ctx.Err())
		span.RecordError(err)
		return Result{Err: err, Latency: time.Since(start)}
	}
}

// work runs on the worker goroutine. It removes the WAV file before returning.
func (d *Dispatcher) work(ctx context.Context, path string, req stt.Request) Result {
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			observe.Logger(ctx).Warn("dispatch: failed to remove utterance file", "path", path, "err", err)
		}
	}()

	start := time.Now()
	tr, err := d.provider.Transcribe(ctx, req)
	elapsed := time.Since(start)
	mctx := context.WithoutCancel(ctx)

	if err != nil {
		d.metrics.RecordTranscription(mctx, d.providerName, "error", elapsed)
		if ctx.Err() == nil {
			observe.Logger(ctx).Warn("dispatch: transcription failed",
				"provider", d.providerName, "err", err, "elapsed", elapsed)
		}
		return Result{Err: fmt.Errorf("dispatch: transcribe: %w", err)}
	}
	d.metrics.RecordTranscription(mctx, d.providerName, "ok", elapsed)

	processed := d.processor.Process(tr.Text)
	if processed.Discarded() {
		d.metrics.TranscriptsDiscarded.Add(mctx, 1)
		observe.Logger(ctx).Debug("dispatch: discarded empty or nonsense transcript", "raw", tr.Text)
	}
	return Result{
		Text:        processed.Text,
		Raw:         processed.Raw,
		Corrections: processed.Corrections,
		Keywords:    processed.Keywords,
		Transcript:  tr,
	}
}
