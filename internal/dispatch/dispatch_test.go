package dispatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/earshot/internal/dispatch"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/internal/transcript"
	"github.com/MrWong99/earshot/internal/transcript/phonetic"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/mock"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	sttmock "github.com/MrWong99/earshot/pkg/provider/stt/mock"
)

var utterance = mock.Square(0.1, 16000)

func TestSubmit_ReturnsProcessedText(t *testing.T) {
	p := &sttmock.Provider{
		Result:    stt.Transcript{Text: "  hello   there  "},
		ReadAudio: true,
	}
	dir := t.TempDir()
	d := dispatch.New(p, dispatch.WithTempDir(dir), dispatch.WithMetrics(testMetrics(t)))

	res := d.Submit(context.Background(), dispatch.Request{Audio: utterance, Language: "de"})
	if res.Err != nil || res.TimedOut {
		t.Fatalf("err = %v, timed out = %v", res.Err, res.TimedOut)
	}
	if res.Text != "Hello there" {
		t.Errorf("text = %q, want %q", res.Text, "Hello there")
	}
	if res.Raw != "  hello   there  " {
		t.Errorf("raw = %q", res.Raw)
	}

	call, ok := p.LastCall()
	if !ok {
		t.Fatal("provider not called")
	}
	if !call.FileExisted {
		t.Fatal("audio file did not exist when the provider ran")
	}
	if call.Req.Language != "de" || call.Req.Task != stt.TaskTranscribe || call.Req.SampleRate != audio.DefaultSampleRate {
		t.Errorf("request = %+v", call.Req)
	}
	base := filepath.Base(call.Req.AudioPath)
	if filepath.Dir(call.Req.AudioPath) != dir || !strings.HasPrefix(base, "utterance-") || !strings.HasSuffix(base, ".wav") {
		t.Errorf("audio path = %q", call.Req.AudioPath)
	}
	pcm, format, err := audio.DecodeWAV(readerOf(t, call.Audio))
	if err != nil {
		t.Fatalf("provider did not receive a valid WAV: %v", err)
	}
	if format != audio.DefaultFormat || len(pcm) != len(utterance) {
		t.Errorf("wav format = %+v with %d bytes", format, len(pcm))
	}
	assertEmptyDir(t, dir)
}

func TestSubmit_AppliesVocabulary(t *testing.T) {
	p := &sttmock.Provider{Result: stt.Transcript{Text: "i deployed kubernetis today!!"}}
	proc := transcript.NewProcessor(transcript.WithVocabulary(phonetic.New([]string{"Kubernetes"})))
	d := dispatch.New(p, dispatch.WithTempDir(t.TempDir()), dispatch.WithProcessor(proc), dispatch.WithMetrics(testMetrics(t)))

	res := d.Submit(context.Background(), dispatch.Request{Audio: utterance})
	if res.Text != "I deployed Kubernetes today!!" {
		t.Fatalf("text = %q", res.Text)
	}
	if len(res.Corrections) != 1 || res.Corrections[0].Corrected != "Kubernetes" {
		t.Errorf("corrections = %+v", res.Corrections)
	}
	if want := []string{"deployed", "kubernetes", "today"}; !slices.Equal(res.Keywords, want) {
		t.Errorf("keywords = %v, want %v", res.Keywords, want)
	}
}

func TestSubmit_ProviderErrorIsReturned(t *testing.T) {
	provErr := errors.New("model exploded")
	p := &sttmock.Provider{Err: provErr}
	m, reader := newTestMetrics(t)
	dir := t.TempDir()
	d := dispatch.New(p, dispatch.WithTempDir(dir), dispatch.WithMetrics(m), dispatch.WithProviderName("mock"))

	res := d.Submit(context.Background(), dispatch.Request{Audio: utterance})
	if !errors.Is(res.Err, provErr) {
		t.Fatalf("err = %v, want wrapped provider error", res.Err)
	}
	if res.Text != "" || res.TimedOut {
		t.Errorf("result = %+v", res)
	}
	assertEmptyDir(t, dir)
	if got := sumCounter(collect(t, reader), "earshot.provider.errors"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestSubmit_TimeoutAbandonsWorker(t *testing.T) {
	p := &sttmock.Provider{Result: stt.Transcript{Text: "too late"}, Delay: 5 * time.Second}
	m, reader := newTestMetrics(t)
	dir := t.TempDir()
	d := dispatch.New(p,
		dispatch.WithTempDir(dir),
		dispatch.WithTimeout(50*time.Millisecond),
		dispatch.WithMetrics(m),
	)

	start := time.Now()
	res := d.Submit(context.Background(), dispatch.Request{Audio: utterance})
	if !res.TimedOut || res.Err != nil || res.Text != "" {
		t.Fatalf("result = %+v, want empty timed-out result", res)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Submit waited %s", elapsed)
	}

	waitFor(t, func() bool { return p.CancelledCount() == 1 })
	waitFor(t, func() bool {
		entries, _ := os.ReadDir(dir)
		return len(entries) == 0
	})
	if got := sumCounter(collect(t, reader), "earshot.dispatch.timeouts"); got != 1 {
		t.Errorf("timeout counter = %d, want 1", got)
	}

	// A timed-out dispatch releases the dispatcher.
	p.Delay = 0
	if res := d.Submit(context.Background(), dispatch.Request{Audio: utterance}); res.Err != nil || res.Text != "Too late" {
		t.Fatalf("second submit = %+v", res)
	}
}

func TestSubmit_EmptyAudio(t *testing.T) {
	p := &sttmock.Provider{}
	dir := t.TempDir()
	d := dispatch.New(p, dispatch.WithTempDir(dir), dispatch.WithMetrics(testMetrics(t)))

	for _, a := range [][]byte{nil, {}} {
		if res := d.Submit(context.Background(), dispatch.Request{Audio: a}); !errors.Is(res.Err, dispatch.ErrEmptyAudio) {
			t.Fatalf("err = %v, want ErrEmptyAudio", res.Err)
		}
	}
	if p.CallCount() != 0 {
		t.Fatal("provider called for empty audio")
	}
	assertEmptyDir(t, dir)
}

func TestSubmit_ConcurrentCallIsBusy(t *testing.T) {
	started := make(chan struct{}, 1)
	p := &sttmock.Provider{Delay: 10 * time.Second, Started: started}
	d := dispatch.New(p, dispatch.WithTempDir(t.TempDir()), dispatch.WithMetrics(testMetrics(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan dispatch.Result, 1)
	go func() { done <- d.Submit(ctx, dispatch.Request{Audio: utterance}) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first transcription never started")
	}
	if res := d.Submit(context.Background(), dispatch.Request{Audio: utterance}); !errors.Is(res.Err, dispatch.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", res.Err)
	}

	cancel()
	res := <-done
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("first result err = %v, want context.Canceled", res.Err)
	}
}

func TestSubmit_NonsenseIsDiscarded(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "punctuation", raw: " ...!? "},
		{name: "digits", raw: "1234"},
		{name: "single letter", raw: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &sttmock.Provider{Result: stt.Transcript{Text: tt.raw}}
			m, reader := newTestMetrics(t)
			d := dispatch.New(p, dispatch.WithTempDir(t.TempDir()), dispatch.WithMetrics(m))

			res := d.Submit(context.Background(), dispatch.Request{Audio: utterance})
			if res.Err != nil || res.TimedOut {
				t.Fatalf("result = %+v", res)
			}
			if res.Text != "" {
				t.Fatalf("text = %q, want discarded", res.Text)
			}
			if got := sumCounter(collect(t, reader), "earshot.transcripts.discarded"); got != 1 {
				t.Errorf("discarded counter = %d, want 1", got)
			}
		})
	}
}

func TestSubmit_TaskOverride(t *testing.T) {
	p := &sttmock.Provider{Result: stt.Transcript{Text: "guten tag"}}
	d := dispatch.New(p, dispatch.WithTempDir(t.TempDir()), dispatch.WithTask(stt.TaskTranslate), dispatch.WithMetrics(testMetrics(t)))

	d.Submit(context.Background(), dispatch.Request{Audio: utterance})
	if call, _ := p.LastCall(); call.Req.Task != stt.TaskTranslate {
		t.Errorf("task = %q, want translate", call.Req.Task)
	}
	d.Submit(context.Background(), dispatch.Request{Audio: utterance, Task: stt.TaskTranscribe})
	if call, _ := p.LastCall(); call.Req.Task != stt.TaskTranscribe {
		t.Errorf("task = %q, want transcribe", call.Req.Task)
	}
}

func TestSubmit_OpenBreakerFailsFast(t *testing.T) {
	p := &sttmock.Provider{Err: errors.New("unreachable")}
	guarded := resilience.NewGuardedProvider(p, resilience.CircuitBreakerConfig{Name: "mock", MaxFailures: 1, ResetTimeout: time.Hour})
	d := dispatch.New(guarded, dispatch.WithTempDir(t.TempDir()), dispatch.WithMetrics(testMetrics(t)))

	d.Submit(context.Background(), dispatch.Request{Audio: utterance})
	res := d.Submit(context.Background(), dispatch.Request{Audio: utterance})
	if !errors.Is(res.Err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", res.Err)
	}
	if p.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", p.CallCount())
	}
}

func TestNew_Defaults(t *testing.T) {
	d := dispatch.New(&sttmock.Provider{}, dispatch.WithTimeout(-time.Second))
	if d.Timeout() != dispatch.DefaultTimeout {
		t.Errorf("timeout = %s, want %s", d.Timeout(), dispatch.DefaultTimeout)
	}
}

// ---- helpers ----

func readerOf(t *testing.T, data []byte) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "copy-*.wav")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	return f
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("%d files left in %s", len(entries), dir)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	m, _ := newTestMetrics(t)
	return m
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	return rm
}

func sumCounter(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
