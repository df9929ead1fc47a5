package gate_test

import (
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/gate"
	"github.com/MrWong99/earshot/internal/sensitivity"
	"github.com/MrWong99/earshot/pkg/audio"
)

var medium = sensitivity.Profile{
	Name:            "medium",
	Threshold:       0.01,
	SilenceDuration: 2 * time.Second,
	MinRecording:    500 * time.Millisecond,
}

func TestGate_SpeechThenSilenceCapturesTrailingSilence(t *testing.T) {
	seq := append(constant(0.05, 10), constant(0, 25)...) // 1.0s speech, 2.5s silence
	r := drive(gate.New(medium, 0), seq, 100*time.Millisecond)

	if r.final != gate.Stopped {
		t.Fatalf("final state = %s, want stopped", r.final)
	}
	if len(r.transitions) != 2 || r.transitions[0].to != gate.Recording || r.transitions[1].to != gate.Stopped {
		t.Fatalf("transitions = %+v", r.transitions)
	}
	if r.transitions[0].index != 0 {
		t.Errorf("recording started at chunk %d, want first chunk", r.transitions[0].index)
	}
	captured := time.Duration(r.appended) * 100 * time.Millisecond
	if captured < 3*time.Second || captured > 3200*time.Millisecond {
		t.Errorf("captured %s, want about 3.0s", captured)
	}
	// Stop happens 2s after silence began at 1.1s.
	if at := r.transitions[1].at; at != 3100*time.Millisecond {
		t.Errorf("stopped at %s, want 3.1s", at)
	}
}

func TestGate_MinRecordingFloor(t *testing.T) {
	p := medium
	p.SilenceDuration = 100 * time.Millisecond // silence alone would stop at 0.4s
	seq := append(constant(0.05, 3), constant(0, 20)...) // 0.3s speech
	r := drive(gate.New(p, 0), seq, 100*time.Millisecond)

	if r.final != gate.Stopped {
		t.Fatalf("final state = %s, want stopped", r.final)
	}
	start := r.transitions[0].at
	stop := r.transitions[1].at
	if stop-start < p.MinRecording {
		t.Fatalf("stopped %s after onset, before min recording %s", stop-start, p.MinRecording)
	}
	if stop-start != p.MinRecording {
		t.Errorf("stopped %s after onset, want exactly %s", stop-start, p.MinRecording)
	}
}

func TestGate_ShortUtteranceWithDefaultProfileWaitsForSilence(t *testing.T) {
	seq := append(constant(0.05, 3), constant(0, 30)...)
	r := drive(gate.New(medium, 0), seq, 100*time.Millisecond)
	if r.final != gate.Stopped {
		t.Fatalf("final state = %s, want stopped", r.final)
	}
	if got := r.transitions[1].at - r.transitions[0].at; got < medium.MinRecording || got < medium.SilenceDuration {
		t.Fatalf("stopped after %s", got)
	}
}

func TestGate_SilenceNeverLeavesListeningBeforeGrace(t *testing.T) {
	step := 64 * time.Millisecond
	n := int(gate.NoSpeechGrace/step) + 2
	r := drive(gate.New(medium, 0), constant(audio.Volume(make([]byte, 2048)), n), step)

	if r.final != gate.NoSpeech {
		t.Fatalf("final state = %s, want no_speech", r.final)
	}
	if len(r.transitions) != 1 {
		t.Fatalf("transitions = %+v", r.transitions)
	}
	if at := r.transitions[0].at; at <= gate.NoSpeechGrace {
		t.Fatalf("gave up at %s, before the %s grace period", at, gate.NoSpeechGrace)
	}
	if r.appended != 0 {
		t.Fatalf("appended %d chunks of silence", r.appended)
	}
}

func TestGate_MaxDuration(t *testing.T) {
	t.Run("while recording", func(t *testing.T) {
		r := drive(gate.New(medium, 2*time.Second), constant(0.05, 40), 100*time.Millisecond)
		if r.final != gate.TimedOut {
			t.Fatalf("final state = %s, want timed_out", r.final)
		}
		// Chunks up to and including t=2.0s are kept; the late chunk is not.
		if r.appended != 20 {
			t.Errorf("appended %d chunks, want 20", r.appended)
		}
	})
	t.Run("before speech", func(t *testing.T) {
		r := drive(gate.New(medium, 2*time.Second), constant(0, 40), 100*time.Millisecond)
		if r.final != gate.NoSpeech {
			t.Fatalf("final state = %s, want no_speech", r.final)
		}
	})
}

func TestGate_SpeechResetsSilenceWindow(t *testing.T) {
	seq := append(constant(0.05, 5), constant(0, 15)...) // 1.5s pause
	seq = append(seq, constant(0.05, 5)...)
	seq = append(seq, constant(0, 25)...)
	r := drive(gate.New(medium, 0), seq, 100*time.Millisecond)
	if r.final != gate.Stopped {
		t.Fatalf("final state = %s, want stopped", r.final)
	}
	// Second burst ends at 2.5s, silence starts at 2.6s, stop at 4.6s.
	if at := r.transitions[1].at; at != 4600*time.Millisecond {
		t.Fatalf("stopped at %s, want 4.6s", at)
	}
}

func TestGate_TerminalStepsAreNoOps(t *testing.T) {
	g := gate.New(medium, time.Second)
	g.Step(2*time.Second, false)
	if g.State() != gate.NoSpeech {
		t.Fatalf("state = %s", g.State())
	}
	s := g.Step(3*time.Second, true)
	if s.State != gate.NoSpeech || s.Append || s.Changed {
		t.Fatalf("step after terminal = %+v", s)
	}
}

func TestGate_ExpireAppliesTimeLimitsOnly(t *testing.T) {
	tests := []struct {
		name    string
		max     time.Duration
		speech  bool // start recording before expiring
		elapsed time.Duration
		want    gate.State
		changed bool
	}{
		{"listening within grace", 20 * time.Second, false, 5 * time.Second, gate.Listening, false},
		{"listening past grace", 20 * time.Second, false, 11 * time.Second, gate.NoSpeech, true},
		{"recording past grace", 20 * time.Second, true, 11 * time.Second, gate.Recording, false},
		{"recording past max", 2 * time.Second, true, 3 * time.Second, gate.TimedOut, true},
		{"listening past max", 2 * time.Second, false, 3 * time.Second, gate.NoSpeech, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gate.New(medium, tt.max)
			if tt.speech {
				g.Step(0, true)
			}
			step := g.Expire(tt.elapsed)
			if step.State != tt.want || step.Changed != tt.changed || step.Append {
				t.Fatalf("Expire(%s) = %+v, want state %s changed %v", tt.elapsed, step, tt.want, tt.changed)
			}
		})
	}
}

func TestGate_ExpireAfterTerminalIsNoOp(t *testing.T) {
	g := gate.New(medium, time.Second)
	g.Expire(2 * time.Second)
	if step := g.Expire(3 * time.Second); step.Changed || step.State != gate.NoSpeech {
		t.Fatalf("step after terminal = %+v", step)
	}
}

// The boost rule accepts anything above half the base threshold, even when
// the ambient-adjusted threshold is higher. This is kept as tuned.
func TestIsSpeech_BoostOverridesAmbientThreshold(t *testing.T) {
	h := audio.NewHistory(audio.HistorySize)
	for range 30 {
		h.Push(0.02)
	}
	adjusted := gate.AdjustedThreshold(0.01, h)
	if adjusted <= 0.01 {
		t.Fatalf("adjusted threshold = %v, want above base", adjusted)
	}
	if !gate.IsSpeech(0.01, 0.006, h) {
		t.Fatal("0.006 > 0.005 must count as speech under the boost rule")
	}
	if gate.IsSpeech(0.01, 0.005, h) {
		t.Fatal("exactly half the base threshold is not speech")
	}
}

func TestAdjustedThreshold(t *testing.T) {
	h := audio.NewHistory(audio.HistorySize)
	for range 20 {
		h.Push(0.5)
	}
	if got := gate.AdjustedThreshold(0.01, h); got != 0.01 {
		t.Fatalf("with 20 samples adjusted = %v, want base", got)
	}
	h.Push(0.5)
	if got := gate.AdjustedThreshold(0.01, h); got != 0.6 {
		t.Fatalf("with 21 samples adjusted = %v, want 0.6", got)
	}
	if got := gate.AdjustedThreshold(0.01, nil); got != 0.01 {
		t.Fatalf("nil history adjusted = %v", got)
	}
}

func TestState_String(t *testing.T) {
	want := map[gate.State]string{
		gate.Listening: "listening",
		gate.Recording: "recording",
		gate.Stopped:   "stopped",
		gate.NoSpeech:  "no_speech",
		gate.TimedOut:  "timed_out",
		gate.State(99): "unknown",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}

// ---- helpers ----

type transition struct {
	index int
	at    time.Duration
	to    gate.State
}

type run struct {
	final       gate.State
	transitions []transition
	appended    int
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// drive feeds seq to g as smoothed volumes, one per chunk of length step.
// Chunk i completes at (i+1)*step.
func drive(g *gate.Gate, seq []float64, step time.Duration) run {
	h := audio.NewHistory(audio.HistorySize)
	var r run
	for i, v := range seq {
		h.Push(v)
		at := time.Duration(i+1) * step
		s := g.Step(at, gate.IsSpeech(g.Profile().Threshold, v, h))
		if s.Append {
			r.appended++
		}
		if s.Changed {
			r.transitions = append(r.transitions, transition{index: i, at: at, to: s.State})
		}
		if s.State.Terminal() {
			break
		}
	}
	r.final = g.State()
	return r
}
