package capture

import (
	"testing"

	"github.com/MrWong99/earshot/internal/gate"
)

func TestHooks_NilIsSafe(t *testing.T) {
	var h *Hooks
	h.Volume(0.5)
	h.Emit(Event{Kind: EventStopped})
}

func TestHooks_OneHandlerPerKind(t *testing.T) {
	var first, second, other int
	h := &Hooks{}
	h.On(EventRecording, func(Event) { first++ })
	h.On(EventRecording, func(Event) { second++ })
	h.On(EventStopped, func(Event) { other++ })

	h.Emit(Event{Kind: EventRecording})
	if first != 0 || second != 1 || other != 0 {
		t.Fatalf("first=%d second=%d other=%d, want 0 1 0", first, second, other)
	}

	h.On(EventRecording, nil)
	h.Emit(Event{Kind: EventRecording})
	if second != 1 {
		t.Fatal("removed handler still called")
	}

	h.On(EventKind(42), func(Event) { t.Fatal("unknown kind registered") })
	h.Emit(Event{Kind: EventKind(42)})
}

func TestEventKind_String(t *testing.T) {
	want := map[EventKind]string{
		EventListening:  "listening",
		EventRecording:  "recording",
		EventStopped:    "stopped",
		EventTimedOut:   "timed_out",
		EventNoSpeech:   "no_speech",
		EventProcessing: "processing",
		numEventKinds:   "unknown",
	}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), s)
		}
	}
}

func TestEventFor_MatchesGateStateNames(t *testing.T) {
	for _, s := range []gate.State{gate.Recording, gate.Stopped, gate.TimedOut, gate.NoSpeech} {
		if got := eventFor(s).String(); got != s.String() {
			t.Errorf("eventFor(%s) = %s", s, got)
		}
	}
}
