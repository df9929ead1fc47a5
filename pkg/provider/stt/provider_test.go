package stt_test

import (
	"testing"
	"time"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

func TestParseTask(t *testing.T) {
	cases := map[string]stt.Task{
		"":           stt.TaskTranscribe,
		"transcribe": stt.TaskTranscribe,
		" Translate": stt.TaskTranslate,
	}
	for in, want := range cases {
		got, err := stt.ParseTask(in)
		if err != nil || got != want {
			t.Errorf("ParseTask(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := stt.ParseTask("summarize"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestJoinSegments(t *testing.T) {
	segs := []stt.Segment{{Text: " hello"}, {Text: "  "}, {Text: "world "}}
	if got := stt.JoinSegments(segs); got != "hello world" {
		t.Errorf("JoinSegments = %q", got)
	}
	if got := stt.JoinSegments(nil); got != "" {
		t.Errorf("JoinSegments(nil) = %q", got)
	}
}

func TestSeconds(t *testing.T) {
	if got := stt.Seconds(1.5); got != 1500*time.Millisecond {
		t.Errorf("Seconds(1.5) = %s", got)
	}
}
