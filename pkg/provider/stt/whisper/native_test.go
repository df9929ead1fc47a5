package whisper_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNativeTranscribe_SilenceYieldsNoError(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t), whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	path := filepath.Join(t.TempDir(), "silence.wav")
	if err := audio.WriteWAV(path, make([]byte, 2*audio.DefaultSampleRate), audio.DefaultFormat); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Request{AudioPath: path}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}

func TestNativeTranscribe_CancelledContext_ReturnsError(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	path := filepath.Join(t.TempDir(), "a.wav")
	if err := audio.WriteWAV(path, make([]byte, 3200), audio.DefaultFormat); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{AudioPath: path}); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestNativeTranscribe_AfterClose(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "a.wav")
	if err := audio.WriteWAV(path, make([]byte, 3200), audio.DefaultFormat); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Request{AudioPath: path}); err == nil {
		t.Fatal("expected error after Close")
	}
}
