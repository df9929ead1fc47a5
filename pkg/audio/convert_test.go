package audio_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/earshot/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := audio.Int16ToPCM([]int16{100, 200, -100, -200})
	got := audio.PCMToInt16(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if !slices.Equal(got, want) {
		t.Fatalf("StereoToMono = %v, want %v", got, want)
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	stereo := audio.Int16ToPCM([]int16{32767, 32767, -32768, -32768})
	got := audio.PCMToInt16(audio.StereoToMono(stereo))
	want := []int16{32767, -32768}
	if !slices.Equal(got, want) {
		t.Fatalf("StereoToMono = %v, want %v", got, want)
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := audio.Int16ToPCM([]int16{1, 2, 3})
	if got := audio.ResampleMono16(pcm, 16000, 16000); !slices.Equal(got, pcm) {
		t.Fatalf("same-rate resample changed data")
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	pcm := audio.Int16ToPCM([]int16{0, 100, 200, 300, 400, 500})
	got := audio.PCMToInt16(audio.ResampleMono16(pcm, 48000, 16000))
	want := []int16{0, 300}
	if !slices.Equal(got, want) {
		t.Fatalf("ResampleMono16 = %v, want %v", got, want)
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	pcm := audio.Int16ToPCM([]int16{1, 2})
	if got := audio.ResampleMono16(pcm, 0, 16000); !slices.Equal(got, pcm) {
		t.Fatalf("zero source rate must return input unchanged")
	}
}

func TestToMono16k(t *testing.T) {
	stereo := audio.Int16ToPCM([]int16{100, 300, 100, 300, 100, 300, 100, 300, 100, 300, 100, 300})
	got, err := audio.ToMono16k(stereo, audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("ToMono16k: %v", err)
	}
	samples := audio.PCMToInt16(got)
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	for i, s := range samples {
		if s != 200 {
			t.Errorf("sample %d = %d, want 200", i, s)
		}
	}
}

func TestToMono16k_Rejects(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		f    audio.Format
	}{
		{"odd bytes", []byte{1, 2, 3}, audio.DefaultFormat},
		{"six channels", make([]byte, 12), audio.Format{SampleRate: 16000, Channels: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := audio.ToMono16k(tt.pcm, tt.f); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPCMToFloat32(t *testing.T) {
	got := audio.PCMToFloat32(audio.Int16ToPCM([]int16{0, -32768, 16384}))
	want := []float32{0, -1, 0.5}
	if !slices.Equal(got, want) {
		t.Fatalf("PCMToFloat32 = %v, want %v", got, want)
	}
}

func TestNormalizeRMS(t *testing.T) {
	pcm := audio.Int16ToPCM([]int16{1000, -1000, 1000, -1000})
	out, ok := audio.NormalizeRMS(pcm, audio.DefaultNormalizeTarget)
	if !ok {
		t.Fatal("expected normalisation to apply")
	}
	if v := audio.Volume(out); v < 0.299 || v > 0.301 {
		t.Fatalf("normalised volume = %f, want ~0.3", v)
	}
	if audio.Volume(pcm) == audio.Volume(out) {
		t.Fatal("input must not be modified in place")
	}
}

func TestNormalizeRMS_Silence(t *testing.T) {
	pcm := make([]byte, 64)
	out, ok := audio.NormalizeRMS(pcm, 0.3)
	if ok {
		t.Fatal("silence must not be normalised")
	}
	if !slices.Equal(out, pcm) {
		t.Fatal("silence must be returned unchanged")
	}
}
