package audio_test

import (
	"math"
	"testing"

	"github.com/auricle-ai/auricle/pkg/audio"
)

func TestToFloat32_Range(t *testing.T) {
	t.Parallel()
	got := audio.ToFloat32([]int16{-32768, 0, 16384, 32767})
	want := []float32{-1.0, 0, 0.5, 32767.0 / 32768.0}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("ToFloat32[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS(make([]int16, 100)); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}

	// Constant amplitude 16384 (0.5 normalised) has RMS 0.5.
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = 16384
	}
	if got := audio.RMS(samples); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("RMS(0.5 DC) = %v, want 0.5", got)
	}
}

func TestBytesInt16RoundTrip(t *testing.T) {
	t.Parallel()
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	got := audio.BytesToInt16LE(audio.Int16ToBytesLE(samples))
	if len(got) != len(samples) {
		t.Fatalf("round trip length = %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("round trip[%d] = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestBytesToInt16LE_DropsTrailingOddByte(t *testing.T) {
	t.Parallel()
	got := audio.BytesToInt16LE([]byte{0x01, 0x00, 0xFF})
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("BytesToInt16LE = %v, want [1]", got)
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	got := audio.StereoToMono([]int16{100, 200, -100, 100, 32767, 32767})
	want := []int16{150, 0, 32767}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("StereoToMono[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono_Identity(t *testing.T) {
	t.Parallel()
	in := []int16{1, 2, 3, 4}
	got := audio.ResampleMono(in, 16000, 16000)
	if len(got) != len(in) {
		t.Fatalf("identity resample changed length: %d → %d", len(in), len(got))
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	t.Parallel()
	// 48 kHz → 16 kHz triples down: output length is len/3.
	in := make([]int16, 480)
	for i := range in {
		in[i] = int16(i)
	}
	got := audio.ResampleMono(in, 48000, 16000)
	if len(got) != 160 {
		t.Fatalf("len = %d, want 160", len(got))
	}
	// Linear interpolation of a ramp reproduces the ramp at the new rate.
	for i, s := range got {
		want := int16(i * 3)
		if s != want {
			t.Errorf("got[%d] = %d, want %d", i, s, want)
		}
	}
}

func TestResampleMono_Upsample(t *testing.T) {
	t.Parallel()
	in := []int16{0, 100}
	got := audio.ResampleMono(in, 8000, 16000)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0] != 0 || got[1] != 50 {
		t.Errorf("interpolated samples = %v, want ramp start [0 50 …]", got[:2])
	}
}

func TestChunkDuration(t *testing.T) {
	t.Parallel()
	c := audio.Chunk{Samples: make([]int16, 16000), SampleRate: 16000}
	if got := c.Duration().Seconds(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Duration() = %vs, want 1s", got)
	}
	zero := audio.Chunk{Samples: make([]int16, 10)}
	if zero.Duration() != 0 {
		t.Errorf("Duration() with zero rate = %v, want 0", zero.Duration())
	}
}
