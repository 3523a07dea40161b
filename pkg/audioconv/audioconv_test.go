package audioconv

import (
	"math"
	"testing"
)

func TestDownmixInterleaved(t *testing.T) {
	t.Parallel()

	stereo := []float32{0.5, -0.5, 1.0, 0.0, -0.25, 0.75}

	mono := DownmixInterleaved(stereo, 2)

	want := []float32{0, 0.5, 0.25}
	if len(mono) != len(want) {
		t.Fatalf("DownmixInterleaved returned %d frames, want %d", len(mono), len(want))
	}
	for i := range want {
		if math.Abs(float64(mono[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d = %f, want %f", i, mono[i], want[i])
		}
	}
}

func TestDownmixInterleaved_MonoPassthrough(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2, 0.3}
	if out := DownmixInterleaved(in, 1); len(out) != 3 || out[0] != 0.1 {
		t.Errorf("mono input should pass through unchanged, got %v", out)
	}
}

func TestResampleLinear_Halves(t *testing.T) {
	t.Parallel()

	in := make([]float32, 32000)
	for i := range in {
		in[i] = float32(i) / 32000
	}

	out := ResampleLinear(in, 32000, 16000)

	if len(out) != 16000 {
		t.Fatalf("ResampleLinear(32k->16k) returned %d samples, want 16000", len(out))
	}
	// A linear ramp must survive linear resampling.
	for _, i := range []int{0, 4000, 8000, 15000} {
		want := float32(i) * 2 / 32000
		if math.Abs(float64(out[i]-want)) > 1e-4 {
			t.Errorf("out[%d] = %f, want %f", i, out[i], want)
		}
	}
}

func TestResampleLinear_SameRate(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2}
	out := ResampleLinear(in, 16000, 16000)
	if len(out) != 2 || out[1] != 0.2 {
		t.Errorf("same-rate resample should be identity, got %v", out)
	}
}

func TestInt16Float32_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 16384, -16384, 32767, -32768}

	f := Int16ToFloat32(in)
	back := Float32ToInt16(f)

	for i := range in {
		diff := int(in[i]) - int(back[i])
		if diff < -2 || diff > 2 {
			t.Errorf("sample %d: %d -> %f -> %d", i, in[i], f[i], back[i])
		}
	}
}

func TestFloat32ToInt16_Clips(t *testing.T) {
	t.Parallel()

	out := Float32ToInt16([]float32{1.5, -1.5})
	if out[0] != 32767 {
		t.Errorf("overdriven sample = %d, want 32767", out[0])
	}
	if out[1] != -32767 {
		t.Errorf("underdriven sample = %d, want -32767", out[1])
	}
}

func TestDecodeFile_UnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := DecodeFile("testdata/missing.flac", Options{}); err == nil {
		t.Error("DecodeFile on a missing file should fail")
	}
}
