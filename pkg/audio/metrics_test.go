package audio

import (
	"math"
	"testing"
)

// sine returns one cycle of a sine wave with the given amplitude.
func sine(amplitude float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*float64(i)/float64(n)))
	}
	return out
}

func TestComputeMetrics_RMSOfSineWave(t *testing.T) {
	t.Parallel()

	// RMS of a full-scale-a sine wave is a/√2.
	const a = 0.8
	m := ComputeMetrics(sine(a, 4096))

	want := a / math.Sqrt2
	if math.Abs(m.RMS-want) > 1e-3 {
		t.Errorf("RMS = %v, want ≈ %v", m.RMS, want)
	}
	if math.Abs(m.Peak-a) > 1e-3 {
		t.Errorf("Peak = %v, want ≈ %v", m.Peak, a)
	}
	if m.Clipping {
		t.Error("Clipping = true for a 0.8-amplitude sine wave")
	}
}

func TestComputeMetrics_ClippingThreshold(t *testing.T) {
	t.Parallel()

	below := []float32{0.1, -0.98, 0.5}
	if m := ComputeMetrics(below); m.Clipping {
		t.Errorf("Clipping = true with peak %v, want false at or below 0.99", m.Peak)
	}

	above := []float32{0.1, -0.995, 0.5}
	if m := ComputeMetrics(above); !m.Clipping {
		t.Errorf("Clipping = false with peak %v, want true above 0.99", m.Peak)
	}
}

func TestComputeMetrics_AverageIsMeanSquare(t *testing.T) {
	t.Parallel()

	// Average is deliberately the mean of squared samples, not the mean
	// absolute amplitude.
	samples := []float32{0.5, -0.5, 0.5, -0.5}
	m := ComputeMetrics(samples)

	if math.Abs(m.Average-0.25) > 1e-9 {
		t.Errorf("Average = %v, want 0.25 (mean square)", m.Average)
	}
	if math.Abs(m.RMS-0.5) > 1e-6 {
		t.Errorf("RMS = %v, want 0.5", m.RMS)
	}
	if math.Abs(m.RMS*m.RMS-m.Average) > 1e-9 {
		t.Errorf("RMS² = %v, want equal to Average %v", m.RMS*m.RMS, m.Average)
	}
}

func TestComputeMetrics_SNR(t *testing.T) {
	t.Parallel()

	// Constant amplitude 0.1 → RMS 0.1 → SNR = 10·log10(0.01 / 1e-8) = 60 dB.
	samples := []float32{0.1, 0.1, 0.1, 0.1}
	m := ComputeMetrics(samples)

	if math.Abs(m.SNR-60) > 1e-3 {
		t.Errorf("SNR = %v dB, want 60", m.SNR)
	}
}

func TestComputeMetrics_EmptyBlock(t *testing.T) {
	t.Parallel()

	m := ComputeMetrics(nil)
	if m != (Metrics{}) {
		t.Errorf("ComputeMetrics(nil) = %+v, want zero value", m)
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.5, -0.5, 1, -1}
	got := SamplesFromPCM16(PCM16Bytes(in))

	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1e-3 {
			t.Errorf("sample %d = %v, want ≈ %v", i, got[i], in[i])
		}
	}
}

func TestPCM16Bytes_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	b := PCM16Bytes([]float32{2.0, -2.0})
	got := SamplesFromPCM16(b)

	if got[0] < 0.99 {
		t.Errorf("clamped positive sample = %v, want ≈ 1", got[0])
	}
	if got[1] > -0.99 {
		t.Errorf("clamped negative sample = %v, want ≈ -1", got[1])
	}
}
