package audio

import "math"

const (
	// clipThreshold is the fraction of full scale above which a block is
	// flagged as clipping.
	clipThreshold = 0.99

	// noiseFloor is the fixed reference amplitude for the SNR estimate.
	noiseFloor = 1e-4
)

// ComputeMetrics measures one block of samples.
//
// Average is the mean of the squared samples — the same quantity RMS takes
// the square root of, not the mean absolute amplitude. The metric has always
// been defined this way and downstream consumers calibrate against it, so the
// definition is kept and pinned by tests rather than "fixed".
//
// An empty block yields the zero [Metrics] value.
func ComputeMetrics(samples []float32) Metrics {
	if len(samples) == 0 {
		return Metrics{}
	}

	var sumSquares, peak float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	meanSquare := sumSquares / float64(len(samples))
	rms := math.Sqrt(meanSquare)

	return Metrics{
		RMS:      rms,
		Peak:     peak,
		Average:  meanSquare,
		Clipping: peak > clipThreshold,
		SNR:      10 * math.Log10((rms*rms)/(noiseFloor*noiseFloor)),
	}
}
