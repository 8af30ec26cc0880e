package ppg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Standard short-term HRV frequency bands (Hz).
const (
	vlfLowHz  = 0.003
	vlfHighHz = 0.04
	lfLowHz   = 0.04
	lfHighHz  = 0.15
	hfLowHz   = 0.15
	hfHighHz  = 0.4

	// Test frequencies per band for the discretized projection.
	bandTestFreqs = 16
)

// computeFrequency estimates VLF/LF/HF band power from the RR series.
//
// The RR series is unevenly sampled in time (each beat arrives when it
// arrives), which rules out a plain FFT without resampling. Instead the
// detrended series is projected onto sine/cosine pairs at test
// frequencies inside each band and the squared correlations are
// averaged, a discretized Lomb-Scargle-style estimate.
func computeFrequency(rr []float64) FrequencyMetrics {
	n := len(rr)
	if n < 3 {
		return FrequencyMetrics{}
	}

	// Beat times: cumulative RR sum, in seconds.
	times := make([]float64, n)
	var cum float64
	for i, v := range rr {
		cum += v / 1000.0
		times[i] = cum
	}

	// Detrend by removing the mean.
	mean := stat.Mean(rr, nil)
	detrended := make([]float64, n)
	for i, v := range rr {
		detrended[i] = v - mean
	}

	vlf := bandPower(times, detrended, vlfLowHz, vlfHighHz)
	lf := bandPower(times, detrended, lfLowHz, lfHighHz)
	hf := bandPower(times, detrended, hfLowHz, hfHighHz)
	total := vlf + lf + hf

	m := FrequencyMetrics{
		VLFPower:   vlf,
		LFPower:    lf,
		HFPower:    hf,
		TotalPower: total,
	}
	if hf > 1e-9 {
		m.LFHFRatio = lf / hf
	}
	if lf+hf > 1e-9 {
		m.LFNorm = 100 * lf / (lf + hf)
		m.HFNorm = 100 * hf / (lf + hf)
	}
	return m
}

// bandPower averages the periodogram over test frequencies in
// [lowHz, highHz).
func bandPower(times, values []float64, lowHz, highHz float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	// The record must be long enough to resolve the band at all; a
	// window shorter than one cycle of the band's low edge contributes
	// noise, not power.
	span := times[n-1] - times[0]
	if span <= 0 || span < 1.0/highHz {
		return 0
	}

	step := (highHz - lowHz) / float64(bandTestFreqs)
	var sum float64
	var count int
	for k := 0; k < bandTestFreqs; k++ {
		f := lowHz + (float64(k)+0.5)*step
		if f < 1.0/span {
			// Unresolvable at this record length.
			continue
		}
		var c, s float64
		for i := 0; i < n; i++ {
			phase := 2 * math.Pi * f * times[i]
			c += values[i] * math.Cos(phase)
			s += values[i] * math.Sin(phase)
		}
		sum += (c*c + s*s) / float64(n)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
