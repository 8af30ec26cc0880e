package ppg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// HRV input bounds. Intervals outside the keep range are dropped on
// ingest, never clamped.
const (
	// MinHRVIntervals is the number of valid RR intervals required
	// before any metric is produced. Below this the engine returns the
	// all-zero sentinel.
	MinHRVIntervals = 20

	hrvRRMinMs = 200.0
	hrvRRMaxMs = 2000.0

	// hrvHistoryCap bounds the accumulated RR series (~5 minutes of
	// beats at resting rate).
	hrvHistoryCap = 400
)

// HRVEngine accumulates valid RR intervals over a monitoring session
// and computes time-domain, frequency-domain, and nonlinear metrics on
// demand. It owns its history; Reset clears it for the next session.
type HRVEngine struct {
	intervals *FloatRing
}

// NewHRVEngine constructs an engine with an empty history.
func NewHRVEngine() *HRVEngine {
	return &HRVEngine{intervals: NewFloatRing(hrvHistoryCap)}
}

// Add ingests one RR interval in milliseconds. Values outside the
// physiological range are dropped.
func (e *HRVEngine) Add(rrMs float64) {
	if rrMs < hrvRRMinMs || rrMs > hrvRRMaxMs {
		return
	}
	e.intervals.Push(rrMs)
}

// Count returns the number of retained intervals.
func (e *HRVEngine) Count() int { return e.intervals.Len() }

// Reset clears the accumulated history.
func (e *HRVEngine) Reset() { e.intervals.Clear() }

// Compute returns the full metric set, or the all-zero sentinel when
// fewer than MinHRVIntervals intervals have been accumulated. Partially
// computed values are never returned.
func (e *HRVEngine) Compute() HRVMetrics {
	rr := e.intervals.Values()
	if len(rr) < MinHRVIntervals {
		return HRVMetrics{}
	}

	temporal := computeTemporal(rr)
	frequency := computeFrequency(rr)
	nonlinear := computeNonLinear(rr)

	return HRVMetrics{
		Temporal:  temporal,
		Frequency: frequency,
		NonLinear: nonlinear,
		Indices:   computeIndices(temporal, frequency, nonlinear),
		Intervals: len(rr),
	}
}

// computeTemporal produces the time-domain statistics.
func computeTemporal(rr []float64) TemporalMetrics {
	n := len(rr)
	mean := stat.Mean(rr, nil)

	// SDNN is the population standard deviation of the series.
	var sumSq float64
	for _, v := range rr {
		d := v - mean
		sumSq += d * d
	}
	sdnn := math.Sqrt(sumSq / float64(n))

	// Successive-difference statistics.
	var diffSq float64
	var over50, over20 int
	for i := 1; i < n; i++ {
		d := rr[i] - rr[i-1]
		diffSq += d * d
		if math.Abs(d) > 50 {
			over50++
		}
		if math.Abs(d) > 20 {
			over20++
		}
	}
	rmssd := math.Sqrt(diffSq / float64(n-1))
	pnn50 := 100 * float64(over50) / float64(n-1)
	pnn20 := 100 * float64(over20) / float64(n-1)

	cv := 0.0
	if mean > 1e-9 {
		cv = sdnn / mean
	}

	return TemporalMetrics{
		MeanRR: mean,
		SDNN:   sdnn,
		RMSSD:  rmssd,
		PNN50:  pnn50,
		PNN20:  pnn20,
		CV:     cv,
	}
}
