package ppg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SpO2 input gates and model constants.
const (
	spo2MinDC = 5.0
	spo2MinAC = 0.001
	spo2MinPI = 0.05 // percent

	spo2RMin = 0.35
	spo2RMax = 2.6

	// Model blend: empirical table vs linear formula.
	spo2TableWeight   = 0.6
	spo2FormulaWeight = 0.4

	// Output clamp before the final 100 cap.
	spo2Floor = 50.0
	spo2Ceil  = 105.0

	// Channel AC window (~2s) and DC tracking speed.
	spo2ACWindow = 60
	spo2DCAlpha  = 0.05

	// Rolling consistency window: recent outputs swinging more than
	// this many points are flagged INCONSISTENT.
	spo2ConsistencyWindow = 5
	spo2ConsistencySwing  = 8.0

	// R history used for the stability term of confidence.
	spo2RHistory = 20
)

// CalibrationPoint maps a ratio-of-ratios value to an SpO2 percentage.
type CalibrationPoint struct {
	R    float64 `json:"r"`
	SpO2 float64 `json:"spo2"`
}

// defaultCalibrationTable spans R=0.4 (healthy) down to R=2.5 (severe
// desaturation). Derived empirically for visible-light camera channels,
// not medical red/IR hardware. Monotonically non-increasing in R.
var defaultCalibrationTable = []CalibrationPoint{
	{R: 0.4, SpO2: 100},
	{R: 0.6, SpO2: 99},
	{R: 0.8, SpO2: 97},
	{R: 1.0, SpO2: 94},
	{R: 1.2, SpO2: 90},
	{R: 1.5, SpO2: 85},
	{R: 1.8, SpO2: 81},
	{R: 2.0, SpO2: 78},
	{R: 2.2, SpO2: 75},
	{R: 2.5, SpO2: 70},
}

// channelStats tracks the AC and DC components of one optical channel.
type channelStats struct {
	dc     float64
	warmed bool
	window *FloatRing
}

func newChannelStats() *channelStats {
	return &channelStats{window: NewFloatRing(spo2ACWindow)}
}

func (c *channelStats) push(v float64) {
	if !c.warmed {
		c.dc = v
		c.warmed = true
	} else {
		c.dc = c.dc*(1-spo2DCAlpha) + v*spo2DCAlpha
	}
	c.window.Push(v - c.dc)
}

// ac returns half the peak-to-peak excursion of the detrended window.
func (c *channelStats) ac() float64 {
	if c.window.Len() < spo2ACWindow/2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < c.window.Len(); i++ {
		v, _ := c.window.Last(i)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return (hi - lo) / 2
}

func (c *channelStats) reset() {
	c.dc = 0
	c.warmed = false
	c.window.Clear()
}

// SpO2Calibrator estimates blood-oxygen saturation from the red/green
// ratio-of-ratios. True pulse oximetry needs red and infrared channels;
// with a visible-light camera the green channel stands in for IR, so
// the output is a trend indicator, not a medical measurement.
type SpO2Calibrator struct {
	table []CalibrationPoint

	red   *channelStats
	green *channelStats

	rHistory *FloatRing
	recent   *FloatRing // recent SpO2 outputs for the consistency flag
}

// NewSpO2Calibrator constructs a calibrator. A nil or empty table
// selects the default empirical calibration.
func NewSpO2Calibrator(table []CalibrationPoint) *SpO2Calibrator {
	if len(table) == 0 {
		table = defaultCalibrationTable
	}
	return &SpO2Calibrator{
		table:    table,
		red:      newChannelStats(),
		green:    newChannelStats(),
		rHistory: NewFloatRing(spo2RHistory),
		recent:   NewFloatRing(spo2ConsistencyWindow),
	}
}

// Push records one sample's red and green channel means.
func (c *SpO2Calibrator) Push(s Sample) {
	c.red.push(s.Red)
	c.green.push(s.Green)
}

// Reset clears channel tracking and histories.
func (c *SpO2Calibrator) Reset() {
	c.red.reset()
	c.green.reset()
	c.rHistory.Clear()
	c.recent.Clear()
}

// Compute produces the current estimate. Insufficient or implausible
// signal yields an invalid result with a typed reason, never an error.
func (c *SpO2Calibrator) Compute() SpO2Result {
	acRed, dcRed := c.red.ac(), c.red.dc
	acGreen, dcGreen := c.green.ac(), c.green.dc

	if dcRed < spo2MinDC || dcGreen < spo2MinDC {
		return SpO2Result{IsValid: false, Reason: ReasonNoFinger}
	}
	if acRed < spo2MinAC || acGreen < spo2MinAC {
		return SpO2Result{IsValid: false, Reason: ReasonNoSignal}
	}

	pi := acGreen / dcGreen * 100
	if pi < spo2MinPI {
		return SpO2Result{PerfusionIndex: pi, IsValid: false, Reason: ReasonLowPulsatility}
	}

	r := (acRed / dcRed) / (acGreen / dcGreen)
	if r < spo2RMin || r > spo2RMax {
		return SpO2Result{RatioR: r, PerfusionIndex: pi, IsValid: false, Reason: ReasonInvalidR}
	}
	c.rHistory.Push(r)

	// Blend the empirical table with the linear approximation. The
	// table carries the calibrated shape; the formula smooths between
	// its control points.
	tableSpO2 := c.tableLookup(r)
	formulaSpO2 := 100 - 15*(r-0.8)
	spo2 := spo2TableWeight*tableSpO2 + spo2FormulaWeight*formulaSpO2

	// Perfusion correction: a very weak signal underestimates, a
	// saturated one overestimates.
	switch {
	case pi < 0.3:
		spo2 += 1.5 * (0.3 - pi) / 0.3
	case pi > 6.0:
		spo2 -= math.Min((pi-6.0)*0.5, 2.0)
	}

	spo2 = clamp(spo2, spo2Floor, spo2Ceil)
	if spo2 > 100 {
		spo2 = 100
	}

	res := SpO2Result{
		SpO2:           spo2,
		RatioR:         r,
		PerfusionIndex: pi,
		IsValid:        true,
	}
	res.Confidence = c.confidence(r, pi)

	// Consistency: wide swings across the recent outputs lower trust
	// but do not invalidate the reading.
	c.recent.Push(spo2)
	if c.recent.Full() {
		vals := c.recent.Values()
		lo, hi := vals[0], vals[0]
		for _, v := range vals {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi-lo > spo2ConsistencySwing {
			res.Reason = ReasonInconsistent
			res.Confidence *= 0.6
		}
	}

	return res
}

// tableLookup interpolates piecewise-linearly over the calibration
// control points, clamping outside their span.
func (c *SpO2Calibrator) tableLookup(r float64) float64 {
	table := c.table
	if r <= table[0].R {
		return table[0].SpO2
	}
	last := table[len(table)-1]
	if r >= last.R {
		return last.SpO2
	}
	for i := 1; i < len(table); i++ {
		if r <= table[i].R {
			lo, hi := table[i-1], table[i]
			frac := (r - lo.R) / (hi.R - lo.R)
			return lo.SpO2 + frac*(hi.SpO2-lo.SpO2)
		}
	}
	return last.SpO2
}

// confidence degrades as R leaves the healthy neighbourhood, as
// perfusion leaves its nominal band, and as the R history destabilises.
func (c *SpO2Calibrator) confidence(r, pi float64) float64 {
	conf := 100.0

	conf -= 30 * clamp(math.Abs(r-1.0)/1.5, 0, 1)

	if pi < 0.3 {
		conf -= 25 * clamp((0.3-pi)/0.3, 0, 1)
	} else if pi > 5.0 {
		conf -= 25 * clamp((pi-5.0)/5.0, 0, 1)
	}

	if c.rHistory.Len() >= 5 {
		vals := c.rHistory.Values()
		mean := stat.Mean(vals, nil)
		if mean > 1e-9 {
			cv := stat.StdDev(vals, nil) / mean
			if cv > 0.10 {
				conf -= 25 * clamp((cv-0.10)/0.10, 0, 1)
			}
		}
	}

	return clamp(conf, 0, 100)
}
