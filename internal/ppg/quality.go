package ppg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Quality analysis windows at the nominal 30 Hz rate.
const (
	periodicityWindow  = 60 // ~2s of conditioned signal
	variationWindow    = 30 // ~1s of raw signal
	qualityMinSamples  = 30
	qualityNeutral     = 30.0
	minPeriodicityLag  = 40  // BPM
	maxPeriodicityLag  = 180 // BPM

	// Empirical variation thresholds: CV around 0.05 means strong real
	// pulsation, around 0.01 means a static surface.
	variationStrongCV = 0.05
	variationFloorCV  = 0.01

	// Validity bars. A clean 5% pulsation on a 150 DC baseline scores
	// around 0.08 on variation, so the bar sits well under that.
	minValidVariation   = 0.05
	minValidPeriodicity = 0.20

	// A DC level this low means nothing is covering the lens.
	minTissueDC = 5.0
)

// QualityFactors are the per-window measurements handed to a strategy.
// They are outputs of the window only; nothing here feeds back into the
// analyzers that produced it.
type QualityFactors struct {
	Periodicity    float64 // 0..1, cardiac-band autocorrelation peak
	Variation      float64 // 0..1, scaled coefficient of variation
	PerfusionIndex float64 // AC/DC * 100
	MeanDC         float64
	Coverage       float64 // ROI tissue fraction, -1 if unreported
	Saturation     float64 // clipped-pixel fraction, -1 if unreported
	SampleCount    int
}

// QualityStrategy combines window measurements into a score. Different
// weighting schemes ship as separate implementations selected at
// construction, so models can be compared without duplicating the
// pipeline.
type QualityStrategy interface {
	Name() string
	Combine(f QualityFactors) QualityResult
}

// QualityAnalyzer computes periodicity, pulsatile variation strength,
// and perfusion index over sliding windows, then delegates scoring to
// its strategy.
type QualityAnalyzer struct {
	strategy    QualityStrategy
	conditioned *FloatRing
	raw         *FloatRing
	timesMs     *FloatRing
	count       int

	// scratch slices reused by CopyInto so Analyze allocates nothing
	// on the per-sample path.
	scratchCond []float64
	scratchRaw  []float64
	scratchTs   []float64

	lastCoverage   float64
	lastSaturation float64
}

// NewQualityAnalyzer constructs an analyzer. A nil strategy selects the
// default weighted model.
func NewQualityAnalyzer(strategy QualityStrategy) *QualityAnalyzer {
	if strategy == nil {
		strategy = DefaultQualityStrategy{}
	}
	return &QualityAnalyzer{
		strategy:       strategy,
		conditioned:    NewFloatRing(periodicityWindow),
		raw:            NewFloatRing(variationWindow),
		timesMs:        NewFloatRing(periodicityWindow),
		scratchCond:    make([]float64, periodicityWindow),
		scratchRaw:     make([]float64, variationWindow),
		scratchTs:      make([]float64, periodicityWindow),
		lastCoverage:   -1,
		lastSaturation: -1,
	}
}

// Push records one sample's raw and conditioned values.
func (qa *QualityAnalyzer) Push(s Sample, conditioned float64) {
	qa.conditioned.Push(conditioned)
	qa.raw.Push(s.Value)
	qa.timesMs.Push(float64(s.TimestampMs))
	qa.count++
	if s.CoverageRatio > 0 {
		qa.lastCoverage = s.CoverageRatio
	}
	if s.SaturationRatio > 0 {
		qa.lastSaturation = s.SaturationRatio
	}
}

// Analyze scores the current windows. Before the warm-up count it
// returns a neutral, valid result so a starting session does not flap
// between valid and invalid.
func (qa *QualityAnalyzer) Analyze() QualityResult {
	if qa.count < qualityMinSamples {
		return QualityResult{Quality: qualityNeutral, IsValid: true}
	}

	nraw := qa.raw.CopyInto(qa.scratchRaw)
	f := QualityFactors{
		Periodicity:    qa.periodicity(),
		Variation:      qa.variationStrength(),
		PerfusionIndex: qa.perfusionIndex(),
		MeanDC:         stat.Mean(qa.scratchRaw[:nraw], nil),
		Coverage:       qa.lastCoverage,
		Saturation:     qa.lastSaturation,
		SampleCount:    qa.count,
	}
	return qa.strategy.Combine(f)
}

// Reset clears all windows.
func (qa *QualityAnalyzer) Reset() {
	qa.conditioned.Clear()
	qa.raw.Clear()
	qa.timesMs.Clear()
	qa.count = 0
	qa.lastCoverage = -1
	qa.lastSaturation = -1
}

// periodicity is the maximum normalized autocorrelation of the
// conditioned window, evaluated only at lags inside the cardiac band
// (40-180 BPM). A near-constant window scores zero.
func (qa *QualityAnalyzer) periodicity() float64 {
	n := qa.conditioned.CopyInto(qa.scratchCond)
	vals := qa.scratchCond[:n]
	if n < periodicityWindow/2 {
		return 0
	}

	mean := stat.Mean(vals, nil)
	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	if variance < 1e-9 {
		return 0
	}

	dt := qa.meanDtMs()
	if dt <= 0 {
		return 0
	}
	minLag := int(math.Round(60000.0 / float64(maxPeriodicityLag) / dt))
	maxLag := int(math.Round(60000.0 / float64(minPeriodicityLag) / dt))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag > n-2 {
		maxLag = n - 2
	}

	best := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += (vals[i] - mean) * (vals[i+lag] - mean)
		}
		corr := sum / (float64(n-lag) * variance)
		if corr > best {
			best = corr
		}
	}
	if best > 1 {
		best = 1
	}
	return best
}

// variationStrength scales the raw window's coefficient of variation
// between the static-surface and strong-pulsation thresholds.
func (qa *QualityAnalyzer) variationStrength() float64 {
	n := qa.raw.CopyInto(qa.scratchRaw)
	vals := qa.scratchRaw[:n]
	if n < variationWindow/2 {
		return 0
	}
	mean := stat.Mean(vals, nil)
	if math.Abs(mean) < 1e-9 {
		return 0
	}
	cv := stat.StdDev(vals, nil) / math.Abs(mean)
	score := (cv - variationFloorCV) / (variationStrongCV - variationFloorCV)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// perfusionIndex is AC amplitude over DC level, in percent.
func (qa *QualityAnalyzer) perfusionIndex() float64 {
	n := qa.raw.CopyInto(qa.scratchRaw)
	vals := qa.scratchRaw[:n]
	if n == 0 {
		return 0
	}
	lo, hi := vals[0], vals[0]
	var sum float64
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		sum += v
	}
	dc := sum / float64(len(vals))
	if dc < 1e-9 {
		return 0
	}
	return (hi - lo) / 2 / dc * 100
}

func (qa *QualityAnalyzer) meanDtMs() float64 {
	n := qa.timesMs.CopyInto(qa.scratchTs)
	ts := qa.scratchTs[:n]
	if n < 2 {
		return 1000.0 / NominalSampleRateHz
	}
	span := ts[len(ts)-1] - ts[0]
	if span <= 0 {
		return 1000.0 / NominalSampleRateHz
	}
	return span / float64(len(ts)-1)
}

// DefaultQualityStrategy is the validated weighted model: periodicity
// 60%, variation 30%, perfusion 10%.
type DefaultQualityStrategy struct{}

// Name identifies the strategy in config and logs.
func (DefaultQualityStrategy) Name() string { return "weighted" }

// Combine applies the fixed weights and validity bars.
func (DefaultQualityStrategy) Combine(f QualityFactors) QualityResult {
	// Perfusion contributes on a 0..1 scale where 2% PI is already a
	// strong optical signal for a camera sensor.
	piScore := f.PerfusionIndex / 2.0
	if piScore > 1 {
		piScore = 1
	}

	quality := clamp(100*(0.6*f.Periodicity+0.3*f.Variation+0.1*piScore), 0, 100)

	res := QualityResult{
		Quality:        quality,
		PerfusionIndex: f.PerfusionIndex,
		IsValid:        true,
	}

	switch {
	case f.MeanDC < minTissueDC:
		res.IsValid = false
		res.Reason = ReasonNoFinger
	case f.Variation < minValidVariation && f.Periodicity < minValidPeriodicity:
		res.IsValid = false
		res.Reason = ReasonNoSignal
	case f.Variation < minValidVariation:
		res.IsValid = false
		res.Reason = ReasonLowPulsatility
	case f.Periodicity < minValidPeriodicity:
		res.IsValid = false
		res.Reason = ReasonTooNoisy
	}
	return res
}

// CoverageQualityStrategy is the alternate model used when the camera
// collaborator reports per-frame ROI coverage and clipping. It reweights
// toward signal stability and tissue confidence.
type CoverageQualityStrategy struct{}

// Name identifies the strategy in config and logs.
func (CoverageQualityStrategy) Name() string { return "coverage" }

// Combine weights periodicity 40%, variation 20%, perfusion 10%, and
// tissue confidence 30%, and invalidates heavily clipped frames.
func (CoverageQualityStrategy) Combine(f QualityFactors) QualityResult {
	piScore := f.PerfusionIndex / 2.0
	if piScore > 1 {
		piScore = 1
	}

	tissue := 0.5 // unknown coverage: neither reward nor punish fully
	if f.Coverage >= 0 {
		tissue = clamp(f.Coverage, 0, 1)
	}

	quality := clamp(100*(0.4*f.Periodicity+0.2*f.Variation+0.1*piScore+0.3*tissue), 0, 100)

	res := QualityResult{
		Quality:        quality,
		PerfusionIndex: f.PerfusionIndex,
		IsValid:        true,
	}

	switch {
	case f.MeanDC < minTissueDC || (f.Coverage >= 0 && f.Coverage < 0.3):
		res.IsValid = false
		res.Reason = ReasonNoFinger
	case f.Saturation > 0.5:
		res.IsValid = false
		res.Reason = ReasonMotionArtifact
	case f.Variation < minValidVariation:
		res.IsValid = false
		res.Reason = ReasonLowPulsatility
	case f.Periodicity < minValidPeriodicity:
		res.IsValid = false
		res.Reason = ReasonTooNoisy
	}
	return res
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
