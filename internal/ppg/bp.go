package ppg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// BP estimation constants.
const (
	// bpMinPulses is how many accumulated pulse-feature samples are
	// required before the regression output is used. Below this a
	// population baseline is returned at low confidence.
	bpMinPulses = 8

	bpFeatureHistory = 30
	bpSignalWindow   = 90

	// Population baselines for a 30-year-old at rest.
	bpBaseSystolic  = 115.0
	bpBaseDiastolic = 75.0
	bpBasePTTMs     = 800.0
	bpBaseAge       = 30.0

	// Output bounds.
	bpSysMin = 85.0
	bpSysMax = 200.0
	bpDiaMin = 45.0
	bpDiaMax = 120.0
	bpPPMin  = 20.0
	bpPPMax  = 80.0

	// Dicrotic notch scan: stop once the signal rebounds past its
	// minimum-so-far by this fraction of the pulse amplitude.
	notchReboundFraction = 0.05
)

// PulseFeatures pairs one pulse's morphology with its transit-time
// proxy.
type PulseFeatures struct {
	Morphology MorphologyFeatures
	PTTMs      float64 // inter-peak interval; a proxy, true PTT needs two sites
}

// BPModel turns accumulated pulse features into a pressure estimate.
// Competing regressions ship as separate implementations selected at
// construction.
type BPModel interface {
	Name() string
	Estimate(features []PulseFeatures, ageYears float64) BPResult
}

// BloodPressureEstimator extracts pulse-wave morphology from the
// conditioned signal at each accepted beat and regresses systolic and
// diastolic pressure through its model.
type BloodPressureEstimator struct {
	model    BPModel
	ageYears float64

	window   []timedValue // conditioned-signal ring for morphology scans
	head     int
	size     int

	features []PulseFeatures // bounded history
	lastBP   BPResult
	computed bool
}

// NewBloodPressureEstimator constructs an estimator. A nil model
// selects the default additive regression.
func NewBloodPressureEstimator(model BPModel, ageYears float64) *BloodPressureEstimator {
	if model == nil {
		model = AdditiveBPModel{}
	}
	if ageYears <= 0 {
		ageYears = bpBaseAge
	}
	return &BloodPressureEstimator{
		model:    model,
		ageYears: ageYears,
		window:   make([]timedValue, bpSignalWindow),
		features: make([]PulseFeatures, 0, bpFeatureHistory),
	}
}

// Push records one conditioned sample for morphology extraction.
func (e *BloodPressureEstimator) Push(timeMs uint64, value float64) {
	e.window[e.head] = timedValue{timeMs: timeMs, value: value}
	e.head = (e.head + 1) % bpSignalWindow
	if e.size < bpSignalWindow {
		e.size++
	}
}

// OnBeat extracts features for the pulse ending at the accepted peak.
// rrMs is the interval since the previous accepted peak (0 for the
// first beat, which contributes no PTT sample).
func (e *BloodPressureEstimator) OnBeat(peakTimeMs uint64, rrMs float64) {
	if rrMs <= 0 {
		return
	}
	m, ok := e.extractMorphology(peakTimeMs)
	if !ok {
		return
	}
	e.features = append(e.features, PulseFeatures{Morphology: m, PTTMs: rrMs})
	if len(e.features) > bpFeatureHistory {
		e.features = e.features[1:]
	}
	e.computed = false
}

// FeatureCount returns the number of accumulated pulse samples.
func (e *BloodPressureEstimator) FeatureCount() int { return len(e.features) }

// Reset clears the signal window and feature history.
func (e *BloodPressureEstimator) Reset() {
	e.head = 0
	e.size = 0
	e.features = e.features[:0]
	e.lastBP = BPResult{}
	e.computed = false
}

// Estimate returns the current pressure estimate. It never reads as
// 0/0: with insufficient pulses it falls back to an age-adjusted
// population baseline at low confidence.
func (e *BloodPressureEstimator) Estimate() BPResult {
	if e.computed {
		return e.lastBP
	}
	if len(e.features) < bpMinPulses {
		e.lastBP = baselineBP(e.ageYears)
	} else {
		e.lastBP = e.model.Estimate(e.features, e.ageYears)
	}
	e.computed = true
	return e.lastBP
}

func (e *BloodPressureEstimator) at(i int) timedValue {
	start := (e.head - e.size + bpSignalWindow) % bpSignalWindow
	return e.window[(start+i)%bpSignalWindow]
}

// extractMorphology scans around the peak with the given timestamp:
// backward to the preceding valley for amplitude and rise time, forward
// for the dicrotic notch.
func (e *BloodPressureEstimator) extractMorphology(peakTimeMs uint64) (MorphologyFeatures, bool) {
	// Locate the peak sample in the window.
	peakIdx := -1
	for i := e.size - 1; i >= 0; i-- {
		if e.at(i).timeMs == peakTimeMs {
			peakIdx = i
			break
		}
	}
	if peakIdx < 2 {
		return MorphologyFeatures{}, false
	}
	peak := e.at(peakIdx)

	// Preceding valley: walk backward while the signal keeps falling.
	valleyIdx := peakIdx
	valley := peak
	for i := peakIdx - 1; i >= 0; i-- {
		v := e.at(i)
		if v.value <= valley.value {
			valley = v
			valleyIdx = i
		} else if valley.value < peak.value {
			break
		}
	}
	if valleyIdx == peakIdx {
		return MorphologyFeatures{}, false
	}

	amplitude := peak.value - valley.value
	if amplitude <= 0 {
		return MorphologyFeatures{}, false
	}
	riseTime := float64(peak.timeMs - valley.timeMs)

	// Dicrotic notch: forward scan tracking the minimum, stopping once
	// the signal rebounds past it.
	notchDepth := 0.0
	minSoFar := peak.value
	for i := peakIdx + 1; i < e.size; i++ {
		v := e.at(i).value
		if v < minSoFar {
			minSoFar = v
		} else if v > minSoFar+notchReboundFraction*amplitude {
			notchDepth = peak.value - minSoFar
			break
		}
	}

	reflection := 0.0
	if amplitude > 1e-9 {
		reflection = notchDepth / amplitude
	}

	return MorphologyFeatures{
		Amplitude:       amplitude,
		RiseTimeMs:      riseTime,
		NotchDepth:      notchDepth,
		ReflectionIndex: reflection,
	}, true
}

// baselineBP is the age-adjusted population estimate used before the
// regression has enough pulses.
func baselineBP(ageYears float64) BPResult {
	ageOver := math.Max(ageYears-bpBaseAge, 0)
	sys := clamp(112+ageOver*0.4, bpSysMin, bpSysMax)
	dia := clamp(72+ageOver*0.2, bpDiaMin, bpDiaMax)
	sys, dia = enforcePulsePressure(sys, dia)
	return BPResult{
		Systolic:   sys,
		Diastolic:  dia,
		MAP:        dia + (sys-dia)/3,
		Confidence: 15,
	}
}

// enforcePulsePressure forces systolic-diastolic into [bpPPMin,
// bpPPMax] by moving diastolic only.
func enforcePulsePressure(sys, dia float64) (float64, float64) {
	pp := sys - dia
	if pp < bpPPMin {
		dia = sys - bpPPMin
	} else if pp > bpPPMax {
		dia = sys - bpPPMax
	}
	dia = clamp(dia, bpDiaMin, bpDiaMax)
	// Re-check after the diastolic clamp; adjust within the systolic
	// bound if the clamp reopened the violation.
	pp = sys - dia
	if pp < bpPPMin {
		sys = clamp(dia+bpPPMin, bpSysMin, bpSysMax)
	} else if pp > bpPPMax {
		sys = clamp(dia+bpPPMax, bpSysMin, bpSysMax)
	}
	return sys, dia
}

// AdditiveBPModel is the default multi-factor regression: a PTT-linear
// term plus independently weighted morphology corrections and a linear
// age correction above the 30-year baseline.
type AdditiveBPModel struct{}

// Name identifies the model in config and logs.
func (AdditiveBPModel) Name() string { return "additive" }

// Estimate combines the accumulated features.
func (AdditiveBPModel) Estimate(features []PulseFeatures, ageYears float64) BPResult {
	n := len(features)
	ptts := make([]float64, n)
	amps := make([]float64, n)
	rises := make([]float64, n)
	refls := make([]float64, n)
	for i, f := range features {
		ptts[i] = f.PTTMs
		amps[i] = f.Morphology.Amplitude
		rises[i] = f.Morphology.RiseTimeMs
		refls[i] = f.Morphology.ReflectionIndex
	}

	meanPTT := stat.Mean(ptts, nil)
	meanAmp := stat.Mean(amps, nil)
	meanRise := stat.Mean(rises, nil)
	meanRefl := stat.Mean(refls, nil)

	// Shorter transit time implies higher pressure.
	pttTermSys := (bpBasePTTMs - meanPTT) * 0.035
	pttTermDia := (bpBasePTTMs - meanPTT) * 0.020

	// Morphology corrections, each with its own fitted sign and weight.
	ampTerm := (meanAmp/gainTarget - 1.0) * 4.0
	riseTerm := -(meanRise - 200.0) * 0.02
	reflTerm := (meanRefl - 0.3) * 25.0

	ageOver := math.Max(ageYears-bpBaseAge, 0)

	sys := bpBaseSystolic + pttTermSys + ampTerm + riseTerm + reflTerm + ageOver*0.4
	dia := bpBaseDiastolic + pttTermDia + ampTerm*0.5 + reflTerm*0.4 + ageOver*0.2

	sys = clamp(sys, bpSysMin, bpSysMax)
	dia = clamp(dia, bpDiaMin, bpDiaMax)
	sys, dia = enforcePulsePressure(sys, dia)

	avgMorph := MorphologyFeatures{
		Amplitude:       meanAmp,
		RiseTimeMs:      meanRise,
		NotchDepth:      meanAmp * meanRefl,
		ReflectionIndex: meanRefl,
	}

	return BPResult{
		Systolic:   sys,
		Diastolic:  dia,
		MAP:        dia + (sys-dia)/3,
		Confidence: bpConfidence(ptts, meanPTT, meanAmp),
		PTTMs:      meanPTT,
		Morphology: avgMorph,
	}
}

// bpConfidence decreases when the transit-time proxy or amplitude sit
// outside plausible bounds, or when the feature buffer is unstable.
func bpConfidence(ptts []float64, meanPTT, meanAmp float64) float64 {
	conf := 70.0

	if meanPTT < 400 || meanPTT > 1500 {
		conf -= 25
	}
	if meanAmp < 5 || meanAmp > 200 {
		conf -= 20
	}

	if meanPTT > 1e-9 {
		cv := stat.StdDev(ptts, nil) / meanPTT
		if cv > 0.15 {
			conf -= 25 * clamp((cv-0.15)/0.15, 0, 1)
		}
	}

	return clamp(conf, 0, 100)
}
