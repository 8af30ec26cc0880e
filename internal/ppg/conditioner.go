package ppg

import "math"

// Conditioner settings. The band-pass coefficients below assume the
// nominal 30 Hz rate; the baseline and gain stages adapt to whatever
// actually arrives.
const (
	// Baseline EWMA weights: fast during lock-on, slow in steady state.
	baselineFastAlpha   = 0.30
	baselineSlowAlpha   = 0.05
	baselineFastSamples = 10

	// Adaptive gain: rescale the filtered AC component so a tiny real
	// pulsatile signal becomes numerically usable without clipping a
	// large one.
	gainWindowSamples = 30
	gainTarget        = 50.0
	gainMin           = 1.0
	gainMax           = 400.0
	gainEpsilon       = 1e-6
)

// Second-order Butterworth band-pass, 0.5-4 Hz at 30 Hz sampling
// (centre ~1.41 Hz). Precomputed; never recomputed per sample.
const (
	bpB0 = 0.265342
	bpB1 = 0.0
	bpB2 = -0.265342
	bpA1 = -1.405335
	bpA2 = 0.469313
)

// SignalConditioner turns raw channel means into a zero-centred,
// band-limited, gain-normalised pulsatile signal. All state is owned by
// the instance; Reset returns it to the just-constructed state.
type SignalConditioner struct {
	baseline    float64
	sampleCount int

	// Direct form II transposed delay line.
	z1, z2 float64

	recent *FloatRing // post-filter window for the dynamic range estimate
	gain   float64
}

// NewSignalConditioner constructs a conditioner with zeroed state.
func NewSignalConditioner() *SignalConditioner {
	return &SignalConditioner{
		recent: NewFloatRing(gainWindowSamples),
		gain:   gainMin,
	}
}

// Process conditions one raw sample value and returns the usable AC
// component. The DC baseline is tracked with a two-speed EWMA: fast for
// the first few samples so startup does not lag, slow afterwards so a
// beat does not drag the baseline around.
func (c *SignalConditioner) Process(raw float64) float64 {
	alpha := baselineSlowAlpha
	if c.sampleCount < baselineFastSamples {
		alpha = baselineFastAlpha
	}
	if c.sampleCount == 0 {
		c.baseline = raw
	} else {
		c.baseline = c.baseline*(1-alpha) + raw*alpha
	}
	c.sampleCount++

	ac := raw - c.baseline
	filtered := c.bandpass(ac)

	c.recent.Push(filtered)
	c.updateGain()

	return filtered * c.gain
}

// Baseline returns the current DC estimate.
func (c *SignalConditioner) Baseline() float64 { return c.baseline }

// Gain returns the current adaptive gain factor.
func (c *SignalConditioner) Gain() float64 { return c.gain }

// SampleCount returns how many samples have been processed since the
// last Reset.
func (c *SignalConditioner) SampleCount() int { return c.sampleCount }

// Reset clears the baseline, filter delay line, and gain history.
func (c *SignalConditioner) Reset() {
	c.baseline = 0
	c.sampleCount = 0
	c.z1, c.z2 = 0, 0
	c.recent.Clear()
	c.gain = gainMin
}

func (c *SignalConditioner) bandpass(x float64) float64 {
	y := bpB0*x + c.z1
	c.z1 = bpB1*x - bpA1*y + c.z2
	c.z2 = bpB2*x - bpA2*y
	return y
}

func (c *SignalConditioner) updateGain() {
	// Need a reasonably full window before trusting the range estimate.
	if c.recent.Len() < gainWindowSamples/2 {
		return
	}
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for i := 0; i < c.recent.Len(); i++ {
		v, _ := c.recent.Last(i)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	dynamicRange := hi - lo
	g := gainTarget / math.Max(dynamicRange, gainEpsilon)
	if g < gainMin {
		g = gainMin
	}
	if g > gainMax {
		g = gainMax
	}
	c.gain = g
}
