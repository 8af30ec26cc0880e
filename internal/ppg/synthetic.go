package ppg

import "math"

// SyntheticSource generates a deterministic PPG-like sample stream for
// tests, replay tooling, and demo mode. The waveform is a systolic
// upstroke with a dicrotic bump riding on a DC level, which is close
// enough to a real camera PPG for pipeline exercise; it makes no claim
// of physiological fidelity.
type SyntheticSource struct {
	SampleRateHz float64
	HeartRateBPM float64
	DCLevel      float64
	ACFraction   float64 // pulse amplitude as a fraction of DC
	Noise        float64 // noise amplitude as a fraction of DC

	phase  float64
	tick   uint64
	noiseX float64
}

// NewSyntheticSource returns a source with typical camera-PPG numbers:
// 30 Hz, 72 BPM, DC 150, 5% pulsation.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		SampleRateHz: NominalSampleRateHz,
		HeartRateBPM: 72,
		DCLevel:      150,
		ACFraction:   0.05,
		Noise:        0.002,
	}
}

// Next produces the next sample. Timestamps advance at the configured
// rate starting from zero.
func (s *SyntheticSource) Next() Sample {
	cycleHz := s.HeartRateBPM / 60.0
	s.phase += cycleHz / s.SampleRateHz
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}
	t := s.phase

	// Systolic peak, dicrotic bump, and a slow respiratory wobble.
	systolic := 1.00 * gaussianBump(t, 0.20, 0.045)
	dicrotic := 0.28 * gaussianBump(t, 0.45, 0.07)
	resp := 0.10 * math.Sin(2*math.Pi*0.25*float64(s.tick)/s.SampleRateHz)

	// Cheap deterministic noise: keeps tests reproducible.
	s.noiseX = math.Mod(s.noiseX*997.0+0.618033, 1.0)
	noise := s.Noise * (2*s.noiseX - 1)

	pulse := s.DCLevel * s.ACFraction * (systolic + dicrotic + resp)
	green := s.DCLevel + pulse + s.DCLevel*noise
	// Red pulses more weakly relative to its DC, giving a plausible
	// ratio-of-ratios near the healthy end of the calibration table.
	red := s.DCLevel*1.2 + pulse*0.55 + s.DCLevel*noise*0.8

	timestampMs := uint64(float64(s.tick) * 1000.0 / s.SampleRateHz)
	s.tick++

	return Sample{
		TimestampMs:   timestampMs,
		Value:         green,
		Red:           red,
		Green:         green,
		Blue:          s.DCLevel * 0.6,
		CoverageRatio: 1.0,
	}
}

// Reset rewinds the source to its initial phase.
func (s *SyntheticSource) Reset() {
	s.phase = 0
	s.tick = 0
	s.noiseX = 0
}

func gaussianBump(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}
