package ppg

import (
	"math"
	"sort"
)

// DetectorState tracks where the detector is in its accept cycle.
type DetectorState int

const (
	// StateObserving means the detector is free to accept a peak.
	StateObserving DetectorState = iota
	// StateRefractory means a peak was just accepted and further
	// candidates are suppressed until the refractory period elapses.
	StateRefractory
)

// PeakDetectorConfig holds tuning for the adaptive peak detector.
type PeakDetectorConfig struct {
	// WindowSize is the sliding window length in samples (~3s at 30 Hz).
	WindowSize int

	// MinSamples is the number of buffered points required before the
	// adaptive threshold is trusted.
	MinSamples int

	// IQRFactor scales the interquartile range in the threshold
	// median + IQRFactor*IQR. Robust to outliers, unlike mean+sigma.
	IQRFactor float64

	// LocalHalfWindow is the half-width of the symmetric neighbourhood a
	// candidate must strictly dominate.
	LocalHalfWindow int

	// MinProminence is the floor on peak height above the local minimum.
	MinProminence float64

	// RefractoryMs suppresses a second acceptance within this many
	// milliseconds of the last (caps rate at ~240 BPM).
	RefractoryMs float64

	// RRMinMs/RRMaxMs bound intervals used for the displayed BPM
	// (40-200 BPM).
	RRMinMs float64
	RRMaxMs float64

	// RRKeepMaxMs is the wider upper bound for intervals handed to
	// downstream consumers (HRV, BP).
	RRKeepMaxMs float64

	// PeakHistory bounds the retained accepted peaks.
	PeakHistory int

	// BPMMedianCount is how many recent valid intervals feed the
	// median-based instantaneous BPM.
	BPMMedianCount int
}

// DefaultPeakDetectorConfig returns the tuning used in production.
func DefaultPeakDetectorConfig() PeakDetectorConfig {
	return PeakDetectorConfig{
		WindowSize:      90,
		MinSamples:      30,
		IQRFactor:       0.3,
		LocalHalfWindow: 3,
		MinProminence:   1.0,
		RefractoryMs:    250,
		RRMinMs:         300,
		RRMaxMs:         1500,
		RRKeepMaxMs:     2000,
		PeakHistory:     20,
		BPMMedianCount:  5,
	}
}

// DetectResult is the per-sample detector output. Peak and RRMs are
// meaningful only when IsPeak is true; RRMs is 0 when the interval to
// the previous peak fell outside the physiological keep bound.
type DetectResult struct {
	IsPeak bool
	BPM    float64
	Peak   Peak
	RRMs   float64
}

type timedValue struct {
	timeMs uint64
	value  float64
}

// PeakDetector converts the conditioned sample stream into discrete
// beat events and inter-beat intervals using an adaptive
// median+IQR threshold, prominence screening, and a refractory period.
type PeakDetector struct {
	cfg PeakDetectorConfig

	window   []timedValue // ring of recent conditioned samples
	head     int
	size     int
	totalIdx int // running sample index (for Peak.Index)

	state        DetectorState
	lastPeakTime uint64
	hasPeak      bool

	peaks     []Peak    // bounded accepted-peak history
	intervals []float64 // RR intervals in [RRMinMs, RRKeepMaxMs], bounded

	scratch []float64 // reused for threshold computation
}

// NewPeakDetector constructs a detector with the given configuration.
// Zero fields are replaced by defaults.
func NewPeakDetector(cfg PeakDetectorConfig) *PeakDetector {
	def := DefaultPeakDetectorConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.IQRFactor <= 0 {
		cfg.IQRFactor = def.IQRFactor
	}
	if cfg.LocalHalfWindow <= 0 {
		cfg.LocalHalfWindow = def.LocalHalfWindow
	}
	if cfg.MinProminence <= 0 {
		cfg.MinProminence = def.MinProminence
	}
	if cfg.RefractoryMs <= 0 {
		cfg.RefractoryMs = def.RefractoryMs
	}
	if cfg.RRMinMs <= 0 {
		cfg.RRMinMs = def.RRMinMs
	}
	if cfg.RRMaxMs <= 0 {
		cfg.RRMaxMs = def.RRMaxMs
	}
	if cfg.RRKeepMaxMs <= 0 {
		cfg.RRKeepMaxMs = def.RRKeepMaxMs
	}
	if cfg.PeakHistory <= 0 {
		cfg.PeakHistory = def.PeakHistory
	}
	if cfg.BPMMedianCount <= 0 {
		cfg.BPMMedianCount = def.BPMMedianCount
	}
	return &PeakDetector{
		cfg:     cfg,
		window:  make([]timedValue, cfg.WindowSize),
		peaks:   make([]Peak, 0, cfg.PeakHistory),
		scratch: make([]float64, 0, cfg.WindowSize),
	}
}

// Process appends one conditioned sample and reports whether it
// confirms a beat. Confirmation lags acquisition by LocalHalfWindow
// samples because a candidate must be a strict local maximum over a
// symmetric neighbourhood.
func (d *PeakDetector) Process(timeMs uint64, value float64) DetectResult {
	d.push(timeMs, value)
	d.totalIdx++

	if d.size < d.cfg.MinSamples {
		return DetectResult{BPM: d.currentBPM()}
	}

	// Leave refractory once enough time has passed since the last
	// accepted peak.
	if d.state == StateRefractory {
		latest := d.at(d.size - 1)
		if float64(latest.timeMs-d.lastPeakTime) > d.cfg.RefractoryMs {
			d.state = StateObserving
		}
	}

	threshold := d.adaptiveThreshold()

	// Candidate position: LocalHalfWindow samples back from the newest,
	// so the full symmetric neighbourhood is available.
	ci := d.size - 1 - d.cfg.LocalHalfWindow
	if ci < d.cfg.LocalHalfWindow {
		return DetectResult{BPM: d.currentBPM()}
	}

	cand := d.at(ci)
	if cand.value <= threshold {
		return DetectResult{BPM: d.currentBPM()}
	}

	localMin := cand.value
	isMax := true
	for off := -d.cfg.LocalHalfWindow; off <= d.cfg.LocalHalfWindow; off++ {
		if off == 0 {
			continue
		}
		n := d.at(ci + off)
		if n.value >= cand.value {
			isMax = false
			break
		}
		if n.value < localMin {
			localMin = n.value
		}
	}
	if !isMax {
		return DetectResult{BPM: d.currentBPM()}
	}

	prominence := cand.value - localMin
	if prominence < d.cfg.MinProminence {
		return DetectResult{BPM: d.currentBPM()}
	}

	// Refractory enforcement against the candidate's own capture time,
	// not the wall clock, so irregular delivery cannot double-count.
	if d.state == StateRefractory {
		return DetectResult{BPM: d.currentBPM()}
	}
	if d.hasPeak && float64(cand.timeMs-d.lastPeakTime) <= d.cfg.RefractoryMs {
		return DetectResult{BPM: d.currentBPM()}
	}

	p := Peak{
		Index:      d.totalIdx - 1 - d.cfg.LocalHalfWindow,
		TimeMs:     cand.timeMs,
		Value:      cand.value,
		Prominence: prominence,
	}
	rr := d.accept(p)

	return DetectResult{IsPeak: true, BPM: d.currentBPM(), Peak: p, RRMs: rr}
}

// ValidIntervals returns a copy of the retained RR intervals, all
// within the physiological keep bound. Consumed by the HRV engine and
// the BP estimator.
func (d *PeakDetector) ValidIntervals() []float64 {
	out := make([]float64, len(d.intervals))
	copy(out, d.intervals)
	return out
}

// Peaks returns a copy of the bounded accepted-peak history.
func (d *PeakDetector) Peaks() []Peak {
	out := make([]Peak, len(d.peaks))
	copy(out, d.peaks)
	return out
}

// State returns the current accept-cycle state.
func (d *PeakDetector) State() DetectorState { return d.state }

// Reset clears the window, peak history, and interval list.
func (d *PeakDetector) Reset() {
	d.head = 0
	d.size = 0
	d.totalIdx = 0
	d.state = StateObserving
	d.lastPeakTime = 0
	d.hasPeak = false
	d.peaks = d.peaks[:0]
	d.intervals = d.intervals[:0]
}

func (d *PeakDetector) push(timeMs uint64, value float64) {
	d.window[d.head] = timedValue{timeMs: timeMs, value: value}
	d.head = (d.head + 1) % d.cfg.WindowSize
	if d.size < d.cfg.WindowSize {
		d.size++
	}
}

// at returns the i-th oldest buffered sample (0 = oldest).
func (d *PeakDetector) at(i int) timedValue {
	start := (d.head - d.size + d.cfg.WindowSize) % d.cfg.WindowSize
	return d.window[(start+i)%d.cfg.WindowSize]
}

// adaptiveThreshold computes median + IQRFactor*IQR over the window.
func (d *PeakDetector) adaptiveThreshold() float64 {
	d.scratch = d.scratch[:0]
	for i := 0; i < d.size; i++ {
		d.scratch = append(d.scratch, d.at(i).value)
	}
	sort.Float64s(d.scratch)
	med := quantileSorted(d.scratch, 0.5)
	iqr := quantileSorted(d.scratch, 0.75) - quantileSorted(d.scratch, 0.25)
	return med + d.cfg.IQRFactor*iqr
}

// accept records the peak and returns the new valid RR interval, or 0
// if none was produced.
func (d *PeakDetector) accept(p Peak) float64 {
	var accepted float64
	if d.hasPeak {
		rr := float64(p.TimeMs - d.lastPeakTime)
		// Out-of-bound intervals are dropped, never clamped.
		if rr >= d.cfg.RRMinMs && rr <= d.cfg.RRKeepMaxMs {
			d.intervals = append(d.intervals, rr)
			accepted = rr
			if len(d.intervals) > 4*d.cfg.PeakHistory {
				d.intervals = d.intervals[1:]
			}
		}
	}
	d.lastPeakTime = p.TimeMs
	d.hasPeak = true
	d.state = StateRefractory

	d.peaks = append(d.peaks, p)
	if len(d.peaks) > d.cfg.PeakHistory {
		d.peaks = d.peaks[1:]
	}
	return accepted
}

// currentBPM is 60000 over the median of the last few displayable
// intervals. Median, not mean, so one ectopic beat cannot swing the
// reading.
func (d *PeakDetector) currentBPM() float64 {
	recent := make([]float64, 0, d.cfg.BPMMedianCount)
	for i := len(d.intervals) - 1; i >= 0 && len(recent) < d.cfg.BPMMedianCount; i-- {
		rr := d.intervals[i]
		if rr >= d.cfg.RRMinMs && rr <= d.cfg.RRMaxMs {
			recent = append(recent, rr)
		}
	}
	if len(recent) < 2 {
		return 0
	}
	sort.Float64s(recent)
	med := quantileSorted(recent, 0.5)
	if med <= 0 {
		return 0
	}
	return 60000.0 / med
}

// quantileSorted interpolates the q-quantile of an ascending slice.
func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
