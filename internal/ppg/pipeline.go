package ppg

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/pulse.report/internal/monitoring"
	"gonum.org/v1/gonum/stat"
)

// Pipeline defaults.
const (
	defaultSampleBufferCap = 300 // ~10s of raw samples at 30 Hz
	defaultChannelCap      = 64

	// irregularity flag: CV of the recent RR window above this marks
	// the rhythm as coarsely irregular.
	irregularityWindow = 10
	irregularityCV     = 0.15
)

// PipelineConfig wires the estimators together. Zero values select
// defaults throughout.
type PipelineConfig struct {
	Detector  PeakDetectorConfig
	Quality   QualityStrategy    // nil: DefaultQualityStrategy
	BPModel   BPModel            // nil: AdditiveBPModel
	SpO2Table []CalibrationPoint // nil: built-in calibration
	AgeYears  float64            // subject age for the BP correction

	// ChannelCap bounds the sample channel between the producer and the
	// consumer loop.
	ChannelCap int

	// OnSnapshot, if set, is invoked synchronously for every processed
	// sample from the consumer goroutine.
	OnSnapshot func(VitalSignsSnapshot)
}

// Pipeline is the frame-driven vitals estimation pipeline. One sample
// arrives, conditioning, buffering, detection, and scoring run to
// completion, and a snapshot is published before the next sample is
// accepted. Estimator state is owned by the consumer goroutine; the
// two pieces other goroutines may inspect (the sample ring and the
// detector's intervals) are guarded by mu along with the latest
// snapshot, and readers only ever receive copies.
type Pipeline struct {
	cfg PipelineConfig

	conditioner *SignalConditioner
	quality     *QualityAnalyzer
	hrv         *HRVEngine
	spo2        *SpO2Calibrator
	bp          *BloodPressureEstimator

	rrRecent *FloatRing // recent RR intervals for the irregularity flag

	samples   chan Sample
	resetReq  chan struct{}
	dropCount atomic.Int64

	pendingMu  sync.Mutex
	pendingCfg *PipelineConfig

	// mu guards latest/seen plus the state readable from other
	// goroutines: buffer and the detector's interval history.
	mu       sync.RWMutex
	buffer   *SampleRing
	detector *PeakDetector
	latest   VitalSignsSnapshot
	seen     bool
}

// NewPipeline constructs a pipeline with fresh estimator state.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.ChannelCap <= 0 {
		cfg.ChannelCap = defaultChannelCap
	}
	return &Pipeline{
		cfg:         cfg,
		conditioner: NewSignalConditioner(),
		buffer:      NewSampleRing(defaultSampleBufferCap),
		detector:    NewPeakDetector(cfg.Detector),
		quality:     NewQualityAnalyzer(cfg.Quality),
		hrv:         NewHRVEngine(),
		spo2:        NewSpO2Calibrator(cfg.SpO2Table),
		bp:          NewBloodPressureEstimator(cfg.BPModel, cfg.AgeYears),
		rrRecent:    NewFloatRing(irregularityWindow),
		samples:     make(chan Sample, cfg.ChannelCap),
		resetReq:    make(chan struct{}, 1),
	}
}

// Process runs one sample through the whole pipeline synchronously and
// returns the snapshot. It is the single-threaded core; Run wraps it
// with the channel plumbing.
func (p *Pipeline) Process(s Sample) VitalSignsSnapshot {
	conditioned := p.conditioner.Process(s.Value)

	p.mu.Lock()
	p.buffer.Push(s)
	det := p.detector.Process(s.TimestampMs, conditioned)
	p.mu.Unlock()

	p.quality.Push(s, conditioned)
	q := p.quality.Analyze()

	p.bp.Push(s.TimestampMs, conditioned)
	if det.IsPeak && det.RRMs > 0 {
		p.hrv.Add(det.RRMs)
		p.bp.OnBeat(det.Peak.TimeMs, det.RRMs)
		p.rrRecent.Push(det.RRMs)
	}

	p.spo2.Push(s)

	snap := VitalSignsSnapshot{
		TimestampMs: s.TimestampMs,
		HeartRate: HeartRateReading{
			BPM:     det.BPM,
			IsPeak:  det.IsPeak,
			Quality: uint8(q.Quality),
		},
		Quality:       q,
		BloodPressure: p.bp.Estimate(),
		Irregular:     p.irregular(),
	}

	if m := p.hrv.Compute(); !m.IsZero() {
		snap.HRV = &m
	}
	if sp := p.spo2.Compute(); sp.IsValid || sp.Reason != ReasonNone {
		snap.SpO2 = &sp
	}

	p.publish(snap)
	if p.cfg.OnSnapshot != nil {
		p.cfg.OnSnapshot(snap)
	}
	return snap
}

// Submit hands a sample to the consumer loop. If the channel is full
// the oldest unconsumed sample is dropped: a backlog of stale samples
// is worse than a gap, freshness wins.
func (p *Pipeline) Submit(s Sample) {
	for {
		select {
		case p.samples <- s:
			return
		default:
		}
		select {
		case <-p.samples:
			if n := p.dropCount.Add(1); n%100 == 1 {
				monitoring.Logf("ppg: dropped %d stale samples (consumer behind)", n)
			}
		default:
		}
	}
}

// Run consumes submitted samples until the context is cancelled. Reset
// requests are honoured at the top of the loop, before the next sample
// is processed, so no partial state leaks between sessions.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.resetReq:
			p.resetState()
		case s := <-p.samples:
			// A reset that raced the sample still wins: check again
			// before processing.
			select {
			case <-p.resetReq:
				p.resetState()
			default:
			}
			p.Process(s)
		}
	}
}

// Retune stages a new estimator configuration. It takes effect at the
// next reset, never mid-sample. The snapshot callback and channel
// capacity are fixed at construction and keep their original values.
func (p *Pipeline) Retune(cfg PipelineConfig) {
	p.pendingMu.Lock()
	p.pendingCfg = &cfg
	p.pendingMu.Unlock()
}

// RequestReset asks the consumer loop to clear all estimator state
// before processing the next sample. Safe to call from any goroutine.
func (p *Pipeline) RequestReset() {
	select {
	case p.resetReq <- struct{}{}:
	default:
	}
}

// Reset synchronously clears all estimator state. Only safe when no
// consumer loop is running; the loop itself uses RequestReset.
func (p *Pipeline) Reset() {
	p.resetState()
}

func (p *Pipeline) resetState() {
	p.pendingMu.Lock()
	pending := p.pendingCfg
	p.pendingCfg = nil
	p.pendingMu.Unlock()

	p.mu.Lock()
	if pending != nil {
		p.cfg.Detector = pending.Detector
		p.cfg.Quality = pending.Quality
		p.cfg.BPModel = pending.BPModel
		p.cfg.SpO2Table = pending.SpO2Table
		p.cfg.AgeYears = pending.AgeYears
		p.detector = NewPeakDetector(pending.Detector)
		p.quality = NewQualityAnalyzer(pending.Quality)
		p.spo2 = NewSpO2Calibrator(pending.SpO2Table)
		p.bp = NewBloodPressureEstimator(pending.BPModel, pending.AgeYears)
	}
	p.buffer.Clear()
	p.detector.Reset()
	p.latest = VitalSignsSnapshot{}
	p.seen = false
	p.mu.Unlock()

	p.conditioner.Reset()
	p.quality.Reset()
	p.hrv.Reset()
	p.spo2.Reset()
	p.bp.Reset()
	p.rrRecent.Clear()
}

// Latest returns the most recently published snapshot. The bool is
// false before the first sample of a session.
func (p *Pipeline) Latest() (VitalSignsSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.seen
}

// SignalWindow returns a copy of the buffered raw samples, oldest
// first, for offline plotting and inspection. Safe to call while the
// consumer loop is running.
func (p *Pipeline) SignalWindow() []Sample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buffer.Snapshot()
}

// RRIntervals returns a copy of the detector's valid inter-beat
// intervals. Safe to call while the consumer loop is running.
func (p *Pipeline) RRIntervals() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.detector.ValidIntervals()
}

// DroppedSamples reports how many stale samples were discarded by
// Submit since construction.
func (p *Pipeline) DroppedSamples() int { return int(p.dropCount.Load()) }

func (p *Pipeline) publish(snap VitalSignsSnapshot) {
	p.mu.Lock()
	p.latest = snap
	p.seen = true
	p.mu.Unlock()
}

// irregular is the coarse rhythm-irregularity flag: high variation
// across the recent RR window. Not an arrhythmia classifier.
func (p *Pipeline) irregular() bool {
	if p.rrRecent.Len() < irregularityWindow/2 {
		return false
	}
	vals := p.rrRecent.Values()
	mean := stat.Mean(vals, nil)
	if mean <= 0 {
		return false
	}
	return stat.StdDev(vals, nil)/mean > irregularityCV
}
