package ppg

// NominalSampleRateHz is the expected camera frame rate. Timestamps are
// not assumed to be exactly periodic; all time-based math uses actual
// deltas between samples.
const NominalSampleRateHz = 30.0

// Sample is one tick of channel means over the camera region of
// interest. Value carries the channel used for pulse detection
// (typically green); Red/Green/Blue carry the raw per-channel means for
// the SpO2 ratio-of-ratios.
type Sample struct {
	TimestampMs uint64  `json:"timestamp_ms"`
	Value       float64 `json:"value"`
	Red         float64 `json:"red"`
	Green       float64 `json:"green"`
	Blue        float64 `json:"blue"`

	// CoverageRatio is the fraction of the ROI classified as valid
	// tissue (0..1); negative means not reported.
	CoverageRatio float64 `json:"coverage_ratio,omitempty"`
	// SaturationRatio is the fraction of ROI pixels clipped (0..1);
	// negative means not reported.
	SaturationRatio float64 `json:"saturation_ratio,omitempty"`
}

// Peak is an accepted beat event in the conditioned signal.
type Peak struct {
	Index      int     // sample index within the detector window at acceptance
	TimeMs     uint64  // capture timestamp of the peak sample
	Value      float64 // conditioned amplitude at the peak
	Prominence float64 // height above the local window minimum
}

// InvalidReason classifies why an estimate is not trustworthy. These
// are signal conditions, not errors; estimators return them instead of
// failing.
type InvalidReason string

const (
	ReasonNone           InvalidReason = ""
	ReasonNoSignal       InvalidReason = "NO_SIGNAL"
	ReasonLowPulsatility InvalidReason = "LOW_PULSATILITY"
	ReasonTooNoisy       InvalidReason = "TOO_NOISY"
	ReasonMotionArtifact InvalidReason = "MOTION_ARTIFACT"
	ReasonNoFinger       InvalidReason = "NO_FINGER"
	ReasonInvalidR       InvalidReason = "INVALID_R"
	ReasonOutOfRange     InvalidReason = "OUT_OF_RANGE"
	ReasonInconsistent   InvalidReason = "INCONSISTENT"
)

// QualityResult scores how usable the current signal window is.
// Quality and PerfusionIndex are outputs only; nothing feeds them back
// into the analyzers that produce them.
type QualityResult struct {
	Quality        float64       `json:"quality"` // 0..100
	PerfusionIndex float64       `json:"perfusion_index"`
	IsValid        bool          `json:"is_valid"`
	Reason         InvalidReason `json:"reason,omitempty"`
}

// HeartRateReading is the per-sample detector output.
type HeartRateReading struct {
	BPM     float64 `json:"bpm"` // 0 until enough valid RR intervals exist
	IsPeak  bool    `json:"is_peak"`
	Quality uint8   `json:"quality"` // 0..100, from the quality analyzer
}

// SpO2Result is a blood-oxygen estimate from the two-channel
// ratio-of-ratios model.
type SpO2Result struct {
	SpO2           float64       `json:"spo2"` // 50..100 when valid
	Confidence     float64       `json:"confidence"`
	RatioR         float64       `json:"ratio_r"`
	PerfusionIndex float64       `json:"perfusion_index"`
	IsValid        bool          `json:"is_valid"`
	Reason         InvalidReason `json:"reason,omitempty"`
}

// BPResult is a blood-pressure estimate from pulse-wave morphology and
// the PTT proxy. Pulse pressure (Systolic-Diastolic) is always within
// [20,80].
type BPResult struct {
	Systolic   float64            `json:"systolic"`  // 85..200
	Diastolic  float64            `json:"diastolic"` // 45..120
	MAP        float64            `json:"map"`       // mean arterial pressure
	Confidence float64            `json:"confidence"`
	PTTMs      float64            `json:"ptt_ms"`
	Morphology MorphologyFeatures `json:"morphology"`
}

// MorphologyFeatures describes one pulse wave between two valleys.
type MorphologyFeatures struct {
	Amplitude       float64 `json:"amplitude"`        // peak - valley
	RiseTimeMs      float64 `json:"rise_time_ms"`     // valley to peak
	NotchDepth      float64 `json:"notch_depth"`      // dicrotic notch below peak
	ReflectionIndex float64 `json:"reflection_index"` // notch depth / amplitude
}

// VitalSignsSnapshot is the per-sample pipeline output. HRV and SpO2
// are nil until their warm-up requirements are met; downstream readers
// render a calibrating state rather than fabricated numbers.
type VitalSignsSnapshot struct {
	TimestampMs   uint64           `json:"timestamp_ms"`
	HeartRate     HeartRateReading `json:"heart_rate"`
	Quality       QualityResult    `json:"signal_quality"`
	HRV           *HRVMetrics      `json:"hrv,omitempty"`
	SpO2          *SpO2Result      `json:"spo2,omitempty"`
	BloodPressure BPResult         `json:"blood_pressure"`
	Irregular     bool             `json:"irregular"` // coarse RR irregularity flag
}

// HRVMetrics groups the heart-rate-variability outputs. The zero value
// is the documented "insufficient data" sentinel.
type HRVMetrics struct {
	Temporal  TemporalMetrics  `json:"temporal"`
	Frequency FrequencyMetrics `json:"frequency"`
	NonLinear NonLinearMetrics `json:"non_linear"`
	Indices   HRVIndices       `json:"indices"`
	Intervals int              `json:"intervals"` // valid RR count used
}

// TemporalMetrics are time-domain HRV statistics (milliseconds).
type TemporalMetrics struct {
	MeanRR float64 `json:"mean_rr"`
	SDNN   float64 `json:"sdnn"`
	RMSSD  float64 `json:"rmssd"`
	PNN50  float64 `json:"pnn50"` // percent
	PNN20  float64 `json:"pnn20"` // percent
	CV     float64 `json:"cv"`
}

// FrequencyMetrics are band powers from the unevenly-sampled RR series.
type FrequencyMetrics struct {
	VLFPower   float64 `json:"vlf_power"`
	LFPower    float64 `json:"lf_power"`
	HFPower    float64 `json:"hf_power"`
	TotalPower float64 `json:"total_power"`
	LFHFRatio  float64 `json:"lf_hf_ratio"`
	LFNorm     float64 `json:"lf_norm"` // percent of LF+HF
	HFNorm     float64 `json:"hf_norm"` // percent of LF+HF
}

// NonLinearMetrics are fractal and entropy measures of the RR series.
type NonLinearMetrics struct {
	DFAAlpha1 float64 `json:"dfa_alpha1"` // scales 4-16 beats
	DFAAlpha2 float64 `json:"dfa_alpha2"` // scales 16-64 beats
	ApEn      float64 `json:"apen"`
	SampEn    float64 `json:"sampen"`
}

// HRVIndices are derived wellness scores.
type HRVIndices struct {
	Stress           float64 `json:"stress"`            // 0..100
	Recovery         float64 `json:"recovery"`          // 0..100
	AutonomicBalance float64 `json:"autonomic_balance"` // -1..+1
	HealthScore      float64 `json:"health_score"`      // 0..100
}

// IsZero reports whether m is the insufficient-data sentinel.
func (m *HRVMetrics) IsZero() bool {
	return m == nil || m.Intervals == 0
}
