package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/pulse.report/internal/ppg"
)

// TuningConfig represents the root configuration for pipeline tuning
// parameters. The schema matches the /api/vitals/params endpoint so the
// same JSON can be used for both startup configuration and runtime
// updates. All fields are pointers; nil means "use the default".
type TuningConfig struct {
	// Peak detector params
	DetectorWindowSize   *int     `json:"detector_window_size,omitempty"`
	DetectorMinSamples   *int     `json:"detector_min_samples,omitempty"`
	IQRFactor            *float64 `json:"iqr_factor,omitempty"`
	MinProminence        *float64 `json:"min_prominence,omitempty"`
	RefractoryMs         *float64 `json:"refractory_ms,omitempty"`
	RRMinMs              *float64 `json:"rr_min_ms,omitempty"`
	RRMaxMs              *float64 `json:"rr_max_ms,omitempty"`

	// Strategy selection
	QualityStrategy *string `json:"quality_strategy,omitempty"` // "weighted" or "coverage"
	BPModel         *string `json:"bp_model,omitempty"`         // "additive"

	// Subject calibration
	SubjectAgeYears *float64 `json:"subject_age_years,omitempty"`

	// SpO2 calibration table override (R -> SpO2 control points).
	SpO2Table []ppg.CalibrationPoint `json:"spo2_table,omitempty"`

	// Persistence
	SnapshotDecimation *int `json:"snapshot_decimation,omitempty"` // store every Nth snapshot
}

// Defaults used when fields are nil.
const (
	DefaultSubjectAge         = 30.0
	DefaultSnapshotDecimation = 15 // ~2 rows/s at 30 Hz
)

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields
// omitted from the file retain their defaults, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set fields carry physically plausible values.
func (c *TuningConfig) Validate() error {
	if c.DetectorWindowSize != nil && *c.DetectorWindowSize < 10 {
		return fmt.Errorf("detector_window_size must be >= 10, got %d", *c.DetectorWindowSize)
	}
	if c.IQRFactor != nil && (*c.IQRFactor <= 0 || *c.IQRFactor > 5) {
		return fmt.Errorf("iqr_factor must be in (0, 5], got %v", *c.IQRFactor)
	}
	if c.RefractoryMs != nil && (*c.RefractoryMs < 100 || *c.RefractoryMs > 1000) {
		return fmt.Errorf("refractory_ms must be in [100, 1000], got %v", *c.RefractoryMs)
	}
	if c.RRMinMs != nil && c.RRMaxMs != nil && *c.RRMinMs >= *c.RRMaxMs {
		return fmt.Errorf("rr_min_ms (%v) must be less than rr_max_ms (%v)", *c.RRMinMs, *c.RRMaxMs)
	}
	if c.SubjectAgeYears != nil && (*c.SubjectAgeYears < 1 || *c.SubjectAgeYears > 120) {
		return fmt.Errorf("subject_age_years must be in [1, 120], got %v", *c.SubjectAgeYears)
	}
	if c.QualityStrategy != nil {
		switch *c.QualityStrategy {
		case "weighted", "coverage":
		default:
			return fmt.Errorf("unknown quality_strategy %q", *c.QualityStrategy)
		}
	}
	if c.BPModel != nil && *c.BPModel != "additive" {
		return fmt.Errorf("unknown bp_model %q", *c.BPModel)
	}
	if c.SnapshotDecimation != nil && *c.SnapshotDecimation < 1 {
		return fmt.Errorf("snapshot_decimation must be >= 1, got %d", *c.SnapshotDecimation)
	}
	for i, p := range c.SpO2Table {
		if i > 0 && p.R <= c.SpO2Table[i-1].R {
			return fmt.Errorf("spo2_table control points must have strictly increasing R")
		}
		if i > 0 && p.SpO2 > c.SpO2Table[i-1].SpO2 {
			return fmt.Errorf("spo2_table must be non-increasing in SpO2")
		}
	}
	return nil
}

// GetSubjectAge returns the configured subject age or the default.
func (c *TuningConfig) GetSubjectAge() float64 {
	if c.SubjectAgeYears != nil {
		return *c.SubjectAgeYears
	}
	return DefaultSubjectAge
}

// GetSnapshotDecimation returns the persistence decimation factor.
func (c *TuningConfig) GetSnapshotDecimation() int {
	if c.SnapshotDecimation != nil {
		return *c.SnapshotDecimation
	}
	return DefaultSnapshotDecimation
}

// DetectorConfig materialises the peak detector tuning, falling back to
// the package defaults for unset fields.
func (c *TuningConfig) DetectorConfig() ppg.PeakDetectorConfig {
	cfg := ppg.DefaultPeakDetectorConfig()
	if c.DetectorWindowSize != nil {
		cfg.WindowSize = *c.DetectorWindowSize
	}
	if c.DetectorMinSamples != nil {
		cfg.MinSamples = *c.DetectorMinSamples
	}
	if c.IQRFactor != nil {
		cfg.IQRFactor = *c.IQRFactor
	}
	if c.MinProminence != nil {
		cfg.MinProminence = *c.MinProminence
	}
	if c.RefractoryMs != nil {
		cfg.RefractoryMs = *c.RefractoryMs
	}
	if c.RRMinMs != nil {
		cfg.RRMinMs = *c.RRMinMs
	}
	if c.RRMaxMs != nil {
		cfg.RRMaxMs = *c.RRMaxMs
	}
	return cfg
}

// QualityStrategyImpl returns the configured quality strategy.
func (c *TuningConfig) QualityStrategyImpl() ppg.QualityStrategy {
	if c.QualityStrategy != nil && *c.QualityStrategy == "coverage" {
		return ppg.CoverageQualityStrategy{}
	}
	return ppg.DefaultQualityStrategy{}
}

// PipelineConfig materialises the full pipeline configuration.
func (c *TuningConfig) PipelineConfig() ppg.PipelineConfig {
	return ppg.PipelineConfig{
		Detector:  c.DetectorConfig(),
		Quality:   c.QualityStrategyImpl(),
		BPModel:   ppg.AdditiveBPModel{},
		SpO2Table: c.SpO2Table,
		AgeYears:  c.GetSubjectAge(),
	}
}

// Merge overlays set fields from other onto c, returning a new config.
// Used by the runtime params endpoint to apply partial updates.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	out := *c
	if other == nil {
		return &out
	}
	if other.DetectorWindowSize != nil {
		out.DetectorWindowSize = other.DetectorWindowSize
	}
	if other.DetectorMinSamples != nil {
		out.DetectorMinSamples = other.DetectorMinSamples
	}
	if other.IQRFactor != nil {
		out.IQRFactor = other.IQRFactor
	}
	if other.MinProminence != nil {
		out.MinProminence = other.MinProminence
	}
	if other.RefractoryMs != nil {
		out.RefractoryMs = other.RefractoryMs
	}
	if other.RRMinMs != nil {
		out.RRMinMs = other.RRMinMs
	}
	if other.RRMaxMs != nil {
		out.RRMaxMs = other.RRMaxMs
	}
	if other.QualityStrategy != nil {
		out.QualityStrategy = other.QualityStrategy
	}
	if other.BPModel != nil {
		out.BPModel = other.BPModel
	}
	if other.SubjectAgeYears != nil {
		out.SubjectAgeYears = other.SubjectAgeYears
	}
	if other.SpO2Table != nil {
		out.SpO2Table = other.SpO2Table
	}
	if other.SnapshotDecimation != nil {
		out.SnapshotDecimation = other.SnapshotDecimation
	}
	return &out
}
