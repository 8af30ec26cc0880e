package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.report/internal/ppg"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTuningConfig(t *testing.T) {
	t.Parallel()

	t.Run("loads a partial config", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{
			"iqr_factor": 0.5,
			"subject_age_years": 42
		}`)

		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		require.NotNil(t, cfg.IQRFactor)
		assert.Equal(t, 0.5, *cfg.IQRFactor)
		assert.Equal(t, 42.0, cfg.GetSubjectAge())
		// Unset fields keep their defaults.
		assert.Nil(t, cfg.DetectorWindowSize)
		assert.Equal(t, DefaultSnapshotDecimation, cfg.GetSnapshotDecimation())
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.yaml", `{}`)
		_, err := LoadTuningConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ".json extension")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{not json`)
		_, err := LoadTuningConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse")
	})

	t.Run("rejects missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{"refractory_ms": 50}`)
		_, err := LoadTuningConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refractory_ms")
	})
}

func TestTuningConfigValidate(t *testing.T) {
	t.Parallel()

	intp := func(v int) *int { return &v }
	floatp := func(v float64) *float64 { return &v }
	strp := func(v string) *string { return &v }

	t.Run("empty config is valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, EmptyTuningConfig().Validate())
	})

	t.Run("rr bounds must be ordered", func(t *testing.T) {
		t.Parallel()
		cfg := &TuningConfig{RRMinMs: floatp(1500), RRMaxMs: floatp(300)}
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown strategy names are rejected", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, (&TuningConfig{QualityStrategy: strp("fancy")}).Validate())
		assert.Error(t, (&TuningConfig{BPModel: strp("neural")}).Validate())
		assert.NoError(t, (&TuningConfig{QualityStrategy: strp("coverage")}).Validate())
	})

	t.Run("tiny detector window is rejected", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, (&TuningConfig{DetectorWindowSize: intp(5)}).Validate())
	})

	t.Run("spo2 table must be increasing in R and non-increasing in SpO2", func(t *testing.T) {
		t.Parallel()
		bad := &TuningConfig{SpO2Table: []ppg.CalibrationPoint{
			{R: 1.0, SpO2: 94},
			{R: 0.8, SpO2: 97},
		}}
		assert.Error(t, bad.Validate())

		good := &TuningConfig{SpO2Table: []ppg.CalibrationPoint{
			{R: 0.8, SpO2: 97},
			{R: 1.0, SpO2: 94},
		}}
		assert.NoError(t, good.Validate())
	})
}

func TestTuningConfigMaterialise(t *testing.T) {
	t.Parallel()

	floatp := func(v float64) *float64 { return &v }
	strp := func(v string) *string { return &v }

	t.Run("detector config falls back to defaults", func(t *testing.T) {
		t.Parallel()
		cfg := &TuningConfig{IQRFactor: floatp(0.7)}
		det := cfg.DetectorConfig()
		def := ppg.DefaultPeakDetectorConfig()
		assert.Equal(t, 0.7, det.IQRFactor)
		assert.Equal(t, def.WindowSize, det.WindowSize)
		assert.Equal(t, def.RefractoryMs, det.RefractoryMs)
	})

	t.Run("strategy selection", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "weighted", EmptyTuningConfig().QualityStrategyImpl().Name())
		cfg := &TuningConfig{QualityStrategy: strp("coverage")}
		assert.Equal(t, "coverage", cfg.QualityStrategyImpl().Name())
	})

	t.Run("pipeline config carries the subject age", func(t *testing.T) {
		t.Parallel()
		cfg := &TuningConfig{SubjectAgeYears: floatp(55)}
		assert.Equal(t, 55.0, cfg.PipelineConfig().AgeYears)
	})
}

func TestTuningConfigMerge(t *testing.T) {
	t.Parallel()

	floatp := func(v float64) *float64 { return &v }

	t.Run("set fields overlay, unset fields survive", func(t *testing.T) {
		t.Parallel()
		base := &TuningConfig{
			IQRFactor:       floatp(0.4),
			SubjectAgeYears: floatp(40),
		}
		merged := base.Merge(&TuningConfig{SubjectAgeYears: floatp(33)})

		assert.Equal(t, 33.0, merged.GetSubjectAge())
		require.NotNil(t, merged.IQRFactor)
		assert.Equal(t, 0.4, *merged.IQRFactor)
		// The base config is untouched.
		assert.Equal(t, 40.0, base.GetSubjectAge())
	})

	t.Run("nil merge is a copy", func(t *testing.T) {
		t.Parallel()
		base := &TuningConfig{IQRFactor: floatp(0.4)}
		merged := base.Merge(nil)
		require.NotNil(t, merged.IQRFactor)
		assert.Equal(t, 0.4, *merged.IQRFactor)
		assert.NotSame(t, base, merged)
	})
}
