package ppg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedChannels drives the calibrator with sinusoidal red/green channels
// of the given DC levels and AC amplitudes.
func feedChannels(c *SpO2Calibrator, dcRed, acRed, dcGreen, acGreen float64, n int) {
	for i := 0; i < n; i++ {
		tSec := float64(i) / NominalSampleRateHz
		osc := math.Sin(2 * math.Pi * 1.2 * tSec)
		c.Push(Sample{
			TimestampMs: uint64(i) * 1000 / uint64(NominalSampleRateHz),
			Red:         dcRed + acRed*osc,
			Green:       dcGreen + acGreen*osc,
		})
	}
}

func TestSpO2Gates(t *testing.T) {
	t.Parallel()

	t.Run("dark channels read as no finger", func(t *testing.T) {
		t.Parallel()
		c := NewSpO2Calibrator(nil)
		feedChannels(c, 1, 0.2, 1, 0.2, 120)
		res := c.Compute()
		assert.False(t, res.IsValid)
		assert.Equal(t, ReasonNoFinger, res.Reason)
	})

	t.Run("flat channels read as no signal", func(t *testing.T) {
		t.Parallel()
		c := NewSpO2Calibrator(nil)
		feedChannels(c, 180, 0, 150, 0, 120)
		res := c.Compute()
		assert.False(t, res.IsValid)
		assert.Equal(t, ReasonNoSignal, res.Reason)
	})

	t.Run("implausible ratio is rejected", func(t *testing.T) {
		t.Parallel()
		c := NewSpO2Calibrator(nil)
		// Red pulses far harder than green: R beyond 2.6.
		feedChannels(c, 180, 40, 150, 1, 120)
		res := c.Compute()
		assert.False(t, res.IsValid)
		assert.Equal(t, ReasonInvalidR, res.Reason)
	})

	t.Run("no output before the window warms up", func(t *testing.T) {
		t.Parallel()
		c := NewSpO2Calibrator(nil)
		feedChannels(c, 180, 5, 150, 5, 10)
		res := c.Compute()
		assert.False(t, res.IsValid)
	})
}

func TestSpO2Estimate(t *testing.T) {
	t.Parallel()

	t.Run("healthy ratio estimates a high saturation", func(t *testing.T) {
		t.Parallel()
		c := NewSpO2Calibrator(nil)
		// R = (4/180)/(5/150) = 0.667: healthy end of the table.
		feedChannels(c, 180, 4, 150, 5, 300)
		res := c.Compute()
		require.True(t, res.IsValid)
		assert.Greater(t, res.SpO2, 93.0)
		assert.LessOrEqual(t, res.SpO2, 100.0)
		assert.Greater(t, res.Confidence, 40.0)
	})

	t.Run("estimate decreases as R increases", func(t *testing.T) {
		t.Parallel()
		var prev float64 = 101
		// Green pulsation fixed, red pulsation rising: R grows.
		for _, acRed := range []float64{3, 6, 9, 12} {
			c := NewSpO2Calibrator(nil)
			feedChannels(c, 180, acRed, 150, 5, 300)
			res := c.Compute()
			require.True(t, res.IsValid, "acRed=%v", acRed)
			assert.Less(t, res.SpO2, prev, "acRed=%v", acRed)
			prev = res.SpO2
		}
	})

	t.Run("output is always clamped to the displayable range", func(t *testing.T) {
		t.Parallel()
		c := NewSpO2Calibrator(nil)
		feedChannels(c, 180, 14, 150, 5, 300) // R near the top of range
		res := c.Compute()
		require.True(t, res.IsValid)
		assert.GreaterOrEqual(t, res.SpO2, 50.0)
		assert.LessOrEqual(t, res.SpO2, 100.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 100.0)
	})

	t.Run("reset clears channel state", func(t *testing.T) {
		t.Parallel()
		c := NewSpO2Calibrator(nil)
		feedChannels(c, 180, 4, 150, 5, 300)
		require.True(t, c.Compute().IsValid)
		c.Reset()
		assert.False(t, c.Compute().IsValid)
	})
}

func TestSpO2TableLookup(t *testing.T) {
	t.Parallel()

	c := NewSpO2Calibrator(nil)

	t.Run("clamps outside the control points", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 100.0, c.tableLookup(0.1))
		assert.Equal(t, 70.0, c.tableLookup(3.0))
	})

	t.Run("hits control points exactly", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 94.0, c.tableLookup(1.0), 1e-9)
		assert.InDelta(t, 85.0, c.tableLookup(1.5), 1e-9)
	})

	t.Run("interpolates between control points", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 92.0, c.tableLookup(1.1), 1e-9)
	})

	t.Run("monotonically non-increasing in R", func(t *testing.T) {
		t.Parallel()
		prev := math.Inf(1)
		for r := 0.3; r <= 2.7; r += 0.05 {
			v := c.tableLookup(r)
			assert.LessOrEqual(t, v, prev, "r=%v", r)
			prev = v
		}
	})

	t.Run("custom table overrides the default", func(t *testing.T) {
		t.Parallel()
		custom := NewSpO2Calibrator([]CalibrationPoint{
			{R: 0.5, SpO2: 99},
			{R: 2.0, SpO2: 80},
		})
		assert.InDelta(t, 99.0, custom.tableLookup(0.4), 1e-9)
		assert.InDelta(t, 80.0, custom.tableLookup(2.5), 1e-9)
	})
}
