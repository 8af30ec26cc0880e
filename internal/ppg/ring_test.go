package ppg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleRing(t *testing.T) {
	t.Parallel()

	t.Run("empty ring", func(t *testing.T) {
		t.Parallel()
		r := NewSampleRing(4)
		assert.Equal(t, 0, r.Len())
		assert.Equal(t, 4, r.Cap())
		assert.Nil(t, r.Snapshot())
		_, ok := r.Latest()
		assert.False(t, ok)
	})

	t.Run("preserves chronological order before wrap", func(t *testing.T) {
		t.Parallel()
		r := NewSampleRing(4)
		for i := 0; i < 3; i++ {
			r.Push(Sample{TimestampMs: uint64(i)})
		}
		snap := r.Snapshot()
		require.Len(t, snap, 3)
		for i, s := range snap {
			assert.Equal(t, uint64(i), s.TimestampMs)
		}
	})

	t.Run("overwrites oldest at capacity", func(t *testing.T) {
		t.Parallel()
		r := NewSampleRing(4)
		for i := 0; i < 10; i++ {
			r.Push(Sample{TimestampMs: uint64(i)})
		}
		assert.Equal(t, 4, r.Len())

		snap := r.Snapshot()
		require.Len(t, snap, 4)
		assert.Equal(t, uint64(6), snap[0].TimestampMs)
		assert.Equal(t, uint64(9), snap[3].TimestampMs)

		latest, ok := r.Latest()
		require.True(t, ok)
		assert.Equal(t, uint64(9), latest.TimestampMs)
	})

	t.Run("clear empties without reallocating", func(t *testing.T) {
		t.Parallel()
		r := NewSampleRing(4)
		r.Push(Sample{TimestampMs: 1})
		r.Clear()
		assert.Equal(t, 0, r.Len())
		assert.Nil(t, r.Snapshot())
	})
}

func TestFloatRing(t *testing.T) {
	t.Parallel()

	t.Run("values after wrap", func(t *testing.T) {
		t.Parallel()
		r := NewFloatRing(3)
		for i := 1; i <= 5; i++ {
			r.Push(float64(i))
		}
		assert.Equal(t, []float64{3, 4, 5}, r.Values())
		assert.True(t, r.Full())
	})

	t.Run("last indexes backward from newest", func(t *testing.T) {
		t.Parallel()
		r := NewFloatRing(3)
		for i := 1; i <= 5; i++ {
			r.Push(float64(i))
		}
		v, ok := r.Last(0)
		require.True(t, ok)
		assert.Equal(t, 5.0, v)

		v, ok = r.Last(2)
		require.True(t, ok)
		assert.Equal(t, 3.0, v)

		_, ok = r.Last(3)
		assert.False(t, ok)
		_, ok = r.Last(-1)
		assert.False(t, ok)
	})

	t.Run("copy into scratch without allocation", func(t *testing.T) {
		t.Parallel()
		r := NewFloatRing(4)
		for i := 1; i <= 6; i++ {
			r.Push(float64(i))
		}
		dst := make([]float64, 4)
		n := r.CopyInto(dst)
		assert.Equal(t, 4, n)
		assert.Equal(t, []float64{3, 4, 5, 6}, dst)

		// A short destination gets the most recent values, matching
		// what the sliding-window readers need.
		short := make([]float64, 2)
		n = r.CopyInto(short)
		assert.Equal(t, 2, n)
		assert.Equal(t, []float64{5, 6}, short)
	})
}
