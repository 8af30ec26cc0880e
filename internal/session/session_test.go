package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/ppg"
	"github.com/banshee-data/pulse.report/internal/timeutil"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "session_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunnerLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	clock := timeutil.NewMockClock(time.UnixMilli(10_000))
	r := NewRunner(RunnerConfig{
		Store:      store,
		Decimation: 1,
		SubjectAge: 35,
		Notes:      "test run",
		Clock:      clock,
	})

	require.NoError(t, r.Start())
	id := r.SessionID()
	require.NotEmpty(t, id)

	t.Run("double start fails", func(t *testing.T) {
		assert.Error(t, r.Start())
	})

	clock.Advance(30 * time.Second)
	require.NoError(t, r.Stop())
	assert.Empty(t, r.SessionID(), "no active session after stop")

	sessions, err := store.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].SessionID)
	assert.Equal(t, int64(10_000), sessions[0].StartedAtMs)
	require.NotNil(t, sessions[0].EndedAtMs)
	assert.Equal(t, int64(40_000), *sessions[0].EndedAtMs)
	assert.Equal(t, "test run", sessions[0].Notes)

	t.Run("stop is idempotent", func(t *testing.T) {
		assert.NoError(t, r.Stop())
	})
}

func TestRunnerPersistsDecimatedSnapshots(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	r := NewRunner(RunnerConfig{
		Store:      store,
		Decimation: 10,
		Clock:      timeutil.NewMockClock(time.UnixMilli(0)),
	})
	require.NoError(t, r.Start())
	id := r.SessionID()

	src := ppg.NewSyntheticSource()
	for i := 0; i < 100; i++ {
		r.Pipeline().Process(src.Next())
	}
	require.NoError(t, r.Stop())

	rows, err := store.SessionSnapshots(id, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 10, "every 10th of 100 snapshots is persisted")
}

func TestRunnerNoStore(t *testing.T) {
	t.Parallel()

	r := NewRunner(RunnerConfig{})
	require.NoError(t, r.Start())
	assert.Empty(t, r.SessionID())

	// Processing still works without persistence.
	src := ppg.NewSyntheticSource()
	for i := 0; i < 60; i++ {
		r.Pipeline().Process(src.Next())
	}
	_, ok := r.Pipeline().Latest()
	assert.True(t, ok)
	assert.NoError(t, r.Stop())
}

// cancellingSource wraps a source and cancels the context after a
// fixed number of samples, ending Feed deterministically.
type cancellingSource struct {
	inner  SampleSource
	left   int
	cancel context.CancelFunc
}

func (c *cancellingSource) Next() ppg.Sample {
	c.left--
	if c.left <= 0 {
		c.cancel()
	}
	return c.inner.Next()
}

func TestRunnerFeedPacing(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.UnixMilli(0))
	r := NewRunner(RunnerConfig{Clock: clock})
	require.NoError(t, r.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Feed(ctx, &cancellingSource{inner: ppg.NewSyntheticSource(), left: 120, cancel: cancel})

	sleeps := clock.Sleeps()
	require.NotEmpty(t, sleeps)
	// 30 Hz samples are ~33 ms apart.
	for _, d := range sleeps {
		assert.InDelta(t, 33*float64(time.Millisecond), float64(d), 2*float64(time.Millisecond))
	}
}

func TestLoadReplay(t *testing.T) {
	t.Parallel()

	t.Run("parses and wraps a recorded log", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "log.csv")
		content := "timestamp_ms,red,green,blue,coverage,saturation\n" +
			"0,180.0,150.0,90.0,1.0,0.0\n" +
			"33,180.5,150.5,90.0,1.0,0.0\n" +
			"66,181.0,151.0,90.0,1.0,0.0\n"
		require.NoError(t, writeFile(path, content))

		rs, err := LoadReplay(path)
		require.NoError(t, err)
		assert.Equal(t, 3, rs.Len())

		first := rs.Next()
		assert.Equal(t, uint64(0), first.TimestampMs)
		assert.Equal(t, 150.0, first.Green)
		assert.Equal(t, 150.0, first.Value, "green carries the pulse")
		assert.Equal(t, 1.0, first.CoverageRatio)

		rs.Next()
		rs.Next()

		// Wrapped: timestamps keep climbing.
		wrapped := rs.Next()
		assert.Greater(t, wrapped.TimestampMs, uint64(66))
		assert.Equal(t, 150.0, wrapped.Green)
	})

	t.Run("rejects a bad header", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.csv")
		require.NoError(t, writeFile(path, "time,r,g,b\n1,2,3,4\n"))
		_, err := LoadReplay(path)
		assert.Error(t, err)
	})

	t.Run("rejects a log that is too short", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "short.csv")
		require.NoError(t, writeFile(path, "timestamp_ms,red,green,blue\n0,1,2,3\n"))
		_, err := LoadReplay(path)
		assert.Error(t, err)
	})

	t.Run("rejects a missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadReplay(filepath.Join(t.TempDir(), "nope.csv"))
		assert.Error(t, err)
	})
}
