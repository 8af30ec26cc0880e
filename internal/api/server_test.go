package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/ppg"
)

func newTestServer(t *testing.T) (*Server, *ppg.Pipeline, *db.DB) {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pipeline := ppg.NewPipeline(ppg.PipelineConfig{})
	return NewServer(pipeline, store, config.EmptyTuningConfig()), pipeline, store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, req)
	return rec
}

func TestLatestVitals(t *testing.T) {
	t.Parallel()

	t.Run("204 before any sample", func(t *testing.T) {
		t.Parallel()
		s, _, _ := newTestServer(t)
		rec := doRequest(t, s, http.MethodGet, "/api/vitals/latest", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("returns the published snapshot", func(t *testing.T) {
		t.Parallel()
		s, pipeline, _ := newTestServer(t)
		src := ppg.NewSyntheticSource()
		for i := 0; i < 90; i++ {
			pipeline.Process(src.Next())
		}

		rec := doRequest(t, s, http.MethodGet, "/api/vitals/latest", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var snap ppg.VitalSignsSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.NotZero(t, snap.TimestampMs)
	})

	t.Run("rejects non-GET", func(t *testing.T) {
		t.Parallel()
		s, _, _ := newTestServer(t)
		rec := doRequest(t, s, http.MethodPost, "/api/vitals/latest", "{}")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestParamsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("GET returns the current tuning", func(t *testing.T) {
		t.Parallel()
		s, _, _ := newTestServer(t)
		rec := doRequest(t, s, http.MethodGet, "/api/vitals/params", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "{}", rec.Body.String())
	})

	t.Run("POST merges a partial update", func(t *testing.T) {
		t.Parallel()
		s, _, _ := newTestServer(t)
		rec := doRequest(t, s, http.MethodPost, "/api/vitals/params",
			`{"subject_age_years": 48}`)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, 48.0, s.Tuning().GetSubjectAge())

		// A second partial update keeps the first.
		rec = doRequest(t, s, http.MethodPost, "/api/vitals/params",
			`{"iqr_factor": 0.5}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 48.0, s.Tuning().GetSubjectAge())
		require.NotNil(t, s.Tuning().IQRFactor)
		assert.Equal(t, 0.5, *s.Tuning().IQRFactor)
	})

	t.Run("POST rejects invalid values", func(t *testing.T) {
		t.Parallel()
		s, _, _ := newTestServer(t)
		rec := doRequest(t, s, http.MethodPost, "/api/vitals/params",
			`{"refractory_ms": 5}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		// The stored config is untouched.
		assert.Nil(t, s.Tuning().RefractoryMs)
	})

	t.Run("POST rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		s, _, _ := newTestServer(t)
		rec := doRequest(t, s, http.MethodPost, "/api/vitals/params", `{oops`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRRIntervalsEndpoint(t *testing.T) {
	t.Parallel()

	s, pipeline, _ := newTestServer(t)
	src := ppg.NewSyntheticSource()
	for i := 0; i < 600; i++ {
		pipeline.Process(src.Next())
	}

	rec := doRequest(t, s, http.MethodGet, "/api/vitals/rr", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RRMs []float64 `json:"rr_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RRMs)
}

func TestSignalWindowEndpoint(t *testing.T) {
	t.Parallel()

	s, pipeline, _ := newTestServer(t)
	src := ppg.NewSyntheticSource()
	for i := 0; i < 120; i++ {
		pipeline.Process(src.Next())
	}

	rec := doRequest(t, s, http.MethodGet, "/api/vitals/signal", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Samples []ppg.Sample `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Samples)

	t.Run("POST is rejected", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/api/vitals/signal", "{}")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestResetEndpoint(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/vitals/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"reset requested"}`, rec.Body.String())

	t.Run("GET is rejected", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/vitals/reset", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestSessionsEndpoints(t *testing.T) {
	t.Parallel()

	s, _, store := newTestServer(t)
	id, err := store.CreateSession(1000, 30, "")
	require.NoError(t, err)
	require.NoError(t, store.RecordSnapshot(id, ppg.VitalSignsSnapshot{
		TimestampMs:   500,
		HeartRate:     ppg.HeartRateReading{BPM: 72},
		Quality:       ppg.QualityResult{Quality: 70, IsValid: true},
		BloodPressure: ppg.BPResult{Systolic: 115, Diastolic: 75, MAP: 88, Confidence: 50},
	}))

	t.Run("lists sessions", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/sessions", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var sessions []db.SessionSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
		require.Len(t, sessions, 1)
		assert.Equal(t, id, sessions[0].SessionID)
		assert.Equal(t, 1, sessions[0].SnapshotCount)
	})

	t.Run("lists a session's snapshots", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/sessions/"+id+"/snapshots", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var rows []db.SnapshotRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, 72.0, rows[0].BPM)
	})

	t.Run("unknown subresource is a 404", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/sessions/"+id+"/frames", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("nil store reports persistence disabled", func(t *testing.T) {
		noStore := NewServer(ppg.NewPipeline(ppg.PipelineConfig{}), nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		rec := httptest.NewRecorder()
		noStore.ServeMux().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
