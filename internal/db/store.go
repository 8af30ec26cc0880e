package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/pulse.report/internal/ppg"
)

// Session is one monitoring run.
type Session struct {
	SessionID       string  `json:"session_id"`
	StartedAtMs     int64   `json:"started_at_ms"`
	EndedAtMs       *int64  `json:"ended_at_ms,omitempty"`
	SubjectAgeYears float64 `json:"subject_age_years"`
	Notes           string  `json:"notes,omitempty"`
}

// SnapshotRow is the persisted subset of a vitals snapshot. Full HRV
// detail stays in memory; the store keeps the fields the report and
// trend tooling read.
type SnapshotRow struct {
	SessionID      string  `json:"session_id"`
	TimestampMs    int64   `json:"timestamp_ms"`
	BPM            float64 `json:"bpm"`
	IsPeak         bool    `json:"is_peak"`
	Quality        float64 `json:"quality"`
	QualityValid   bool    `json:"quality_valid"`
	QualityReason  string  `json:"quality_reason,omitempty"`
	PerfusionIndex float64 `json:"perfusion_index"`
	HRVSDNN        float64 `json:"hrv_sdnn"`
	HRVRMSSD       float64 `json:"hrv_rmssd"`
	HRVLFHF        float64 `json:"hrv_lf_hf"`
	HRVHealthScore float64 `json:"hrv_health_score"`
	SpO2           float64 `json:"spo2"`
	SpO2Confidence float64 `json:"spo2_confidence"`
	SpO2Valid      bool    `json:"spo2_valid"`
	BPSystolic     float64 `json:"bp_systolic"`
	BPDiastolic    float64 `json:"bp_diastolic"`
	BPMAP          float64 `json:"bp_map"`
	BPConfidence   float64 `json:"bp_confidence"`
	Irregular      bool    `json:"irregular"`
}

// SessionSummary aggregates one session for listings and reports.
type SessionSummary struct {
	Session
	SnapshotCount int     `json:"snapshot_count"`
	MeanBPM       float64 `json:"mean_bpm"`
	MeanQuality   float64 `json:"mean_quality"`
	MeanSpO2      float64 `json:"mean_spo2"`
}

// CreateSession inserts a new session and returns its generated ID.
func (db *DB) CreateSession(startedAtMs int64, subjectAge float64, notes string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_at_ms, subject_age_years, notes) VALUES (?, ?, ?, ?)`,
		id, startedAtMs, subjectAge, notes,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// EndSession marks a session as finished.
func (db *DB) EndSession(sessionID string, endedAtMs int64) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at_ms = ? WHERE session_id = ?`, endedAtMs, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("no such session %q", sessionID)
	}
	return nil
}

// RecordSnapshot persists one vitals snapshot row.
func (db *DB) RecordSnapshot(sessionID string, snap ppg.VitalSignsSnapshot) error {
	var sdnn, rmssd, lfhf, health float64
	if snap.HRV != nil {
		sdnn = snap.HRV.Temporal.SDNN
		rmssd = snap.HRV.Temporal.RMSSD
		lfhf = snap.HRV.Frequency.LFHFRatio
		health = snap.HRV.Indices.HealthScore
	}
	var spo2, spo2Conf float64
	var spo2Valid bool
	if snap.SpO2 != nil {
		spo2 = snap.SpO2.SpO2
		spo2Conf = snap.SpO2.Confidence
		spo2Valid = snap.SpO2.IsValid
	}

	_, err := db.Exec(`
		INSERT INTO snapshots (
			session_id, timestamp_ms, bpm, is_peak,
			quality, quality_valid, quality_reason, perfusion_index,
			hrv_sdnn, hrv_rmssd, hrv_lf_hf, hrv_health_score,
			spo2, spo2_confidence, spo2_valid,
			bp_systolic, bp_diastolic, bp_map, bp_confidence,
			irregular
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(snap.TimestampMs), snap.HeartRate.BPM, snap.HeartRate.IsPeak,
		snap.Quality.Quality, snap.Quality.IsValid, string(snap.Quality.Reason), snap.Quality.PerfusionIndex,
		sdnn, rmssd, lfhf, health,
		spo2, spo2Conf, spo2Valid,
		snap.BloodPressure.Systolic, snap.BloodPressure.Diastolic, snap.BloodPressure.MAP, snap.BloodPressure.Confidence,
		snap.Irregular,
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}

// Sessions lists sessions, newest first, with aggregates.
func (db *DB) Sessions(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT s.session_id, s.started_at_ms, s.ended_at_ms, s.subject_age_years, COALESCE(s.notes, ''),
		       COUNT(n.snapshot_id),
		       COALESCE(AVG(CASE WHEN n.bpm > 0 THEN n.bpm END), 0),
		       COALESCE(AVG(n.quality), 0),
		       COALESCE(AVG(CASE WHEN n.spo2_valid THEN n.spo2 END), 0)
		FROM sessions s
		LEFT JOIN snapshots n ON n.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at_ms DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var ended sql.NullInt64
		if err := rows.Scan(
			&s.SessionID, &s.StartedAtMs, &ended, &s.SubjectAgeYears, &s.Notes,
			&s.SnapshotCount, &s.MeanBPM, &s.MeanQuality, &s.MeanSpO2,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if ended.Valid {
			v := ended.Int64
			s.EndedAtMs = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionSnapshots returns a session's persisted snapshots in time
// order.
func (db *DB) SessionSnapshots(sessionID string, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := db.Query(`
		SELECT session_id, timestamp_ms, bpm, is_peak,
		       quality, quality_valid, COALESCE(quality_reason, ''), perfusion_index,
		       hrv_sdnn, hrv_rmssd, hrv_lf_hf, hrv_health_score,
		       spo2, spo2_confidence, spo2_valid,
		       bp_systolic, bp_diastolic, bp_map, bp_confidence,
		       irregular
		FROM snapshots
		WHERE session_id = ?
		ORDER BY timestamp_ms ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(
			&r.SessionID, &r.TimestampMs, &r.BPM, &r.IsPeak,
			&r.Quality, &r.QualityValid, &r.QualityReason, &r.PerfusionIndex,
			&r.HRVSDNN, &r.HRVRMSSD, &r.HRVLFHF, &r.HRVHealthScore,
			&r.SpO2, &r.SpO2Confidence, &r.SpO2Valid,
			&r.BPSystolic, &r.BPDiastolic, &r.BPMAP, &r.BPConfidence,
			&r.Irregular,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
