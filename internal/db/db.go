// Package db persists monitoring sessions and vitals snapshots in
// sqlite.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path and
// applies the baseline schema. Use MigrateUp for schema upgrades beyond
// the baseline.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single writer; WAL keeps readers (API, report tools) unblocked.
	if _, err := conn.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	_, err = conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			started_at_ms     BIGINT NOT NULL,
			ended_at_ms       BIGINT,
			subject_age_years DOUBLE,
			notes             TEXT,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS snapshots (
			snapshot_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT NOT NULL,
			timestamp_ms      BIGINT NOT NULL,
			bpm               DOUBLE,
			is_peak           INTEGER,
			quality           DOUBLE,
			quality_valid     INTEGER,
			quality_reason    TEXT,
			perfusion_index   DOUBLE,
			hrv_sdnn          DOUBLE,
			hrv_rmssd         DOUBLE,
			hrv_lf_hf         DOUBLE,
			hrv_health_score  DOUBLE,
			spo2              DOUBLE,
			spo2_confidence   DOUBLE,
			spo2_valid        INTEGER,
			bp_systolic       DOUBLE,
			bp_diastolic      DOUBLE,
			bp_map            DOUBLE,
			bp_confidence     DOUBLE,
			irregular         INTEGER,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_session
			ON snapshots(session_id, timestamp_ms);
	`)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create baseline schema: %w", err)
	}

	return &DB{conn}, nil
}
