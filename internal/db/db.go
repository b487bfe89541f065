// Package db provides the sqlite-backed persistence for fusion runs and
// their per-update state estimates.
package db

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the estimate database at path and
// ensures the base schema exists. Schema evolution beyond the base tables
// goes through the migrations in migrations/ (see migrate.go).
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fusion_runs (
			run_id            TEXT PRIMARY KEY,
			source            TEXT,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS fusion_estimates (
			estimate_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT,
			sensor_type       TEXT,
			ts_micros         BIGINT,
			pos_x             DOUBLE,
			pos_y             DOUBLE,
			speed             DOUBLE,
			heading           DOUBLE,
			turn_rate         DOUBLE,
			var_pos_x         DOUBLE,
			var_pos_y         DOUBLE,
			var_speed         DOUBLE,
			var_heading       DOUBLE,
			var_turn_rate     DOUBLE,
			nis               DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES fusion_runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_fusion_estimates_run
			ON fusion_estimates(run_id, ts_micros);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}
