package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/fusion.report/internal/sensor"
)

// Estimate is one persisted filter update: the belief mean, the covariance
// diagonal, and the NIS statistic for the sensor that produced it.
type Estimate struct {
	RunID      string
	SensorType sensor.Type
	Micros     int64

	PosX     float64
	PosY     float64
	Speed    float64
	Heading  float64
	TurnRate float64

	VarPosX     float64
	VarPosY     float64
	VarSpeed    float64
	VarHeading  float64
	VarTurnRate float64

	NIS float64
}

// CreateRun registers a new fusion run for the given source description
// and returns its ID.
func (db *DB) CreateRun(source string) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(`INSERT INTO fusion_runs (run_id, source) VALUES (?, ?)`, runID, source)
	if err != nil {
		return "", fmt.Errorf("create fusion run: %w", err)
	}
	return runID, nil
}

// RecordEstimate appends one estimate row for a run.
func (db *DB) RecordEstimate(e *Estimate) error {
	_, err := db.Exec(`
		INSERT INTO fusion_estimates (
			run_id, sensor_type, ts_micros,
			pos_x, pos_y, speed, heading, turn_rate,
			var_pos_x, var_pos_y, var_speed, var_heading, var_turn_rate,
			nis
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, string(e.SensorType), e.Micros,
		e.PosX, e.PosY, e.Speed, e.Heading, e.TurnRate,
		e.VarPosX, e.VarPosY, e.VarSpeed, e.VarHeading, e.VarTurnRate,
		e.NIS,
	)
	if err != nil {
		return fmt.Errorf("record estimate: %w", err)
	}
	return nil
}

// GetEstimates returns up to limit estimates for a run in timestamp order.
// A limit of 0 or less returns every row.
func (db *DB) GetEstimates(runID string, limit int) ([]*Estimate, error) {
	query := `
		SELECT run_id, sensor_type, ts_micros,
			pos_x, pos_y, speed, heading, turn_rate,
			var_pos_x, var_pos_y, var_speed, var_heading, var_turn_rate,
			nis
		FROM fusion_estimates
		WHERE run_id = ?
		ORDER BY ts_micros ASC`
	args := []interface{}{runID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query estimates: %w", err)
	}
	defer rows.Close()

	var out []*Estimate
	for rows.Next() {
		var e Estimate
		var sensorType string
		if err := rows.Scan(
			&e.RunID, &sensorType, &e.Micros,
			&e.PosX, &e.PosY, &e.Speed, &e.Heading, &e.TurnRate,
			&e.VarPosX, &e.VarPosY, &e.VarSpeed, &e.VarHeading, &e.VarTurnRate,
			&e.NIS,
		); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		e.SensorType = sensor.Type(sensorType)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// NISSeries returns the (ts_micros, nis) series for one sensor type within
// a run, for consistency monitoring.
func (db *DB) NISSeries(runID string, t sensor.Type) (micros []int64, nis []float64, err error) {
	rows, err := db.Query(`
		SELECT ts_micros, nis FROM fusion_estimates
		WHERE run_id = ? AND sensor_type = ?
		ORDER BY ts_micros ASC`,
		runID, string(t),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query nis series: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m int64
		var v float64
		if err := rows.Scan(&m, &v); err != nil {
			return nil, nil, fmt.Errorf("scan nis row: %w", err)
		}
		micros = append(micros, m)
		nis = append(nis, v)
	}
	return micros, nis, rows.Err()
}

// LatestRunID returns the most recently started run, or "" when the
// database holds none.
func (db *DB) LatestRunID() (string, error) {
	var runID string
	err := db.QueryRow(`
		SELECT run_id FROM fusion_runs
		ORDER BY started_at DESC, run_id DESC LIMIT 1`).Scan(&runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return runID, nil
}
