package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/sensor"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "fusion_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateRunAndRecordEstimates(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	runID, err := db.CreateRun("replay:capture1.txt")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	for i := 0; i < 3; i++ {
		err := db.RecordEstimate(&Estimate{
			RunID:      runID,
			SensorType: sensor.Direct,
			Micros:     int64(i) * 50_000,
			PosX:       float64(i),
			PosY:       float64(i) * 2,
			Speed:      1.5,
			VarPosX:    0.1,
			NIS:        float64(i) * 0.7,
		})
		require.NoError(t, err)
	}

	got, err := db.GetEstimates(runID, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, sensor.Direct, got[0].SensorType)
	assert.Equal(t, 2.0, got[2].PosX)
	assert.Equal(t, int64(100_000), got[2].Micros)

	limited, err := db.GetEstimates(runID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestNISSeriesFiltersBySensor(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	runID, err := db.CreateRun("udp::7071")
	require.NoError(t, err)

	require.NoError(t, db.RecordEstimate(&Estimate{RunID: runID, SensorType: sensor.Direct, Micros: 100, NIS: 1.1}))
	require.NoError(t, db.RecordEstimate(&Estimate{RunID: runID, SensorType: sensor.RangeBearing, Micros: 200, NIS: 2.2}))
	require.NoError(t, db.RecordEstimate(&Estimate{RunID: runID, SensorType: sensor.Direct, Micros: 300, NIS: 3.3}))

	micros, nis, err := db.NISSeries(runID, sensor.Direct)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 300}, micros)
	assert.Equal(t, []float64{1.1, 3.3}, nis)

	micros, nis, err = db.NISSeries(runID, sensor.RangeBearing)
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, micros)
	assert.Equal(t, []float64{2.2}, nis)
}

func TestLatestRunID(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	latest, err := db.LatestRunID()
	require.NoError(t, err)
	assert.Empty(t, latest)

	runID, err := db.CreateRun("replay")
	require.NoError(t, err)

	latest, err = db.LatestRunID()
	require.NoError(t, err)
	assert.Equal(t, runID, latest)
}

func TestMigrateUpAndVersion(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	migrationsDir := filepath.Join("..", "..", "migrations")
	require.NoError(t, db.MigrateUp(migrationsDir))

	version, dirty, err := db.MigrateVersion(migrationsDir)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp(migrationsDir))

	// The migrated index must be usable by the NIS series query.
	runID, err := db.CreateRun("replay")
	require.NoError(t, err)
	require.NoError(t, db.RecordEstimate(&Estimate{
		RunID:      runID,
		SensorType: sensor.Direct,
		Micros:     1000,
		NIS:        2.0,
	}))
	micros, nis, err := db.NISSeries(runID, sensor.Direct)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000}, micros)
	assert.Equal(t, []float64{2.0}, nis)
}
