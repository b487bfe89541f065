package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/fusion.report/internal/sensor"
)

func TestNewFilterConfigValidation(t *testing.T) {
	t.Parallel()

	t.Run("defaults are valid", func(t *testing.T) {
		f, err := NewFilter(DefaultFilterConfig())
		require.NoError(t, err)
		assert.False(t, f.Initialized())
	})

	t.Run("rejects non-positive noise", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.StdAccel = 0
		_, err := NewFilter(cfg)
		assert.Error(t, err)
	})

	t.Run("rejects negative measurement noise", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.StdBearing = -0.01
		_, err := NewFilter(cfg)
		assert.Error(t, err)
	})

	t.Run("rejects both sensors disabled", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.EnableDirect = false
		cfg.EnableRangeBearing = false
		_, err := NewFilter(cfg)
		assert.Error(t, err)
	})
}

func TestFirstMeasurementBootstrap(t *testing.T) {
	t.Parallel()

	t.Run("range bearing ahead on axis", func(t *testing.T) {
		f, err := NewFilter(DefaultFilterConfig())
		require.NoError(t, err)

		err = f.ProcessMeasurement(sensor.Measurement{
			Type:   sensor.RangeBearing,
			Micros: 1000,
			Values: []float64{5, 0, 0},
		})
		require.NoError(t, err)
		require.True(t, f.Initialized())

		mean := f.Mean()
		assert.InDelta(t, 5, mean.AtVec(ixPosX), 1e-9)
		assert.InDelta(t, 0, mean.AtVec(ixPosY), 1e-9)
		assert.InDelta(t, 0, mean.AtVec(ixSpeed), 1e-9)
		assert.InDelta(t, 0, mean.AtVec(ixYaw), 1e-9)
		assert.InDelta(t, 0, mean.AtVec(ixYawRate), 1e-9)
	})

	t.Run("range bearing converts polar", func(t *testing.T) {
		f, err := NewFilter(DefaultFilterConfig())
		require.NoError(t, err)

		phi := math.Pi / 3
		err = f.ProcessMeasurement(sensor.Measurement{
			Type:   sensor.RangeBearing,
			Micros: 1000,
			Values: []float64{10, phi, 2},
		})
		require.NoError(t, err)

		x, y := f.Position()
		assert.InDelta(t, 10*math.Cos(phi), x, 1e-9)
		assert.InDelta(t, 10*math.Sin(phi), y, 1e-9)
		assert.InDelta(t, 2, f.Speed(), 1e-9)
	})

	t.Run("direct at origin clamps position", func(t *testing.T) {
		f, err := NewFilter(DefaultFilterConfig())
		require.NoError(t, err)

		err = f.ProcessMeasurement(sensor.Measurement{
			Type:   sensor.Direct,
			Micros: 1000,
			Values: []float64{0, 0},
		})
		require.NoError(t, err)

		x, y := f.Position()
		assert.InDelta(t, 0.001, x, 1e-12)
		assert.InDelta(t, 0.001, y, 1e-12)
	})

	t.Run("direct away from origin is unclamped", func(t *testing.T) {
		f, err := NewFilter(DefaultFilterConfig())
		require.NoError(t, err)

		err = f.ProcessMeasurement(sensor.Measurement{
			Type:   sensor.Direct,
			Micros: 1000,
			Values: []float64{-3.5, 4.25},
		})
		require.NoError(t, err)

		x, y := f.Position()
		assert.InDelta(t, -3.5, x, 1e-12)
		assert.InDelta(t, 4.25, y, 1e-12)
	})
}

func TestProcessMeasurementRejectsMalformed(t *testing.T) {
	t.Parallel()

	f, err := NewFilter(DefaultFilterConfig())
	require.NoError(t, err)

	err = f.ProcessMeasurement(sensor.Measurement{
		Type:   sensor.Direct,
		Micros: 1000,
		Values: []float64{1, 2, 3},
	})
	assert.Error(t, err)
	assert.False(t, f.Initialized())

	err = f.ProcessMeasurement(sensor.Measurement{
		Type:   "sonar",
		Micros: 1000,
		Values: []float64{1},
	})
	assert.Error(t, err)
}

func TestDisabledSensorDoesNotAdvanceBelief(t *testing.T) {
	t.Parallel()

	cfg := DefaultFilterConfig()
	cfg.EnableRangeBearing = false
	f, err := NewFilter(cfg)
	require.NoError(t, err)

	require.NoError(t, f.ProcessMeasurement(sensor.Measurement{
		Type:   sensor.Direct,
		Micros: 0,
		Values: []float64{1, 1},
	}))
	before := f.Mean()
	beforeCov := f.Covariance()

	// Disabled sensor: timestamp bookkeeping only.
	require.NoError(t, f.ProcessMeasurement(sensor.Measurement{
		Type:   sensor.RangeBearing,
		Micros: 100_000,
		Values: []float64{math.Sqrt2, math.Pi / 4, 0},
	}))

	after := f.Mean()
	afterCov := f.Covariance()
	for i := 0; i < stateDim; i++ {
		assert.Equal(t, before.AtVec(i), after.AtVec(i))
		for j := 0; j < stateDim; j++ {
			assert.Equal(t, beforeCov.At(i, j), afterCov.At(i, j))
		}
	}
	_, ok := f.LastNIS(sensor.RangeBearing)
	assert.False(t, ok)
}

func TestDisabledSensorStillBootstraps(t *testing.T) {
	t.Parallel()

	// The enable flags gate updates, not initialisation: the very first
	// measurement seeds the belief even when its sensor is disabled.
	cfg := DefaultFilterConfig()
	cfg.EnableRangeBearing = false
	f, err := NewFilter(cfg)
	require.NoError(t, err)

	require.NoError(t, f.ProcessMeasurement(sensor.Measurement{
		Type:   sensor.RangeBearing,
		Micros: 1000,
		Values: []float64{5, 0, 0},
	}))
	require.True(t, f.Initialized())

	mean := f.Mean()
	assert.InDelta(t, 5, mean.AtVec(ixPosX), 1e-9)
	assert.InDelta(t, 0, mean.AtVec(ixPosY), 1e-9)

	// A second range-bearing measurement is bookkeeping only.
	before := f.Mean()
	require.NoError(t, f.ProcessMeasurement(sensor.Measurement{
		Type:   sensor.RangeBearing,
		Micros: 100_000,
		Values: []float64{5.1, 0.01, 0.2},
	}))
	after := f.Mean()
	for i := 0; i < stateDim; i++ {
		assert.Equal(t, before.AtVec(i), after.AtVec(i))
	}
	_, ok := f.LastNIS(sensor.RangeBearing)
	assert.False(t, ok)
}

func TestNonMonotonicTimestampClampsToZeroDt(t *testing.T) {
	t.Parallel()

	f, err := NewFilter(DefaultFilterConfig())
	require.NoError(t, err)

	require.NoError(t, f.ProcessMeasurement(sensor.Measurement{
		Type:   sensor.Direct,
		Micros: 500_000,
		Values: []float64{2, 3},
	}))

	// An out-of-order timestamp must not produce a negative-time
	// propagation; the update still applies with zero elapsed time.
	err = f.ProcessMeasurement(sensor.Measurement{
		Type:   sensor.Direct,
		Micros: 400_000,
		Values: []float64{2.01, 3.01},
	})
	require.NoError(t, err)

	mean := f.Mean()
	for i := 0; i < stateDim; i++ {
		assert.False(t, math.IsNaN(mean.AtVec(i)), "state component %d is NaN", i)
	}
}

// TestStationaryTargetConverges runs the two-sensor loop on a fixed target
// and checks the belief settles near the true position with finite,
// non-negative NIS for both sensors.
func TestStationaryTargetConverges(t *testing.T) {
	t.Parallel()

	f, err := NewFilter(DefaultFilterConfig())
	require.NoError(t, err)

	const px, py = 4.0, 3.0
	r := math.Hypot(px, py)
	phi := math.Atan2(py, px)

	micros := int64(0)
	for step := 0; step < 40; step++ {
		var m sensor.Measurement
		if step%2 == 0 {
			m = sensor.Measurement{Type: sensor.Direct, Micros: micros, Values: []float64{px, py}}
		} else {
			m = sensor.Measurement{Type: sensor.RangeBearing, Micros: micros, Values: []float64{r, phi, 0}}
		}
		require.NoError(t, f.ProcessMeasurement(m))
		micros += 50_000
	}

	gotX, gotY := f.Position()
	assert.InDelta(t, px, gotX, 0.2)
	assert.InDelta(t, py, gotY, 0.2)

	for _, st := range []sensor.Type{sensor.Direct, sensor.RangeBearing} {
		nis, ok := f.LastNIS(st)
		require.True(t, ok, "expected a NIS statistic for %s", st)
		assert.GreaterOrEqual(t, nis, 0.0)
		assert.False(t, math.IsNaN(nis))
	}
}

// TestCorrectedCovariancePSD drives the full update on random beliefs and
// checks the corrected covariance stays symmetric positive semidefinite.
func TestCorrectedCovariancePSD(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(99))
	f, err := NewFilter(DefaultFilterConfig())
	require.NoError(t, err)
	f.initialized = true

	for trial := 0; trial < 20; trial++ {
		x, p := randomBelief(rng)
		f.x.CopyVec(x)
		f.p.CopySym(p)
		f.lastMicros = 0

		typ := sensor.Direct
		values := []float64{x.AtVec(ixPosX) + rng.NormFloat64(), x.AtVec(ixPosY) + rng.NormFloat64()}
		if trial%2 == 1 {
			typ = sensor.RangeBearing
			r := math.Hypot(x.AtVec(ixPosX), x.AtVec(ixPosY)) + math.Abs(rng.NormFloat64())
			values = []float64{r, rng.Float64()*2*math.Pi - math.Pi, rng.NormFloat64()}
		}
		require.NoError(t, f.ProcessMeasurement(sensor.Measurement{
			Type:   typ,
			Micros: 100_000,
			Values: values,
		}))

		cov := f.Covariance()
		jittered := mat.NewSymDense(stateDim, nil)
		jittered.CopySym(cov)
		for i := 0; i < stateDim; i++ {
			assert.False(t, math.IsNaN(cov.At(i, i)))
			jittered.SetSym(i, i, jittered.At(i, i)+1e-6)
		}
		var chol mat.Cholesky
		assert.True(t, chol.Factorize(jittered), "corrected covariance not PSD on trial %d", trial)
	}
}
