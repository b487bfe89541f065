// Package fusion implements the unscented Kalman filter that fuses direct
// position and range-bearing measurements into a single kinematic belief
// over a CTRV (constant turn rate and velocity) motion model.
//
// The state vector is (px, py, v, yaw, yawd): position in metres, speed
// magnitude in m/s, heading and turn rate in radians. Each measurement is
// processed strictly sequentially: propagate the belief over the elapsed
// time, predict the observation for the arriving sensor type, then correct.
// The filter has exactly one writer and no internal locking; callers that
// feed it from multiple goroutines must serialise access themselves.
package fusion

import (
	"fmt"
	"math"

	"github.com/banshee-data/fusion.report/internal/sensor"
	"gonum.org/v1/gonum/mat"
)

// minInitPosition clamps near-zero initial position components so the
// first range-bearing update does not start from a degenerate geometry.
const minInitPosition = 0.001

// Initial covariance diagonal: position and speed start fairly confident,
// heading and turn rate do not.
var initCovarianceDiag = [stateDim]float64{0.3, 0.2, 0.3, 1, 1}

// Filter is the fusion estimator. It owns the belief (mean and covariance)
// and the fixed noise configuration. Create one with NewFilter.
type Filter struct {
	cfg FilterConfig

	initialized bool
	lastMicros  int64

	x *mat.VecDense // belief mean, stateDim
	p *mat.SymDense // belief covariance, stateDim x stateDim

	// Last consistency statistic per sensor type, for offline tuning.
	nis map[sensor.Type]float64
}

// NewFilter validates the configuration and returns a filter whose belief
// is uninitialised until the first measurement arrives.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fusion: invalid filter config: %w", err)
	}
	return &Filter{
		cfg: cfg,
		x:   mat.NewVecDense(stateDim, nil),
		p:   mat.NewSymDense(stateDim, nil),
		nis: make(map[sensor.Type]float64, 2),
	}, nil
}

// ProcessMeasurement folds one measurement into the belief.
//
// The first measurement bootstraps the belief directly from the
// observation with no propagation, regardless of the sensor enable flags.
// Later measurements propagate the belief over the elapsed time and then
// correct it with the sensor's observation model. A non-monotonic
// timestamp is clamped to zero elapsed time rather than rejected. A later
// measurement from a disabled sensor only advances the stored timestamp.
//
// On error the belief and stored timestamp are unchanged: the whole update
// is computed into temporaries and committed atomically at the end.
func (f *Filter) ProcessMeasurement(m sensor.Measurement) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("fusion: bad measurement: %w", err)
	}

	// The very first measurement bootstraps the belief even when its
	// sensor is disabled; the enable flags gate updates, not init.
	if !f.initialized {
		f.initialize(m)
		return nil
	}

	if !f.cfg.Enabled(m.Type) {
		f.lastMicros = m.Micros
		return nil
	}

	dt := float64(m.Micros-f.lastMicros) / 1e6
	if dt < 0 {
		dt = 0
	}

	pred, err := f.predict(dt)
	if err != nil {
		return err
	}
	obs, err := f.predictObservation(pred, m.Type)
	if err != nil {
		return err
	}
	corr, err := correct(pred, obs, m.Values)
	if err != nil {
		return err
	}

	f.x = corr.x
	f.p = corr.p
	f.nis[m.Type] = corr.nis
	f.lastMicros = m.Micros
	return nil
}

// initialize bootstraps the belief from the very first measurement.
// Heading and turn rate start at zero either way.
func (f *Filter) initialize(m sensor.Measurement) {
	switch m.Type {
	case sensor.RangeBearing:
		r, phi, rd := m.Values[0], m.Values[1], m.Values[2]
		vx := rd * math.Cos(phi)
		vy := rd * math.Sin(phi)
		f.x.SetVec(ixPosX, r*math.Cos(phi))
		f.x.SetVec(ixPosY, r*math.Sin(phi))
		f.x.SetVec(ixSpeed, math.Hypot(vx, vy))
	case sensor.Direct:
		px, py := m.Values[0], m.Values[1]
		if math.Abs(px) < minInitPosition {
			px = minInitPosition
		}
		if math.Abs(py) < minInitPosition {
			py = minInitPosition
		}
		f.x.SetVec(ixPosX, px)
		f.x.SetVec(ixPosY, py)
	}
	for i := 0; i < stateDim; i++ {
		f.p.SetSym(i, i, initCovarianceDiag[i])
	}
	f.lastMicros = m.Micros
	f.initialized = true
}

// Initialized reports whether the belief has been bootstrapped.
func (f *Filter) Initialized() bool {
	return f.initialized
}

// Mean returns a copy of the current belief mean.
func (f *Filter) Mean() *mat.VecDense {
	out := mat.NewVecDense(stateDim, nil)
	out.CopyVec(f.x)
	return out
}

// Covariance returns a copy of the current belief covariance.
func (f *Filter) Covariance() *mat.SymDense {
	out := mat.NewSymDense(stateDim, nil)
	out.CopySym(f.p)
	return out
}

// LastNIS returns the most recent normalized-innovation-squared statistic
// for the sensor type, and whether one has been recorded.
func (f *Filter) LastNIS(t sensor.Type) (float64, bool) {
	v, ok := f.nis[t]
	return v, ok
}

// Position returns the current position estimate in metres.
func (f *Filter) Position() (x, y float64) {
	return f.x.AtVec(ixPosX), f.x.AtVec(ixPosY)
}

// Speed returns the current speed magnitude estimate in m/s.
func (f *Filter) Speed() float64 {
	return f.x.AtVec(ixSpeed)
}

// Heading returns the current heading estimate in radians.
func (f *Filter) Heading() float64 {
	return f.x.AtVec(ixYaw)
}

// TurnRate returns the current turn rate estimate in rad/s.
func (f *Filter) TurnRate() float64 {
	return f.x.AtVec(ixYawRate)
}
