package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// yawRateEpsilon separates the curved-path integral from its straight-line
// limit; below this turn rate the division by yawd is not safe.
const yawRateEpsilon = 0.001

// State component indices within the (unaugmented) CTRV state vector.
const (
	ixPosX    = 0
	ixPosY    = 1
	ixSpeed   = 2
	ixYaw     = 3
	ixYawRate = 4
)

// prediction carries the propagated belief together with the predicted
// sigma points, which the measurement prediction and correction reuse.
type prediction struct {
	x     *mat.VecDense // predicted mean, stateDim
	p     *mat.SymDense // predicted covariance, stateDim x stateDim
	sigma *mat.Dense    // predicted sigma points, stateDim x sigmaCount
}

// propagatePoint advances one augmented sigma point by dt seconds under
// the CTRV motion model with additive constant-acceleration noise. in has
// augDim components (state plus the two noise terms); out receives the
// stateDim predicted components.
func propagatePoint(out, in []float64, dt float64) {
	px := in[ixPosX]
	py := in[ixPosY]
	v := in[ixSpeed]
	yaw := in[ixYaw]
	yawd := in[ixYawRate]
	nuA := in[stateDim]
	nuYawdd := in[stateDim+1]

	var pxPred, pyPred float64
	if math.Abs(yawd) > yawRateEpsilon {
		pxPred = px + v/yawd*(math.Sin(yaw+yawd*dt)-math.Sin(yaw))
		pyPred = py + v/yawd*(math.Cos(yaw)-math.Cos(yaw+yawd*dt))
	} else {
		pxPred = px + v*dt*math.Cos(yaw)
		pyPred = py + v*dt*math.Sin(yaw)
	}

	halfDt2 := 0.5 * dt * dt
	out[ixPosX] = pxPred + halfDt2*nuA*math.Cos(yaw)
	out[ixPosY] = pyPred + halfDt2*nuA*math.Sin(yaw)
	out[ixSpeed] = v + nuA*dt
	out[ixYaw] = yaw + yawd*dt + halfDt2*nuYawdd
	out[ixYawRate] = yawd + nuYawdd*dt
}

// predict runs the propagation stage: sigma point generation, per-point
// motion model, and weighted recombination into the predicted belief. The
// filter's own belief is left untouched; the caller commits the result
// only once the full update succeeds.
func (f *Filter) predict(dt float64) (*prediction, error) {
	augPoints, err := generateSigmaPoints(f.x, f.p, f.cfg.StdAccel, f.cfg.StdYawAccel)
	if err != nil {
		return nil, err
	}

	sigma := mat.NewDense(stateDim, sigmaCount, nil)
	in := make([]float64, augDim)
	out := make([]float64, stateDim)
	for c := 0; c < sigmaCount; c++ {
		for r := 0; r < augDim; r++ {
			in[r] = augPoints.At(r, c)
		}
		propagatePoint(out, in, dt)
		for r := 0; r < stateDim; r++ {
			sigma.Set(r, c, out[r])
		}
	}

	x := weightedMean(sigma)
	p := weightedCovariance(sigma, x, ixYaw)
	return &prediction{x: x, p: p, sigma: sigma}, nil
}
