package fusion

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularObservation reports a predicted observation covariance that
// could not be inverted for the gain computation. It almost always means a
// nonphysical noise configuration or a degenerate covariance; the update
// carrying it is rejected rather than retried.
var ErrSingularObservation = errors.New("fusion: predicted observation covariance is singular")

// correction is the outcome of folding one measurement into the predicted
// belief. Nothing in it aliases filter state; the caller commits it.
type correction struct {
	x   *mat.VecDense
	p   *mat.SymDense
	nis float64
}

// correct computes the cross-correlation, Kalman gain and innovation for
// the actual measurement z and applies them to the predicted belief.
func correct(pred *prediction, obs *observation, z []float64) (*correction, error) {
	// Cross-correlation between state and observation space.
	tc := mat.NewDense(stateDim, obs.dim, nil)
	xDiff := make([]float64, stateDim)
	zDiff := make([]float64, obs.dim)
	for c := 0; c < sigmaCount; c++ {
		for r := 0; r < stateDim; r++ {
			xDiff[r] = pred.sigma.At(r, c) - pred.x.AtVec(r)
		}
		xDiff[ixYaw] = NormalizeAngle(xDiff[ixYaw])
		for r := 0; r < obs.dim; r++ {
			zDiff[r] = obs.sigma.At(r, c) - obs.zMean.AtVec(r)
		}
		if obs.angleRow >= 0 {
			zDiff[obs.angleRow] = NormalizeAngle(zDiff[obs.angleRow])
		}
		w := sigmaWeights[c]
		for i := 0; i < stateDim; i++ {
			for j := 0; j < obs.dim; j++ {
				tc.Set(i, j, tc.At(i, j)+w*xDiff[i]*zDiff[j])
			}
		}
	}

	var sInv mat.Dense
	if err := sInv.Inverse(obs.s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularObservation, err)
	}

	var gain mat.Dense
	gain.Mul(tc, &sInv)

	// Innovation, bearing-normalized where the observation carries one.
	inn := mat.NewVecDense(obs.dim, nil)
	for r := 0; r < obs.dim; r++ {
		inn.SetVec(r, z[r]-obs.zMean.AtVec(r))
	}
	if obs.angleRow >= 0 {
		inn.SetVec(obs.angleRow, NormalizeAngle(inn.AtVec(obs.angleRow)))
	}

	// Corrected mean: x + K*innovation.
	x := mat.NewVecDense(stateDim, nil)
	var kInn mat.VecDense
	kInn.MulVec(&gain, inn)
	x.AddVec(pred.x, &kInn)

	// Corrected covariance: P - K*S*Kᵗ, symmetrised on commit.
	var ks, kskt mat.Dense
	ks.Mul(&gain, obs.s)
	kskt.Mul(&ks, gain.T())
	p := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			v := 0.5 * (pred.p.At(i, j) - kskt.At(i, j) + pred.p.At(j, i) - kskt.At(j, i))
			p.SetSym(i, j, v)
		}
	}

	// NIS: innᵗ S⁻¹ inn, the per-step consistency statistic.
	var sInvInn mat.VecDense
	sInvInn.MulVec(&sInv, inn)
	nis := mat.Dot(inn, &sInvInn)

	return &correction{x: x, p: p, nis: nis}, nil
}
