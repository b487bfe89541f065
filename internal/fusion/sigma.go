package fusion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Dimensional constants for the CTRV state and its augmentation. These are
// structural: the motion model has five state components and two process
// noise components, which fixes the sigma point count at 2*7+1.
const (
	stateDim   = 5
	augDim     = stateDim + 2
	sigmaCount = 2*augDim + 1

	// lambda is the sigma point spread parameter, 3 - stateDim.
	lambda = 3.0 - float64(stateDim)
)

// ErrDegenerateCovariance reports an augmented covariance that lost
// positive definiteness, so no matrix square root exists.
var ErrDegenerateCovariance = errors.New("fusion: augmented covariance is not positive definite")

// sigmaWeights holds the recombination weights shared by every weighted
// sum over sigma points: w[0] = λ/(λ+n_aug), w[i>0] = 1/(2(λ+n_aug)).
var sigmaWeights = func() [sigmaCount]float64 {
	var w [sigmaCount]float64
	w[0] = lambda / (lambda + augDim)
	for i := 1; i < sigmaCount; i++ {
		w[i] = 0.5 / (lambda + augDim)
	}
	return w
}()

// generateSigmaPoints builds the 15 augmented sigma points for the given
// belief and process noise. The augmented mean is the belief mean with two
// zero noise components; the augmented covariance carries the two process
// noise variances on its trailing diagonal.
//
// The returned matrix stores one sigma point per column (augDim rows).
func generateSigmaPoints(x *mat.VecDense, p *mat.SymDense, stdAccel, stdYawAccel float64) (*mat.Dense, error) {
	xAug := mat.NewVecDense(augDim, nil)
	for i := 0; i < stateDim; i++ {
		xAug.SetVec(i, x.AtVec(i))
	}

	pAug := mat.NewSymDense(augDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			pAug.SetSym(i, j, p.At(i, j))
		}
	}
	pAug.SetSym(stateDim, stateDim, stdAccel*stdAccel)
	pAug.SetSym(stateDim+1, stateDim+1, stdYawAccel*stdYawAccel)

	var chol mat.Cholesky
	if ok := chol.Factorize(pAug); !ok {
		return nil, fmt.Errorf("%w: cholesky factorization failed", ErrDegenerateCovariance)
	}
	var l mat.TriDense
	chol.LTo(&l)

	scale := math.Sqrt(lambda + augDim)
	points := mat.NewDense(augDim, sigmaCount, nil)
	for r := 0; r < augDim; r++ {
		points.Set(r, 0, xAug.AtVec(r))
	}
	for c := 0; c < augDim; c++ {
		for r := 0; r < augDim; r++ {
			spread := scale * l.At(r, c)
			points.Set(r, c+1, xAug.AtVec(r)+spread)
			points.Set(r, c+1+augDim, xAug.AtVec(r)-spread)
		}
	}
	return points, nil
}

// weightedMean recombines sigma point columns into their weighted mean.
func weightedMean(points *mat.Dense) *mat.VecDense {
	rows, _ := points.Dims()
	mean := mat.NewVecDense(rows, nil)
	for c := 0; c < sigmaCount; c++ {
		mean.AddScaledVec(mean, sigmaWeights[c], points.ColView(c))
	}
	return mean
}

// weightedCovariance recombines sigma point columns into their weighted
// covariance about mean. angleRow names the row holding an angular
// component whose residuals must be wrapped before squaring; pass -1 when
// no row is angular.
func weightedCovariance(points *mat.Dense, mean *mat.VecDense, angleRow int) *mat.SymDense {
	rows, _ := points.Dims()
	cov := mat.NewSymDense(rows, nil)
	diff := make([]float64, rows)
	for c := 0; c < sigmaCount; c++ {
		for r := 0; r < rows; r++ {
			diff[r] = points.At(r, c) - mean.AtVec(r)
		}
		if angleRow >= 0 {
			diff[angleRow] = NormalizeAngle(diff[angleRow])
		}
		w := sigmaWeights[c]
		for i := 0; i < rows; i++ {
			for j := i; j < rows; j++ {
				cov.SetSym(i, j, cov.At(i, j)+w*diff[i]*diff[j])
			}
		}
	}
	return cov
}
