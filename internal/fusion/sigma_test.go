package fusion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// randomBelief builds a well-conditioned random belief for property tests:
// covariance A*Aᵀ + I so it is symmetric positive definite by construction.
func randomBelief(rng *rand.Rand) (*mat.VecDense, *mat.SymDense) {
	x := mat.NewVecDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		x.SetVec(i, rng.NormFloat64()*10)
	}
	a := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := 0; j < stateDim; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var aat mat.Dense
	aat.Mul(a, a.T())
	p := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			p.SetSym(i, j, 0.5*(aat.At(i, j)+aat.At(j, i)))
		}
		p.SetSym(i, i, p.At(i, i)+1)
	}
	return x, p
}

func TestSigmaWeightsSumToOne(t *testing.T) {
	t.Parallel()

	sum := 0.0
	for _, w := range sigmaWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, lambda/(lambda+augDim), sigmaWeights[0], 1e-12)
}

// TestSigmaPointRoundTrip verifies the sigma point set reconstructs the
// augmented mean and covariance it was generated from: the weighted sum of
// points equals the mean, and the weighted outer-product sum equals the
// covariance, for arbitrary valid beliefs.
func TestSigmaPointRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		x, p := randomBelief(rng)
		stdA := 0.1 + rng.Float64()*5
		stdYawdd := 0.1 + rng.Float64()*2

		points, err := generateSigmaPoints(x, p, stdA, stdYawdd)
		require.NoError(t, err)

		rows, cols := points.Dims()
		require.Equal(t, augDim, rows)
		require.Equal(t, sigmaCount, cols)

		// Weighted mean reproduces the augmented mean.
		mean := weightedMean(points)
		for i := 0; i < stateDim; i++ {
			assert.InDelta(t, x.AtVec(i), mean.AtVec(i), 1e-9)
		}
		assert.InDelta(t, 0, mean.AtVec(stateDim), 1e-9)
		assert.InDelta(t, 0, mean.AtVec(stateDim+1), 1e-9)

		// Weighted outer products reproduce the augmented covariance.
		cov := weightedCovariance(points, mean, -1)
		for i := 0; i < stateDim; i++ {
			for j := 0; j < stateDim; j++ {
				assert.InDelta(t, p.At(i, j), cov.At(i, j), 1e-8,
					"covariance mismatch at (%d,%d)", i, j)
			}
		}
		assert.InDelta(t, stdA*stdA, cov.At(stateDim, stateDim), 1e-8)
		assert.InDelta(t, stdYawdd*stdYawdd, cov.At(stateDim+1, stateDim+1), 1e-8)
	}
}

func TestGenerateSigmaPointsRejectsDegenerateCovariance(t *testing.T) {
	t.Parallel()

	x := mat.NewVecDense(stateDim, nil)
	p := mat.NewSymDense(stateDim, nil)
	p.SetSym(0, 0, -1) // not positive definite

	_, err := generateSigmaPoints(x, p, 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegenerateCovariance)
}
