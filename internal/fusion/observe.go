package fusion

import (
	"fmt"
	"math"

	"github.com/banshee-data/fusion.report/internal/sensor"
	"gonum.org/v1/gonum/mat"
)

// minRange floors the predicted range before the range-rate division. The
// motion model essentially never produces an exact zero range, but the
// division is undefined there and must stay guarded.
const minRange = 1e-4

// observation carries the predicted measurement-space statistics for the
// arriving sensor type: the observation sigma points, their weighted mean,
// and the innovation covariance S including the sensor noise.
type observation struct {
	dim      int
	angleRow int // row of sigma/zMean holding a bearing, or -1
	sigma    *mat.Dense
	zMean    *mat.VecDense
	s        *mat.SymDense
}

// predictObservation maps the predicted state sigma points into the
// observation space of the given sensor type and recombines them.
func (f *Filter) predictObservation(pred *prediction, t sensor.Type) (*observation, error) {
	switch t {
	case sensor.Direct:
		return f.predictDirect(pred), nil
	case sensor.RangeBearing:
		return f.predictRangeBearing(pred), nil
	}
	return nil, fmt.Errorf("fusion: no observation model for sensor type %q", t)
}

// predictDirect projects sigma points onto (px, py). The observation model
// is the identity on the first two state components, so the observation
// sigma points are just the top two rows of the predicted points.
func (f *Filter) predictDirect(pred *prediction) *observation {
	const dim = 2
	zSigma := mat.NewDense(dim, sigmaCount, nil)
	for c := 0; c < sigmaCount; c++ {
		zSigma.Set(0, c, pred.sigma.At(ixPosX, c))
		zSigma.Set(1, c, pred.sigma.At(ixPosY, c))
	}

	zMean := weightedMean(zSigma)
	s := weightedCovariance(zSigma, zMean, -1)
	s.SetSym(0, 0, s.At(0, 0)+f.cfg.StdDirectX*f.cfg.StdDirectX)
	s.SetSym(1, 1, s.At(1, 1)+f.cfg.StdDirectY*f.cfg.StdDirectY)

	return &observation{dim: dim, angleRow: -1, sigma: zSigma, zMean: zMean, s: s}
}

// predictRangeBearing maps sigma points through the polar observation
// model (r, φ, ṙ).
func (f *Filter) predictRangeBearing(pred *prediction) *observation {
	const dim = 3
	zSigma := mat.NewDense(dim, sigmaCount, nil)
	for c := 0; c < sigmaCount; c++ {
		px := pred.sigma.At(ixPosX, c)
		py := pred.sigma.At(ixPosY, c)
		v := pred.sigma.At(ixSpeed, c)
		yaw := pred.sigma.At(ixYaw, c)

		r := math.Hypot(px, py)
		if r < minRange {
			r = minRange
		}
		zSigma.Set(0, c, r)
		zSigma.Set(1, c, math.Atan2(py, px))
		zSigma.Set(2, c, (px*v*math.Cos(yaw)+py*v*math.Sin(yaw))/r)
	}

	zMean := weightedMean(zSigma)
	s := weightedCovariance(zSigma, zMean, 1)
	s.SetSym(0, 0, s.At(0, 0)+f.cfg.StdRange*f.cfg.StdRange)
	s.SetSym(1, 1, s.At(1, 1)+f.cfg.StdBearing*f.cfg.StdBearing)
	s.SetSym(2, 2, s.At(2, 2)+f.cfg.StdRangeRate*f.cfg.StdRangeRate)

	return &observation{dim: dim, angleRow: 1, sigma: zSigma, zMean: zMean, s: s}
}
