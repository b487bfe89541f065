package fusion

import "math"

// NormalizeAngle wraps an angle or angle difference into (-π, π].
//
// Every residual that contains a heading or bearing component must pass
// through this function before it is squared or summed; the propagator,
// the measurement predictor and the corrector all use it.
func NormalizeAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	// Remainder maps into [-π, π); fold the open edge onto +π.
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
