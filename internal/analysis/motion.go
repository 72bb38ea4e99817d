package analysis

import "math"

// DefaultMotionNorm is the gyro magnitude (deg/s) treated as full-scale
// movement. Matches the headband the pipeline was tuned on.
const DefaultMotionNorm = 50.0

// DefaultMotionImpact is the default weight of movement in the aggregate
// attenuation.
const DefaultMotionImpact = 0.2

// movementScalar derives a movement value in [0, 1] from raw motion
// samples: the mean absolute reading across every channel and sample,
// divided by norm and clipped to the unit interval. An empty chunk yields 0,
// which keeps the compensation factor neutral when the motion stream is dry.
func movementScalar(samples [][]float64, norm float64) float64 {
	var sum float64
	n := 0
	for _, vec := range samples {
		for _, v := range vec {
			sum += math.Abs(v)
			n++
		}
	}
	if n == 0 || norm <= 0 {
		return 0
	}
	m := sum / float64(n) / norm
	if m > 1 {
		return 1
	}
	return m
}

// compensationFactor converts a movement scalar into the multiplicative
// attenuation applied to the aggregate: 1 at rest, (1 - impact) at
// full-scale movement. High-movement intervals are damped rather than
// reported as signal change.
func compensationFactor(movement, impact float64) float64 {
	return 1 - impact*movement
}
