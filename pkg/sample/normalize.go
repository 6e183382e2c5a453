package sample

import "github.com/chewxy/math32"

// MinMaxNormalize maps values from [min, max] onto [0, scale].
// When min equals max a zero vector of the same length is returned.
func MinMaxNormalize(values []float32, min, max, scale float32) []float32 {
	out := make([]float32, len(values))
	if max == min {
		return out
	}
	span := max - min
	for i, v := range values {
		out[i] = (v - min) / span * scale
	}
	return out
}

// ZScoreNormalize centers values on their mean and divides by the population
// standard deviation, then multiplies by scale. A zero deviation yields zeros.
func ZScoreNormalize(values []float32, scale float32) []float32 {
	out := make([]float32, len(values))
	if len(values) == 0 {
		return out
	}

	var sum float32
	for _, v := range values {
		sum += v
	}
	mean := sum / float32(len(values))

	var variance float32
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float32(len(values))
	stddev := math32.Sqrt(variance)
	if stddev == 0 {
		return out
	}

	for i, v := range values {
		out[i] = scale * ((v - mean) / stddev)
	}
	return out
}
