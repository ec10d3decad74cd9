package mot

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ema calculates exponentially recency-weighted average of values.
// Weights are exp(linspace(0, -1, n)) normalized to sum 1, the heaviest weight is applied to the newest value.
func ema(values []float64) float64 {
	n := len(values)
	switch n {
	case 0:
		return 0
	case 1:
		return values[0]
	}
	weights := make([]float64, n)
	floats.Span(weights, 0, -1)
	for i := range weights {
		weights[i] = math.Exp(weights[i])
	}
	floats.Scale(1/floats.Sum(weights), weights)
	// Convolution flips the kernel: weights[0] must meet the last value
	floats.Reverse(weights)
	return floats.Dot(values, weights)
}
