package fit

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/segfit/pkg/segment"
)

// Diagnose evaluates coefficients (highest power first) against the
// observations and returns the fit result with RMSE and r². When the total
// sum of squares is at or below constantTolerance the response is treated
// as constant and r² is 1.
func Diagnose(coeffs, x, y []float64, constantTolerance float64) *segment.FitResult {
	fr := &segment.FitResult{
		Coefficients: append([]float64(nil), coeffs...),
		PointsCount:  len(x),
		RSquared:     1,
	}
	if len(x) == 0 {
		return fr
	}

	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range x {
		r := y[i] - fr.Evaluate(x[i])
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}

	fr.RMSE = math.Sqrt(ssRes / float64(len(x)))
	if ssTot > constantTolerance {
		fr.RSquared = 1 - ssRes/ssTot
	}
	return fr
}
