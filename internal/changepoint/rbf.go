package changepoint

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rbfCost is the radial basis function kernel cost of a segment:
// its length minus the mean kernel similarity of all its sample pairs.
// A 2-D prefix sum of the Gram matrix makes each evaluation O(1).
type rbfCost struct {
	n      int
	prefix *mat.Dense
}

func newRBFCost(signal []float64) *rbfCost {
	n := len(signal)
	gamma := medianGamma(signal)

	// prefix[i][j] is the sum of gram[a][b] for a < i, b < j
	prefix := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			d := signal[i] - signal[j]
			row += math.Exp(-gamma * d * d)
			prefix.Set(i+1, j+1, prefix.At(i, j+1)+row)
		}
	}
	return &rbfCost{n: n, prefix: prefix}
}

// medianGamma picks the kernel bandwidth as the inverse median of the
// non-zero pairwise squared distances
func medianGamma(signal []float64) float64 {
	var distances []float64
	for i := range signal {
		for j := i + 1; j < len(signal); j++ {
			d := signal[i] - signal[j]
			if d*d > 0 {
				distances = append(distances, d*d)
			}
		}
	}
	if len(distances) == 0 {
		return 1
	}
	sort.Float64s(distances)
	median := stat.Quantile(0.5, stat.Empirical, distances, nil)
	if median == 0 {
		return 1
	}
	return 1 / median
}

// cost of the half-open sample range [start, end)
func (r *rbfCost) cost(start, end int) float64 {
	if start >= end || start < 0 || end > r.n {
		return math.Inf(1)
	}
	length := float64(end - start)
	block := r.prefix.At(end, end) - r.prefix.At(start, end) - r.prefix.At(end, start) + r.prefix.At(start, start)
	// the diagonal of the Gram matrix is all ones
	return length - block/length
}
