package fit

import (
	"fmt"
	"sort"

	"github.com/chrissnell/segfit/internal/samples"
	"github.com/chrissnell/segfit/pkg/segment"
)

// IndependentFitter fits one polynomial to one segment's samples
type IndependentFitter struct {
	opts Options
}

// NewIndependentFitter creates a fitter; zero-valued option fields take their defaults
func NewIndependentFitter(opts Options) *IndependentFitter {
	return &IndependentFitter{opts: opts.withDefaults()}
}

// Fit returns the least-squares polynomial of the given degree through
// (x, y). Missing values are dropped first. It fails with
// ErrInsufficientPoints when fewer than degree+1 samples remain and with
// ErrSingularSystem when the samples cannot determine the coefficients.
func (f *IndependentFitter) Fit(x, y []float64, degree int) (*segment.FitResult, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	if degree < 0 {
		return nil, fmt.Errorf("%w: negative degree %d", ErrSingularSystem, degree)
	}

	xs, ys := samples.Clean(x, y)
	if len(xs) < degree+1 {
		return nil, fmt.Errorf("%w: %d points for degree %d", ErrInsufficientPoints, len(xs), degree)
	}
	if d := distinct(xs); d < degree+1 {
		return nil, fmt.Errorf("%w: %d distinct x values for degree %d", ErrSingularSystem, d, degree)
	}

	coeffs, err := solveLeastSquares(vandermonde(xs, degree), ys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}
	return Diagnose(coeffs, xs, ys, f.opts.ConstantTolerance), nil
}

func distinct(x []float64) int {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	n := 0
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			n++
		}
	}
	return n
}
