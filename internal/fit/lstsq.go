package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// basisRow writes the deriv-th derivative of the power basis
// (t^degree, ..., t^1, t^0) at t into dst. The coefficient of t^k becomes
// k·(k-1)···(k-deriv+1)·t^(k-deriv), and terms with k < deriv are zero, so no
// negative power is ever evaluated.
func basisRow(dst []float64, t float64, degree, deriv int) {
	for col := 0; col <= degree; col++ {
		k := degree - col
		if k < deriv {
			dst[col] = 0
			continue
		}
		factor := 1.0
		for m := 0; m < deriv; m++ {
			factor *= float64(k - m)
		}
		dst[col] = factor * ipow(t, k-deriv)
	}
}

func ipow(t float64, n int) float64 {
	p := 1.0
	for i := 0; i < n; i++ {
		p *= t
	}
	return p
}

// vandermonde builds the design matrix with columns x^degree ... x^0
func vandermonde(x []float64, degree int) *mat.Dense {
	a := mat.NewDense(len(x), degree+1, nil)
	for i, v := range x {
		basisRow(a.RawRowView(i), v, degree, 0)
	}
	return a
}

// solveLeastSquares minimises |a·c - b|² with a QR factorization. Columns
// are scaled to unit norm before factorizing and the solution is scaled
// back, which keeps high powers of large time values from swamping the
// constant column.
func solveLeastSquares(a *mat.Dense, b []float64) ([]float64, error) {
	r, c := a.Dims()
	if r < c {
		return nil, fmt.Errorf("%d equations for %d unknowns", r, c)
	}

	scale := make([]float64, c)
	for j := 0; j < c; j++ {
		norm := mat.Norm(a.ColView(j), 2)
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			return nil, fmt.Errorf("design column %d has norm %g", j, norm)
		}
		scale[j] = norm
	}

	scaled := mat.NewDense(r, c, nil)
	scaled.Apply(func(_, j int, v float64) float64 { return v / scale[j] }, a)

	var qr mat.QR
	qr.Factorize(scaled)

	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, mat.NewVecDense(r, append([]float64(nil), b...))); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("ill-conditioned system (condition number %g)", float64(cond))
		}
		return nil, err
	}

	coeffs := make([]float64, c)
	for j := range coeffs {
		coeffs[j] = sol.AtVec(j) / scale[j]
		if math.IsNaN(coeffs[j]) || math.IsInf(coeffs[j], 0) {
			return nil, fmt.Errorf("non-finite coefficient %d", j)
		}
	}
	return coeffs, nil
}
