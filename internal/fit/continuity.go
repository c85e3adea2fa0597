package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/segfit/pkg/segment"
)

// ContinuityFitter fits every Normal segment of a channel in one weighted
// least-squares system. Consecutive Normal segments that share a boundary
// get soft equality rows for the value and, depending on the order, the
// first and second derivative at that boundary.
type ContinuityFitter struct {
	opts Options
}

// NewContinuityFitter creates a joint fitter; zero-valued option fields take their defaults
func NewContinuityFitter(opts Options) *ContinuityFitter {
	return &ContinuityFitter{opts: opts.withDefaults()}
}

// junction is a shared boundary between two Normal segments
type junction struct {
	left, right int
	t           float64
}

// Fit solves the joint system and returns results index-aligned with segs.
// Mask segments get nil. Any failure returns ErrNoJointFit and no results,
// leaving the caller to decide whether to fall back to independent fits.
func (f *ContinuityFitter) Fit(segs []segment.Segment, x, y []float64, order segment.Order) ([]*segment.FitResult, error) {
	if !order.Valid() {
		return nil, fmt.Errorf("%w: invalid continuity order %d", ErrNoJointFit, order)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}

	parts := Partition(segs, x, y)

	// column offset of each Normal segment's coefficient block
	offsets := make([]int, len(segs))
	cols, rows := 0, 0
	normals := 0
	for i, s := range segs {
		offsets[i] = -1
		if s.IsMask() {
			continue
		}
		if s.PolyDegree < 0 {
			return nil, fmt.Errorf("%w: segment %d has negative degree", ErrNoJointFit, i)
		}
		if parts[i].Len() == 0 {
			return nil, fmt.Errorf("%w: segment %d [%g, %g] has no samples", ErrNoJointFit, i, s.XStart, s.XEnd)
		}
		offsets[i] = cols
		cols += s.PolyDegree + 1
		rows += parts[i].Len()
		normals++
	}
	if normals == 0 {
		return nil, fmt.Errorf("%w: no normal segments", ErrNoJointFit)
	}

	var joints []junction
	for i := 0; i+1 < len(segs); i++ {
		a, b := segs[i], segs[i+1]
		if a.IsMask() || b.IsMask() || math.Abs(a.XEnd-b.XStart) > f.opts.BoundaryEpsilon {
			continue
		}
		joints = append(joints, junction{left: i, right: i + 1, t: a.XEnd})
	}
	rows += len(joints) * (int(order) + 1)

	if rows < cols {
		return nil, fmt.Errorf("%w: %d equations for %d unknowns", ErrNoJointFit, rows, cols)
	}

	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)

	r := 0
	for i, s := range segs {
		if offsets[i] < 0 {
			continue
		}
		lo, hi := offsets[i], offsets[i]+s.PolyDegree+1
		for k, t := range parts[i].X {
			basisRow(a.RawRowView(r)[lo:hi], t, s.PolyDegree, 0)
			b[r] = parts[i].Y[k]
			r++
		}
	}

	w := f.opts.ConstraintWeight
	for _, j := range joints {
		left, right := segs[j.left], segs[j.right]
		ll, lh := offsets[j.left], offsets[j.left]+left.PolyDegree+1
		rl, rh := offsets[j.right], offsets[j.right]+right.PolyDegree+1
		for d := 0; d <= int(order); d++ {
			row := a.RawRowView(r)
			basisRow(row[ll:lh], j.t, left.PolyDegree, d)
			basisRow(row[rl:rh], j.t, right.PolyDegree, d)
			for c := ll; c < lh; c++ {
				row[c] *= w
			}
			for c := rl; c < rh; c++ {
				row[c] *= -w
			}
			r++
		}
	}

	coeffs, err := solveLeastSquares(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJointFit, err)
	}

	results := make([]*segment.FitResult, len(segs))
	for i, s := range segs {
		if offsets[i] < 0 {
			continue
		}
		block := coeffs[offsets[i] : offsets[i]+s.PolyDegree+1]
		results[i] = Diagnose(block, parts[i].X, parts[i].Y, f.opts.ConstantTolerance)
	}
	return results, nil
}
