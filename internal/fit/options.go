// Package fit implements polynomial least-squares fitting for segmented
// channels: an independent fit per segment and a joint fit that ties
// neighbouring segments together with weighted continuity rows.
package fit

import "errors"

// Fit errors. The recompute pass records these and leaves the affected
// segments without a fit result.
var (
	ErrInsufficientPoints = errors.New("insufficient points for polynomial degree")
	ErrSingularSystem     = errors.New("least-squares system is singular")
	ErrNoJointFit         = errors.New("joint continuity fit failed")
	ErrLengthMismatch     = errors.New("x and y sample counts differ")
)

// Options holds the numerical parameters of both fitters
type Options struct {
	// ConstraintWeight multiplies every continuity row of the joint system
	ConstraintWeight float64

	// BoundaryEpsilon is the tolerance for deciding that two segments share a boundary
	BoundaryEpsilon float64

	// ConstantTolerance is the total sum of squares below which the response
	// is treated as constant and r² is reported as 1
	ConstantTolerance float64
}

// DefaultOptions returns the parameters used when none are configured
func DefaultOptions() Options {
	return Options{
		ConstraintWeight:  1000,
		BoundaryEpsilon:   1e-6,
		ConstantTolerance: 1e-9,
	}
}

// withDefaults replaces unset (non-positive) fields with their defaults
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConstraintWeight <= 0 {
		o.ConstraintWeight = d.ConstraintWeight
	}
	if o.BoundaryEpsilon <= 0 {
		o.BoundaryEpsilon = d.BoundaryEpsilon
	}
	if o.ConstantTolerance <= 0 {
		o.ConstantTolerance = d.ConstantTolerance
	}
	return o
}
