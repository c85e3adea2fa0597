// Package changepoint suggests segment boundaries for a channel by running
// PELT change point detection with an RBF kernel cost over its samples.
package changepoint

import (
	"errors"
	"fmt"

	"github.com/chrissnell/segfit/internal/samples"
)

var ErrTooFewSamples = errors.New("too few samples for change point detection")

// Options controls the detector
type Options struct {
	// Penalty is added per segment; higher values give fewer boundaries
	Penalty float64 `json:"penalty"`

	// MinSize is the minimum number of samples between two boundaries
	MinSize int `json:"min_size"`

	// FilterKernel applies a median filter of this odd size first; 0 or 1 disables it
	FilterKernel int `json:"filter_kernel"`

	// MaxSamples caps the signal length; longer signals are bin-averaged
	MaxSamples int `json:"max_samples"`
}

// DefaultOptions returns the detector defaults
func DefaultOptions() Options {
	return Options{
		Penalty:    10,
		MinSize:    5,
		MaxSamples: 1000,
	}
}

// Suggest returns a boundary list for the domain [start, end]: start, the
// detected change times, end. Each change time lies halfway between the
// last sample of one segment and the first sample of the next, so the
// result can be passed directly to the editor's Regenerate.
func Suggest(times, values []float64, start, end float64, opts Options) ([]float64, error) {
	d := DefaultOptions()
	if opts.Penalty <= 0 {
		opts.Penalty = d.Penalty
	}
	if opts.MinSize <= 0 {
		opts.MinSize = d.MinSize
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = d.MaxSamples
	}

	x, y := samples.Clean(times, values)
	if len(x) < 2*opts.MinSize {
		return nil, fmt.Errorf("%w: %d finite samples, need %d", ErrTooFewSamples, len(x), 2*opts.MinSize)
	}
	x, y = decimate(x, y, opts.MaxSamples)

	if opts.FilterKernel > 1 {
		var err error
		if y, err = MedianFilter(y, opts.FilterKernel); err != nil {
			return nil, err
		}
	}

	boundaries := []float64{start}
	for _, k := range pelt(y, opts.Penalty, opts.MinSize) {
		b := (x[k-1] + x[k]) / 2
		if b > boundaries[len(boundaries)-1] && b < end {
			boundaries = append(boundaries, b)
		}
	}
	return append(boundaries, end), nil
}

// decimate averages consecutive samples into at most limit bins
func decimate(x, y []float64, limit int) ([]float64, []float64) {
	n := len(x)
	if n <= limit {
		return x, y
	}
	bx := make([]float64, 0, limit)
	by := make([]float64, 0, limit)
	for b := 0; b < limit; b++ {
		lo, hi := b*n/limit, (b+1)*n/limit
		sx, sy := 0.0, 0.0
		for i := lo; i < hi; i++ {
			sx += x[i]
			sy += y[i]
		}
		bx = append(bx, sx/float64(hi-lo))
		by = append(by, sy/float64(hi-lo))
	}
	return bx, by
}
