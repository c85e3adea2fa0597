package fit

import (
	"math"

	"github.com/chrissnell/segfit/pkg/segment"
)

// Samples is the set of retained observations that fall inside one segment
type Samples struct {
	X []float64
	Y []float64
}

// Len returns the number of retained observations
func (s Samples) Len() int {
	return len(s.X)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Masked reports whether t lies inside any Mask segment. Mask bounds are
// inclusive and apply to every segment of the channel.
func Masked(segs []segment.Segment, t float64) bool {
	for _, s := range segs {
		if s.IsMask() && s.Contains(t) {
			return true
		}
	}
	return false
}

// assign returns the index of the segment owning t: [start, end), with the
// final segment closed on the right. It returns -1 when t falls outside
// every segment.
func assign(segs []segment.Segment, t float64) int {
	last := len(segs) - 1
	for i, s := range segs {
		if t >= s.XStart && (t < s.XEnd || (i == last && t <= s.XEnd)) {
			return i
		}
	}
	return -1
}

// Partition removes missing and masked samples and groups the remainder by
// owning segment. The result is index-aligned with segs; Mask segments
// always receive an empty set.
func Partition(segs []segment.Segment, x, y []float64) []Samples {
	parts := make([]Samples, len(segs))
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for i := 0; i < n; i++ {
		t, v := x[i], y[i]
		if !finite(t) || !finite(v) || Masked(segs, t) {
			continue
		}
		idx := assign(segs, t)
		if idx < 0 || segs[idx].IsMask() {
			continue
		}
		parts[idx].X = append(parts[idx].X, t)
		parts[idx].Y = append(parts[idx].Y, v)
	}
	return parts
}
