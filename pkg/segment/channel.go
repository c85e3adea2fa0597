package segment

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvariant is wrapped by every partition invariant violation reported by Validate
var ErrInvariant = errors.New("segment partition invariant violated")

// ChannelState is the full segmentation state of one named channel.
// It is owned by a single caller at a time and performs no locking.
type ChannelState struct {
	Name string `json:"name"`

	// TimeOffset shifts times for display only and never enters the fit
	TimeOffset float64 `json:"time_offset"`

	// DomainStart and DomainEnd are the channel's original time domain.
	// The segments always cover exactly this range.
	DomainStart float64 `json:"domain_start"`
	DomainEnd   float64 `json:"domain_end"`

	Segments []Segment `json:"segments"`

	ContinuityEnabled bool  `json:"continuity_enabled"`
	ContinuityOrder   Order `json:"continuity_order"`
}

// NewChannelState creates a channel with a single segment spanning [min, max]
func NewChannelState(name string, min, max float64) *ChannelState {
	return &ChannelState{
		Name:            name,
		DomainStart:     min,
		DomainEnd:       max,
		Segments:        []Segment{New(min, max)},
		ContinuityOrder: OrderSlope,
	}
}

// Clone returns a deep copy of the channel state
func (c *ChannelState) Clone() *ChannelState {
	out := *c
	out.Segments = CloneSegments(c.Segments)
	return &out
}

// CloneSegments deep-copies a segment slice including fit results
func CloneSegments(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = s
		if s.FitResult != nil {
			fr := *s.FitResult
			fr.Coefficients = append([]float64(nil), s.FitResult.Coefficients...)
			out[i].FitResult = &fr
		}
	}
	return out
}

// Boundaries returns the ordered list of segment edges, from the first
// segment's start to the last segment's end.
func (c *ChannelState) Boundaries() []float64 {
	if len(c.Segments) == 0 {
		return nil
	}
	b := make([]float64, 0, len(c.Segments)+1)
	for _, s := range c.Segments {
		b = append(b, s.XStart)
	}
	return append(b, c.Segments[len(c.Segments)-1].XEnd)
}

// IndexAt returns the index of the segment containing x, preferring the
// right-hand segment when x sits on a shared boundary. It returns -1 when
// x lies outside the covered range.
func (c *ChannelState) IndexAt(x float64) int {
	for i, s := range c.Segments {
		if x >= s.XStart && x < s.XEnd {
			return i
		}
	}
	if n := len(c.Segments); n > 0 && x == c.Segments[n-1].XEnd {
		return n - 1
	}
	return -1
}

// Validate checks the partition invariants with tolerance eps
func (c *ChannelState) Validate(eps float64) error {
	if err := ValidateSegments(c.Segments, eps); err != nil {
		return err
	}
	if len(c.Segments) == 0 {
		return fmt.Errorf("%w: channel %q has no segments", ErrInvariant, c.Name)
	}
	first, last := c.Segments[0], c.Segments[len(c.Segments)-1]
	if math.Abs(first.XStart-c.DomainStart) > eps || math.Abs(last.XEnd-c.DomainEnd) > eps {
		return fmt.Errorf("%w: segments cover [%g, %g], domain is [%g, %g]",
			ErrInvariant, first.XStart, last.XEnd, c.DomainStart, c.DomainEnd)
	}
	if !c.ContinuityOrder.Valid() {
		return fmt.Errorf("%w: continuity order %d", ErrInvariant, c.ContinuityOrder)
	}
	return nil
}

// ValidateSegments checks ordering, contiguity and per-segment consistency
// of a segment list without reference to a domain.
func ValidateSegments(segs []Segment, eps float64) error {
	for i, s := range segs {
		if !(s.XStart < s.XEnd) {
			return fmt.Errorf("%w: segment %d has start %g >= end %g", ErrInvariant, i, s.XStart, s.XEnd)
		}
		if !s.Type.Valid() {
			return fmt.Errorf("%w: segment %d has unknown type %q", ErrInvariant, i, s.Type)
		}
		if s.PolyDegree < 0 {
			return fmt.Errorf("%w: segment %d has negative degree %d", ErrInvariant, i, s.PolyDegree)
		}
		if s.FitResult != nil {
			if s.IsMask() {
				return fmt.Errorf("%w: mask segment %d carries a fit result", ErrInvariant, i)
			}
			if len(s.FitResult.Coefficients) != s.PolyDegree+1 {
				return fmt.Errorf("%w: segment %d has %d coefficients for degree %d",
					ErrInvariant, i, len(s.FitResult.Coefficients), s.PolyDegree)
			}
		}
		if i == 0 {
			continue
		}
		prev := segs[i-1]
		if s.XStart < prev.XStart {
			return fmt.Errorf("%w: segment %d is out of order", ErrInvariant, i)
		}
		if math.Abs(prev.XEnd-s.XStart) > eps {
			return fmt.Errorf("%w: gap or overlap between segments %d and %d (%g vs %g)",
				ErrInvariant, i-1, i, prev.XEnd, s.XStart)
		}
	}
	return nil
}
