// Package editor performs structural edits on a channel's segment list.
//
// Every operation either succeeds completely or returns an error and leaves
// the channel untouched: edits are computed on a copy of the segment slice,
// the copy is validated, and only then does it replace the channel's slice.
// The editor never computes fit results; it drops the result of any segment
// whose range, degree or type it changes.
package editor

import (
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/segfit/pkg/segment"
	"go.uber.org/zap"
)

// DefaultEpsilon is the tolerance used when matching positions against
// segment boundaries.
const DefaultEpsilon = 1e-6

// Side selects which endpoint of a segment MoveBoundary moves
type Side string

const (
	SideStart Side = "start"
	SideEnd   Side = "end"
)

// Editor edits the segments of a single channel
type Editor struct {
	channel       *segment.ChannelState
	epsilon       float64
	defaultDegree int
	logger        *zap.SugaredLogger
}

// Option configures an Editor
type Option func(*Editor)

// WithEpsilon sets the boundary matching tolerance
func WithEpsilon(eps float64) Option {
	return func(e *Editor) {
		if eps > 0 {
			e.epsilon = eps
		}
	}
}

// WithDefaultDegree sets the polynomial degree given to inserted segments
func WithDefaultDegree(d int) Option {
	return func(e *Editor) {
		if d >= 0 {
			e.defaultDegree = d
		}
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an editor for ch. The caller keeps ownership of ch and must
// not edit it concurrently.
func New(ch *segment.ChannelState, opts ...Option) *Editor {
	e := &Editor{
		channel:       ch,
		epsilon:       DefaultEpsilon,
		defaultDegree: segment.DefaultDegree,
		logger:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Channel returns the channel being edited
func (e *Editor) Channel() *segment.ChannelState {
	return e.channel
}

// Segments returns a copy of the current segment list
func (e *Editor) Segments() []segment.Segment {
	return segment.CloneSegments(e.channel.Segments)
}

// SplitAt splits the segment strictly containing x into [start, x) and
// [x, end). The left part keeps the label; the right part starts unlabeled.
// It returns the index of the right part.
func (e *Editor) SplitAt(x float64) (int, error) {
	for i, s := range e.channel.Segments {
		if !(x > s.XStart+e.epsilon && x < s.XEnd-e.epsilon) {
			continue
		}

		left, right := s, s
		left.XEnd = x
		left.FitResult = nil
		right.XStart = x
		right.Label = ""
		right.FitResult = nil

		segs := make([]segment.Segment, 0, len(e.channel.Segments)+1)
		segs = append(segs, e.channel.Segments[:i]...)
		segs = append(segs, left, right)
		segs = append(segs, e.channel.Segments[i+1:]...)
		if err := e.commit(segs); err != nil {
			return -1, err
		}

		e.logger.Debugf("[%s] split segment %d at %.6g: [%.6g, %.6g) [%.6g, %.6g)",
			e.channel.Name, i, x, left.XStart, left.XEnd, right.XStart, right.XEnd)
		return i + 1, nil
	}

	return -1, fmt.Errorf("%w: x=%g", ErrNoOpSplit, x)
}

// Merge joins segment i with segment j, which must be i+1 and share its
// boundary. The merged segment keeps the left segment's type, degree and
// style. Label and color come from the left segment, or from the right one
// when the left label is empty.
func (e *Editor) Merge(i, j int) error {
	n := len(e.channel.Segments)
	if i < 0 || j != i+1 || j >= n {
		return fmt.Errorf("%w: indices %d and %d of %d", ErrNonAdjacentMerge, i, j, n)
	}

	a, b := e.channel.Segments[i], e.channel.Segments[j]
	if math.Abs(a.XEnd-b.XStart) > e.epsilon {
		return fmt.Errorf("%w: %g does not meet %g", ErrNonAdjacentMerge, a.XEnd, b.XStart)
	}

	merged := a
	if a.Label == "" {
		merged.Label = b.Label
		merged.Color = b.Color
	}
	merged.XStart = a.XStart
	merged.XEnd = b.XEnd
	merged.FitResult = nil

	segs := make([]segment.Segment, 0, n-1)
	segs = append(segs, e.channel.Segments[:i]...)
	segs = append(segs, merged)
	segs = append(segs, e.channel.Segments[j+1:]...)
	if err := e.commit(segs); err != nil {
		return err
	}

	e.logger.Debugf("[%s] merged segments %d and %d into [%.6g, %.6g]", e.channel.Name, i, j, merged.XStart, merged.XEnd)
	return nil
}

// MoveBoundary moves one endpoint of segment index to newX together with
// the touching endpoint of the neighbouring segment. newX must stay strictly
// between the neighbour's far boundary and the segment's other endpoint.
// The outer edges of the domain cannot be moved.
func (e *Editor) MoveBoundary(index int, side Side, newX float64) error {
	segs := e.copySegments()
	if index < 0 || index >= len(segs) {
		return fmt.Errorf("%w: %d", ErrSegmentNotFound, index)
	}
	seg := segs[index]

	var (
		neighbour int
		lo, hi    float64
		current   float64
	)
	switch side {
	case SideStart:
		if index == 0 {
			return fmt.Errorf("%w: start of the first segment is the domain edge", ErrBoundaryOutOfRange)
		}
		neighbour = index - 1
		lo, hi, current = segs[neighbour].XStart, seg.XEnd, seg.XStart
	case SideEnd:
		if index == len(segs)-1 {
			return fmt.Errorf("%w: end of the last segment is the domain edge", ErrBoundaryOutOfRange)
		}
		neighbour = index + 1
		lo, hi, current = seg.XStart, segs[neighbour].XEnd, seg.XEnd
	default:
		return fmt.Errorf("%w: unknown side %q", ErrBoundaryOutOfRange, side)
	}

	if !(newX > lo+e.epsilon && newX < hi-e.epsilon) {
		return fmt.Errorf("%w: %g not inside (%g, %g)", ErrBoundaryOutOfRange, newX, lo, hi)
	}
	if newX == current {
		return nil
	}

	if side == SideStart {
		segs[index].XStart = newX
		segs[neighbour].XEnd = newX
	} else {
		segs[index].XEnd = newX
		segs[neighbour].XStart = newX
	}
	segs[index].FitResult = nil
	segs[neighbour].FitResult = nil
	if err := e.commit(segs); err != nil {
		return err
	}

	e.logger.Debugf("[%s] moved %s of segment %d from %.6g to %.6g", e.channel.Name, side, index, current, newX)
	return nil
}

// Delete removes segment index. The previous segment absorbs its range, or
// the next one when index is the first segment.
func (e *Editor) Delete(index int) error {
	segs := e.copySegments()
	if index < 0 || index >= len(segs) {
		return fmt.Errorf("%w: %d", ErrSegmentNotFound, index)
	}
	if len(segs) == 1 {
		return ErrCannotDeleteLastSegment
	}

	removed := segs[index]
	if index > 0 {
		segs[index-1].XEnd = removed.XEnd
		segs[index-1].FitResult = nil
	} else {
		segs[1].XStart = removed.XStart
		segs[1].FitResult = nil
	}
	segs = append(segs[:index], segs[index+1:]...)
	if err := e.commit(segs); err != nil {
		return err
	}

	e.logger.Debugf("[%s] deleted segment %d [%.6g, %.6g]", e.channel.Name, index, removed.XStart, removed.XEnd)
	return nil
}

// Insert adds a Normal segment over [xStart, xEnd] and re-sorts the list.
// The range must lie inside the domain without intersecting any existing
// segment, so it can only fill a gap. Endpoints within epsilon of an
// existing boundary snap onto it. It returns the new segment's index.
func (e *Editor) Insert(xStart, xEnd float64) (int, error) {
	if !(xStart < xEnd) {
		return -1, fmt.Errorf("%w: [%g, %g]", ErrEmptyRange, xStart, xEnd)
	}
	if xStart < e.channel.DomainStart-e.epsilon || xEnd > e.channel.DomainEnd+e.epsilon {
		return -1, fmt.Errorf("%w: [%g, %g] outside domain [%g, %g]",
			ErrBoundaryOutOfRange, xStart, xEnd, e.channel.DomainStart, e.channel.DomainEnd)
	}

	segs := e.copySegments()
	for i, s := range segs {
		if xStart < s.XEnd-e.epsilon && xEnd > s.XStart+e.epsilon {
			return -1, fmt.Errorf("%w: [%g, %g] intersects segment %d [%g, %g]",
				ErrOverlappingInsert, xStart, xEnd, i, s.XStart, s.XEnd)
		}
	}

	xStart = e.snap(xStart)
	xEnd = e.snap(xEnd)

	seg := segment.New(xStart, xEnd)
	seg.PolyDegree = e.defaultDegree
	segs = append(segs, seg)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].XStart < segs[j].XStart })
	if err := e.commit(segs); err != nil {
		return -1, err
	}

	index := e.channel.IndexAt(xStart)
	e.logger.Debugf("[%s] inserted segment %d [%.6g, %.6g]", e.channel.Name, index, xStart, xEnd)
	return index, nil
}

// SetDegree changes the polynomial degree of segment index
func (e *Editor) SetDegree(index, degree int) error {
	if degree < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDegree, degree)
	}
	return e.update(index, func(s *segment.Segment) {
		if s.PolyDegree != degree {
			s.PolyDegree = degree
			s.FitResult = nil
		}
	})
}

// SetType switches segment index between Normal and Mask
func (e *Editor) SetType(index int, t segment.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return e.update(index, func(s *segment.Segment) {
		if s.Type != t {
			s.Type = t
			s.FitResult = nil
		}
	})
}

// Recolor sets the display color of segment index
func (e *Editor) Recolor(index int, color string) error {
	return e.update(index, func(s *segment.Segment) { s.Color = color })
}

// Relabel sets the label of segment index
func (e *Editor) Relabel(index int, label string) error {
	return e.update(index, func(s *segment.Segment) { s.Label = label })
}

// SetStyle sets the line thickness and style of segment index
func (e *Editor) SetStyle(index int, thickness float64, lineStyle string) error {
	return e.update(index, func(s *segment.Segment) {
		s.Thickness = thickness
		s.LineStyle = lineStyle
	})
}

// Reset replaces all segments with one segment spanning the domain. The
// new segment keeps the presentation attributes of the first segment.
func (e *Editor) Reset() error {
	seg := segment.New(e.channel.DomainStart, e.channel.DomainEnd)
	seg.PolyDegree = e.defaultDegree
	if len(e.channel.Segments) > 0 {
		first := e.channel.Segments[0]
		seg.Color = first.Color
		seg.Thickness = first.Thickness
		seg.LineStyle = first.LineStyle
	}
	if err := e.commit([]segment.Segment{seg}); err != nil {
		return err
	}
	e.logger.Debugf("[%s] reset to a single segment [%.6g, %.6g]", e.channel.Name, seg.XStart, seg.XEnd)
	return nil
}

// Regenerate rebuilds the segment list from a strictly increasing list of
// boundaries that starts and ends on the domain edges. Each new segment
// copies degree, type and presentation from the old segment containing its
// midpoint.
func (e *Editor) Regenerate(boundaries []float64) error {
	if len(boundaries) < 2 {
		return fmt.Errorf("%w: need at least two boundaries, got %d", ErrBoundaryOutOfRange, len(boundaries))
	}
	first, last := boundaries[0], boundaries[len(boundaries)-1]
	if math.Abs(first-e.channel.DomainStart) > e.epsilon || math.Abs(last-e.channel.DomainEnd) > e.epsilon {
		return fmt.Errorf("%w: boundaries [%g, %g] do not span domain [%g, %g]",
			ErrBoundaryOutOfRange, first, last, e.channel.DomainStart, e.channel.DomainEnd)
	}
	for i := 1; i < len(boundaries); i++ {
		if !(boundaries[i] > boundaries[i-1]+e.epsilon) {
			return fmt.Errorf("%w: boundaries not strictly increasing at %d", ErrBoundaryOutOfRange, i)
		}
	}

	edges := append([]float64(nil), boundaries...)
	edges[0] = e.channel.DomainStart
	edges[len(edges)-1] = e.channel.DomainEnd

	segs := make([]segment.Segment, 0, len(edges)-1)
	for i := 0; i+1 < len(edges); i++ {
		seg := segment.New(edges[i], edges[i+1])
		seg.PolyDegree = e.defaultDegree
		if old := e.channel.IndexAt(edges[i] + (edges[i+1]-edges[i])/2); old >= 0 {
			src := e.channel.Segments[old]
			seg.PolyDegree = src.PolyDegree
			seg.Type = src.Type
			seg.Color = src.Color
			seg.Thickness = src.Thickness
			seg.LineStyle = src.LineStyle
		}
		segs = append(segs, seg)
	}
	if err := e.commit(segs); err != nil {
		return err
	}

	e.logger.Debugf("[%s] regenerated %d segments", e.channel.Name, len(segs))
	return nil
}

func (e *Editor) update(index int, fn func(s *segment.Segment)) error {
	segs := e.copySegments()
	if index < 0 || index >= len(segs) {
		return fmt.Errorf("%w: %d", ErrSegmentNotFound, index)
	}
	fn(&segs[index])
	return e.commit(segs)
}

// snap moves x onto an existing boundary when it lies within epsilon of one
func (e *Editor) snap(x float64) float64 {
	for _, s := range e.channel.Segments {
		for _, b := range [2]float64{s.XStart, s.XEnd} {
			if math.Abs(x-b) <= e.epsilon {
				return b
			}
		}
	}
	return x
}

func (e *Editor) copySegments() []segment.Segment {
	return append([]segment.Segment(nil), e.channel.Segments...)
}

// commit replaces the channel's segments with segs once they pass validate
func (e *Editor) commit(segs []segment.Segment) error {
	if err := e.validate(segs); err != nil {
		return err
	}
	e.channel.Segments = segs
	return nil
}

// validate checks an edit result: each segment well formed, ranges ordered
// without overlap and inside the domain. Gaps are allowed so that a channel
// loaded with holes stays editable until Insert fills them.
func (e *Editor) validate(segs []segment.Segment) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: channel %q would have no segments", segment.ErrInvariant, e.channel.Name)
	}
	for i, s := range segs {
		if err := segment.ValidateSegments([]segment.Segment{s}, e.epsilon); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if i > 0 && s.XStart < segs[i-1].XEnd-e.epsilon {
			return fmt.Errorf("%w: segments %d and %d overlap", segment.ErrInvariant, i-1, i)
		}
	}
	if segs[0].XStart < e.channel.DomainStart-e.epsilon || segs[len(segs)-1].XEnd > e.channel.DomainEnd+e.epsilon {
		return fmt.Errorf("%w: segments leave domain [%g, %g]", segment.ErrInvariant, e.channel.DomainStart, e.channel.DomainEnd)
	}
	return nil
}
