package editor

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/chrissnell/segfit/pkg/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = DefaultEpsilon

func newChannel(bounds ...float64) *segment.ChannelState {
	ch := segment.NewChannelState("ch", bounds[0], bounds[len(bounds)-1])
	ch.Segments = nil
	for i := 0; i+1 < len(bounds); i++ {
		ch.Segments = append(ch.Segments, segment.New(bounds[i], bounds[i+1]))
	}
	return ch
}

func withFit(ch *segment.ChannelState) *segment.ChannelState {
	for i := range ch.Segments {
		coeffs := make([]float64, ch.Segments[i].PolyDegree+1)
		ch.Segments[i].FitResult = &segment.FitResult{Coefficients: coeffs, PointsCount: 10}
	}
	return ch
}

func TestSplitAt(t *testing.T) {
	ch := newChannel(0, 10)
	ch.Segments[0].Label = "base"
	ch.Segments[0].Color = "#ff0000"
	ch.Segments[0].PolyDegree = 2
	e := New(ch)

	idx, err := e.SplitAt(4)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	require.Len(t, ch.Segments, 2)

	left, right := ch.Segments[0], ch.Segments[1]
	assert.Equal(t, [2]float64{0, 4}, [2]float64{left.XStart, left.XEnd})
	assert.Equal(t, [2]float64{4, 10}, [2]float64{right.XStart, right.XEnd})
	assert.Equal(t, "base", left.Label)
	assert.Empty(t, right.Label)
	assert.Equal(t, "#ff0000", left.Color)
	assert.Equal(t, "#ff0000", right.Color)
	assert.Equal(t, 2, right.PolyDegree)
	require.NoError(t, ch.Validate(eps))
}

func TestSplitAtRejectsBoundaries(t *testing.T) {
	tests := []struct {
		name string
		x    float64
	}{
		{name: "domain start", x: 0},
		{name: "domain end", x: 10},
		{name: "existing boundary", x: 5},
		{name: "within epsilon of boundary", x: 5 + 1e-8},
		{name: "outside domain", x: 11},
		{name: "before domain", x: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newChannel(0, 5, 10)
			before := ch.Clone()

			_, err := New(ch).SplitAt(tt.x)
			assert.True(t, errors.Is(err, ErrNoOpSplit), "got %v", err)
			assert.Equal(t, before, ch)
		})
	}
}

func TestSplitThenMergeRoundTrip(t *testing.T) {
	for _, label := range []string{"", "named"} {
		ch := newChannel(0, 3, 9, 12)
		ch.Segments[1].Label = label
		e := New(ch)

		idx, err := e.SplitAt(7.25)
		require.NoError(t, err)
		require.NoError(t, e.Merge(idx-1, idx))

		require.Len(t, ch.Segments, 3)
		assert.Equal(t, 3.0, ch.Segments[1].XStart)
		assert.Equal(t, 9.0, ch.Segments[1].XEnd)
		assert.Equal(t, label, ch.Segments[1].Label)
		require.NoError(t, ch.Validate(eps))
	}
}

func TestMergeAttributes(t *testing.T) {
	ch := newChannel(0, 5, 10)
	ch.Segments[1].Label = "right"
	ch.Segments[1].Color = "#00ff00"
	require.NoError(t, New(ch).Merge(0, 1))
	assert.Equal(t, "right", ch.Segments[0].Label)
	assert.Equal(t, "#00ff00", ch.Segments[0].Color)

	ch = newChannel(0, 5, 10)
	ch.Segments[0].Label = "left"
	ch.Segments[1].Label = "right"
	ch.Segments[1].Color = "#00ff00"
	require.NoError(t, New(ch).Merge(0, 1))
	assert.Equal(t, "left", ch.Segments[0].Label)
	assert.Equal(t, segment.DefaultColor, ch.Segments[0].Color)
}

func TestMergeKeepsLeftTypeAndDegree(t *testing.T) {
	ch := segment.NewChannelState("ch", 0, 10)
	e := New(ch)

	_, err := e.SplitAt(5)
	require.NoError(t, err)
	require.NoError(t, e.SetDegree(0, 1))
	require.NoError(t, e.SetType(1, segment.TypeMask))
	require.NoError(t, e.SetStyle(1, 4, ":"))
	require.NoError(t, e.Relabel(1, "noise"))
	require.NoError(t, e.Recolor(1, "#ff0000"))

	require.NoError(t, e.Merge(0, 1))
	require.Len(t, ch.Segments, 1)
	merged := ch.Segments[0]
	assert.Equal(t, segment.TypeNormal, merged.Type)
	assert.Equal(t, 1, merged.PolyDegree)
	assert.Equal(t, segment.DefaultThickness, merged.Thickness)
	assert.Equal(t, segment.DefaultLineStyle, merged.LineStyle)
	assert.Equal(t, "noise", merged.Label)
	assert.Equal(t, "#ff0000", merged.Color)
	assert.Equal(t, 0.0, merged.XStart)
	assert.Equal(t, 10.0, merged.XEnd)
}

func TestMergeRejects(t *testing.T) {
	tests := []struct {
		name string
		i, j int
	}{
		{name: "reversed", i: 1, j: 0},
		{name: "not neighbours", i: 0, j: 2},
		{name: "negative", i: -1, j: 0},
		{name: "past end", i: 2, j: 3},
		{name: "same", i: 1, j: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newChannel(0, 1, 2, 3)
			before := ch.Clone()
			err := New(ch).Merge(tt.i, tt.j)
			assert.True(t, errors.Is(err, ErrNonAdjacentMerge), "got %v", err)
			assert.Equal(t, before, ch)
		})
	}
}

func TestMergeRejectsGap(t *testing.T) {
	ch := newChannel(0, 1, 2, 3)
	ch.Segments[1].XStart = 1.5
	before := ch.Clone()
	err := New(ch).Merge(0, 1)
	assert.True(t, errors.Is(err, ErrNonAdjacentMerge))
	assert.Equal(t, before, ch)
}

func TestMoveBoundary(t *testing.T) {
	ch := withFit(newChannel(0, 4, 8, 10))
	e := New(ch)

	require.NoError(t, e.MoveBoundary(1, SideStart, 3))
	assert.Equal(t, 3.0, ch.Segments[0].XEnd)
	assert.Equal(t, 3.0, ch.Segments[1].XStart)
	assert.Nil(t, ch.Segments[0].FitResult)
	assert.Nil(t, ch.Segments[1].FitResult)
	assert.NotNil(t, ch.Segments[2].FitResult)

	require.NoError(t, e.MoveBoundary(1, SideEnd, 9))
	assert.Equal(t, 9.0, ch.Segments[1].XEnd)
	assert.Equal(t, 9.0, ch.Segments[2].XStart)
	require.NoError(t, ch.Validate(eps))
}

func TestMoveBoundaryRejects(t *testing.T) {
	tests := []struct {
		name  string
		index int
		side  Side
		x     float64
		err   error
	}{
		{name: "cross previous", index: 1, side: SideStart, x: 0, err: ErrBoundaryOutOfRange},
		{name: "invert segment", index: 1, side: SideStart, x: 8, err: ErrBoundaryOutOfRange},
		{name: "cross next", index: 1, side: SideEnd, x: 10.5, err: ErrBoundaryOutOfRange},
		{name: "invert from end", index: 1, side: SideEnd, x: 4, err: ErrBoundaryOutOfRange},
		{name: "domain start", index: 0, side: SideStart, x: -1, err: ErrBoundaryOutOfRange},
		{name: "domain end", index: 2, side: SideEnd, x: 12, err: ErrBoundaryOutOfRange},
		{name: "bad side", index: 1, side: Side("middle"), x: 6, err: ErrBoundaryOutOfRange},
		{name: "bad index", index: 7, side: SideStart, x: 6, err: ErrSegmentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newChannel(0, 4, 8, 10)
			before := ch.Clone()
			err := New(ch).MoveBoundary(tt.index, tt.side, tt.x)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
			assert.Equal(t, before, ch)
		})
	}
}

func TestDelete(t *testing.T) {
	ch := newChannel(0, 2, 5, 10)
	e := New(ch)

	require.NoError(t, e.Delete(1))
	require.Len(t, ch.Segments, 2)
	assert.Equal(t, 5.0, ch.Segments[0].XEnd)

	require.NoError(t, e.Delete(0))
	require.Len(t, ch.Segments, 1)
	assert.Equal(t, 0.0, ch.Segments[0].XStart)
	assert.Equal(t, 10.0, ch.Segments[0].XEnd)
	require.NoError(t, ch.Validate(eps))
}

func TestDeleteLastSegmentRejected(t *testing.T) {
	ch := newChannel(0, 10)
	before := ch.Clone()

	err := New(ch).Delete(0)
	assert.True(t, errors.Is(err, ErrCannotDeleteLastSegment))
	assert.Equal(t, before, ch)

	err = New(ch).Delete(3)
	assert.True(t, errors.Is(err, ErrSegmentNotFound))
}

func TestInsertFillsGap(t *testing.T) {
	ch := newChannel(0, 3, 10)
	// a gap can only come from outside, e.g. an older project file
	ch.Segments[1].XStart = 6
	e := New(ch, WithDefaultDegree(1))

	idx, err := e.Insert(3, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, ch.Segments[1].PolyDegree)
	require.NoError(t, ch.Validate(eps))
}

func TestInsertRejects(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		err        error
	}{
		{name: "overlap", start: 2, end: 4, err: ErrOverlappingInsert},
		{name: "inside", start: 4, end: 5, err: ErrOverlappingInsert},
		{name: "outside domain", start: 10, end: 12, err: ErrBoundaryOutOfRange},
		{name: "empty", start: 5, end: 5, err: ErrEmptyRange},
		{name: "inverted", start: 6, end: 5, err: ErrEmptyRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newChannel(0, 3, 10)
			before := ch.Clone()
			_, err := New(ch).Insert(tt.start, tt.end)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
			assert.Equal(t, before, ch)
		})
	}
}

func TestAttributeSetters(t *testing.T) {
	ch := withFit(newChannel(0, 5, 10))
	e := New(ch)

	require.NoError(t, e.Recolor(0, "#123456"))
	require.NoError(t, e.Relabel(0, "warmup"))
	require.NoError(t, e.SetStyle(0, 2.5, "--"))
	assert.Equal(t, "#123456", ch.Segments[0].Color)
	assert.Equal(t, "warmup", ch.Segments[0].Label)
	assert.Equal(t, 2.5, ch.Segments[0].Thickness)
	assert.Equal(t, "--", ch.Segments[0].LineStyle)
	assert.NotNil(t, ch.Segments[0].FitResult)

	require.NoError(t, e.SetDegree(0, 1))
	assert.Equal(t, 1, ch.Segments[0].PolyDegree)
	assert.Nil(t, ch.Segments[0].FitResult)

	require.NoError(t, e.SetType(1, segment.TypeMask))
	assert.Nil(t, ch.Segments[1].FitResult)
	require.NoError(t, ch.Validate(eps))

	assert.True(t, errors.Is(e.SetDegree(0, -1), ErrInvalidDegree))
	assert.True(t, errors.Is(e.SetType(0, segment.Type("Bogus")), ErrInvalidType))
	assert.True(t, errors.Is(e.Recolor(5, "#000"), ErrSegmentNotFound))
}

func TestCommitRejectsInvalidResult(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ch *segment.ChannelState)
	}{
		{name: "outside domain", mutate: func(ch *segment.ChannelState) { ch.Segments[1].XEnd = 12 }},
		{name: "overlap", mutate: func(ch *segment.ChannelState) { ch.Segments[1].XStart = 4 }},
		{name: "stale fit", mutate: func(ch *segment.ChannelState) {
			ch.Segments[1].FitResult = &segment.FitResult{Coefficients: []float64{1}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newChannel(0, 5, 10)
			tt.mutate(ch)
			before := ch.Clone()

			err := New(ch).Recolor(0, "#000000")
			assert.ErrorIs(t, err, segment.ErrInvariant)
			assert.Equal(t, before, ch)
		})
	}
}

func TestReset(t *testing.T) {
	ch := newChannel(0, 2, 5, 10)
	ch.Segments[0].Color = "#abcdef"
	require.NoError(t, New(ch).Reset())

	require.Len(t, ch.Segments, 1)
	assert.Equal(t, "#abcdef", ch.Segments[0].Color)
	require.NoError(t, ch.Validate(eps))
}

func TestRegenerate(t *testing.T) {
	ch := newChannel(0, 5, 10)
	ch.Segments[1].Type = segment.TypeMask
	ch.Segments[1].PolyDegree = 1
	e := New(ch)

	require.NoError(t, e.Regenerate([]float64{0, 2, 7, 10}))
	require.Len(t, ch.Segments, 3)
	assert.Equal(t, segment.TypeNormal, ch.Segments[0].Type)
	assert.Equal(t, segment.TypeMask, ch.Segments[2].Type)
	assert.Equal(t, 1, ch.Segments[2].PolyDegree)
	require.NoError(t, ch.Validate(eps))

	before := ch.Clone()
	for _, bad := range [][]float64{{0}, {1, 10}, {0, 5, 5, 10}, {0, 6, 3, 10}, {0, 9}} {
		assert.True(t, errors.Is(e.Regenerate(bad), ErrBoundaryOutOfRange), "boundaries %v", bad)
		assert.Equal(t, before, ch)
	}
}

// TestRandomEditsKeepPartition applies a long random sequence of edits and
// checks the partition after each one.
func TestRandomEditsKeepPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ch := segment.NewChannelState("ch", -50, 150)
	e := New(ch)

	for step := 0; step < 2000; step++ {
		n := len(ch.Segments)
		before := ch.Clone()

		var err error
		switch rng.Intn(6) {
		case 0:
			_, err = e.SplitAt(-50 + rng.Float64()*200)
		case 1:
			i := rng.Intn(n)
			err = e.Merge(i, i+1)
		case 2:
			side := SideStart
			if rng.Intn(2) == 0 {
				side = SideEnd
			}
			err = e.MoveBoundary(rng.Intn(n), side, -60+rng.Float64()*220)
		case 3:
			err = e.Delete(rng.Intn(n))
		case 4:
			start := -50 + rng.Float64()*200
			_, err = e.Insert(start, start+rng.Float64()*10)
		case 5:
			err = e.SetDegree(rng.Intn(n), rng.Intn(5)-1)
		}

		if err != nil {
			require.Equal(t, before, ch, "step %d: rejected edit changed the channel", step)
		}
		require.NoError(t, ch.Validate(eps), "step %d", step)
	}
}
