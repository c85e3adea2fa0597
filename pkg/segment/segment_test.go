package segment

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitResultEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		coeffs []float64
		x      float64
		want   float64
	}{
		{name: "constant", coeffs: []float64{4}, x: 10, want: 4},
		{name: "line", coeffs: []float64{2, 1}, x: 3, want: 7},
		{name: "quadratic", coeffs: []float64{1, -2, 1}, x: 3, want: 4},
		{name: "empty", coeffs: nil, x: 3, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &FitResult{Coefficients: tt.coeffs}
			assert.InDelta(t, tt.want, fr.Evaluate(tt.x), 1e-12)
		})
	}
}

func TestSegmentTitle(t *testing.T) {
	s := New(0, 2.5)
	assert.Equal(t, "[0.00 : 2.50]", s.Title())

	s.Type = TypeMask
	assert.Equal(t, "[0.00 : 2.50] (Mask)", s.Title())

	s.Label = "ramp"
	assert.Equal(t, "ramp", s.Title())
}

func TestLegacyExcludedDecodesAsMask(t *testing.T) {
	var s Segment
	require.NoError(t, json.Unmarshal([]byte(`{"x_start":0,"x_end":1,"is_excluded":true}`), &s))
	assert.Equal(t, TypeMask, s.Type)
	assert.Equal(t, DefaultDegree, s.PolyDegree)
	assert.Equal(t, DefaultColor, s.Color)

	require.NoError(t, json.Unmarshal([]byte(`{"x_start":0,"x_end":1,"is_excluded":false}`), &s))
	assert.Equal(t, TypeNormal, s.Type)

	// segment_type wins over the legacy flag
	require.NoError(t, json.Unmarshal([]byte(`{"x_start":0,"x_end":1,"is_excluded":true,"segment_type":"Normal"}`), &s))
	assert.Equal(t, TypeNormal, s.Type)
}

func TestSegmentDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "missing end", data: `{"x_start":0}`},
		{name: "unknown type", data: `{"x_start":0,"x_end":1,"segment_type":"Other"}`},
		{name: "negative degree", data: `{"x_start":0,"x_end":1,"poly_degree":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Segment
			assert.Error(t, json.Unmarshal([]byte(tt.data), &s))
		})
	}
}

func TestSegmentDecodeDropsInconsistentFit(t *testing.T) {
	var s Segment
	data := `{"x_start":0,"x_end":1,"poly_degree":1,"fit_result":{"coefficients":[1,2,3],"rmse":0,"r_squared":1,"points_count":3}}`
	require.NoError(t, json.Unmarshal([]byte(data), &s))
	assert.Nil(t, s.FitResult)

	data = `{"x_start":0,"x_end":1,"segment_type":"Mask","poly_degree":0,"fit_result":{"coefficients":[1]}}`
	require.NoError(t, json.Unmarshal([]byte(data), &s))
	assert.Nil(t, s.FitResult)
}

func TestSegmentEncodeContract(t *testing.T) {
	s := New(0, 1)
	s.FitResult = nil
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"x_start", "x_end", "label", "poly_degree", "segment_type", "color", "thickness", "line_style", "fit_result"} {
		assert.Contains(t, fields, key)
	}
	assert.Nil(t, fields["fit_result"])
	assert.Equal(t, "Normal", fields["segment_type"])

	s.PolyDegree = 1
	s.FitResult = &FitResult{Coefficients: []float64{1, 0}, RMSE: 0.5, RSquared: 0.9, PointsCount: 4}
	data, err = json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fit_result":{"coefficients":[1,0],"rmse":0.5,"r_squared":0.9,"points_count":4}`)
}

func TestChannelStateLegacyKeys(t *testing.T) {
	data := `{"name":"T1","segments":[{"x_start":5,"x_end":10},{"x_start":0,"x_end":5}],"stitch_enabled":true,"stitch_method":2}`

	var ch ChannelState
	require.NoError(t, json.Unmarshal([]byte(data), &ch))
	assert.True(t, ch.ContinuityEnabled)
	assert.Equal(t, OrderCurvature, ch.ContinuityOrder)
	assert.Equal(t, 0.0, ch.DomainStart)
	assert.Equal(t, 10.0, ch.DomainEnd)
	assert.Equal(t, 0.0, ch.Segments[0].XStart)
	require.NoError(t, ch.Validate(1e-6))
}

func TestChannelStateRejectsBadOrder(t *testing.T) {
	var ch ChannelState
	err := json.Unmarshal([]byte(`{"name":"T1","segments":[{"x_start":0,"x_end":1}],"continuity_order":3}`), &ch)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ch *ChannelState)
		ok     bool
	}{
		{name: "fresh channel", mutate: func(ch *ChannelState) {}, ok: true},
		{name: "gap", mutate: func(ch *ChannelState) {
			ch.Segments = []Segment{New(0, 4), New(5, 10)}
		}},
		{name: "overlap", mutate: func(ch *ChannelState) {
			ch.Segments = []Segment{New(0, 6), New(5, 10)}
		}},
		{name: "short coverage", mutate: func(ch *ChannelState) {
			ch.Segments = []Segment{New(0, 5), New(5, 9)}
		}},
		{name: "inverted", mutate: func(ch *ChannelState) {
			ch.Segments = []Segment{New(0, 5), New(5, 5), New(5, 10)}
		}},
		{name: "mask with fit", mutate: func(ch *ChannelState) {
			ch.Segments[0].Type = TypeMask
			ch.Segments[0].FitResult = &FitResult{Coefficients: []float64{1, 2, 3, 4}}
		}},
		{name: "coefficient mismatch", mutate: func(ch *ChannelState) {
			ch.Segments[0].FitResult = &FitResult{Coefficients: []float64{1}}
		}},
		{name: "within epsilon", mutate: func(ch *ChannelState) {
			ch.Segments = []Segment{New(0, 5), New(5+1e-9, 10)}
		}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewChannelState("c", 0, 10)
			tt.mutate(ch)
			err := ch.Validate(1e-6)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvariant), "got %v", err)
			}
		})
	}
}

func TestIndexAtAndBoundaries(t *testing.T) {
	ch := NewChannelState("c", 0, 10)
	ch.Segments = []Segment{New(0, 2), New(2, 7), New(7, 10)}

	assert.Equal(t, []float64{0, 2, 7, 10}, ch.Boundaries())
	assert.Equal(t, 0, ch.IndexAt(0))
	assert.Equal(t, 1, ch.IndexAt(2))
	assert.Equal(t, 2, ch.IndexAt(10))
	assert.Equal(t, -1, ch.IndexAt(10.5))
}

func TestCloneIsDeep(t *testing.T) {
	ch := NewChannelState("c", 0, 10)
	ch.Segments[0].PolyDegree = 0
	ch.Segments[0].FitResult = &FitResult{Coefficients: []float64{3}}

	cp := ch.Clone()
	cp.Segments[0].FitResult.Coefficients[0] = 99
	cp.Segments[0].Label = "changed"

	assert.Equal(t, 3.0, ch.Segments[0].FitResult.Coefficients[0])
	assert.Empty(t, ch.Segments[0].Label)
}

func TestEncodeDecodeChannels(t *testing.T) {
	a := NewChannelState("a", 0, 10)
	b := NewChannelState("b", -1, 1)
	b.ContinuityEnabled = true

	var buf bytes.Buffer
	require.NoError(t, EncodeChannels(&buf, []*ChannelState{a, b}))

	got, err := DecodeChannels(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0])
	assert.Equal(t, b, got[1])
}

func TestDecodeProjectFile(t *testing.T) {
	project := `{
		"imported_files": ["run1.csv"],
		"channels": {
			"T2": {"segments": [{"x_start": 0, "x_end": 1}]},
			"T1": {"name": "T1", "segments": [{"x_start": 0, "x_end": 1, "is_excluded": true}]}
		}
	}`

	got, err := DecodeChannels(strings.NewReader(project))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "T1", got[0].Name)
	assert.Equal(t, TypeMask, got[0].Segments[0].Type)
	assert.Equal(t, "T2", got[1].Name)
}

func TestDecodeChannelsRejectsNull(t *testing.T) {
	for _, input := range []string{
		`[null]`,
		`[{"name": "a", "segments": [{"x_start": 0, "x_end": 1}]}, null]`,
		`{"channels": {"a": null}}`,
	} {
		got, err := DecodeChannels(strings.NewReader(input))
		assert.Error(t, err, input)
		assert.Nil(t, got, input)
	}
}
