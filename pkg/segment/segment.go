// Package segment defines the records that describe a segmented channel:
// segments, their polynomial fit results and the per-channel state that
// owns the ordered partition.
package segment

import (
	"fmt"
)

// Type identifies how a segment takes part in fitting
type Type string

const (
	// TypeNormal segments are fitted with a polynomial
	TypeNormal Type = "Normal"

	// TypeMask segments remove their samples from every fit in the channel
	TypeMask Type = "Mask"
)

// Valid reports whether t is a known segment type
func (t Type) Valid() bool {
	return t == TypeNormal || t == TypeMask
}

// Order is the number of derivatives matched at segment boundaries
// in a continuity fit.
type Order int

const (
	OrderValue     Order = 0 // C0
	OrderSlope     Order = 1 // C0 + C1
	OrderCurvature Order = 2 // C0 + C1 + C2
)

// Valid reports whether o is a supported continuity order
func (o Order) Valid() bool {
	return o >= OrderValue && o <= OrderCurvature
}

// Presentation defaults used for new segments and for records that omit them
const (
	DefaultDegree    = 3
	DefaultColor     = "#1f77b4"
	DefaultThickness = 1.5
	DefaultLineStyle = "-"
)

// FitResult holds the polynomial fitted to one segment
type FitResult struct {
	// Coefficients are ordered from the highest degree down to the constant term
	Coefficients []float64 `json:"coefficients"`
	RMSE         float64   `json:"rmse"`
	RSquared     float64   `json:"r_squared"`
	PointsCount  int       `json:"points_count"`
}

// Degree returns the polynomial degree implied by the coefficient count
func (f *FitResult) Degree() int {
	return len(f.Coefficients) - 1
}

// Evaluate computes the polynomial at x using Horner's scheme
func (f *FitResult) Evaluate(x float64) float64 {
	v := 0.0
	for _, c := range f.Coefficients {
		v = v*x + c
	}
	return v
}

// Segment is one contiguous sub-range of a channel's time domain
type Segment struct {
	XStart     float64    `json:"x_start"`
	XEnd       float64    `json:"x_end"`
	Label      string     `json:"label"`
	PolyDegree int        `json:"poly_degree"`
	Type       Type       `json:"segment_type"`
	Color      string     `json:"color"`
	Thickness  float64    `json:"thickness"`
	LineStyle  string     `json:"line_style"`
	FitResult  *FitResult `json:"fit_result"`
}

// New returns a Normal segment over [start, end] with default attributes
func New(start, end float64) Segment {
	return Segment{
		XStart:     start,
		XEnd:       end,
		PolyDegree: DefaultDegree,
		Type:       TypeNormal,
		Color:      DefaultColor,
		Thickness:  DefaultThickness,
		LineStyle:  DefaultLineStyle,
	}
}

// IsMask reports whether the segment excludes its samples from fitting
func (s Segment) IsMask() bool {
	return s.Type == TypeMask
}

// Contains reports whether x lies in the closed range of the segment
func (s Segment) Contains(x float64) bool {
	return x >= s.XStart && x <= s.XEnd
}

// Title returns the label, or a label derived from the bounds when empty
func (s Segment) Title() string {
	if s.Label != "" {
		return s.Label
	}
	title := fmt.Sprintf("[%.2f : %.2f]", s.XStart, s.XEnd)
	if s.IsMask() {
		title += " (Mask)"
	}
	return title
}
