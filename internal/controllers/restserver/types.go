package restserver

import (
	"github.com/chrissnell/segfit/internal/analysis"
	"github.com/chrissnell/segfit/internal/changepoint"
	"github.com/chrissnell/segfit/pkg/segment"
)

// Request bodies

type splitRequest struct {
	X *float64 `json:"x"`
}

type mergeRequest struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

type boundaryRequest struct {
	Index int      `json:"index"`
	Side  string   `json:"side"`
	X     *float64 `json:"x"`
}

type boundariesRequest struct {
	Boundaries []float64 `json:"boundaries"`
}

type insertRequest struct {
	XStart *float64 `json:"x_start"`
	XEnd   *float64 `json:"x_end"`
}

// patchRequest changes only the fields that are present
type patchRequest struct {
	PolyDegree  *int     `json:"poly_degree"`
	Color       *string  `json:"color"`
	Label       *string  `json:"label"`
	SegmentType *string  `json:"segment_type"`
	Thickness   *float64 `json:"thickness"`
	LineStyle   *string  `json:"line_style"`
}

type continuityRequest struct {
	Enabled bool `json:"enabled"`
	Order   *int `json:"order"`
}

type offsetRequest struct {
	TimeOffset *float64 `json:"time_offset"`
}

// suggestRequest overrides the configured detector settings
type suggestRequest struct {
	Penalty      *float64 `json:"penalty"`
	MinSize      *int     `json:"min_size"`
	FilterKernel *int     `json:"filter_kernel"`
}

type projectRequest struct {
	Name string `json:"name"`
}

// Responses

// editResponse is returned by every channel mutation. Index is set by
// operations that create or locate a segment. Report is present when the
// edit triggered a recompute.
type editResponse struct {
	Index   *int                  `json:"index,omitempty"`
	Channel *segment.ChannelState `json:"channel"`
	Report  *analysis.Report      `json:"report,omitempty"`
}

type channelsResponse struct {
	Channels []string `json:"channels"`
}

type segmentsResponse struct {
	Channel  string            `json:"channel"`
	Segments []segment.Segment `json:"segments"`
}

type curveResponse struct {
	Channel string                `json:"channel"`
	Points  []analysis.CurvePoint `json:"points"`
}

type suggestResponse struct {
	Channel    string              `json:"channel"`
	Boundaries []float64           `json:"boundaries"`
	Options    changepoint.Options `json:"options"`
}

type statusResponse struct {
	Version         string `json:"version"`
	Channels        int    `json:"channels"`
	StorageEnabled  bool   `json:"storage_enabled"`
	AutoRecalculate bool   `json:"auto_recalculate"`
}
