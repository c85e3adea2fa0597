package segment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// segmentRecord mirrors the serialized segment, with pointer fields so that
// absent keys can be told apart from zero values.
type segmentRecord struct {
	XStart     *float64   `json:"x_start"`
	XEnd       *float64   `json:"x_end"`
	Label      string     `json:"label"`
	PolyDegree *int       `json:"poly_degree"`
	Type       *Type      `json:"segment_type"`
	IsExcluded *bool      `json:"is_excluded"` // legacy, superseded by segment_type
	Color      *string    `json:"color"`
	Thickness  *float64   `json:"thickness"`
	LineStyle  *string    `json:"line_style"`
	FitResult  *FitResult `json:"fit_result"`
}

// MarshalJSON always emits coefficients as an array, never null
func (f FitResult) MarshalJSON() ([]byte, error) {
	type plain FitResult
	p := plain(f)
	if p.Coefficients == nil {
		p.Coefficients = []float64{}
	}
	return json.Marshal(p)
}

// UnmarshalJSON decodes a segment record, applying defaults for absent
// attributes and mapping the legacy is_excluded flag onto the segment type.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var rec segmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.XStart == nil || rec.XEnd == nil {
		return errors.New("segment record requires x_start and x_end")
	}

	seg := New(*rec.XStart, *rec.XEnd)
	seg.Label = rec.Label

	switch {
	case rec.Type != nil:
		if !rec.Type.Valid() {
			return fmt.Errorf("unknown segment_type %q", *rec.Type)
		}
		seg.Type = *rec.Type
	case rec.IsExcluded != nil && *rec.IsExcluded:
		seg.Type = TypeMask
	}

	if rec.PolyDegree != nil {
		if *rec.PolyDegree < 0 {
			return fmt.Errorf("negative poly_degree %d", *rec.PolyDegree)
		}
		seg.PolyDegree = *rec.PolyDegree
	}
	if rec.Color != nil {
		seg.Color = *rec.Color
	}
	if rec.Thickness != nil {
		seg.Thickness = *rec.Thickness
	}
	if rec.LineStyle != nil {
		seg.LineStyle = *rec.LineStyle
	}

	// A mask never carries a fit, and a result that does not match the
	// degree is stale.
	if rec.FitResult != nil && !seg.IsMask() && len(rec.FitResult.Coefficients) == seg.PolyDegree+1 {
		seg.FitResult = rec.FitResult
	}

	*s = seg
	return nil
}

// channelRecord mirrors the serialized channel state. stitch_enabled and
// stitch_method are the names used by older project files.
type channelRecord struct {
	Name              string    `json:"name"`
	TimeOffset        float64   `json:"time_offset"`
	DomainStart       *float64  `json:"domain_start"`
	DomainEnd         *float64  `json:"domain_end"`
	Segments          []Segment `json:"segments"`
	ContinuityEnabled *bool     `json:"continuity_enabled"`
	ContinuityOrder   *Order    `json:"continuity_order"`
	StitchEnabled     *bool     `json:"stitch_enabled"`
	StitchMethod      *Order    `json:"stitch_method"`
}

// UnmarshalJSON decodes a channel state, accepting older key names and
// deriving the domain from the segments when it is not recorded.
func (c *ChannelState) UnmarshalJSON(data []byte) error {
	var rec channelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	ch := ChannelState{
		Name:            rec.Name,
		TimeOffset:      rec.TimeOffset,
		Segments:        rec.Segments,
		ContinuityOrder: OrderSlope,
	}
	if ch.Segments == nil {
		ch.Segments = []Segment{}
	}
	sort.SliceStable(ch.Segments, func(i, j int) bool {
		return ch.Segments[i].XStart < ch.Segments[j].XStart
	})

	switch {
	case rec.ContinuityEnabled != nil:
		ch.ContinuityEnabled = *rec.ContinuityEnabled
	case rec.StitchEnabled != nil:
		ch.ContinuityEnabled = *rec.StitchEnabled
	}
	switch {
	case rec.ContinuityOrder != nil:
		ch.ContinuityOrder = *rec.ContinuityOrder
	case rec.StitchMethod != nil:
		ch.ContinuityOrder = *rec.StitchMethod
	}
	if !ch.ContinuityOrder.Valid() {
		return fmt.Errorf("channel %q: continuity order %d out of range", rec.Name, ch.ContinuityOrder)
	}

	if n := len(ch.Segments); n > 0 {
		ch.DomainStart = ch.Segments[0].XStart
		ch.DomainEnd = ch.Segments[n-1].XEnd
	}
	if rec.DomainStart != nil {
		ch.DomainStart = *rec.DomainStart
	}
	if rec.DomainEnd != nil {
		ch.DomainEnd = *rec.DomainEnd
	}

	*c = ch
	return nil
}

// EncodeChannels writes channel states as an indented JSON array
func EncodeChannels(w io.Writer, channels []*ChannelState) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(channels)
}

// DecodeChannels reads channel states written by EncodeChannels. It also
// accepts project files of the form {"channels": {"<name>": {...}}}, in
// which case channels are returned sorted by name.
func DecodeChannels(r io.Reader) ([]*ChannelState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel data: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty channel data")
	}

	if data[0] == '[' {
		var channels []*ChannelState
		if err := json.Unmarshal(data, &channels); err != nil {
			return nil, fmt.Errorf("failed to decode channels: %w", err)
		}
		for i, ch := range channels {
			if ch == nil {
				return nil, fmt.Errorf("failed to decode channels: entry %d is null", i)
			}
		}
		return channels, nil
	}

	var project struct {
		Channels map[string]*ChannelState `json:"channels"`
	}
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to decode project: %w", err)
	}

	names := make([]string, 0, len(project.Channels))
	for name := range project.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	channels := make([]*ChannelState, 0, len(names))
	for _, name := range names {
		ch := project.Channels[name]
		if ch == nil {
			return nil, fmt.Errorf("failed to decode project: channel %q is null", name)
		}
		if ch.Name == "" {
			ch.Name = name
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
