package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/chrissnell/segfit/pkg/segment"
)

// CurvePoint is one evaluated point of a fitted segment
type CurvePoint struct {
	Channel      string    `json:"channel"`
	Segment      int       `json:"segment"`
	Title        string    `json:"title"`
	Time         float64   `json:"t_abs"`
	DisplayTime  float64   `json:"t_display"`
	Value        float64   `json:"value"`
	Degree       int       `json:"degree"`
	RMSE         float64   `json:"rmse"`
	RSquared     float64   `json:"r_squared"`
	PointsCount  int       `json:"points_count"`
	Coefficients []float64 `json:"coefficients"`
}

// Curve evaluates every fitted Normal segment of ch at pointsPerSegment
// evenly spaced times from its start to its end, inclusive. Values below 2
// are raised to 2.
func Curve(ch *segment.ChannelState, pointsPerSegment int) []CurvePoint {
	if pointsPerSegment < 2 {
		pointsPerSegment = 2
	}

	var points []CurvePoint
	for i, s := range ch.Segments {
		if s.IsMask() || s.FitResult == nil {
			continue
		}
		times := floats.Span(make([]float64, pointsPerSegment), s.XStart, s.XEnd)
		for _, t := range times {
			points = append(points, CurvePoint{
				Channel:      ch.Name,
				Segment:      i,
				Title:        s.Title(),
				Time:         t,
				DisplayTime:  t + ch.TimeOffset,
				Value:        s.FitResult.Evaluate(t),
				Degree:       s.FitResult.Degree(),
				RMSE:         s.FitResult.RMSE,
				RSquared:     s.FitResult.RSquared,
				PointsCount:  s.FitResult.PointsCount,
				Coefficients: s.FitResult.Coefficients,
			})
		}
	}
	return points
}

// WriteCurveCSV writes points as a CSV table with a header row
func WriteCurveCSV(w io.Writer, points []CurvePoint) error {
	writer := csv.NewWriter(w)

	header := []string{"channel", "segment", "title", "t_abs", "t_display", "value", "degree", "rmse", "r_squared", "points_count", "coefficients"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		coeffs := make([]string, len(p.Coefficients))
		for i, c := range p.Coefficients {
			coeffs[i] = formatFloat(c)
		}
		record := []string{
			p.Channel,
			strconv.Itoa(p.Segment),
			p.Title,
			formatFloat(p.Time),
			formatFloat(p.DisplayTime),
			formatFloat(p.Value),
			strconv.Itoa(p.Degree),
			formatFloat(p.RMSE),
			formatFloat(p.RSquared),
			strconv.Itoa(p.PointsCount),
			strings.Join(coeffs, " "),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write curve row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
