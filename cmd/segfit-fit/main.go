package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chrissnell/segfit/internal/analysis"
	"github.com/chrissnell/segfit/internal/app"
	"github.com/chrissnell/segfit/internal/changepoint"
	"github.com/chrissnell/segfit/internal/log"
	"github.com/chrissnell/segfit/internal/workspace"
	"github.com/chrissnell/segfit/pkg/config"
	"github.com/chrissnell/segfit/pkg/segment"
)

func main() {
	var (
		dataFile    = flag.String("data", "", "Sample table CSV (required)")
		timeColumn  = flag.String("time-column", "", "Name of the time column (default: first column)")
		segments    = flag.String("segments", "", "Optional channel states JSON to start from")
		channel     = flag.String("channel", "", "Only report and edit this channel")
		boundaries  = flag.String("boundaries", "", "Comma-separated boundaries applied to the selected channels, e.g. 0,40,100")
		suggest     = flag.Bool("suggest", false, "Place boundaries at detected change points instead of -boundaries")
		penalty     = flag.Float64("penalty", config.DefaultSuggestPenalty, "Change point penalty for -suggest (higher gives fewer segments)")
		minSize     = flag.Int("min-size", config.DefaultSuggestMinSize, "Minimum samples per segment for -suggest")
		filter      = flag.Int("filter", 0, "Median filter kernel applied before -suggest (odd, 0 disables)")
		degree      = flag.Int("degree", config.DefaultDegree, "Polynomial degree for new segments")
		continuity  = flag.Int("continuity", -1, "Enable joint fitting with this order (0, 1 or 2); -1 leaves channels as loaded")
		noFallback  = flag.Bool("no-fallback", false, "Leave segments unfit when a joint fit fails instead of fitting them independently")
		points      = flag.Int("points", config.DefaultCurvePoints, "Curve points per segment")
		curveOutput = flag.String("curve", "", "Optional curve CSV output file path")
		outSegments = flag.String("out", "", "Optional channel states JSON output file path")
		debug       = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *dataFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -data <samples.csv> [-segments <states.json>] [-curve <curve.csv>] [-out <states.json>]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := &config.ConfigData{
		Fit:  config.FitData{DefaultDegree: degree, AutoRecalculate: boolPtr(false), FallbackIndependent: boolPtr(!*noFallback)},
		Data: config.DataSource{File: *dataFile, TimeColumn: *timeColumn, Segments: *segments},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ws, err := app.LoadWorkspace(cfg, log.GetSugaredLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	names := ws.Names()
	if *channel != "" {
		names = []string{*channel}
	}

	if *suggest {
		opts := changepoint.Options{Penalty: *penalty, MinSize: *minSize, FilterKernel: *filter}
		if err := applySuggestions(ws, names, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := applyEdits(ws, names, *boundaries, *continuity); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var curve []analysis.CurvePoint
	for _, name := range names {
		report, err := ws.Recompute(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		ch, _ := ws.Channel(name)
		printReport(ch, report)
		curve = append(curve, analysis.Curve(ch, *points)...)
	}

	if *curveOutput != "" {
		if err := writeFile(*curveOutput, func(f *os.File) error { return analysis.WriteCurveCSV(f, curve) }); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing curve: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nCurve exported to: %s\n", *curveOutput)
	}

	if *outSegments != "" {
		states := ws.States()
		if *channel != "" {
			ch, _ := ws.Channel(*channel)
			states = []*segment.ChannelState{ch}
		}
		if err := writeFile(*outSegments, func(f *os.File) error { return segment.EncodeChannels(f, states) }); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing channel states: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Channel states written to: %s\n", *outSegments)
	}
}

func boolPtr(b bool) *bool { return &b }

// applySuggestions regenerates each channel from detected change points.
// Channels with too few samples keep their segments.
func applySuggestions(ws *workspace.Workspace, names []string, opts changepoint.Options) error {
	for _, name := range names {
		cuts, err := ws.Suggest(name, opts)
		if errors.Is(err, changepoint.ErrTooFewSamples) {
			log.Warnf("[%s] %v", name, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("channel %s: %w", name, err)
		}
		ed, err := ws.Editor(name)
		if err != nil {
			return err
		}
		if err := ed.Regenerate(cuts); err != nil {
			return fmt.Errorf("channel %s: %w", name, err)
		}
		log.Infof("[%s] %d segments from change points", name, len(cuts)-1)
	}
	return nil
}

// applyEdits regenerates boundaries and sets continuity on the named channels
func applyEdits(ws *workspace.Workspace, names []string, boundaries string, continuity int) error {
	var cuts []float64
	if boundaries != "" {
		for _, field := range strings.Split(boundaries, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return fmt.Errorf("invalid boundary %q: %w", field, err)
			}
			cuts = append(cuts, v)
		}
	}
	if continuity >= 0 && !segment.Order(continuity).Valid() {
		return fmt.Errorf("continuity order must be 0, 1 or 2, got %d", continuity)
	}

	for _, name := range names {
		ed, err := ws.Editor(name)
		if err != nil {
			return err
		}
		if cuts != nil {
			if err := ed.Regenerate(cuts); err != nil {
				return fmt.Errorf("channel %s: %w", name, err)
			}
			log.Debugf("[%s] regenerated %d segments from -boundaries", name, len(cuts)-1)
		}
		if continuity >= 0 {
			ed.Channel().ContinuityEnabled = true
			ed.Channel().ContinuityOrder = segment.Order(continuity)
			log.Debugf("[%s] joint fitting with continuity order %d", name, continuity)
		}
	}
	return nil
}

func printReport(ch *segment.ChannelState, report analysis.Report) {
	fmt.Printf("\n%s (%s", ch.Name, report.Mode)
	if report.Mode == analysis.ModeContinuity {
		fmt.Printf(", order %d", ch.ContinuityOrder)
	}
	fmt.Printf(")\n")
	if report.JointFailed {
		if report.FellBack {
			fmt.Printf("  joint fit failed, fitted independently: %s\n", report.JointError)
		} else {
			fmt.Printf("  joint fit failed: %s\n", report.JointError)
		}
	}

	fmt.Printf("  %-3s | %-28s | %6s | %6s | %12s | %8s\n", "#", "Segment", "Degree", "Points", "RMSE", "R²")
	fmt.Printf("  ----+------------------------------+--------+--------+--------------+---------\n")
	for i, s := range ch.Segments {
		switch {
		case s.IsMask():
			fmt.Printf("  %-3d | %-28s | %6s | %6s | %12s | %8s\n", i, s.Title(), "-", "-", "masked", "-")
		case s.FitResult == nil:
			reason := "not fitted"
			if r, ok := report.Reasons[i]; ok {
				reason = r
			}
			fmt.Printf("  %-3d | %-28s | %6d | %6s | %s\n", i, s.Title(), s.PolyDegree, "-", reason)
		default:
			fr := s.FitResult
			fmt.Printf("  %-3d | %-28s | %6d | %6d | %12.6g | %8.4f\n", i, s.Title(), fr.Degree(), fr.PointsCount, fr.RMSE, fr.RSquared)
		}
	}
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
