// Package analysis runs the recompute pass that turns a channel's current
// segments and samples into fit results, and exports fitted curves.
package analysis

import (
	"errors"

	"go.uber.org/zap"

	"github.com/chrissnell/segfit/internal/fit"
	"github.com/chrissnell/segfit/pkg/segment"
)

// Mode names the fitter used for a recompute pass
type Mode string

const (
	ModeIndependent Mode = "independent"
	ModeContinuity  Mode = "continuity"
)

// Report summarises one recompute pass
type Report struct {
	Channel     string `json:"channel"`
	Mode        Mode   `json:"mode"`
	JointFailed bool   `json:"joint_failed"`
	FellBack    bool   `json:"fell_back"`
	JointError  string `json:"joint_error,omitempty"`
	Fitted      []int  `json:"fitted"`

	// Failed maps segment index to the fit error for that segment
	Failed  map[int]error  `json:"-" msgpack:"-"`
	Reasons map[int]string `json:"failed,omitempty"`
}

func (r *Report) fail(index int, err error) {
	r.Failed[index] = err
	r.Reasons[index] = err.Error()
}

// Calculator owns the fitters and the fallback policy for continuity failures
type Calculator struct {
	independent *fit.IndependentFitter
	continuity  *fit.ContinuityFitter
	fallback    bool
	logger      *zap.SugaredLogger
}

// NewCalculator creates a Calculator. When fallback is set, a failed joint
// fit is replaced by independent per-segment fits; otherwise every Normal
// segment is left unfit.
func NewCalculator(opts fit.Options, fallback bool, logger *zap.SugaredLogger) *Calculator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Calculator{
		independent: fit.NewIndependentFitter(opts),
		continuity:  fit.NewContinuityFitter(opts),
		fallback:    fallback,
		logger:      logger,
	}
}

// Recompute refits every segment of ch against (times, values) and writes
// the results into ch.Segments. Mask segments always end without a fit.
// Failures never abort the pass; they are recorded in the report.
func (c *Calculator) Recompute(ch *segment.ChannelState, times, values []float64) Report {
	report := Report{
		Channel: ch.Name,
		Mode:    ModeIndependent,
		Fitted:  []int{},
		Failed:  make(map[int]error),
		Reasons: make(map[int]string),
	}

	for i := range ch.Segments {
		ch.Segments[i].FitResult = nil
	}

	if ch.ContinuityEnabled {
		report.Mode = ModeContinuity
		results, err := c.continuity.Fit(ch.Segments, times, values, ch.ContinuityOrder)
		if err == nil {
			for i, fr := range results {
				if fr == nil {
					continue
				}
				ch.Segments[i].FitResult = fr
				report.Fitted = append(report.Fitted, i)
			}
			c.logger.Debugf("[%s] joint fit of %d segments (order %d)", ch.Name, len(report.Fitted), ch.ContinuityOrder)
			return report
		}

		report.JointFailed = true
		report.JointError = err.Error()
		if !c.fallback {
			c.logger.Warnf("[%s] joint fit failed, segments left unfit: %v", ch.Name, err)
			for i, s := range ch.Segments {
				if !s.IsMask() {
					report.fail(i, err)
				}
			}
			return report
		}
		c.logger.Warnf("[%s] joint fit failed, falling back to independent fits: %v", ch.Name, err)
		report.FellBack = true
	}

	c.fitIndependent(ch, times, values, &report)
	return report
}

func (c *Calculator) fitIndependent(ch *segment.ChannelState, times, values []float64, report *Report) {
	if len(times) != len(values) {
		for i, s := range ch.Segments {
			if !s.IsMask() {
				report.fail(i, fit.ErrLengthMismatch)
			}
		}
		c.logger.Warnf("[%s] %v: %d times, %d values", ch.Name, fit.ErrLengthMismatch, len(times), len(values))
		return
	}

	parts := fit.Partition(ch.Segments, times, values)
	for i, s := range ch.Segments {
		if s.IsMask() {
			continue
		}
		fr, err := c.independent.Fit(parts[i].X, parts[i].Y, s.PolyDegree)
		if err != nil {
			report.fail(i, err)
			if errors.Is(err, fit.ErrInsufficientPoints) {
				c.logger.Debugf("[%s] segment %d %s: %v", ch.Name, i, s.Title(), err)
			} else {
				c.logger.Warnf("[%s] segment %d %s: %v", ch.Name, i, s.Title(), err)
			}
			continue
		}
		ch.Segments[i].FitResult = fr
		report.Fitted = append(report.Fitted, i)
	}
}
