// Package workspace owns the channel states of one loaded sample table and
// connects them to the editor and the recompute pass. A Workspace is not
// safe for concurrent use; callers serialize access.
package workspace

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/chrissnell/segfit/internal/analysis"
	"github.com/chrissnell/segfit/internal/changepoint"
	"github.com/chrissnell/segfit/internal/editor"
	"github.com/chrissnell/segfit/internal/samples"
	"github.com/chrissnell/segfit/pkg/segment"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrEmptyTable     = errors.New("sample table has no finite times")
)

// Workspace holds the channel states for a sample table
type Workspace struct {
	table         samples.Table
	calc          *analysis.Calculator
	eps           float64
	defaultDegree int
	logger        *zap.SugaredLogger

	channels map[string]*segment.ChannelState
	names    []string
}

// Option configures a Workspace
type Option func(*Workspace)

// WithDefaultDegree sets the degree given to newly created segments
func WithDefaultDegree(d int) Option {
	return func(w *Workspace) {
		if d >= 0 {
			w.defaultDegree = d
		}
	}
}

// WithLogger sets the logger handed to editors
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates an empty workspace over table. eps is the boundary tolerance
// used by editors and validation.
func New(table samples.Table, calc *analysis.Calculator, eps float64, opts ...Option) *Workspace {
	if eps <= 0 {
		eps = editor.DefaultEpsilon
	}
	w := &Workspace{
		table:         table,
		calc:          calc,
		eps:           eps,
		defaultDegree: segment.DefaultDegree,
		logger:        zap.NewNop().Sugar(),
		channels:      make(map[string]*segment.ChannelState),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Table returns the sample table
func (w *Workspace) Table() samples.Table {
	return w.table
}

// Discover creates one single-segment channel per table column, spanning
// the table's time domain. Existing channel states are discarded.
func (w *Workspace) Discover() error {
	min, max, ok := samples.Domain(w.table.Times())
	if !ok {
		return ErrEmptyTable
	}
	if min == max {
		return fmt.Errorf("%w: single time value %g", ErrEmptyTable, min)
	}

	w.channels = make(map[string]*segment.ChannelState)
	w.names = nil
	for _, name := range w.table.Channels() {
		ch := segment.NewChannelState(name, min, max)
		ch.Segments[0].PolyDegree = w.defaultDegree
		w.channels[name] = ch
		w.names = append(w.names, name)
	}
	w.logger.Debugf("discovered %d channels over [%g, %g]", len(w.names), min, max)
	return nil
}

// Names returns channel names in table order
func (w *Workspace) Names() []string {
	return append([]string(nil), w.names...)
}

// Channel returns the live state of a channel
func (w *Workspace) Channel(name string) (*segment.ChannelState, error) {
	ch, ok := w.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Editor returns an editor bound to the live state of a channel
func (w *Workspace) Editor(name string) (*editor.Editor, error) {
	ch, err := w.Channel(name)
	if err != nil {
		return nil, err
	}
	return editor.New(ch,
		editor.WithEpsilon(w.eps),
		editor.WithDefaultDegree(w.defaultDegree),
		editor.WithLogger(w.logger),
	), nil
}

// Recompute refits every segment of the named channel
func (w *Workspace) Recompute(name string) (analysis.Report, error) {
	ch, err := w.Channel(name)
	if err != nil {
		return analysis.Report{}, err
	}
	values, err := w.table.Column(name)
	if err != nil {
		return analysis.Report{}, err
	}
	return w.calc.Recompute(ch, w.table.Times(), values), nil
}

// RecomputeAll refits every channel in table order
func (w *Workspace) RecomputeAll() ([]analysis.Report, error) {
	reports := make([]analysis.Report, 0, len(w.names))
	for _, name := range w.names {
		r, err := w.Recompute(name)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Suggest proposes a boundary list for the named channel from change points
// in its samples. The channel itself is not modified.
func (w *Workspace) Suggest(name string, opts changepoint.Options) ([]float64, error) {
	ch, err := w.Channel(name)
	if err != nil {
		return nil, err
	}
	values, err := w.table.Column(name)
	if err != nil {
		return nil, err
	}
	return changepoint.Suggest(w.table.Times(), values, ch.DomainStart, ch.DomainEnd, opts)
}

// Restore replaces channel states with copies of states. Every state must
// name a known channel, cover that channel's domain and satisfy the
// partition invariants; otherwise nothing is replaced.
func (w *Workspace) Restore(states []*segment.ChannelState) error {
	for i, st := range states {
		if st == nil {
			return fmt.Errorf("%w: state %d is nil", segment.ErrInvariant, i)
		}
		live, ok := w.channels[st.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChannel, st.Name)
		}
		if math.Abs(st.DomainStart-live.DomainStart) > w.eps || math.Abs(st.DomainEnd-live.DomainEnd) > w.eps {
			return fmt.Errorf("%w: channel %s domain [%g, %g] does not match samples [%g, %g]",
				segment.ErrInvariant, st.Name, st.DomainStart, st.DomainEnd, live.DomainStart, live.DomainEnd)
		}
		if err := st.Validate(w.eps); err != nil {
			return fmt.Errorf("channel %s: %w", st.Name, err)
		}
	}
	for _, st := range states {
		w.channels[st.Name] = st.Clone()
	}
	w.logger.Debugf("restored %d channel states", len(states))
	return nil
}

// States returns copies of every channel state in table order
func (w *Workspace) States() []*segment.ChannelState {
	out := make([]*segment.ChannelState, 0, len(w.names))
	for _, name := range w.names {
		out = append(out, w.channels[name].Clone())
	}
	return out
}
