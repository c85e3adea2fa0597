// Package samples provides the sample tables that segment fits are computed
// against. A table holds one ascending time column and any number of named
// value columns; NaN marks a missing value.
package samples

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNotAscending   = errors.New("time column is not ascending")
	ErrColumnLength   = errors.New("column length does not match time column")
)

// Table is the read-only view of sampled data consumed by the fitters
type Table interface {
	Times() []float64
	Channels() []string
	Column(name string) ([]float64, error)
}

// MemTable is an in-memory Table
type MemTable struct {
	times   []float64
	names   []string
	columns map[string][]float64
}

// NewMemTable creates a table over the given time axis, which must be
// non-decreasing.
func NewMemTable(times []float64) (*MemTable, error) {
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return nil, fmt.Errorf("%w: t[%d]=%g after t[%d]=%g", ErrNotAscending, i, times[i], i-1, times[i-1])
		}
	}
	return &MemTable{
		times:   append([]float64(nil), times...),
		columns: make(map[string][]float64),
	}, nil
}

// AddColumn adds or replaces a named value column
func (m *MemTable) AddColumn(name string, values []float64) error {
	if len(values) != len(m.times) {
		return fmt.Errorf("%w: %s has %d values for %d times", ErrColumnLength, name, len(values), len(m.times))
	}
	if _, ok := m.columns[name]; !ok {
		m.names = append(m.names, name)
	}
	m.columns[name] = append([]float64(nil), values...)
	return nil
}

func (m *MemTable) Times() []float64 {
	return m.times
}

// Channels returns column names in insertion order
func (m *MemTable) Channels() []string {
	return append([]string(nil), m.names...)
}

func (m *MemTable) Column(name string) ([]float64, error) {
	col, ok := m.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return col, nil
}

// Domain returns the smallest and largest finite time. ok is false when
// there is none.
func Domain(times []float64) (min, max float64, ok bool) {
	for _, t := range times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		if !ok {
			min, max, ok = t, t, true
			continue
		}
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return min, max, ok
}

// Clean drops every row where either the time or the value is NaN or infinite
func Clean(x, y []float64) ([]float64, []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if finite(x[i]) && finite(y[i]) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	return xs, ys
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
