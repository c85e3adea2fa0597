package config

import (
	"errors"
	"fmt"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetFitConfig() (*FitData, error)
	GetServerConfig() (*ServerData, error)

	IsReadOnly() bool
	Close() error
}

// Defaults applied by ApplyDefaults
const (
	DefaultConstraintWeight  = 1000.0
	DefaultBoundaryEpsilon   = 1e-6
	DefaultConstantTolerance = 1e-9
	DefaultDegree            = 3
	DefaultCurvePoints       = 100
	DefaultPort              = 8080

	DefaultSuggestPenalty = 10.0
	DefaultSuggestMinSize = 5
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Fit     FitData     `json:"fit"`
	Data    DataSource  `json:"data"`
	Suggest SuggestData `json:"suggest"`
	Server  ServerData  `json:"server"`
	Storage StorageData `json:"storage,omitempty"`
}

// FitData holds the numerical and behavioural fitting parameters.
// Pointer fields distinguish "unset" from a legitimate zero value.
type FitData struct {
	ConstraintWeight    float64 `json:"constraint_weight,omitempty"`
	BoundaryEpsilon     float64 `json:"boundary_epsilon,omitempty"`
	ConstantTolerance   float64 `json:"constant_tolerance,omitempty"`
	DefaultDegree       *int    `json:"default_degree,omitempty"`
	AutoRecalculate     *bool   `json:"auto_recalculate,omitempty"`
	FallbackIndependent *bool   `json:"fallback_independent,omitempty"`
	CurvePoints         int     `json:"curve_points,omitempty"`
}

// Degree returns the configured default degree
func (f FitData) Degree() int {
	if f.DefaultDegree == nil {
		return DefaultDegree
	}
	return *f.DefaultDegree
}

// Recalculate reports whether edits trigger an automatic recompute
func (f FitData) Recalculate() bool {
	return f.AutoRecalculate == nil || *f.AutoRecalculate
}

// Fallback reports whether a failed joint fit falls back to independent fits
func (f FitData) Fallback() bool {
	return f.FallbackIndependent == nil || *f.FallbackIndependent
}

// SuggestData holds the defaults of the change point boundary suggester
type SuggestData struct {
	Penalty      float64 `json:"penalty,omitempty"`
	MinSize      int     `json:"min_size,omitempty"`
	FilterKernel int     `json:"filter_kernel,omitempty"`
}

// DataSource names the sample table loaded at startup
type DataSource struct {
	File       string `json:"file,omitempty"`
	TimeColumn string `json:"time_column,omitempty"`
	// Segments is an optional JSON file of channel states applied after loading
	Segments string `json:"segments,omitempty"`
}

// ServerData holds the HTTP command surface configuration
type ServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}

// StorageData holds the project store configuration
type StorageData struct {
	SQLite *SQLiteData `json:"sqlite,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

// ApplyDefaults fills every unset field with its default
func (c *ConfigData) ApplyDefaults() {
	if c.Fit.ConstraintWeight == 0 {
		c.Fit.ConstraintWeight = DefaultConstraintWeight
	}
	if c.Fit.BoundaryEpsilon == 0 {
		c.Fit.BoundaryEpsilon = DefaultBoundaryEpsilon
	}
	if c.Fit.ConstantTolerance == 0 {
		c.Fit.ConstantTolerance = DefaultConstantTolerance
	}
	if c.Fit.DefaultDegree == nil {
		d := DefaultDegree
		c.Fit.DefaultDegree = &d
	}
	if c.Fit.AutoRecalculate == nil {
		t := true
		c.Fit.AutoRecalculate = &t
	}
	if c.Fit.FallbackIndependent == nil {
		t := true
		c.Fit.FallbackIndependent = &t
	}
	if c.Fit.CurvePoints == 0 {
		c.Fit.CurvePoints = DefaultCurvePoints
	}
	if c.Suggest.Penalty == 0 {
		c.Suggest.Penalty = DefaultSuggestPenalty
	}
	if c.Suggest.MinSize == 0 {
		c.Suggest.MinSize = DefaultSuggestMinSize
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
}

// Validate checks value ranges after defaults have been applied
func (c *ConfigData) Validate() error {
	if c.Fit.ConstraintWeight < 0 {
		return fmt.Errorf("%w: constraint weight %g is negative", ErrInvalidConfig, c.Fit.ConstraintWeight)
	}
	if c.Fit.BoundaryEpsilon < 0 {
		return fmt.Errorf("%w: boundary epsilon %g is negative", ErrInvalidConfig, c.Fit.BoundaryEpsilon)
	}
	if c.Fit.ConstantTolerance < 0 {
		return fmt.Errorf("%w: constant tolerance %g is negative", ErrInvalidConfig, c.Fit.ConstantTolerance)
	}
	if c.Fit.Degree() < 0 {
		return fmt.Errorf("%w: default degree %d is negative", ErrInvalidConfig, c.Fit.Degree())
	}
	if c.Fit.CurvePoints < 0 {
		return fmt.Errorf("%w: curve points %d is negative", ErrInvalidConfig, c.Fit.CurvePoints)
	}
	if c.Suggest.Penalty < 0 || c.Suggest.MinSize < 0 {
		return fmt.Errorf("%w: suggest penalty and min size must not be negative", ErrInvalidConfig)
	}
	if k := c.Suggest.FilterKernel; k < 0 || (k > 1 && k%2 == 0) {
		return fmt.Errorf("%w: suggest filter kernel %d must be odd", ErrInvalidConfig, k)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		return fmt.Errorf("%w: TLS needs both cert and key", ErrInvalidConfig)
	}
	return nil
}
