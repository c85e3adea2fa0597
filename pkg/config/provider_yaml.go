package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return y.parse(cfgFile)
}

func (y *YAMLProvider) parse(cfgFile []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Fit     FitYAML     `yaml:"fit,omitempty"`
		Data    DataYAML    `yaml:"data,omitempty"`
		Suggest SuggestYAML `yaml:"suggest,omitempty"`
		Server  ServerYAML  `yaml:"server,omitempty"`
		Storage StorageYAML `yaml:"storage,omitempty"`
	}

	if err := yaml.Unmarshal(cfgFile, &yamlConfig); err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Fit: FitData{
			ConstraintWeight:    yamlConfig.Fit.ConstraintWeight,
			BoundaryEpsilon:     yamlConfig.Fit.BoundaryEpsilon,
			ConstantTolerance:   yamlConfig.Fit.ConstantTolerance,
			DefaultDegree:       yamlConfig.Fit.DefaultDegree,
			AutoRecalculate:     yamlConfig.Fit.AutoRecalculate,
			FallbackIndependent: yamlConfig.Fit.FallbackIndependent,
			CurvePoints:         yamlConfig.Fit.CurvePoints,
		},
		Data: DataSource{
			File:       yamlConfig.Data.File,
			TimeColumn: yamlConfig.Data.TimeColumn,
			Segments:   yamlConfig.Data.Segments,
		},
		Suggest: SuggestData{
			Penalty:      yamlConfig.Suggest.Penalty,
			MinSize:      yamlConfig.Suggest.MinSize,
			FilterKernel: yamlConfig.Suggest.FilterKernel,
		},
		Server: ServerData{
			Cert:       yamlConfig.Server.Cert,
			Key:        yamlConfig.Server.Key,
			Port:       yamlConfig.Server.Port,
			ListenAddr: yamlConfig.Server.ListenAddr,
			EnableCORS: yamlConfig.Server.EnableCORS,
		},
	}

	if yamlConfig.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{
			Path: yamlConfig.Storage.SQLite.Path,
		}
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// GetFitConfig returns the fitting parameters
func (y *YAMLProvider) GetFitConfig() (*FitData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Fit, nil
}

// GetServerConfig returns the HTTP server configuration
func (y *YAMLProvider) GetServerConfig() (*ServerData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Server, nil
}

// IsReadOnly returns true since YAML files are not modified at runtime
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with the hyphenated keys used in config files
type FitYAML struct {
	ConstraintWeight    float64 `yaml:"constraint-weight,omitempty"`
	BoundaryEpsilon     float64 `yaml:"boundary-epsilon,omitempty"`
	ConstantTolerance   float64 `yaml:"constant-tolerance,omitempty"`
	DefaultDegree       *int    `yaml:"default-degree,omitempty"`
	AutoRecalculate     *bool   `yaml:"auto-recalculate,omitempty"`
	FallbackIndependent *bool   `yaml:"fallback-independent,omitempty"`
	CurvePoints         int     `yaml:"curve-points,omitempty"`
}

type DataYAML struct {
	File       string `yaml:"file,omitempty"`
	TimeColumn string `yaml:"time-column,omitempty"`
	Segments   string `yaml:"segments,omitempty"`
}

type SuggestYAML struct {
	Penalty      float64 `yaml:"penalty,omitempty"`
	MinSize      int     `yaml:"min-size,omitempty"`
	FilterKernel int     `yaml:"filter-kernel,omitempty"`
}

type ServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
	EnableCORS bool   `yaml:"enable-cors,omitempty"`
}

type StorageYAML struct {
	SQLite *SQLiteYAML `yaml:"sqlite,omitempty"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}
