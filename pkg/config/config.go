// Package config provides configuration loading and management for aricluster.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Inference parameters
	Inference struct {
		// Alpha is the significance level of the closed testing procedure
		Alpha float64 `yaml:"alpha"`

		// Simes selects the Simes local test; false selects the robust
		// variant for dependent p-values
		Simes bool `yaml:"simes"`

		// TwoSided controls the p-value derivation for z- and t-maps
		TwoSided bool `yaml:"twoSided"`
	} `yaml:"inference"`

	// Clustering parameters
	Clustering struct {
		// Connectivity is the voxel neighbourhood: 6, 18 or 26
		Connectivity int `yaml:"connectivity"`

		// GammaStep is the spacing of the TDP threshold sweep grid
		GammaStep float64 `yaml:"gammaStep"`
	} `yaml:"clustering"`

	// Processing parameters
	Processing struct {
		// Workers specifies how many workers run the threshold sweep
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Inference.Alpha = 0.05
	cfg.Inference.Simes = true
	cfg.Inference.TwoSided = true

	cfg.Clustering.Connectivity = 26
	cfg.Clustering.GammaStep = 0.01

	cfg.Processing.Workers = runtime.NumCPU()

	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the configuration for values the pipeline cannot run with
func (cfg *Config) Validate() error {
	if cfg.Inference.Alpha <= 0 || cfg.Inference.Alpha >= 1 {
		return fmt.Errorf("config: alpha %v outside (0,1)", cfg.Inference.Alpha)
	}
	switch cfg.Clustering.Connectivity {
	case 6, 18, 26:
	default:
		return fmt.Errorf("config: connectivity must be 6, 18 or 26, got %d",
			cfg.Clustering.Connectivity)
	}
	if cfg.Clustering.GammaStep <= 0 || cfg.Clustering.GammaStep > 1 {
		return fmt.Errorf("config: gamma step %v outside (0,1]", cfg.Clustering.GammaStep)
	}
	if cfg.Processing.Workers < 0 {
		return fmt.Errorf("config: workers must be non-negative, got %d",
			cfg.Processing.Workers)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
