// Package config provides configuration loading and management for dotrecon.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the run configuration loaded from YAML
type Config struct {
	// Reconstruction parameters
	Reconstruction struct {
		// Method is the reconstruction method: "standard" or "multispectral"
		Method string `yaml:"reconMethod"`

		// Space is the reconstruction space: "volume" or "cortex"
		Space string `yaml:"reconSpace"`

		// Reg is the regularization method: "tikhonov", "covariance" or "spatial"
		Reg string `yaml:"regMethod"`

		// HyperParameter is the regularization hyperparameter, scalar or vector
		HyperParameter []float64 `yaml:"hyperParameter"`

		// ImageType selects output images: "haem", "mua" or "both"
		ImageType string `yaml:"imageType"`

		// SaveVolumeImages keeps volume-space images in the output
		SaveVolumeImages bool `yaml:"saveVolumeImages"`

		// Persist forwards the finished image set to the output writer
		Persist bool `yaml:"persist"`
	} `yaml:"reconstruction"`

	// Processing parameters
	Processing struct {
		// Workers bounds frame-level parallelism; zero means all CPUs
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Directory is where persisted image sets are written
		Directory string `yaml:"directory"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default reconstruction parameters
	cfg.Reconstruction.Method = "standard"
	cfg.Reconstruction.Space = "volume"
	cfg.Reconstruction.Reg = "tikhonov"
	cfg.Reconstruction.HyperParameter = []float64{0.01}
	cfg.Reconstruction.ImageType = "haem"
	cfg.Reconstruction.SaveVolumeImages = true
	cfg.Reconstruction.Persist = true

	// Set default processing parameters
	cfg.Processing.Workers = runtime.NumCPU()

	// Set default output parameters
	cfg.Output.Directory = "reconstructed_images"
	cfg.Output.Verbose = true

	return cfg
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
