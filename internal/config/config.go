package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete streamer configuration.
type Config struct {
	Audio   AudioConfig   `yaml:"audio" json:"audio"`
	Devices DevicesConfig `yaml:"devices" json:"devices"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// AudioConfig contains the capture parameters. All fields are scalar
// integers.
type AudioConfig struct {
	TargetSampleRate int `yaml:"target_sample_rate" json:"target_sample_rate"` // Hz
	Channels         int `yaml:"channels" json:"channels"`                     // per device, normally 1
	ChunkSize        int `yaml:"chunk_size" json:"chunk_size"`                 // frames per read
}

// DevicesConfig selects the input devices and the read-cycle policy.
// Device numbering is deployment-specific and must always be configured
// explicitly; there is no built-in default device set.
type DevicesConfig struct {
	Indices         []int   `yaml:"indices" json:"indices"`
	AllowPartial    bool    `yaml:"allow_partial" json:"allow_partial"`
	ConcurrentReads bool    `yaml:"concurrent_reads" json:"concurrent_reads"`
	ReadTimeout     float64 `yaml:"read_timeout" json:"read_timeout"` // seconds
}

// HTTPConfig contains the HTTP monitoring server configuration.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Port    int    `yaml:"port" json:"port"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the complete configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Devices.Validate(); err != nil {
		return fmt.Errorf("devices config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.TargetSampleRate <= 0 {
		return fmt.Errorf("target_sample_rate must be positive, got %d", a.TargetSampleRate)
	}

	if a.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", a.Channels)
	}

	if a.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", a.ChunkSize)
	}

	return nil
}

// Validate validates device configuration.
func (d *DevicesConfig) Validate() error {
	if len(d.Indices) == 0 {
		return fmt.Errorf("indices cannot be empty")
	}

	for _, index := range d.Indices {
		if index < 0 {
			return fmt.Errorf("device index cannot be negative, got %d", index)
		}
	}

	if d.ConcurrentReads && d.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive when concurrent_reads is enabled, got %f", d.ReadTimeout)
	}

	return nil
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeoutDuration returns the per-device read timeout as a
// time.Duration.
func (d *DevicesConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(d.ReadTimeout * float64(time.Second))
}
